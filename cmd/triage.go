package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fieldstone/bugtrack/internal/output"
	"github.com/fieldstone/bugtrack/internal/triage"
)

var triageApply bool

var bugTriageCmd = &cobra.Command{
	Use:   "triage <bug-id>",
	Short: "Suggest severity and tags for a bug using an LLM",
	Long: `Send the bug report to the Anthropic API and print a suggested
severity and tag set. Nothing is changed unless --apply is given.

Requires anthropic.api_key in the config file or BUGTRACK_ANTHROPIC_API_KEY.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugTriageRun(args[0])
	},
}

func init() {
	bugTriageCmd.Flags().BoolVar(&triageApply, "apply", false, "Apply the suggested severity and tags")
	bugCmd.AddCommand(bugTriageCmd)
}

func bugTriageRun(id string) error {
	s := getSync()
	ctx := context.Background()

	bug, err := resolveBug(ctx, s, id)
	if err != nil {
		return err
	}

	tc := triage.NewClient(
		viper.GetString("anthropic.api_key"),
		viper.GetString("anthropic.model"),
	)

	ui.VerboseLog("requesting triage for %s", shortID(bug.ID))
	suggestion, err := tc.Suggest(ctx, bug)
	if err != nil {
		return fmt.Errorf("triage: %w", err)
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(bug.ID)), bug.Title)
	fmt.Fprintf(ui.Out, "  Current severity:    %s\n", output.SeverityColor(string(bug.Severity)))
	fmt.Fprintf(ui.Out, "  Suggested severity:  %s\n", output.SeverityColor(suggestion.Severity))
	if len(suggestion.Tags) > 0 {
		fmt.Fprintf(ui.Out, "  Suggested tags:      %s\n", strings.Join(suggestion.Tags, ", "))
	}
	if suggestion.Rationale != "" {
		fmt.Fprintf(ui.Out, "  Rationale:           %s\n", suggestion.Rationale)
	}

	if !triageApply {
		ui.Info("Run again with --apply to accept the suggestion.")
		return nil
	}

	if dryRun {
		ui.DryRunMsg("Would set severity=%s and merge tags on bug %s", suggestion.Severity, shortID(bug.ID))
		return nil
	}

	if _, err := s.Update(ctx, bug.ID, suggestion.Patch(bug)); err != nil {
		return fmt.Errorf("apply triage: %w", err)
	}

	ui.Success("Applied triage to bug %s", output.Cyan(shortID(bug.ID)))
	return nil
}
