package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldstone/bugtrack/internal/client"
	"github.com/fieldstone/bugtrack/internal/models"
	"github.com/fieldstone/bugtrack/internal/output"
	"github.com/fieldstone/bugtrack/internal/query"
	realsync "github.com/fieldstone/bugtrack/internal/sync"
)

var (
	bugTitle    string
	bugDesc     string
	bugSeverity string
	bugStatus   string
	bugReporter string
	bugAssignee string
	bugTags     string
	bugRepro    string
	bugSort     string
	bugSortDesc bool
)

var bugCmd = &cobra.Command{
	Use:   "bug",
	Short: "Manage bug reports",
	Long:  "Report, list, update, and resolve bugs through the API server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugListRun()
	},
}

var bugAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Report a new bug",
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugAddRun()
	},
}

var bugListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List bugs",
	Long:    "List bugs, optionally filtered by status and sorted by any field.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugListRun()
	},
}

var bugShowCmd = &cobra.Command{
	Use:   "show <bug-id>",
	Short: "Show bug details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugShowRun(args[0])
	},
}

var bugUpdateCmd = &cobra.Command{
	Use:   "update <bug-id>",
	Short: "Update a bug",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugUpdateRun(args[0])
	},
}

var bugCloseCmd = &cobra.Command{
	Use:   "close <bug-id>",
	Short: "Close a bug",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugCloseRun(args[0])
	},
}

var bugDeleteCmd = &cobra.Command{
	Use:     "delete <bug-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a bug permanently",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugDeleteRun(args[0])
	},
}

var bugTagCmd = &cobra.Command{
	Use:   "tag <bug-id> <tag>",
	Short: "Add a tag to a bug",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugTagRun(args[0], args[1])
	},
}

func init() {
	bugAddCmd.Flags().StringVar(&bugTitle, "title", "", "Bug title (required)")
	bugAddCmd.Flags().StringVar(&bugDesc, "desc", "", "Detailed description (required)")
	bugAddCmd.Flags().StringVar(&bugReporter, "reporter", "", "Reporter name (required)")
	bugAddCmd.Flags().StringVar(&bugSeverity, "severity", "", "Severity: low, medium, high, critical")
	bugAddCmd.Flags().StringVar(&bugAssignee, "assignee", "", "Assignee name")
	bugAddCmd.Flags().StringVar(&bugTags, "tags", "", "Comma-separated tags")
	bugAddCmd.Flags().StringVar(&bugRepro, "repro", "", "Steps to reproduce")
	_ = bugAddCmd.MarkFlagRequired("title")
	_ = bugAddCmd.MarkFlagRequired("desc")
	_ = bugAddCmd.MarkFlagRequired("reporter")

	bugListCmd.Flags().StringVar(&bugStatus, "status", "all", "Filter by status: open, in-progress, resolved, closed, all")
	bugListCmd.Flags().StringVar(&bugSort, "sort", query.DefaultField, "Sort field: createdAt, updatedAt, title, severity, status")
	bugListCmd.Flags().BoolVar(&bugSortDesc, "desc", true, "Sort descending")

	bugUpdateCmd.Flags().StringVar(&bugStatus, "status", "", "New status")
	bugUpdateCmd.Flags().StringVar(&bugSeverity, "severity", "", "New severity")
	bugUpdateCmd.Flags().StringVar(&bugTitle, "title", "", "New title")
	bugUpdateCmd.Flags().StringVar(&bugDesc, "desc", "", "New description")
	bugUpdateCmd.Flags().StringVar(&bugAssignee, "assignee", "", "New assignee")
	bugUpdateCmd.Flags().StringVar(&bugRepro, "repro", "", "New reproduction steps")

	bugCmd.AddCommand(bugAddCmd)
	bugCmd.AddCommand(bugListCmd)
	bugCmd.AddCommand(bugShowCmd)
	bugCmd.AddCommand(bugUpdateCmd)
	bugCmd.AddCommand(bugCloseCmd)
	bugCmd.AddCommand(bugDeleteCmd)
	bugCmd.AddCommand(bugTagCmd)
	rootCmd.AddCommand(bugCmd)
}

func bugAddRun() error {
	s := getSync()
	ctx := context.Background()

	nb := client.NewBug{
		Title:             bugTitle,
		Description:       bugDesc,
		ReportedBy:        bugReporter,
		Severity:          bugSeverity,
		AssignedTo:        bugAssignee,
		ReproductionSteps: bugRepro,
	}
	if bugTags != "" {
		for _, t := range strings.Split(bugTags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				nb.Tags = append(nb.Tags, t)
			}
		}
	}

	if dryRun {
		ui.DryRunMsg("Would report bug: %s [%s]", bugTitle, bugSeverity)
		return nil
	}

	bug, err := s.Create(ctx, nb)
	if err != nil {
		return fmt.Errorf("create bug: %w", err)
	}

	ui.Success("Reported bug %s: %s", output.Cyan(shortID(bug.ID)), bug.Title)
	ui.VerboseLog("severity=%s status=%s", bug.Severity, bug.Status)
	return nil
}

func bugListRun() error {
	s := getSync()
	ctx := context.Background()

	if err := s.Fetch(ctx); err != nil {
		return err
	}

	s.SetFilter(bugStatus)
	s.SetSortBy(bugSort)
	if bugSortDesc {
		s.SetSortOrder(query.Desc)
	} else {
		s.SetSortOrder(query.Asc)
	}

	bugs := s.Visible()
	if len(bugs) == 0 {
		ui.Info("No bugs found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Severity", "Status", "Reporter", "Assignee", "Updated"})
	for _, bug := range bugs {
		_ = table.Append([]string{
			shortID(bug.ID),
			bug.Title,
			output.SeverityColor(string(bug.Severity)),
			output.StatusColor(string(bug.Status)),
			bug.ReportedBy,
			bug.AssignedTo,
			bug.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	_ = table.Render()
	return nil
}

func bugShowRun(id string) error {
	s := getSync()
	ctx := context.Background()

	bug, err := resolveBug(ctx, s, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(bug.ID)), bug.Title)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(bug.Status)))
	fmt.Fprintf(ui.Out, "  Severity:   %s\n", output.SeverityColor(string(bug.Severity)))
	fmt.Fprintf(ui.Out, "  Reporter:   %s\n", bug.ReportedBy)
	if bug.AssignedTo != "" {
		fmt.Fprintf(ui.Out, "  Assignee:   %s\n", bug.AssignedTo)
	}
	fmt.Fprintf(ui.Out, "  Desc:       %s\n", bug.Description)
	if bug.ReproductionSteps != "" {
		fmt.Fprintf(ui.Out, "  Repro:      %s\n", bug.ReproductionSteps)
	}
	if len(bug.Tags) > 0 {
		fmt.Fprintf(ui.Out, "  Tags:       %s\n", strings.Join(bug.Tags, ", "))
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", bug.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Updated:    %s\n", bug.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", bug.ID)

	return nil
}

func bugUpdateRun(id string) error {
	s := getSync()
	ctx := context.Background()

	bug, err := resolveBug(ctx, s, id)
	if err != nil {
		return err
	}

	var patch models.BugPatch
	changed := false
	if bugStatus != "" {
		patch.Status = &bugStatus
		changed = true
	}
	if bugSeverity != "" {
		patch.Severity = &bugSeverity
		changed = true
	}
	if bugTitle != "" {
		patch.Title = &bugTitle
		changed = true
	}
	if bugDesc != "" {
		patch.Description = &bugDesc
		changed = true
	}
	if bugAssignee != "" {
		patch.AssignedTo = &bugAssignee
		changed = true
	}
	if bugRepro != "" {
		patch.ReproductionSteps = &bugRepro
		changed = true
	}

	if !changed {
		return fmt.Errorf("no updates specified (use --status, --severity, --title, --desc, --assignee, or --repro)")
	}

	if dryRun {
		ui.DryRunMsg("Would update bug %s", shortID(bug.ID))
		return nil
	}

	updated, err := s.Update(ctx, bug.ID, patch)
	if err != nil {
		return fmt.Errorf("update bug: %w", err)
	}

	ui.Success("Updated bug %s: %s", output.Cyan(shortID(updated.ID)), updated.Title)
	return nil
}

func bugCloseRun(id string) error {
	s := getSync()
	ctx := context.Background()

	bug, err := resolveBug(ctx, s, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would close bug %s: %s", shortID(bug.ID), bug.Title)
		return nil
	}

	closed := string(models.StatusClosed)
	if _, err := s.Update(ctx, bug.ID, models.BugPatch{Status: &closed}); err != nil {
		return fmt.Errorf("close bug: %w", err)
	}

	ui.Success("Closed bug %s: %s", output.Cyan(shortID(bug.ID)), bug.Title)
	return nil
}

func bugDeleteRun(id string) error {
	s := getSync()
	ctx := context.Background()

	bug, err := resolveBug(ctx, s, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete bug %s: %s", shortID(bug.ID), bug.Title)
		return nil
	}

	if err := s.Delete(ctx, bug.ID); err != nil {
		return fmt.Errorf("delete bug: %w", err)
	}

	ui.Success("Deleted bug %s: %s", output.Cyan(shortID(bug.ID)), bug.Title)
	return nil
}

func bugTagRun(id, tag string) error {
	s := getSync()
	ctx := context.Background()

	bug, err := resolveBug(ctx, s, id)
	if err != nil {
		return err
	}

	tags, err := realsync.AppendTag(bug.Tags, tag)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would tag bug %s with %q", shortID(bug.ID), tag)
		return nil
	}

	if _, err := s.Update(ctx, bug.ID, models.BugPatch{Tags: &tags}); err != nil {
		return fmt.Errorf("tag bug: %w", err)
	}

	ui.Success("Tagged bug %s with %s", output.Cyan(shortID(bug.ID)), tag)
	return nil
}

// resolveBug finds a bug by full ID or unique prefix.
func resolveBug(ctx context.Context, s *realsync.Synchronizer, id string) (*models.Bug, error) {
	// Try exact match first
	if bug, err := s.GetByID(ctx, id); err == nil {
		return bug, nil
	}

	// Try prefix match against the full record set
	if err := s.Fetch(ctx); err != nil {
		return nil, err
	}

	upper := strings.ToUpper(id)
	var matches []*models.Bug
	for _, bug := range s.State().Bugs {
		if strings.HasPrefix(bug.ID, upper) {
			matches = append(matches, bug)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("bug not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous bug ID %s: matches %d bugs", id, len(matches))
	}
}

// shortID returns a truncated ULID for display (first 12 chars).
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
