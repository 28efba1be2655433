package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldstone/bugtrack/internal/models"
	"github.com/fieldstone/bugtrack/internal/output"
	"github.com/fieldstone/bugtrack/internal/stats"
	"github.com/fieldstone/bugtrack/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the bug database",
	Long:  "Print totals by status and severity, unassigned count, and the oldest active bug.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return statsRun()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func statsRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	bugs, err := s.ListBugs(ctx, store.ListFilter{})
	if err != nil {
		return err
	}

	summary := stats.Summarize(bugs)
	if summary.Total == 0 {
		ui.Info("No bugs on record.")
		return nil
	}

	fmt.Fprintf(ui.Out, "Total bugs: %d  (%.0f%% active, %d unassigned)\n\n",
		summary.Total, summary.OpenRatio*100, summary.Unassigned)

	table := ui.Table([]string{"Status", "Count"})
	for _, st := range []models.Status{
		models.StatusOpen, models.StatusInProgress, models.StatusResolved, models.StatusClosed,
	} {
		_ = table.Append([]string{output.StatusColor(string(st)), fmt.Sprintf("%d", summary.ByStatus[st])})
	}
	_ = table.Render()
	fmt.Fprintln(ui.Out)

	table = ui.Table([]string{"Severity", "Count"})
	for _, sev := range []models.Severity{
		models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow,
	} {
		_ = table.Append([]string{output.SeverityColor(string(sev)), fmt.Sprintf("%d", summary.BySeverity[sev])})
	}
	_ = table.Render()

	if summary.OldestOpen != nil {
		age := stats.Age(summary.OldestOpen, time.Now().UTC())
		fmt.Fprintln(ui.Out)
		ui.Info("Oldest active bug: %s %s (open %d days)",
			output.Cyan(shortID(summary.OldestOpen.ID)),
			summary.OldestOpen.Title,
			int(age.Hours()/24))
	}
	return nil
}
