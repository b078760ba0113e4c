package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/hillwatch/internal/stats"
	"github.com/JakeFAU/hillwatch/internal/store"
)

const defaultRecentRuns = 10

// newStatsCmd creates the 'stats' subcommand printing dataset completion.
func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show how far stored bills have progressed through each phase",
		Long: `Prints the store location, last save time, the newest upstream update seen,
and per-phase completion overall and per bill type. When run history is
configured (db.dsn) the most recent phase runs are listed too.`,
		Args: cobra.NoArgs,
		RunE: runStatsCommand,
	}
	cmd.Flags().Int("runs", defaultRecentRuns, "recent phase runs to list when run history is enabled")
	return cmd
}

func runStatsCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	rep, err := appInstance.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("compute stats: %w", err)
	}
	out := cmd.OutOrStdout()
	if rep.ModTime.IsZero() {
		fmt.Fprintf(out, "Store not found: %s\nRun: hillwatch run list\n", rep.Path)
		return nil
	}
	stats.Render(out, rep)

	repo := appInstance.Runs()
	if repo == nil {
		return nil
	}
	limit, err := cmd.Flags().GetInt("runs")
	if err != nil {
		return fmt.Errorf("read --runs: %w", err)
	}
	runs, err := repo.RecentRuns(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("load run history: %w", err)
	}
	renderRuns(out, runs)
	return nil
}

func renderRuns(w io.Writer, runs []store.PhaseRun) {
	fmt.Fprintln(w)
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Recent runs")
	t.AppendHeader(table.Row{"Run", "Phase", "Status", "Started", "Duration", "Eligible", "OK", "Failed"})
	for _, run := range runs {
		duration := "-"
		if run.FinishedAt != nil {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
		}
		t.AppendRow(table.Row{
			run.ID.String()[:8],
			run.Phase,
			string(run.Status),
			run.StartedAt.Local().Format(time.DateTime),
			duration,
			run.Eligible,
			run.Succeeded,
			run.Failed,
		})
	}
	t.Render()
}
