package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hillwatch/internal/phase"
)

// maxLoggedFailures bounds how many per-record failures are logged individually.
const maxLoggedFailures = 20

// newRunCmd creates the 'run' subcommand executing one pipeline phase.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <list|detail|committees>",
		Short: "Run one pipeline phase against the store",
		Long: `Runs a single phase and saves the store once when it finishes.

  list        page through every selected bill type and upsert records
  detail      fill introduced date and sponsor where missing
  committees  refresh the current committee referral

Per-record failures are reported and skipped; only configuration, load and
persistence failures make the command exit non-zero.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(phase.List), string(phase.Detail), string(phase.Committees)},
		RunE:      runPhaseCommand,
	}
	cmd.Flags().StringSlice("types", nil, "bill types to process (default from pipeline.bill_types)")
	cmd.Flags().Int("limit", 0, "cap detail/committees records for this run (0 = no cap)")
	cmd.Flags().Int("workers", 0, "concurrent detail/committees workers")
	cmd.Flags().Float64("qps", 0, "upstream requests per second")
	return cmd
}

func runPhaseCommand(cmd *cobra.Command, args []string) error {
	name, err := phase.ParseName(args[0])
	if err != nil {
		return err
	}
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	// PersistentPostRun is skipped when RunE fails; the hub must still drain.
	defer appInstance.Close()
	logger := appInstance.Logger()

	runner, err := appInstance.NewRunner()
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	stopServer := appInstance.Serve(cmd.Context())
	defer stopServer()

	ds, err := appInstance.Store().Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}

	summary, err := runner.Run(cmd.Context(), name, ds)
	if errors.Is(err, phase.ErrEmptyStore) {
		return fmt.Errorf("%s: store %s has no records; run list first", name, appInstance.Store().Path())
	}
	logSummary(logger, summary)
	if err != nil {
		return fmt.Errorf("%s phase: %w", name, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d eligible, %d succeeded, %d failed, %d created, %d updated\n",
		summary.Phase, summary.Eligible, summary.Succeeded, summary.Failed, summary.Created, summary.Updated)
	return nil
}

func logSummary(logger *zap.Logger, s phase.Summary) {
	for i, f := range s.Failures {
		if i == maxLoggedFailures {
			logger.Warn("more failures omitted", zap.Int("omitted", len(s.Failures)-maxLoggedFailures))
			break
		}
		logger.Warn("record failed", zap.String("bill_id", f.Key), zap.Error(f.Err))
	}
	logger.Info("phase summary",
		zap.Stringer("run_id", s.RunID),
		zap.String("phase", string(s.Phase)),
		zap.Int("eligible", s.Eligible),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("failed", s.Failed),
		zap.Int("created", s.Created),
		zap.Int("updated", s.Updated),
		zap.Int("skipped", s.Skipped),
		zap.Bool("saved", s.Saved),
		zap.Duration("duration", s.Duration),
	)
}
