package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/hillwatch/internal/progress"
	"github.com/JakeFAU/hillwatch/internal/store"
)

// HistorySink records phase run lifecycles via a store.RunRepository.
// Record-level events are ignored.
type HistorySink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewHistorySink constructs a HistorySink for repo.
func NewHistorySink(repo store.RunRepository, logger *zap.Logger) *HistorySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistorySink{repo: repo, logger: logger}
}

// Consume forwards run start and completion to the repository, returning the
// first repository error.
func (s *HistorySink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StagePhaseStart:
			if err := s.repo.StartRun(ctx, evt.RunID, evt.Phase, evt.Total, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StagePhaseDone:
			if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, store.RunSuccess, evt.Succeeded, evt.Failed, nil); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		case progress.StagePhaseError:
			var note *string
			if evt.Note != "" {
				note = &evt.Note
			}
			if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, store.RunError, evt.Succeeded, evt.Failed, note); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *HistorySink) Close(context.Context) error {
	return nil
}
