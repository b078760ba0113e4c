package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/hillwatch/internal/progress"
)

// DefaultLogEvery is the completion interval between throughput lines.
const DefaultLogEvery = 25

// LogSink writes a throughput line every N completions and at the end of each
// phase run. Per-record failures are logged individually.
type LogSink struct {
	logger *zap.Logger
	every  int

	mu   sync.Mutex
	runs map[uuid.UUID]*runCounter
}

type runCounter struct {
	phase   string
	total   int
	done    int
	started time.Time
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger, every int) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if every <= 0 {
		every = DefaultLogEvery
	}
	return &LogSink{logger: logger, every: every, runs: make(map[uuid.UUID]*runCounter)}
}

// Consume logs the batch in order.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.consume(evt)
	}
	return nil
}

func (s *LogSink) consume(evt progress.Event) {
	base := []zap.Field{zap.Stringer("run_id", evt.RunID), zap.String("phase", evt.Phase)}

	switch evt.Stage {
	case progress.StagePhaseStart:
		s.runs[evt.RunID] = &runCounter{phase: evt.Phase, total: evt.Total, started: evt.TS}
		s.logger.Info("phase started", append(base, zap.Int("eligible", evt.Total))...)
	case progress.StageRecordDone, progress.StageRecordFailed:
		if evt.Stage == progress.StageRecordFailed {
			s.logger.Warn("record failed", append(base, zap.String("bill_id", evt.Key), zap.String("error", evt.Note))...)
		}
		run, ok := s.runs[evt.RunID]
		if !ok {
			return
		}
		run.done++
		if run.done%s.every == 0 || run.done == run.total {
			snap := progress.Measure(run.done, run.total, evt.TS.Sub(run.started))
			s.logger.Info(snap.String(), append(base,
				zap.Int("done", snap.Done),
				zap.Int("total", snap.Total),
				zap.Float64("rate", snap.Rate),
			)...)
		}
	case progress.StagePhaseDone, progress.StagePhaseError:
		delete(s.runs, evt.RunID)
		fields := append(base,
			zap.Int("eligible", evt.Total),
			zap.Int("succeeded", evt.Succeeded),
			zap.Int("failed", evt.Failed),
			zap.Duration("duration", evt.Dur),
		)
		if evt.Stage == progress.StagePhaseError {
			s.logger.Error("phase aborted", append(fields, zap.String("error", evt.Note))...)
			return
		}
		s.logger.Info("phase completed", fields...)
	}
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
