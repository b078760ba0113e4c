package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/hillwatch/internal/progress"
)

// PrometheusSink exports phase progress via Prometheus. It owns the
// collectors for runs started, completed and in flight and per-record results.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   *prometheus.HistogramVec
	records       *prometheus.CounterVec
	recordLatency *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hillwatch_phase_runs_started_total",
			Help: "Phase runs started partitioned by phase.",
		}, []string{"phase"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hillwatch_phase_runs_completed_total",
			Help: "Phase runs completed partitioned by phase and status.",
		}, []string{"phase", "status"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hillwatch_phase_runs_active",
			Help: "Phase runs currently in flight.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hillwatch_phase_duration_seconds",
			Help:    "Wall time per completed phase run.",
			Buckets: []float64{1, 10, 30, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"phase", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hillwatch_phase_records_total",
			Help: "Records processed partitioned by phase and result.",
		}, []string{"phase", "result"}),
		recordLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hillwatch_phase_record_duration_seconds",
			Help:    "Fetch, parse and merge latency per record.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"phase"}),
		tracker: &runTracker{running: make(map[uuid.UUID]struct{})},
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runDuration,
		s.records,
		s.recordLatency,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StagePhaseStart:
			s.runsStarted.WithLabelValues(evt.Phase).Inc()
			if s.tracker.start(evt.RunID) {
				s.runsActive.Inc()
			}
		case progress.StageRecordDone:
			s.records.WithLabelValues(evt.Phase, "success").Inc()
			s.observeRecord(evt)
		case progress.StageRecordFailed:
			s.records.WithLabelValues(evt.Phase, "failure").Inc()
			s.observeRecord(evt)
		case progress.StagePhaseDone, progress.StagePhaseError:
			status := "success"
			if evt.Stage == progress.StagePhaseError {
				status = "error"
			}
			s.runsCompleted.WithLabelValues(evt.Phase, status).Inc()
			if evt.Dur > 0 {
				s.runDuration.WithLabelValues(evt.Phase, status).Observe(evt.Dur.Seconds())
			}
			if s.tracker.complete(evt.RunID) {
				s.runsActive.Dec()
			}
		}
	}
	return nil
}

func (s *PrometheusSink) observeRecord(evt progress.Event) {
	if evt.Dur > 0 {
		s.recordLatency.WithLabelValues(evt.Phase).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func (t *runTracker) start(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
