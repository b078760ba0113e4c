// Package phase drives the list, detail and committees enrichment passes over
// the bill dataset. Each pass selects its records, performs fetch, parse and
// merge work, and persists the whole dataset once when it finishes.
package phase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/hillwatch/internal/bill"
	"github.com/JakeFAU/hillwatch/internal/dispatcher"
	"github.com/JakeFAU/hillwatch/internal/progress"
)

// Name identifies a phase.
type Name string

// Supported phases.
const (
	List       Name = "list"
	Detail     Name = "detail"
	Committees Name = "committees"
)

// Defaults for Config fields.
const (
	DefaultPageSize  = 250
	DefaultPageDelay = 200 * time.Millisecond
)

// DefaultBillTypes are the bill types tracked when none are selected.
var DefaultBillTypes = []string{"hr", "s", "hjres", "sjres", "hconres", "sconres"}

// ErrEmptyStore is returned by detail and committees when there is nothing to enrich.
var ErrEmptyStore = errors.New("store is empty; run the list phase first")

// ParseName maps a CLI phase name to a Name.
func ParseName(s string) (Name, error) {
	switch n := Name(strings.ToLower(strings.TrimSpace(s))); n {
	case List, Detail, Committees:
		return n, nil
	default:
		return "", fmt.Errorf("unknown phase %q (want list, detail or committees)", s)
	}
}

// BillSource fetches raw upstream payloads.
type BillSource interface {
	ListBills(ctx context.Context, billType string, limit, offset int) (json.RawMessage, error)
	BillDetail(ctx context.Context, billType, number string) (json.RawMessage, error)
	BillCommittees(ctx context.Context, billType, number string) (json.RawMessage, error)
}

// Persister durably saves the whole dataset.
type Persister interface {
	Save(ctx context.Context, ds bill.Dataset) error
}

// Clock abstracts wall time for events.
type Clock interface {
	Now() time.Time
}

// IDGenerator issues run identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Config controls phase execution.
type Config struct {
	// Workers bounds concurrent detail/committees tasks.
	Workers int
	// PageSize is the list page limit.
	PageSize int
	// PageDelay is the pause between list pages.
	PageDelay time.Duration
	// BillTypes restricts every phase to these types.
	BillTypes []string
	// Limit caps detail/committees records per run; zero means no cap.
	Limit int
}

// Dependencies are the collaborators a Runner needs. Emitter, Clock and IDs
// are optional.
type Dependencies struct {
	Source    BillSource
	Persister Persister
	Builder   bill.Builder
	Schema    bill.Schema
	Emitter   progress.Emitter
	Clock     Clock
	IDs       IDGenerator
}

// Failure is one record that could not be processed. Key is the record key,
// or the upper-cased bill type for list pagination failures.
type Failure struct {
	Key string
	Err error
}

// Summary reports the outcome of one phase run.
type Summary struct {
	RunID     uuid.UUID
	Phase     Name
	Eligible  int
	Succeeded int
	Failed    int
	Created   int
	Updated   int
	Skipped   int
	Saved     bool
	Duration  time.Duration
	Failures  []Failure
}

func (s *Summary) fail(key string, err error) {
	s.Failed++
	s.Failures = append(s.Failures, Failure{Key: key, Err: err})
}

// Runner executes phases against an in-memory dataset.
type Runner struct {
	cfg       Config
	source    BillSource
	persister Persister
	builder   bill.Builder
	schema    bill.Schema
	emitter   progress.Emitter
	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// New constructs a Runner.
func New(cfg Config, deps Dependencies, logger *zap.Logger) (*Runner, error) {
	if deps.Source == nil {
		return nil, errors.New("bill source is required")
	}
	if deps.Persister == nil {
		return nil, errors.New("persister is required")
	}
	if deps.Builder.Congress <= 0 {
		return nil, errors.New("builder congress must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	deps.Builder = bill.NewBuilder(deps.Builder.Congress, deps.Builder.APIBase, deps.Builder.WebBase)
	if cfg.Workers <= 0 {
		cfg.Workers = dispatcher.DefaultWorkers
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PageDelay < 0 {
		cfg.PageDelay = 0
	}
	if len(cfg.BillTypes) == 0 {
		cfg.BillTypes = DefaultBillTypes
	}
	if cfg.Limit < 0 {
		cfg.Limit = 0
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Discard
	}
	if deps.Clock == nil {
		deps.Clock = utcClock{}
	}
	if deps.IDs == nil {
		deps.IDs = randomIDs{}
	}
	if len(deps.Schema.ExpertOptions) == 0 {
		deps.Schema = bill.NewSchema(nil)
	}
	return &Runner{
		cfg:       cfg,
		source:    deps.Source,
		persister: deps.Persister,
		builder:   deps.Builder,
		schema:    deps.Schema,
		emitter:   deps.Emitter,
		clock:     deps.Clock,
		ids:       deps.IDs,
		logger:    logger.Named("phase"),
		sleep:     pause,
	}, nil
}

// Run executes the named phase against ds, mutating it in place.
func (r *Runner) Run(ctx context.Context, name Name, ds bill.Dataset) (Summary, error) {
	switch name {
	case List:
		return r.RunList(ctx, ds)
	case Detail:
		return r.RunDetail(ctx, ds)
	case Committees:
		return r.RunCommittees(ctx, ds)
	default:
		return Summary{Phase: name}, fmt.Errorf("unknown phase %q", name)
	}
}

// run carries the per-invocation bookkeeping shared by every phase.
type run struct {
	r       *Runner
	summary Summary
	started time.Time
}

func (r *Runner) begin(name Name, eligible int) (*run, error) {
	id, err := r.ids.NewRawID()
	if err != nil {
		return nil, fmt.Errorf("allocate run id: %w", err)
	}
	rn := &run{
		r:       r,
		summary: Summary{RunID: id, Phase: name, Eligible: eligible},
		started: r.clock.Now(),
	}
	rn.emit(progress.Event{Stage: progress.StagePhaseStart, Total: eligible})
	return rn, nil
}

func (rn *run) emit(evt progress.Event) {
	evt.RunID = rn.summary.RunID
	evt.Phase = string(rn.summary.Phase)
	if evt.TS.IsZero() {
		evt.TS = rn.r.clock.Now()
	}
	rn.r.emitter.Emit(evt)
}

func (rn *run) recordDone(key string, dur time.Duration) {
	rn.summary.Succeeded++
	rn.emit(progress.Event{Stage: progress.StageRecordDone, Key: key, Dur: dur})
}

func (rn *run) recordFailed(key string, dur time.Duration, err error) {
	rn.summary.fail(key, err)
	rn.emit(progress.Event{Stage: progress.StageRecordFailed, Key: key, Dur: dur, Note: err.Error()})
}

// finish persists ds, emits the terminal event and returns the summary. The
// save ignores cancellation of ctx so merged work is never discarded.
func (rn *run) finish(ctx context.Context, ds bill.Dataset, save bool) (Summary, error) {
	var err error
	if save {
		if err = rn.r.persister.Save(context.WithoutCancel(ctx), ds); err != nil {
			err = fmt.Errorf("save dataset: %w", err)
		} else {
			rn.summary.Saved = true
		}
	}
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("%s phase interrupted: %w", rn.summary.Phase, ctx.Err())
	}
	rn.summary.Duration = rn.r.clock.Now().Sub(rn.started)

	evt := progress.Event{
		Stage:     progress.StagePhaseDone,
		Total:     rn.summary.Eligible,
		Succeeded: rn.summary.Succeeded,
		Failed:    rn.summary.Failed,
		Dur:       max(rn.summary.Duration, 0),
	}
	if err != nil {
		evt.Stage = progress.StagePhaseError
		evt.Note = err.Error()
	}
	rn.emit(evt)
	return rn.summary, err
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

type randomIDs struct{}

func (randomIDs) NewRawID() (uuid.UUID, error) { return uuid.NewV7() }

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
