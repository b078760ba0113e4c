package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("phase run not found")

// RunStatus mirrors the phase_runs status column.
type RunStatus string

// Phase run statuses persisted in phase_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// PhaseRun models one row of the run-history table.
type PhaseRun struct {
	// ID is the run identifier stamped on progress events and logs.
	ID uuid.UUID
	// Phase is list, detail or committees.
	Phase string
	// StartedAt captures when the run was marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run completes.
	FinishedAt *time.Time
	// Status is running/success/error.
	Status RunStatus
	// Eligible is the number of records selected for the run.
	Eligible int
	// Succeeded and Failed count per-record outcomes.
	Succeeded int
	Failed    int
	// ErrorMessage optionally stores the fatal failure reason.
	ErrorMessage *string
}

// RunRepository persists phase-run history.
type RunRepository interface {
	StartRun(ctx context.Context, id uuid.UUID, phase string, eligible int, startedAt time.Time) error
	CompleteRun(ctx context.Context, id uuid.UUID, finishedAt time.Time, status RunStatus,
		succeeded, failed int, errMsg *string) error
	RecentRuns(ctx context.Context, limit int) ([]PhaseRun, error)
}
