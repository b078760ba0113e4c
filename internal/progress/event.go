package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StagePhaseStart   Stage = "PHASE_START"
	StageRecordDone   Stage = "RECORD_DONE"
	StageRecordFailed Stage = "RECORD_FAILED"
	StagePhaseDone    Stage = "PHASE_DONE"
	StagePhaseError   Stage = "PHASE_ERROR"
)

// Event captures one step of a phase run.
type Event struct {
	// RunID identifies the phase run.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Phase is list, detail or committees.
	Phase string
	// Key is the record key for record-level events.
	Key string
	// Total is the number of eligible records, set on PHASE_START and terminal events.
	Total int
	// Succeeded and Failed carry the final counts on terminal events.
	Succeeded int
	Failed    int
	// Dur is the record latency or, on terminal events, the run duration.
	Dur time.Duration
	// Note carries error text for failures.
	Note string
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Stage == StagePhaseDone || e.Stage == StagePhaseError
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Phase == "" {
		return errors.New("phase is required")
	}
	switch e.Stage {
	case StagePhaseStart, StagePhaseDone, StagePhaseError:
	case StageRecordDone, StageRecordFailed:
		if e.Key == "" {
			return fmt.Errorf("%s requires a record key", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
