package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type exampleCountingSink struct {
	failed int
}

func (s *exampleCountingSink) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		if evt.Stage == StageRecordFailed {
			s.failed++
		}
	}
	return nil
}

func (s *exampleCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit demonstrates emitting events and flushing via Close.
func ExampleHub_Emit() {
	sink := &exampleCountingSink{}
	hub := NewHub(Config{MaxBatchEvents: 1, MaxBatchWait: time.Second}, sink)

	runID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	hub.Emit(Event{RunID: runID, TS: time.Unix(0, 0), Stage: StagePhaseStart, Phase: "detail", Total: 2})
	hub.Emit(Event{RunID: runID, TS: time.Unix(1, 0), Stage: StageRecordFailed, Phase: "detail", Key: "S_1"})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("failed records: %d\n", sink.failed)
	// Output:
	// failed records: 1
}

// ExampleMeasure shows the progress line written by the log sink.
func ExampleMeasure() {
	fmt.Println(Measure(50, 200, 25*time.Second))
	fmt.Println(Measure(0, 200, time.Second))
	// Output:
	// 50/200 | 2.00 records/s | elapsed 00:00:25 | ETA 00:01:15
	// 0/200 | 0.00 records/s | elapsed 00:00:01 | ETA --:--:--
}
