package progress

import (
	"fmt"
	"math"
	"time"
)

// Snapshot is the throughput view of a run at one instant.
type Snapshot struct {
	Done    int
	Total   int
	Elapsed time.Duration
	// Rate is completions per second.
	Rate float64
	// ETA is +Inf when no completions have been observed.
	ETA float64
}

// Measure computes throughput for done of total completions after elapsed.
// Elapsed is floored to one microsecond.
func Measure(done, total int, elapsed time.Duration) Snapshot {
	secs := math.Max(elapsed.Seconds(), 1e-6)
	rate := float64(done) / secs
	eta := math.Inf(1)
	if rate > 0 {
		eta = float64(total-done) / rate
	}
	return Snapshot{Done: done, Total: total, Elapsed: elapsed, Rate: rate, ETA: eta}
}

// String renders done/total | rate records/s | elapsed hh:mm:ss | ETA hh:mm:ss.
func (s Snapshot) String() string {
	return fmt.Sprintf("%d/%d | %.2f records/s | elapsed %s | ETA %s",
		s.Done, s.Total, s.Rate, FormatClock(s.Elapsed.Seconds()), FormatClock(s.ETA))
}

// FormatClock renders seconds as hh:mm:ss; infinity renders as --:--:--.
func FormatClock(seconds float64) string {
	if math.IsInf(seconds, 1) || math.IsNaN(seconds) {
		return "--:--:--"
	}
	total := int64(math.Max(0, seconds))
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
