package progress

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatClock(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "00:00:00", FormatClock(0))
	assert.Equal(t, "00:00:00", FormatClock(-5))
	assert.Equal(t, "00:00:59", FormatClock(59.9))
	assert.Equal(t, "01:02:05", FormatClock(3725))
	assert.Equal(t, "27:46:40", FormatClock(100000))
	assert.Equal(t, "--:--:--", FormatClock(math.Inf(1)))
}

func TestMeasure(t *testing.T) {
	t.Parallel()

	s := Measure(10, 20, 5*time.Second)
	require.InDelta(t, 2.0, s.Rate, 1e-9)
	require.InDelta(t, 5.0, s.ETA, 1e-9)

	done := Measure(20, 20, 10*time.Second)
	require.InDelta(t, 0.0, done.ETA, 1e-9)

	instant := Measure(1, 1, 0)
	require.False(t, math.IsInf(instant.Rate, 0), "elapsed is floored")
}
