package estimator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimator_EmptyDefaults(t *testing.T) {
	e := New()
	require.Equal(t, 0.0, e.AvgBPS())
	require.Equal(t, "--", e.ETA(1000))
}

func TestEstimator_ETAFormats(t *testing.T) {
	e := New()
	e.AddSample(1000, 1000) // 1000 bytes/sec, exactly

	require.Equal(t, "5s", e.ETA(5000))

	e2 := New()
	e2.AddSample(60, 1000) // 60 bytes/sec
	require.Equal(t, "1m 0s", e2.ETA(3600))
}

func TestEstimator_SmoothsTowardSteadyRate(t *testing.T) {
	e := New()
	for i := 0; i < 20; i++ {
		e.AddSample(1000, 1000) // steady 1000 B/s
	}
	require.InDelta(t, 1000.0, e.AvgBPS(), 1.0)
}

func TestEstimator_WindowBounded(t *testing.T) {
	e := New()
	for i := 0; i < WindowSize+5; i++ {
		e.AddSample(100, 100)
	}
	require.Len(t, e.window, WindowSize)
}
