package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThrottle_DisabledIsNoop(t *testing.T) {
	th := New(0)
	require.False(t, th.Enabled())
	th.Throttle(1 << 30) // must not sleep or panic
}

func TestThrottle_SleepsOnOverflow(t *testing.T) {
	th := New(100) // 100 bytes/sec
	var slept time.Duration
	th.sleep = func(d time.Duration) { slept = d }

	fixedNow := time.Unix(1000, 0)
	th.now = func() time.Time { return fixedNow }

	th.Throttle(60)
	require.Zero(t, slept, "first chunk under the cap should not sleep")

	th.Throttle(60) // cumulative 120 > 100
	require.Greater(t, slept, time.Duration(0))
}

func TestThrottle_ResetsOnSecondBoundary(t *testing.T) {
	th := New(100)
	var slept time.Duration
	th.sleep = func(d time.Duration) { slept = d }

	sec := int64(1000)
	th.now = func() time.Time { return time.Unix(sec, 0) }

	th.Throttle(90)
	require.Zero(t, slept)

	sec = 1001 // new second: window should reset
	th.Throttle(90)
	require.Zero(t, slept, "usage should have reset across the second boundary")
}
