// Package throttle implements a per-second byte ceiling for segment
// fetches. Grounded on the teacher's speedEMAAlpha-based pacing idea in
// internal/downloader/config.go (even though the teacher never implements
// a hard ceiling itself, only observes speed), this is the module's own
// token-bucket-by-the-second construction, matching the spec's documented
// "no runtime SetLimit" decision (DESIGN.md Open Question 3): the ceiling
// is fixed at construction and never re-limited afterward.
package throttle

import (
	"sync"
	"time"
)

// Throttle enforces bytes_this_second <= maxBPS, sleeping out any
// overflow. A zero-value maxBPS disables throttling entirely.
type Throttle struct {
	maxBPS int64

	mu           sync.Mutex
	windowSecond int64
	used         int64
	sleep        func(time.Duration)
	now          func() time.Time
}

// New builds a Throttle capped at maxBPS bytes/sec. maxBPS <= 0 disables
// throttling (Throttle(n) becomes a no-op).
func New(maxBPS int64) *Throttle {
	return &Throttle{
		maxBPS: maxBPS,
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// Enabled reports whether this throttle enforces a ceiling.
func (t *Throttle) Enabled() bool { return t.maxBPS > 0 }

// Throttle accounts for n newly-received bytes, sleeping if admitting them
// this second would exceed maxBPS. On a wall-clock second boundary the
// window resets.
func (t *Throttle) Throttle(n int64) {
	if t.maxBPS <= 0 {
		return
	}

	t.mu.Lock()
	sec := t.now().Unix()
	if sec != t.windowSecond {
		t.windowSecond = sec
		t.used = 0
	}

	t.used += n
	if t.used > t.maxBPS {
		overflow := t.used - t.maxBPS
		waitSecs := float64(overflow) / float64(t.maxBPS)
		t.windowSecond = sec + 1
		t.used = 0
		t.mu.Unlock()

		t.sleep(time.Duration(waitSecs * float64(time.Second)))
		return
	}
	t.mu.Unlock()
}
