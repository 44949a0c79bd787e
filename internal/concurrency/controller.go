// Package concurrency implements the adaptive parallelism ceiling the
// Engine schedules against, folding memory pressure and network health
// into a single advisory integer. Grounded on the teacher's health-driven
// worker cancellation in internal/downloader/concurrent.go
// (checkWorkerHealth), generalized from "cancel this one slow worker" into
// a scheduling-ceiling adjustment the Engine consults at each scheduling
// point, per the spec's unidirectional feedback design (monitor observes,
// controller decides, engine reads).
package concurrency

import (
	"runtime"
	"sync"

	"github.com/tsegment/hlsdl/internal/netmon"
)

const (
	// Min is the lowest allowed concurrency ceiling.
	Min = 1
	// Max is the highest allowed concurrency ceiling.
	Max = 8
	// DefaultInitial is the ceiling a Controller starts at.
	DefaultInitial = 4
	// DefaultMemoryCapBytes is the default memory budget used to compute
	// memory pressure when the caller doesn't report real usage.
	DefaultMemoryCapBytes = 50 * 1024 * 1024
)

// Controller holds the current concurrency ceiling and adjusts it in
// response to Tick/Adjust calls.
type Controller struct {
	mu         sync.Mutex
	current    int
	memoryCap  int64
	memoryUsed int64
	monitor    *netmon.Monitor
}

// New builds a Controller observing monitor, starting at DefaultInitial.
func New(monitor *netmon.Monitor) *Controller {
	return &Controller{
		current:   DefaultInitial,
		memoryCap: DefaultMemoryCapBytes,
		monitor:   monitor,
	}
}

// Current returns the current concurrency ceiling.
func (c *Controller) Current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// SetMemoryCap overrides the default memory budget used by Adjust.
func (c *Controller) SetMemoryCap(cap int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memoryCap = cap
}

// ReportMemoryUsed lets the caller feed in real memory usage (e.g. a
// runtime.MemStats sample); Adjust treats it as the "memory pressure"
// input.
func (c *Controller) ReportMemoryUsed(used int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memoryUsed = used
}

// MemoryUsed reports the last reported usage, or samples runtime.MemStats
// directly on each call while nothing has been reported.
func (c *Controller) MemoryUsed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.memoryUsed > 0 {
		return c.memoryUsed
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.HeapAlloc)
}

// MemoryCap returns the configured memory budget.
func (c *Controller) MemoryCap() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memoryCap
}

// Adjust runs one decision step: memory pressure first, then the
// monitor's reduce/increase hooks, matching the priority order in the
// spec's §4.4 contract.
func (c *Controller) Adjust() {
	c.mu.Lock()
	defer c.mu.Unlock()

	used := c.memoryUsed
	if used == 0 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		used = int64(ms.HeapAlloc)
	}

	switch {
	case c.memoryCap > 0 && float64(used) > 0.8*float64(c.memoryCap):
		c.current = maxInt(Min, int(float64(c.current)*0.7))
	case c.monitor != nil && c.monitor.ShouldReduce():
		c.current = maxInt(Min, c.current-1)
	case c.monitor != nil && c.monitor.ShouldIncrease() && float64(used) < 0.5*float64(c.memoryCap):
		c.current = minInt(Max, c.current+1)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
