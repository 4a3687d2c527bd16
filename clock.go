// Package idalloc - clock.go abstracts the millisecond time source so tests can
// drive regressions and sequence exhaustion deterministically.

package idalloc

import (
	"sync/atomic"
	"time"
)

// Clock reads the current wall-clock time in milliseconds since the Unix epoch.
//
// Implementations must be safe for concurrent use: the generator polls the
// clock while holding its lock and tests advance it from other goroutines.
type Clock interface {
	NowMillis() int64
}

// SystemClock reads the operating system wall clock.
//
// Wall time is used on purpose, not the process monotonic clock: a backward
// step must be observed so it can be reported as ErrClockRegression.
type SystemClock struct{}

// NowMillis implements Clock.
func (SystemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// ManualClock is a Clock whose reading only changes when told to.
//
// The zero value reads 0. All methods are safe for concurrent use.
//
//	clk := idalloc.NewManualClock(idalloc.Epoch + 100)
//	cfg := idalloc.DefaultConfig(1, 1)
//	cfg.Clock = clk
//	gen, _ := idalloc.NewWithConfig(cfg)
//	clk.Advance(time.Millisecond)
type ManualClock struct {
	ms atomic.Int64
}

// NewManualClock returns a ManualClock reading ms.
func NewManualClock(ms int64) *ManualClock {
	c := &ManualClock{}
	c.ms.Store(ms)
	return c
}

// NowMillis implements Clock.
func (c *ManualClock) NowMillis() int64 {
	return c.ms.Load()
}

// Set moves the clock to ms, which may be earlier than the current reading.
func (c *ManualClock) Set(ms int64) {
	c.ms.Store(ms)
}

// Advance moves the clock forward by d, truncated to whole milliseconds.
// Negative durations move it backwards.
func (c *ManualClock) Advance(d time.Duration) {
	c.ms.Add(d.Milliseconds())
}
