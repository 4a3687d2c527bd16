// Package idalloc provides a time-ordered, collision-free 64-bit identifier
// allocator based on the Snowflake scheme.
//
// # Overview
//
// Identifiers minted by one Generator are:
//   - Unique for the lifetime of the Generator
//   - Strictly increasing as long as the wall clock never steps backwards
//   - Disjoint from every other Generator with a different (datacenter, worker) pair
//
// # ID Structure (64 bits, LayoutDefault)
//
//	┌───┬─────────────────────────────────┬────────────┬────────────┬──────────────┐
//	│ 0 │ 41 bits: ms offset from Epoch   │ 5 bits:    │ 5 bits:    │ 12 bits:     │
//	│   │ (~69 years)                     │ datacenter │ worker     │ sequence     │
//	└───┴─────────────────────────────────┴────────────┴────────────┴──────────────┘
//
// # Failure Model
//
//   - Identity out of range: New fails with ErrInvalidIdentity. Never clamped.
//   - Clock moved backwards: NextID fails with ErrClockRegression. Never retried.
//   - Sequence exhausted within a millisecond: not an error. NextID spins on the
//     clock until the next millisecond and then returns.
//
// # Usage
//
// Construct one Generator at process start and hand it to every component that
// needs identifiers through the Allocator interface:
//
//	gen, err := idalloc.New(workerID, datacenterID)
//	if err != nil {
//	    return err
//	}
//	svc := ledger.NewService(gen, store, cache, logger)
package idalloc

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// Epoch is the default reference instant (2021-04-27T07:12:23.519Z) in
	// milliseconds since the Unix epoch. Every allocator whose IDs must be
	// comparable has to agree on it.
	Epoch int64 = 1619507543519

	// DatacenterIDBits is the datacenter width in LayoutDefault (32 datacenters).
	DatacenterIDBits = 5

	// WorkerIDBits is the worker width in LayoutDefault (32 workers per datacenter).
	WorkerIDBits = 5

	// SequenceBits is the sequence width in LayoutDefault (4096 IDs per millisecond).
	SequenceBits = 12

	// MaxDatacenterID is the largest datacenter ID in LayoutDefault (31).
	MaxDatacenterID = -1 ^ (-1 << DatacenterIDBits)

	// MaxWorkerID is the largest worker ID in LayoutDefault (31).
	MaxWorkerID = -1 ^ (-1 << WorkerIDBits)

	// MaxSequence is the largest sequence value in LayoutDefault (4095).
	MaxSequence = -1 ^ (-1 << SequenceBits)

	// WorkerIDShift positions the worker ID above the sequence.
	WorkerIDShift = SequenceBits

	// DatacenterIDShift positions the datacenter ID above the worker ID.
	DatacenterIDShift = SequenceBits + WorkerIDBits

	// TimestampShift positions the timestamp offset above the datacenter ID (22).
	TimestampShift = SequenceBits + WorkerIDBits + DatacenterIDBits

	// MaxTimestamp is the largest epoch offset in LayoutDefault (2^41 - 1 ms,
	// about 69 years).
	MaxTimestamp = -1 ^ (-1 << (63 - TimestampShift))

	// noTimestamp marks a generator that has not minted anything yet.
	noTimestamp int64 = -1
)

// Allocator is the single capability the allocator exposes to collaborators.
//
// *Generator implements it. Services depend on Allocator rather than on the
// concrete type so tests can inject a deterministic source.
type Allocator interface {
	NextID() (uint64, error)
}

var _ Allocator = (*Generator)(nil)

// Config holds the immutable settings of a Generator.
type Config struct {
	// WorkerID identifies this allocator within its datacenter.
	// Valid range: 0 to 2^Layout.WorkerBits-1.
	WorkerID int64

	// DatacenterID identifies the deployment context.
	// Valid range: 0 to 2^Layout.DatacenterBits-1.
	DatacenterID int64

	// Epoch is the reference instant in milliseconds since the Unix epoch.
	// It must precede every allocation. Default: Epoch.
	Epoch int64

	// Layout is the bit allocation. A zero Layout means LayoutDefault.
	Layout BitLayout

	// Clock is the time source. nil means SystemClock.
	Clock Clock
}

// DefaultConfig returns a Config for the given identity using Epoch,
// LayoutDefault and the system clock.
func DefaultConfig(workerID, datacenterID int64) Config {
	return Config{
		WorkerID:     workerID,
		DatacenterID: datacenterID,
		Epoch:        Epoch,
		Layout:       LayoutDefault,
		Clock:        SystemClock{},
	}
}

// Validate checks the configuration and fills in defaults for a zero Layout
// and a nil Clock.
//
// Identity problems are reported as *IdentityError (ErrInvalidIdentity);
// everything else as ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Layout == (BitLayout{}) {
		c.Layout = LayoutDefault
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}

	if err := c.Layout.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Epoch < 0 {
		return newConfigError("Epoch", strconv.FormatInt(c.Epoch, 10), "must be non-negative milliseconds since the Unix epoch")
	}

	s := c.Layout.CalculateShifts()
	if c.WorkerID < 0 || c.WorkerID > s.MaxWorker {
		return newIdentityError("WorkerID", c.WorkerID, s.MaxWorker, c.Layout.WorkerBits)
	}
	if c.DatacenterID < 0 || c.DatacenterID > s.MaxDatacenter {
		return newIdentityError("DatacenterID", c.DatacenterID, s.MaxDatacenter, c.Layout.DatacenterBits)
	}
	return nil
}

// Metrics holds runtime counters for monitoring.
//
// All counters are monotonically increasing and read atomically.
type Metrics struct {
	Generated         int64 // IDs successfully minted
	ClockRegressions  int64 // calls rejected with ErrClockRegression
	SequenceExhausted int64 // times a millisecond ran out of sequence values
	WaitTimeUs        int64 // microseconds spent spinning for the next millisecond
}

// Generator mints identifiers. It is safe for concurrent use.
//
// # Thread Safety
//
// One mutex guards the whole read-clock, compare, update, pack sequence.
// lastTimestamp and sequence are read-modify-written together, so the lock is
// never split; concurrent callers observe a single linear history of
// (lastTimestamp, sequence) transitions.
type Generator struct {
	mu            sync.Mutex // guards sequence and lastTimestamp
	sequence      int64
	lastTimestamp int64

	clock        Clock
	epoch        int64
	workerID     int64
	datacenterID int64
	layout       BitLayout
	shifts       Shifts
	identity     uint64 // datacenter and worker bits, pre-shifted

	generated         atomic.Int64
	clockRegressions  atomic.Int64
	sequenceExhausted atomic.Int64
	waitTimeUs        atomic.Int64
}

// New creates a Generator for the given identity with DefaultConfig.
//
// Returns an error matching ErrInvalidIdentity if either identifier is
// negative or exceeds 31.
func New(workerID, datacenterID int64) (*Generator, error) {
	return NewWithConfig(DefaultConfig(workerID, datacenterID))
}

// NewWithConfig creates a Generator from cfg.
//
// Shifts and masks are calculated once here; the allocation path only reads
// the cached values.
func NewWithConfig(cfg Config) (*Generator, error) {
	if err := (&cfg).Validate(); err != nil {
		return nil, err
	}

	s := cfg.Layout.CalculateShifts()
	return &Generator{
		sequence:      0,
		lastTimestamp: noTimestamp,
		clock:         cfg.Clock,
		epoch:         cfg.Epoch,
		workerID:      cfg.WorkerID,
		datacenterID:  cfg.DatacenterID,
		layout:        cfg.Layout,
		shifts:        s,
		identity:      uint64(cfg.DatacenterID)<<s.DatacenterShift | uint64(cfg.WorkerID)<<s.WorkerShift,
	}, nil
}

// NextID returns the next identifier.
//
// It fails with ErrClockRegression if the clock reads earlier than the last
// minted millisecond. When the sequence for the current millisecond is
// exhausted it spins until the clock advances, which under a healthy clock is
// bounded by one millisecond.
func (g *Generator) NextID() (uint64, error) {
	return g.NextIDContext(context.Background())
}

// NextIDContext is NextID with a cancellation hook on the exhaustion spin.
//
// If ctx is cancelled while waiting for the next millisecond, ctx.Err() is
// returned and the generator is left in the exhausted state for that
// millisecond, so a retry within the same millisecond spins again rather
// than reissue a sequence value. A cancelled call produces no identifier.
func (g *Generator) NextIDContext(ctx context.Context) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := g.nextLocked(ctx)
	if err != nil {
		return 0, err
	}
	g.generated.Add(1)
	return id, nil
}

// GenerateID returns the next identifier as an ID.
func (g *Generator) GenerateID() (ID, error) {
	id, err := g.NextID()
	return ID(id), err
}

// GenerateBatch mints count identifiers under a single lock acquisition.
//
// On error the IDs minted so far are returned together with the error.
func (g *Generator) GenerateBatch(ctx context.Context, count int) ([]ID, error) {
	if count <= 0 {
		return []ID{}, nil
	}

	ids := make([]ID, 0, count)

	g.mu.Lock()
	defer g.mu.Unlock()

	for i := 0; i < count; i++ {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				g.generated.Add(int64(len(ids)))
				return ids, err
			}
		}
		id, err := g.nextLocked(ctx)
		if err != nil {
			g.generated.Add(int64(len(ids)))
			return ids, err
		}
		ids = append(ids, ID(id))
	}

	g.generated.Add(int64(len(ids)))
	return ids, nil
}

// nextLocked runs one step of the allocation state machine. g.mu must be held.
//
// State is only committed once the returned value is known to be valid; every
// error path leaves (lastTimestamp, sequence) describing the last ID actually
// handed out.
func (g *Generator) nextLocked(ctx context.Context) (uint64, error) {
	now := g.clock.NowMillis()

	if now < g.lastTimestamp {
		g.clockRegressions.Add(1)
		return 0, &ClockRegressionError{
			CurrentTimestamp: now,
			LastTimestamp:    g.lastTimestamp,
			WorkerID:         g.workerID,
			DatacenterID:     g.datacenterID,
		}
	}

	sequence := int64(0)
	if now == g.lastTimestamp {
		sequence = (g.sequence + 1) & g.shifts.MaxSequence
		if sequence == 0 {
			// this millisecond is used up
			g.sequenceExhausted.Add(1)
			var err error
			now, err = g.waitNextMillis(ctx)
			if err != nil {
				return 0, err
			}
		}
	}

	offset := now - g.epoch
	if offset < 0 || offset > g.shifts.MaxTimestamp {
		return 0, fmt.Errorf("%w: now=%d epoch=%d max offset=%d",
			ErrTimestampOverflow, now, g.epoch, g.shifts.MaxTimestamp)
	}

	g.sequence = sequence
	g.lastTimestamp = now

	return uint64(offset)<<g.shifts.TimestampShift | g.identity | uint64(sequence), nil
}

// waitNextMillis polls the clock until it reads past lastTimestamp.
//
// The wait is at most a millisecond under a working clock, so it is a tight
// poll that yields the processor between reads rather than a timed sleep.
func (g *Generator) waitNextMillis(ctx context.Context) (int64, error) {
	start := time.Now()
	defer func() {
		g.waitTimeUs.Add(time.Since(start).Microseconds())
	}()

	done := ctx.Done()
	for {
		now := g.clock.NowMillis()
		if now > g.lastTimestamp {
			return now, nil
		}
		if done != nil {
			select {
			case <-done:
				return 0, ctx.Err()
			default:
			}
		}
		runtime.Gosched()
	}
}

// Decode splits id using this generator's layout.
func (g *Generator) Decode(id ID) Parts {
	return id.Decode(g.layout)
}

// Time returns the wall-clock instant encoded in id, using this generator's epoch.
func (g *Generator) Time(id ID) time.Time {
	return id.Time(g.layout, g.epoch)
}

// GetMetrics returns a snapshot of the generator counters.
func (g *Generator) GetMetrics() Metrics {
	return Metrics{
		Generated:         g.generated.Load(),
		ClockRegressions:  g.clockRegressions.Load(),
		SequenceExhausted: g.sequenceExhausted.Load(),
		WaitTimeUs:        g.waitTimeUs.Load(),
	}
}

// ResetMetrics zeroes all counters. Intended for tests.
func (g *Generator) ResetMetrics() {
	g.generated.Store(0)
	g.clockRegressions.Store(0)
	g.sequenceExhausted.Store(0)
	g.waitTimeUs.Store(0)
}

// WorkerID returns the worker ID bound at construction.
func (g *Generator) WorkerID() int64 {
	return g.workerID
}

// DatacenterID returns the datacenter ID bound at construction.
func (g *Generator) DatacenterID() int64 {
	return g.datacenterID
}

// Layout returns the bit layout used by this generator.
func (g *Generator) Layout() BitLayout {
	return g.layout
}

// Epoch returns the reference instant in milliseconds since the Unix epoch.
func (g *Generator) Epoch() int64 {
	return g.epoch
}
