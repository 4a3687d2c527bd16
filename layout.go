// Package idalloc - layout.go describes how the 63 usable bits of an ID are split
// between timestamp, datacenter, worker and sequence.

package idalloc

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// BitLayout defines how the 63 usable bits are allocated in an ID.
//
// Bit 63 (the sign bit) is reserved and always zero. The timestamp receives
// whatever the other three fields leave over, so a layout only names the
// identity and sequence widths:
//
//	[1 bit: 0][timestamp][DatacenterBits][WorkerBits][SequenceBits]
//
// The datacenter field is more significant than the worker field. IDs minted
// under different layouts cannot be compared or decoded interchangeably.
type BitLayout struct {
	// DatacenterBits is the width of the datacenter identifier.
	DatacenterBits int

	// WorkerBits is the width of the worker identifier.
	WorkerBits int

	// SequenceBits is the width of the per-millisecond counter.
	// 2^SequenceBits IDs can be minted in one millisecond before callers block.
	SequenceBits int
}

// LayoutDefault is the wire layout shared with previously issued IDs:
//
//	[1 bit: 0][41-bit timestamp offset][5-bit datacenter][5-bit worker][12-bit sequence]
var LayoutDefault = BitLayout{
	DatacenterBits: 5,
	WorkerBits:     5,
	SequenceBits:   12,
}

// ErrInvalidBitLayout is returned when a BitLayout is invalid.
var ErrInvalidBitLayout = errors.New("invalid bit layout")

// usableBits is the number of bits available once the sign bit is reserved.
const usableBits = 63

// TimestampBits returns the number of bits left for the timestamp offset.
func (l BitLayout) TimestampBits() int {
	return usableBits - l.DatacenterBits - l.WorkerBits - l.SequenceBits
}

// Validate checks that every width is non-negative and that the identity and
// sequence fields leave at least one bit for the timestamp.
func (l BitLayout) Validate() error {
	if l.DatacenterBits < 0 {
		return fmt.Errorf("%w: datacenter bits cannot be negative (%d)", ErrInvalidBitLayout, l.DatacenterBits)
	}
	if l.WorkerBits < 0 {
		return fmt.Errorf("%w: worker bits cannot be negative (%d)", ErrInvalidBitLayout, l.WorkerBits)
	}
	if l.SequenceBits < 0 {
		return fmt.Errorf("%w: sequence bits cannot be negative (%d)", ErrInvalidBitLayout, l.SequenceBits)
	}
	if l.TimestampBits() < 1 {
		return fmt.Errorf("%w: datacenter+worker+sequence must leave room for a timestamp, got %d+%d+%d",
			ErrInvalidBitLayout, l.DatacenterBits, l.WorkerBits, l.SequenceBits)
	}
	return nil
}

// Shifts holds the pre-calculated shift amounts and masks for a layout.
type Shifts struct {
	TimestampShift  uint
	DatacenterShift uint
	WorkerShift     uint

	MaxDatacenter int64
	MaxWorker     int64
	MaxSequence   int64
	MaxTimestamp  int64
}

// CalculateShifts returns the shift amounts and field maxima for this layout.
//
// It is called once at generator construction; the hot path only uses the
// cached values.
func (l BitLayout) CalculateShifts() Shifts {
	return Shifts{
		WorkerShift:     uint(l.SequenceBits),
		DatacenterShift: uint(l.SequenceBits + l.WorkerBits),
		TimestampShift:  uint(l.SequenceBits + l.WorkerBits + l.DatacenterBits),
		MaxDatacenter:   fieldMax(l.DatacenterBits),
		MaxWorker:       fieldMax(l.WorkerBits),
		MaxSequence:     fieldMax(l.SequenceBits),
		MaxTimestamp:    fieldMax(l.TimestampBits()),
	}
}

// fieldMax computes 2^bits - 1 as -1 ^ (-1 << bits).
func fieldMax(bits int) int64 {
	if bits <= 0 {
		return 0
	}
	return -1 ^ (-1 << bits)
}

// LayoutCapacity holds calculated capacity information for a BitLayout.
type LayoutCapacity struct {
	MaxDatacenters      int64
	MaxWorkers          int64 // per datacenter
	IDsPerMillisecond   int64
	ThroughputPerWorker int64 // IDs per second
	Lifespan            time.Duration
}

// CalculateCapacity returns the theoretical capacity of this layout.
func (l BitLayout) CalculateCapacity() LayoutCapacity {
	s := l.CalculateShifts()

	// float64 so 41+ bit millisecond spans do not overflow the nanosecond conversion
	lifespan := time.Duration(math.MaxInt64)
	if ns := float64(s.MaxTimestamp+1) * float64(time.Millisecond); ns < math.MaxInt64 {
		lifespan = time.Duration(ns)
	}

	perMilli := s.MaxSequence + 1
	return LayoutCapacity{
		MaxDatacenters:      s.MaxDatacenter + 1,
		MaxWorkers:          s.MaxWorker + 1,
		IDsPerMillisecond:   perMilli,
		ThroughputPerWorker: perMilli * 1000,
		Lifespan:            lifespan,
	}
}

// String returns a human-readable description of the layout capacity.
func (c LayoutCapacity) String() string {
	years := int(c.Lifespan.Hours() / 24 / 365)
	return fmt.Sprintf("Datacenters: %d, WorkersPerDatacenter: %d, ThroughputPerWorker: %d/sec, Lifespan: %d years",
		c.MaxDatacenters, c.MaxWorkers, c.ThroughputPerWorker, years)
}
