// Package clock extends a narrow free-running hardware counter into
// wraparound-safe elapsed microseconds.
//
// Operational invariant: Source.Now() must be called at least once per
// WrapPeriod(). A counter that wraps twice between two reads looks like one
// wrap and elapsed time silently loses 2^width ticks. Nothing here detects that.
package clock

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
)

const MaxWidth = 32

// Counter is the boundary with timer peripheral: free-running, wrapping at 2^width.
type Counter interface {
	ReadRaw() uint32
}

type Source struct {
	mu         sync.Mutex
	counter    Counter
	width      uint
	mask       uint32
	resolution time.Duration
	last       uint32
	high       uint64
}

func NewSource(counter Counter, widthBits int, resolution time.Duration) (*Source, error) {
	if counter == nil {
		return nil, errors.NotValidf("counter=nil")
	}
	if widthBits < 1 || widthBits > MaxWidth {
		return nil, errors.NotValidf("counter width_bits=%d (expected 1..%d)", widthBits, MaxWidth)
	}
	if resolution <= 0 {
		return nil, errors.NotValidf("counter resolution=%v", resolution)
	}
	return &Source{
		counter:    counter,
		width:      uint(widthBits),
		mask:       uint32(uint64(1)<<uint(widthBits) - 1),
		resolution: resolution,
	}, nil
}

// Now returns elapsed microseconds, monotonically non-decreasing.
func (s *Source) Now() uint64 {
	s.mu.Lock()
	raw := s.counter.ReadRaw() & s.mask
	if raw < s.last {
		s.high += uint64(1) << s.width
	}
	s.last = raw
	ticks := s.high + uint64(raw)
	s.mu.Unlock()
	return ticks * uint64(s.resolution) / uint64(time.Microsecond)
}

// WrapPeriod is the longest allowed gap between two Now() calls.
func (s *Source) WrapPeriod() time.Duration {
	return time.Duration(uint64(1)<<s.width) * s.resolution
}

func (s *Source) Width() int                { return int(s.width) }
func (s *Source) Resolution() time.Duration { return s.resolution }

// HostCounter emulates hardware timer on top of host monotonic clock.
type HostCounter struct {
	start      time.Time
	resolution time.Duration
	mask       uint32
}

func NewHostCounter(widthBits int, resolution time.Duration) *HostCounter {
	if resolution <= 0 {
		resolution = time.Microsecond
	}
	mask := ^uint32(0)
	if widthBits > 0 && widthBits < MaxWidth {
		mask = uint32(1)<<uint(widthBits) - 1
	}
	return &HostCounter{start: time.Now(), resolution: resolution, mask: mask}
}

func (c *HostCounter) ReadRaw() uint32 {
	return uint32(uint64(time.Since(c.start)/c.resolution)) & c.mask
}

type MockCounter struct{ v uint32 }

func (c *MockCounter) ReadRaw() uint32 { return atomic.LoadUint32(&c.v) }
func (c *MockCounter) Set(v uint32)    { atomic.StoreUint32(&c.v, v) }

// Add advances counter by delta, wrapping at 2^widthBits.
func (c *MockCounter) Add(delta uint32, widthBits int) {
	mask := ^uint32(0)
	if widthBits < MaxWidth {
		mask = uint32(1)<<uint(widthBits) - 1
	}
	for {
		old := atomic.LoadUint32(&c.v)
		if atomic.CompareAndSwapUint32(&c.v, old, (old+delta)&mask) {
			return
		}
	}
}
