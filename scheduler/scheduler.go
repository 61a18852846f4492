// Package scheduler decides when to flush each rate class into a frame.
//
// Per class state machine: Idle -> Due (elapsed >= interval) -> Sent -> Idle.
// Classes are evaluated in order VeryFast, Fast, Slow on every Tick,
// failure of one class never blocks the others.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/easyuart/frame"
	"github.com/temoto/easyuart/helpers"
	"github.com/temoto/easyuart/log2"
	"github.com/temoto/easyuart/registry"
)

// Transmitter is the byte transport boundary. Returns false if frame was not sent.
type Transmitter interface {
	Transmit(frame []byte) bool
}

type TransmitFunc func([]byte) bool

func (f TransmitFunc) Transmit(b []byte) bool { return f(b) }

// Clock returns elapsed microseconds, see clock.Source.
type Clock interface {
	Now() uint64
}

type State uint8

const (
	Idle State = iota
	Due
	Sent
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Due:
		return "due"
	case Sent:
		return "sent"
	}
	return "invalid"
}

type Options struct {
	// zero value takes registry.DefaultIntervals
	Intervals [registry.NumClasses]time.Duration
	Codec     frame.Codec
	Log       *log2.Log
}

type Stats struct {
	Frames           uint64
	Bytes            uint64
	Empty            uint64
	TransmitFailures uint64
	EncodeErrors     uint64
}

type class struct {
	interval uint64 // us
	lastSent uint64
	state    State
	pending  []registry.Entry
}

type Scheduler struct {
	reg     *registry.Registry
	clock   Clock
	tx      Transmitter
	codec   frame.Codec
	log     *log2.Log
	classes [registry.NumClasses]class
	buf     []byte
	stats   Stats
}

func New(reg *registry.Registry, clock Clock, tx Transmitter, opt Options) (*Scheduler, error) {
	if reg == nil || clock == nil || tx == nil {
		return nil, errors.NotValidf("scheduler requires registry, clock and transmitter")
	}
	s := &Scheduler{
		reg:   reg,
		clock: clock,
		tx:    tx,
		codec: opt.Codec,
		log:   opt.Log,
		buf:   make([]byte, 0, frame.MaxSize),
	}
	if s.codec.Sum == nil {
		s.codec = frame.Default
	}
	for i := range s.classes {
		d := opt.Intervals[i]
		if d == 0 {
			d = registry.DefaultIntervals[i]
		}
		if d < time.Microsecond {
			return nil, errors.NotValidf("class=%s interval=%v", registry.RateClass(i), d)
		}
		s.classes[i].interval = uint64(d / time.Microsecond)
		s.classes[i].pending = make([]registry.Entry, 0, reg.Capacity())
	}
	return s, nil
}

// Interval, LastSent and State must be called from the goroutine that calls Tick.
// Interval, LastSent and State return zero values for invalid class.
func (s *Scheduler) Interval(c registry.RateClass) time.Duration {
	if !c.Valid() {
		return 0
	}
	return time.Duration(s.classes[c].interval) * time.Microsecond
}

func (s *Scheduler) LastSent(c registry.RateClass) uint64 {
	if !c.Valid() {
		return 0
	}
	return s.classes[c].lastSent
}

func (s *Scheduler) State(c registry.RateClass) State {
	if !c.Valid() {
		return Idle
	}
	return s.classes[c].state
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Frames:           atomic.LoadUint64(&s.stats.Frames),
		Bytes:            atomic.LoadUint64(&s.stats.Bytes),
		Empty:            atomic.LoadUint64(&s.stats.Empty),
		TransmitFailures: atomic.LoadUint64(&s.stats.TransmitFailures),
		EncodeErrors:     atomic.LoadUint64(&s.stats.EncodeErrors),
	}
}

// Tick samples clock once and flushes every due class.
// Returned error folds encode errors of all classes, transmit failures are only counted.
func (s *Scheduler) Tick() error {
	now := s.clock.Now()
	var errs []error
	for i := range s.classes {
		if err := s.tickClass(registry.RateClass(i), now); err != nil {
			errs = append(errs, err)
		}
	}
	return helpers.FoldErrors(errs)
}

func (s *Scheduler) tickClass(c registry.RateClass, now uint64) error {
	cs := &s.classes[c]
	if now-cs.lastSent < cs.interval {
		cs.state = Idle
		return nil
	}
	cs.state = Due
	q := s.reg.Queue(c)
	cs.pending = q.Pending(cs.pending[:0])
	if len(cs.pending) == 0 {
		atomic.AddUint64(&s.stats.Empty, 1)
		cs.lastSent = now
		cs.state = Idle
		return nil
	}

	// frame timestamp is low 32 bits of elapsed microseconds
	b, err := s.codec.Encode(s.buf[:0], uint32(now), cs.pending)
	if err != nil {
		atomic.AddUint64(&s.stats.EncodeErrors, 1)
		// report configuration defect once per interval, values stay dirty
		cs.lastSent = now
		cs.state = Idle
		err = errors.Annotatef(err, "class=%s", c)
		s.log.Error(err)
		return err
	}
	s.buf = b

	if !s.tx.Transmit(b) {
		atomic.AddUint64(&s.stats.TransmitFailures, 1)
		s.log.Debugf("scheduler class=%s transmit failed, retry next tick", c)
		return nil
	}
	q.Settle(cs.pending)
	cs.lastSent = now
	cs.state = Sent
	atomic.AddUint64(&s.stats.Frames, 1)
	atomic.AddUint64(&s.stats.Bytes, uint64(len(b)))
	if s.log.Enabled(log2.LDebug) {
		s.log.Debugf("scheduler class=%s sent frame=%s", c, helpers.HexSpaced(b))
	}
	return nil
}

type wrapper interface {
	WrapPeriod() time.Duration
}

// Run ticks every period until ctx is done.
// Period must be shorter than counter wrap period, otherwise elapsed time drifts.
func (s *Scheduler) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		return errors.NotValidf("scheduler period=%v", period)
	}
	if w, ok := s.clock.(wrapper); ok && period >= w.WrapPeriod() {
		return errors.NotValidf("scheduler period=%v >= counter wrap period=%v", period, w.WrapPeriod())
	}
	tmr := time.NewTicker(period)
	defer tmr.Stop()
	for {
		select {
		case <-tmr.C:
			_ = s.Tick() // logged per class
		case <-ctx.Done():
			return nil
		}
	}
}
