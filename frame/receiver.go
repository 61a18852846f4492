package frame

import (
	"sync/atomic"

	"github.com/juju/errors"
)

// HandlerFunc receives each decoded frame or reception error.
// Frame and its Raw bytes are valid only during the call.
type HandlerFunc func(f *Frame, err error)

type ReceiverStats struct {
	Frames  uint64
	Errors  uint64
	Skipped uint64 // bytes outside of frames
}

// Receiver reassembles frames from arbitrary byte stream.
// On any error it discards exactly one byte and resumes scanning for START.
type Receiver struct {
	codec  Codec
	layout Layout
	buf    [MaxSize]byte
	n      int
	frame  Frame
	stats  ReceiverStats
}

func NewReceiver(codec Codec, layout Layout) *Receiver {
	r := &Receiver{codec: codec, layout: layout}
	r.frame.Pairs = make([]Pair, 0, MaxSize/2)
	return r
}

func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		Frames:  atomic.LoadUint64(&r.stats.Frames),
		Errors:  atomic.LoadUint64(&r.stats.Errors),
		Skipped: atomic.LoadUint64(&r.stats.Skipped),
	}
}

// Buffered returns count of bytes waiting for rest of frame.
func (r *Receiver) Buffered() int { return r.n }

func (r *Receiver) Feed(p []byte, fn HandlerFunc) {
	for _, c := range p {
		if r.n == 0 && c != Start {
			atomic.AddUint64(&r.stats.Skipped, 1)
			continue
		}
		r.buf[r.n] = c
		r.n++
		r.process(fn)
	}
}

// Flush reports incomplete frame left in buffer as ErrTruncated, e.g. on EOF.
func (r *Receiver) Flush(fn HandlerFunc) {
	if r.n == 0 {
		return
	}
	err := errors.Annotatef(ErrTruncated, "stream ended buffered=%x", r.buf[:r.n])
	r.n = 0
	atomic.AddUint64(&r.stats.Errors, 1)
	fn(nil, err)
}

func (r *Receiver) Reset() { r.n = 0 }

func (r *Receiver) process(fn HandlerFunc) {
	for r.n > 0 {
		if r.buf[0] != Start {
			r.discard(1)
			atomic.AddUint64(&r.stats.Skipped, 1)
			continue
		}
		if r.n < 2 {
			return
		}
		total := Overhead + int(r.buf[1])
		if total <= r.codec.max() && r.n < total {
			return
		}
		n, err := r.codec.Parse(&r.frame, r.buf[:r.n], r.layout)
		if err != nil {
			atomic.AddUint64(&r.stats.Errors, 1)
			fn(nil, err)
			r.discard(1)
			continue
		}
		atomic.AddUint64(&r.stats.Frames, 1)
		fn(&r.frame, nil)
		r.discard(n)
	}
}

func (r *Receiver) discard(n int) {
	copy(r.buf[:], r.buf[n:r.n])
	r.n -= n
}
