// Package relay is host side of telemetry link: reads UART byte stream,
// reassembles frames, updates last-received cache and fans out decoded
// values to MQTT uplink, websocket feed and log.
package relay

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/easyuart/frame"
	"github.com/temoto/easyuart/helpers"
	"github.com/temoto/easyuart/helpers/atomic_clock"
	"github.com/temoto/easyuart/log2"
	"github.com/temoto/easyuart/registry"
	"github.com/temoto/easyuart/state"
	"github.com/temoto/easyuart/uart"
	"github.com/temoto/easyuart/wsfeed"
)

// Port is satisfied by *uart.Link.
type Port interface {
	ReadLoop(ctx context.Context, fn func([]byte)) error
	Close() error
}

type OpenFunc func() (Port, error)

type Options struct {
	// default opens configured UART device
	Open OpenFunc
	// nil disables websocket fan-out
	Feed *wsfeed.Hub
	// extra consumer, called after cache update
	OnFrame     frame.HandlerFunc
	ReopenDelay time.Duration
}

type Stats struct {
	frame.ReceiverStats
	Reopens   uint64
	LastFrame time.Time
}

type Relay struct {
	g       *state.Global
	log     *log2.Log
	opt     Options
	recv    *frame.Receiver
	backoff helpers.Backoff
	records []registry.Record

	reopens   uint64
	lastFrame atomic_clock.Clock
}

func New(g *state.Global, opt Options) *Relay {
	if opt.Open == nil {
		opt.Open = func() (Port, error) {
			link, err := OpenUart(g)
			if err != nil {
				return nil, err
			}
			return link, nil
		}
	}
	if opt.ReopenDelay == 0 {
		opt.ReopenDelay = g.Config.ReopenDelay()
	}
	self := &Relay{
		g:       g,
		log:     g.Log,
		opt:     opt,
		recv:    frame.NewReceiver(g.Codec, g.Registry),
		records: make([]registry.Record, 0, g.Registry.Capacity()),
		backoff: helpers.Backoff{
			Min: opt.ReopenDelay,
			Max: opt.ReopenDelay * 10,
			K:   2,
		},
	}
	return self
}

// OpenUart opens configured device with optional RS-485 DE pin.
func OpenUart(g *state.Global) (*uart.Link, error) {
	de, err := g.Config.DriverEnable()
	if err != nil {
		return nil, err
	}
	link, err := uart.Open(g.Config.UartConfig(), de, g.Log)
	if err != nil && de != nil {
		_ = de.Close()
	}
	return link, err
}

func (self *Relay) Stats() Stats {
	s := Stats{
		ReceiverStats: self.recv.Stats(),
		Reopens:       atomic.LoadUint64(&self.reopens),
	}
	if !self.lastFrame.IsZero() {
		s.LastFrame = self.lastFrame.Time()
	}
	return s
}

// Run reads port until ctx is done. Open and read errors are reported,
// then port is reopened after backoff delay.
func (self *Relay) Run(ctx context.Context) error {
	for {
		port, err := self.opt.Open()
		if err == nil {
			self.log.Debugf("relay port open")
			err = port.ReadLoop(ctx, self.feed)
			if errClose := port.Close(); errClose != nil {
				self.log.Debugf("relay port close err=%v", errClose)
			}
			self.recv.Flush(self.Handle)
		}
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("port read loop ended")
		}
		self.g.Error(err, "relay")

		self.backoff.Failure()
		delay := self.backoff.DelayBefore()
		self.log.Infof("relay reopen in %v", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
		atomic.AddUint64(&self.reopens, 1)
	}
}

func (self *Relay) feed(b []byte) { self.recv.Feed(b, self.Handle) }

// Handle accepts receiver output. Frame is valid only during the call.
func (self *Relay) Handle(f *frame.Frame, err error) {
	if err != nil {
		self.log.Debugf("relay receive err=%v", err)
		if self.opt.OnFrame != nil {
			self.opt.OnFrame(nil, err)
		}
		return
	}
	self.backoff.Reset()
	self.lastFrame.SetNow()

	reg := self.g.Registry
	self.records = self.records[:0]
	for i := range f.Pairs {
		p := &f.Pairs[i]
		if err := reg.Receive(p.ID, f.TS, p.Bytes()); err != nil {
			self.log.Errorf("relay ts=%d id=%d err=%v", f.TS, p.ID, err)
			continue
		}
		if rv, ok := reg.Received(p.ID); ok {
			self.records = append(self.records, rv.Record())
		}
	}

	self.g.Tele.Frame(f.Raw, self.records)
	if self.opt.Feed != nil {
		self.opt.Feed.Broadcast(self.records)
	}
	if self.log.Enabled(log2.LDebug) {
		for _, r := range self.records {
			self.log.Debug(FormatRecord(r))
		}
	}
	if self.opt.OnFrame != nil {
		self.opt.OnFrame(f, nil)
	}
}

// Snapshot returns all received values, for new websocket clients.
func (self *Relay) Snapshot() []registry.Record {
	rs := make([]registry.Record, 0, self.g.Registry.Len())
	self.g.Registry.EachReceived(func(rv registry.Received) {
		rs = append(rs, rv.Record())
	})
	return rs
}

// FormatRecord is one human readable line: timestamp | id | name | value
func FormatRecord(r registry.Record) string {
	return fmt.Sprintf("%10d | %3d | %-16s | %v", r.TS, r.ID, r.Name, r.Value)
}
