// Package tele delivers received frames to MQTT broker.
// Frames are spooled on disk first, so broker or network outage does not
// lose telemetry. Monitor is the other side: MQTT subscriber decoding frames.
package tele

import (
	"context"
	"encoding/json"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/easyuart/helpers"
	"github.com/temoto/easyuart/log2"
	"github.com/temoto/easyuart/registry"
	tele_config "github.com/temoto/easyuart/tele/config"
	"github.com/temoto/spq"
)

const (
	defaultStatInterval   = 5 * time.Minute
	defaultNetworkTimeout = 30 * time.Second
)

var (
	payloadOnline  = []byte("online")
	payloadOffline = []byte("offline")
)

// Tele contract:
// - Init() fails only with invalid config or spool open error, network issues ignored
// - Frame/Error public API calls block at most for disk write
//   network may be slow or absent, messages will be delivered in background
// - spool is drained in order, failed publish is retried with backoff, never reordered
// - Frame and variable messages delivered at least once
// - Stat messages may be lost
type Tele struct { //nolint:maligned
	enabled      bool
	config       tele_config.Config
	log          *log2.Log
	alive        *alive.Alive
	transport    Transporter
	q            *spq.Queue
	statInterval time.Duration
	stat         Stat
	backoff      helpers.Backoff
}

func (self *Tele) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.enabled = teleConfig.Enabled
	self.config = teleConfig
	self.log = log.Clone(log2.LInfo)
	if teleConfig.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if !self.enabled {
		return nil
	}
	if err := teleConfig.Validate(); err != nil {
		return errors.Annotate(err, "tele")
	}

	self.alive = alive.NewAlive()
	self.statInterval = helpers.IntSecondDefault(teleConfig.StatIntervalSec, defaultStatInterval)
	self.backoff = helpers.Backoff{
		Min: 100 * time.Millisecond,
		Max: helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, defaultNetworkTimeout),
		K:   2,
	}
	self.stat.Lock()
	self.stat.Locked_Reset()
	self.stat.Unlock()

	if teleConfig.SpoolPath == "" {
		return errors.NotValidf("tele spool_path=empty")
	}
	var err error
	self.q, err = spq.Open(teleConfig.SpoolPath)
	if err != nil {
		return errors.Annotatef(err, "tele spool path=%s", teleConfig.SpoolPath)
	}

	// test code sets .transport
	if self.transport == nil { // production path
		self.transport = &transportGomqtt{}
	}
	if err := self.transport.Init(ctx, self.log, teleConfig, payloadOnline, payloadOffline); err != nil {
		_ = self.q.Close()
		return errors.Annotate(err, "tele transport")
	}

	self.alive.Add(2)
	go self.qworker()
	go self.statWorker()
	return nil
}

// Close stops background delivery. Undelivered messages stay in spool for next run.
func (self *Tele) Close() {
	if !self.enabled {
		return
	}
	self.alive.Stop()
	_ = self.q.Close()
	self.transport.Close()
	self.alive.Wait()
}

func (self *Tele) Frame(raw []byte, records []registry.Record) {
	if !self.enabled {
		return
	}
	if err := self.qpush(qFrame, 0, raw); err != nil {
		self.onDrop(err)
		return
	}
	self.StatModify(func(s *Stat) { s.Frames++ })
	if !self.config.PublishVars {
		return
	}
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			self.Error(errors.Annotatef(err, "tele record id=%d", r.ID))
			continue
		}
		if err = self.qpush(qRecord, r.ID, b); err != nil {
			self.onDrop(err)
			continue
		}
		self.StatModify(func(s *Stat) { s.Records++ })
	}
}

func (self *Tele) Error(err error) {
	if err == nil {
		return
	}
	self.log.Errorf("tele error=%v", err)
	self.StatModify(func(s *Stat) {
		s.Errors++
		s.LastError = err.Error()
	})
}

func (self *Tele) StatModify(fun func(s *Stat)) {
	self.stat.Lock()
	fun(&self.stat)
	self.stat.Unlock()
}

func (self *Tele) onDrop(err error) {
	self.log.Errorf("CRITICAL tele spool push err=%v", err)
	self.StatModify(func(s *Stat) { s.Dropped++ })
}

// denote message kind in spool bytes form
const (
	qFrame  byte = 1
	qRecord byte = 2
)

func (self *Tele) qpush(tag byte, id registry.VarID, payload []byte) error {
	b := make([]byte, 2, 2+len(payload))
	b[0] = tag
	b[1] = byte(id)
	b = append(b, payload...)
	return self.q.Push(b)
}

func (self *Tele) qworker() {
	defer self.alive.Done()
	stopch := self.alive.StopChan()
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			// success path
			b := box.Bytes()
			if !self.qhandle(b) {
				delay := self.backoff.DelayAfter(false)
				self.log.Debugf("tele publish failed, retry in %v", delay)
				select {
				case <-time.After(delay):
				case <-stopch:
					return
				}
				continue
			}
			self.backoff.Reset()
			if err = self.q.Delete(box); err != nil {
				self.log.Errorf("tele spool Delete b=%x err=%v", b, err)
			}

		case spq.ErrClosed:
			select {
			case <-stopch: // success path
			default:
				self.log.Errorf("CRITICAL tele spool closed unexpectedly")
			}
			return

		default:
			if spq.IsCorrupted(err) {
				self.log.Errorf("CRITICAL tele spool corrupted err=%v", err)
			} else {
				self.log.Errorf("CRITICAL tele spool err=%v", err)
			}
			select {
			case <-time.After(time.Second):
			case <-stopch:
				return
			}
		}
	}
}

// qhandle returns false when message should be retried.
func (self *Tele) qhandle(b []byte) bool {
	if len(b) < 2 {
		self.log.Errorf("tele spool peek=%x too short", b)
		// what else can we do?
		return true
	}

	payload := b[2:]
	switch b[0] {
	case qFrame:
		return self.transport.Publish(self.config.TopicFrame(), payload, self.config.Retain)

	case qRecord:
		return self.transport.Publish(self.config.TopicVar(b[1]), payload, self.config.Retain)

	default:
		self.log.Errorf("tele spool unknown kind=%d", b[0])
		return true
	}
}

func (self *Tele) statWorker() {
	defer self.alive.Done()
	tmr := time.NewTicker(self.statInterval)
	defer tmr.Stop()
	stopch := self.alive.StopChan()
	for {
		select {
		case <-tmr.C:
			self.sendStat()

		case <-stopch:
			return
		}
	}
}

func (self *Tele) sendStat() {
	self.stat.Lock()
	b, err := json.Marshal(&self.stat)
	self.stat.Locked_Reset()
	self.stat.Unlock()
	if err != nil {
		self.log.Errorf("tele stat marshal err=%v", err)
		return
	}
	_ = self.transport.Publish(self.config.TopicStat(), b, false)
}
