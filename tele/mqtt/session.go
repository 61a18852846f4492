package mqtt

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/256dpi/gomqtt/client"
	"github.com/256dpi/gomqtt/packet"
	"github.com/256dpi/gomqtt/transport"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/easyuart/helpers/atomic_clock"
)

// session is one broker connection, never reused after failure.
// Client creates next session on reconnect.
type session struct {
	opt      ClientOptions
	alive    *alive.Alive
	readych  chan struct{} // closed on CONNACK accepted
	conn     atomic.Value  // transport.Conn
	failed   uint32
	cause    atomic.Value // errBox
	onlineID packet.ID
	onPacket func(*session, packet.Generic)
	lastSent atomic_clock.Clock
	lastRecv atomic_clock.Clock
}

type errBox struct{ error }

func newSession(opt ClientOptions, onPacket func(*session, packet.Generic)) *session {
	s := &session{
		opt:      opt,
		alive:    alive.NewAlive(),
		readych:  make(chan struct{}),
		onPacket: onPacket,
	}
	s.alive.Add(1)
	go s.connect()
	return s
}

// fail stops session once, closes network connection and returns err.
func (s *session) fail(err error) error {
	if err == nil {
		err = ErrClientClosing
	}
	if !atomic.CompareAndSwapUint32(&s.failed, 0, 1) {
		return err
	}
	s.cause.Store(errBox{err})
	s.opt.Log.Debugf("mqtt session fail err=%v", err)
	s.alive.Stop()
	if conn := s.getConn(); conn != nil {
		_ = conn.Close()
	}
	return err
}

func (s *session) err() error {
	if b, ok := s.cause.Load().(errBox); ok {
		return b.error
	}
	return nil
}

func (s *session) isReady() bool {
	select {
	case <-s.readych:
		return s.alive.IsRunning()
	default:
		return false
	}
}

func (s *session) getConn() transport.Conn {
	if c, ok := s.conn.Load().(transport.Conn); ok {
		return c
	}
	return nil
}

func (s *session) send(p packet.Generic) error {
	conn := s.getConn()
	if conn == nil {
		return client.ErrClientNotConnected
	}
	if err := conn.Send(p, false); err != nil {
		return s.fail(errors.Annotatef(err, "send %s", p.Type()))
	}
	s.lastSent.SetNow()
	return nil
}

func (s *session) connect() {
	defer s.alive.Done()

	conn, err := s.opt.dialer.Dial(s.opt.BrokerURL)
	if err != nil {
		_ = s.fail(errors.Annotatef(err, "dial broker=%s", s.opt.BrokerURL))
		return
	}
	s.conn.Store(conn)
	if err = s.handshake(conn); err != nil {
		_ = s.fail(err)
		return
	}
	if s.opt.Online != nil {
		pub := packet.NewPublish()
		pub.Message = *s.opt.Online
		if pub.Message.QOS != packet.QOSAtMostOnce {
			pub.ID = 1
			s.onlineID = pub.ID
		}
		if s.send(pub) != nil {
			return
		}
	}
	if !s.alive.Add(2) {
		return
	}
	s.lastRecv.SetNow()
	go s.keepalive()
	go s.reader()
	close(s.readych)
}

// handshake sends CONNECT and expects accepting CONNACK within NetworkTimeout.
func (s *session) handshake(conn transport.Conn) error {
	if err := s.send(s.opt.connect); err != nil {
		return err
	}
	conn.SetReadTimeout(s.opt.NetworkTimeout)
	defer conn.SetReadTimeout(0)
	pkt, err := conn.Receive()
	if err != nil {
		return errors.Annotate(err, "expect CONNACK")
	}
	connack, ok := pkt.(*packet.Connack)
	if !ok {
		return errors.Annotatef(client.ErrClientExpectedConnack, "received %s", packetString(pkt))
	}
	s.opt.Log.Debugf("mqtt %s", connack.String())
	if connack.ReturnCode != packet.ConnectionAccepted {
		return errors.Annotate(client.ErrClientConnectionDenied, connack.ReturnCode.String())
	}
	return nil
}

// keepalive sends PINGREQ as late as NetworkTimeout allows
// and fails session when broker stays silent beyond keepaliveLimit.
func (s *session) keepalive() {
	defer s.alive.Done()
	if s.opt.KeepaliveSec == 0 {
		return
	}
	limit := s.opt.keepaliveLimit()
	interval := limit - s.opt.NetworkTimeout
	if interval <= 0 {
		interval = limit / 2
	}
	stopch := s.alive.StopChan()
	for {
		idle := atomic_clock.Since(&s.lastSent)
		if idle >= interval {
			if s.send(packet.NewPingreq()) != nil {
				return
			}
			idle = 0
		}
		if silent := atomic_clock.Since(&s.lastRecv); silent > limit {
			_ = s.fail(errors.Annotatef(client.ErrClientMissingPong, "silent=%v", silent))
			return
		}
		select {
		case <-time.After(interval - idle):
		case <-stopch:
			return
		}
	}
}

func (s *session) reader() {
	defer s.alive.Done()
	conn := s.getConn()
	for {
		pkt, err := conn.Receive()
		if !s.alive.IsRunning() {
			return
		}
		if err == io.EOF {
			s.opt.Log.Errorf("mqtt broker closed connection")
			_ = s.fail(errors.Annotate(client.ErrClientNotConnected, "broker closed connection"))
			return
		} else if err != nil {
			_ = s.fail(errors.Annotate(err, "receive"))
			return
		}
		s.lastRecv.SetNow()

		switch p := pkt.(type) {
		case *packet.Pingresp:
		case *packet.Connack:
			_ = s.fail(errors.Errorf("duplicate CONNACK"))
			return
		case *packet.Puback:
			if s.onlineID != 0 && p.ID == s.onlineID {
				s.onlineID = 0
				continue
			}
			s.onPacket(s, pkt)
		default:
			s.onPacket(s, pkt)
		}
	}
}

// packetString shows PUBLISH payload as hex, frames are binary.
func packetString(p packet.Generic) string {
	pub, ok := p.(*packet.Publish)
	switch {
	case p == nil:
		return "packet=nil"
	case !ok:
		return p.String()
	}
	m := &pub.Message
	return fmt.Sprintf("PUBLISH id=%d topic=%s qos=%d retain=%t payload=%x", pub.ID, m.Topic, m.QOS, m.Retain, m.Payload)
}
