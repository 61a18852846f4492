package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/256dpi/gomqtt/client"
	"github.com/256dpi/gomqtt/packet"
	"github.com/256dpi/gomqtt/transport"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/easyuart/log2"
)

const DefaultNetworkTimeout = 30 * time.Second
const DefaultReconnectDelay = 3 * time.Second

var ErrClientClosing = fmt.Errorf("MQTT client is closing")

type ClientOptions struct {
	BrokerURL      string
	TLS            *tls.Config
	ReconnectDelay time.Duration
	NetworkTimeout time.Duration
	KeepaliveSec   uint16
	ClientID       string
	Username       string
	Password       string
	// Online is published (retained) right after every successful connect.
	Online *packet.Message
	Will   *packet.Message
	Log    *log2.Log

	connect *packet.Connect
	dialer  *transport.Dialer
}

func (o *ClientOptions) prepare() error {
	if o.NetworkTimeout == 0 {
		o.NetworkTimeout = DefaultNetworkTimeout
	}
	if o.ReconnectDelay == 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	u, err := url.ParseRequestURI(o.BrokerURL)
	if err != nil {
		return errors.Annotatef(err, "config error mqtt BrokerURL=%s", o.BrokerURL)
	}
	if u.User != nil && o.Username == "" && o.Password == "" {
		o.Username = u.User.Username()
		o.Password, _ = u.User.Password()
	}
	if o.ClientID == "" {
		o.ClientID = o.Username
	}

	o.connect = packet.NewConnect()
	o.connect.ClientID = o.ClientID
	o.connect.KeepAlive = o.KeepaliveSec
	o.connect.CleanSession = true
	o.connect.Username = o.Username
	o.connect.Password = o.Password
	o.connect.Will = o.Will
	o.dialer = transport.NewDialer(transport.DialConfig{
		TLSConfig: o.TLS,
		Timeout:   o.NetworkTimeout,
	})
	return nil
}

// keepaliveLimit is longest allowed broker silence, 1.5 keepalive [MQTT-3.1.2-24].
func (o *ClientOptions) keepaliveLimit() time.Duration {
	d := time.Duration(o.KeepaliveSec) * time.Second
	return d + d/2
}

// Client is telemetry uplink, publish only.
// - NewClient returns only configuration errors, network IO runs in background
// - clean session, reconnect until Close
// - QOS 0 and 1, one publish in flight
// - no in-flight storage, persistent spool is caller's job
// - Publish while offline waits for session until ctx is done
type Client struct {
	opt   ClientOptions
	alive *alive.Alive

	mu  sync.Mutex
	cur *session
	seq uint32

	pubMu sync.Mutex
	ackMu sync.Mutex
	ackID packet.ID
	ackCh chan error
}

func NewClient(opt ClientOptions) (*Client, error) {
	if err := opt.prepare(); err != nil {
		return nil, err
	}
	c := &Client{
		opt:   opt,
		alive: alive.NewAlive(),
		seq:   uint32(time.Now().UnixNano()),
	}
	c.alive.Add(1)
	go c.worker()
	return c, nil
}

// Close sends DISCONNECT if connected, so broker discards Will.
func (c *Client) Close() error {
	err := client.ErrClientNotConnected
	if s := c.session(false); s != nil {
		if s.isReady() {
			err = s.send(packet.NewDisconnect())
		}
		_ = s.fail(ErrClientClosing)
	}
	c.alive.Stop()
	c.alive.Wait()
	return err
}

func (c *Client) IsConnected() bool {
	s := c.session(false)
	return s != nil && s.isReady()
}

// WaitReady returns nil when connected, ErrClientClosing after Close,
// context.Canceled when ctx is done first.
func (c *Client) WaitReady(ctx context.Context) error {
	_, err := c.ready(ctx)
	return err
}

// Publish blocks until PUBACK (QOS 1) or socket write (QOS 0).
func (c *Client) Publish(ctx context.Context, msg *packet.Message) error {
	if msg.QOS >= packet.QOSExactlyOnce {
		return errors.NotSupportedf("QOS=%d", msg.QOS)
	}
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	s, err := c.ready(ctx)
	if err != nil {
		return err
	}
	pub := packet.NewPublish()
	pub.Message = *msg
	if msg.QOS == packet.QOSAtMostOnce {
		return errors.Annotate(s.send(pub), "send PUBLISH")
	}

	pub.ID = c.nextID()
	ackch := make(chan error, 1)
	c.expectAck(pub.ID, ackch)
	defer c.expectAck(0, nil)
	if err = s.send(pub); err != nil {
		return errors.Annotate(err, "send PUBLISH")
	}

	tmr := time.NewTimer(c.opt.NetworkTimeout)
	defer tmr.Stop()
	select {
	case err = <-ackch:
		return err
	case <-s.alive.StopChan():
		return errors.Annotatef(s.err(), "PUBACK id=%d", pub.ID)
	case <-tmr.C:
		return s.fail(errors.Timeoutf("PUBACK id=%d", pub.ID))
	}
}

func (c *Client) ready(ctx context.Context) (*session, error) {
	stopch := c.alive.StopChan()
	for {
		var readych, deadch <-chan struct{}
		var retry <-chan time.Time
		s := c.session(false)
		if s != nil {
			readych, deadch = s.readych, s.alive.StopChan()
		} else {
			retry = time.After(100 * time.Millisecond)
		}

		select {
		case <-readych:
			if s.alive.IsRunning() {
				return s, nil
			}
		case <-deadch:
		case <-retry:
		case <-ctx.Done():
			return nil, context.Canceled
		case <-stopch:
			return nil, ErrClientClosing
		}
	}
}

// session returns current live session, nil after Close.
func (c *Client) session(create bool) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive.IsRunning() {
		return nil
	}
	if c.cur != nil && !c.cur.alive.IsRunning() {
		c.cur = nil
	}
	if c.cur == nil && create {
		c.cur = newSession(c.opt, c.onPacket)
	}
	return c.cur
}

// packet id 0 is not allowed for QOS>0
func (c *Client) nextID() packet.ID {
	id := packet.ID(atomic.AddUint32(&c.seq, 1) % (1 << 16))
	if id == 0 {
		id = 1
	}
	return id
}

func (c *Client) expectAck(id packet.ID, ch chan error) {
	c.ackMu.Lock()
	c.ackID, c.ackCh = id, ch
	c.ackMu.Unlock()
}

// called by session reader goroutine
func (c *Client) onPacket(s *session, p packet.Generic) {
	puback, ok := p.(*packet.Puback)
	if !ok {
		c.opt.Log.Debugf("unexpected packet %s", packetString(p))
		return
	}
	c.ackMu.Lock()
	defer c.ackMu.Unlock()
	switch {
	case c.ackCh == nil:
		c.opt.Log.Errorf("unexpected PUBACK id=%d", puback.ID)
	case c.ackID != puback.ID:
		// one publish in flight, so foreign id means broken session
		c.ackCh <- s.fail(errors.Errorf("PUBACK id=%d expected=%d", puback.ID, c.ackID))
		c.ackCh = nil
	default:
		c.ackCh <- nil
		c.ackCh = nil
	}
}

func (c *Client) worker() {
	defer c.alive.Done()
	stopch := c.alive.StopChan()
	for {
		s := c.session(true)
		if s == nil {
			return
		}
		select {
		case <-s.alive.WaitChan():
		case <-stopch:
			_ = s.fail(ErrClientClosing)
			return
		}

		c.opt.Log.Debugf("mqtt session ended err=%v, reconnect in %v", s.err(), c.opt.ReconnectDelay)
		select {
		case <-time.After(c.opt.ReconnectDelay):
		case <-stopch:
			return
		}
	}
}
