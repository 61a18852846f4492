// Package wsfeed streams decoded variable values to websocket clients.
// Each message is JSON of registry.Record. Slow clients lose messages, never block relay.
package wsfeed

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/temoto/easyuart/log2"
	"github.com/temoto/easyuart/registry"
)

const (
	Path           = "/feed"
	DefaultSendBuf = 64
	writeTimeout   = 5 * time.Second
)

type SnapshotFunc func() []registry.Record

type Hub struct {
	log      *log2.Log
	snapshot SnapshotFunc
	sendBuf  int
	upgrader websocket.Upgrader
	dropped  uint32

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub snapshot may be nil, otherwise its records are sent to every new client first.
func NewHub(log *log2.Log, snapshot SnapshotFunc) *Hub {
	return &Hub{
		log:      log,
		snapshot: snapshot,
		sendBuf:  DefaultSendBuf,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return n
}

func (h *Hub) Dropped() uint32 { return atomic.LoadUint32(&h.dropped) }

func (h *Hub) Broadcast(records []registry.Record) {
	if len(records) == 0 {
		return
	}
	msgs := make([][]byte, 0, len(records))
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			h.log.Errorf("wsfeed marshal id=%d err=%v", r.ID, err)
			continue
		}
		msgs = append(msgs, b)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		for _, b := range msgs {
			if !c.trySend(b) {
				atomic.AddUint32(&h.dropped, 1)
			}
		}
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != Path {
		http.NotFound(w, r)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debugf("wsfeed upgrade remote=%s err=%v", r.RemoteAddr, err)
		return
	}
	h.log.Debugf("wsfeed client connected remote=%s", r.RemoteAddr)

	c := &client{conn: conn, send: make(chan []byte, h.sendBuf)}
	h.join(c)
	go c.writeLoop()
	c.readLoop()
	h.removeClient(c)
	c.close()
	h.log.Debugf("wsfeed client gone remote=%s", r.RemoteAddr)
}

// Run serves websocket feed on addr until ctx is done.
func (h *Hub) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Annotatef(err, "wsfeed listen=%s", addr)
	}
	h.log.Infof("wsfeed listen=%s path=%s", ln.Addr(), Path)
	srv := &http.Server{Handler: h}
	errch := make(chan error, 1)
	go func() { errch <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
		h.closeAll()
		return nil
	case err = <-errch:
		h.closeAll()
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.Annotate(err, "wsfeed serve")
	}
}

// join registers client and queues snapshot under write lock,
// so concurrent Broadcast lands after snapshot and is never missed.
func (h *Hub) join(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if h.snapshot == nil {
		return
	}
	for _, rec := range h.snapshot() {
		b, err := json.Marshal(rec)
		if err != nil {
			h.log.Errorf("wsfeed marshal id=%d err=%v", rec.ID, err)
			continue
		}
		if !c.trySend(b) {
			atomic.AddUint32(&h.dropped, 1)
		}
	}
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// hijacked connections are not closed by http.Server.Shutdown
func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		c.close()
	}
	h.mu.Unlock()
}

type client struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func (c *client) trySend(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// readLoop only detects close, clients have nothing to say.
func (c *client) readLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writeLoop() {
	for b := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			c.close()
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = c.conn.Close()
}

func (c *client) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	// unblocks readLoop
	_ = c.conn.UnderlyingConn().SetReadDeadline(time.Now())
}
