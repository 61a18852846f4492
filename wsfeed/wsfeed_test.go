package wsfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/easyuart/log2"
	"github.com/temoto/easyuart/registry"
)

func dial(t testing.TB, srv *httptest.Server, path string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	return conn
}

func readRecord(t testing.TB, conn *websocket.Conn) map[string]interface{} {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, b, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestHubBroadcast(t *testing.T) {
	t.Parallel()
	h := NewHub(log2.NewTest(t, log2.LDebug), nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv, Path)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	h.Broadcast([]registry.Record{
		{TS: 10, ID: 1, Name: "rpm", Type: "int32", Value: int32(-5)},
		{TS: 10, ID: 3, Type: "bool", Value: true},
	})
	m := readRecord(t, conn)
	assert.Equal(t, map[string]interface{}{"ts": 10.0, "id": 1.0, "name": "rpm", "type": "int32", "value": -5.0}, m)
	m = readRecord(t, conn)
	assert.Equal(t, map[string]interface{}{"ts": 10.0, "id": 3.0, "type": "bool", "value": true}, m)

	conn.Close()
	require.Eventually(t, func() bool { return h.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHubSnapshot(t *testing.T) {
	t.Parallel()
	h := NewHub(log2.NewTest(t, log2.LDebug), func() []registry.Record {
		return []registry.Record{{TS: 7, ID: 2, Name: "temp", Type: "float32", Value: float32(1.5)}}
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv, Path)
	defer conn.Close()
	m := readRecord(t, conn)
	assert.Equal(t, "temp", m["name"])
	assert.Equal(t, 1.5, m["value"])
}

func TestHubJoinBroadcastAfterSnapshot(t *testing.T) {
	t.Parallel()
	var h *Hub
	done := make(chan struct{})
	h = NewHub(log2.NewTest(t, log2.LDebug), func() []registry.Record {
		// relay delivers new frame while client is joining
		go func() {
			h.Broadcast([]registry.Record{{TS: 2, ID: 1, Type: "int32", Value: int32(2)}})
			close(done)
		}()
		return []registry.Record{{TS: 1, ID: 1, Type: "int32", Value: int32(1)}}
	})
	c := &client{send: make(chan []byte, 4)}
	h.join(c)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast blocked")
	}
	assert.Equal(t, 1, h.Len())
	require.Len(t, c.send, 2)
	assert.Contains(t, string(<-c.send), `"ts":1,`)
	assert.Contains(t, string(<-c.send), `"ts":2,`)
	assert.Equal(t, uint32(0), h.Dropped())
}

func TestHubNotFound(t *testing.T) {
	t.Parallel()
	h := NewHub(log2.NewTest(t, log2.LDebug), nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/other")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHubSlowClientDrops(t *testing.T) {
	t.Parallel()
	h := NewHub(log2.NewTest(t, log2.LDebug), nil)
	c := &client{send: make(chan []byte, 1)}
	h.join(c)
	h.Broadcast([]registry.Record{{ID: 1, Type: "bool", Value: true}, {ID: 2, Type: "bool", Value: false}})
	assert.Equal(t, uint32(1), h.Dropped())
	assert.Len(t, c.send, 1)
}

func TestHubRun(t *testing.T) {
	t.Parallel()
	h := NewHub(log2.NewTest(t, log2.LDebug), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, "127.0.0.1:0") }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	err := h.Run(context.Background(), "256.0.0.1:bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wsfeed listen")
}
