package tele

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/temoto/easyuart/log2"
	tele_config "github.com/temoto/easyuart/tele/config"
)

type mockMessage struct {
	topic   string
	payload []byte
	retain  bool
}

type transportMock struct {
	t              testing.TB
	mu             sync.Mutex
	fail           int // next Publish calls to fail
	networkTimeout time.Duration
	out            chan mockMessage
}

func newTransportMock(t testing.TB, fail int) *transportMock {
	return &transportMock{
		t:              t,
		fail:           fail,
		networkTimeout: time.Second,
		out:            make(chan mockMessage, 32),
	}
}

func (self *transportMock) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, online, will []byte) error {
	return nil
}

func (self *transportMock) Publish(topic string, payload []byte, retain bool) bool {
	self.mu.Lock()
	if self.fail > 0 {
		self.fail--
		self.mu.Unlock()
		self.t.Logf("mock publish topic=%s fail", topic)
		return false
	}
	self.mu.Unlock()
	select {
	case self.out <- mockMessage{topic: topic, payload: append([]byte(nil), payload...), retain: retain}:
		self.t.Logf("mock delivered topic=%s payload=%x", topic, payload)
		return true
	case <-time.After(self.networkTimeout):
		self.t.Logf("mock network timeout")
		return false
	}
}

func (self *transportMock) Close() {}

func (self *transportMock) expect(t testing.TB, timeout time.Duration) mockMessage {
	t.Helper()
	select {
	case m := <-self.out:
		return m
	case <-time.After(timeout):
		t.Fatal("mock transport expected message, timeout")
	}
	return mockMessage{}
}
