package uart

import (
	"io"
	"sync"
	"time"
)

// nullUart implements Porter over io.Reader/io.Writer, for tests and stdout output.
type nullUart struct {
	mu sync.Mutex
	r  io.Reader
	w  io.Writer
}

func NewNullUart(r io.Reader, w io.Writer) *nullUart {
	return &nullUart{r: r, w: w}
}

func (self *nullUart) Open(path string, baud int) error { return nil }

func (self *nullUart) Read(p []byte) (int, error) {
	if self.r == nil {
		return 0, io.EOF
	}
	return self.r.Read(p)
}

func (self *nullUart) Write(p []byte) (int, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.w == nil {
		return len(p), nil
	}
	return self.w.Write(p)
}

func (self *nullUart) Drain() error { return nil }

func (self *nullUart) Close() error {
	if c, ok := self.r.(io.Closer); ok {
		_ = c.Close()
	}
	return nil
}

// ChanIO delivers written chunks as they were, for tests observing frame boundaries.
type ChanIO struct {
	ch      chan []byte
	timeout time.Duration
}

func NewChanIO(timeout time.Duration) *ChanIO {
	return &ChanIO{ch: make(chan []byte, 16), timeout: timeout}
}

func (self *ChanIO) Write(p []byte) (int, error) {
	b := append([]byte(nil), p...)
	select {
	case self.ch <- b:
		return len(p), nil
	case <-time.After(self.timeout):
		return 0, ErrTimeoutT("ChanIO.Write timeout")
	}
}

func (self *ChanIO) Read(p []byte) (int, error) {
	select {
	case b, ok := <-self.ch:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, b), nil
	case <-time.After(self.timeout):
		return 0, ErrTimeoutT("ChanIO.Read timeout")
	}
}

func (self *ChanIO) Close() error {
	close(self.ch)
	return nil
}
