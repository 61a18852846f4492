package uart

import (
	"context"
	"expvar"
	"os"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/easyuart/helpers"
	"github.com/temoto/easyuart/log2"
)

var (
	statTx = expvar.NewInt("uart.tx_bytes")
	statRx = expvar.NewInt("uart.rx_bytes")
)

// Link adapts Porter to scheduler.Transmitter and feeds received bytes to caller.
type Link struct {
	mu   sync.Mutex
	port Porter
	de   *DriverEnable
	log  *log2.Log
	w    *helpers.StatWriter
	r    *helpers.StatReader
}

func NewLink(port Porter, de *DriverEnable, log *log2.Log) *Link {
	return &Link{
		port: port,
		de:   de,
		log:  log,
		w:    &helpers.StatWriter{W: port, V: statTx},
		r:    &helpers.StatReader{R: port, V: statRx},
	}
}

func (self *Link) Transmit(b []byte) bool {
	if err := self.Write(b); err != nil {
		self.log.Errorf("uart transmit len=%d err=%v", len(b), err)
		return false
	}
	return true
}

// Write sends whole frame, with DE line held high until drained.
func (self *Link) Write(b []byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.de != nil {
		if err := self.de.Set(true); err != nil {
			return errors.Trace(err)
		}
		defer func() {
			if err := self.de.Set(false); err != nil {
				self.log.Error(errors.Annotate(err, "uart DE release"))
			}
		}()
	}
	if err := helpers.WriteAll(self.w, b); err != nil {
		return errors.Annotate(err, "uart write")
	}
	if self.de != nil {
		return errors.Annotate(self.port.Drain(), "uart drain")
	}
	return nil
}

// ReadLoop passes every chunk read from port to fn until ctx is done or read fails.
// Read timeouts are not errors.
func (self *Link) ReadLoop(ctx context.Context, fn func([]byte)) error {
	buf := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		n, err := self.r.Read(buf)
		if n > 0 {
			fn(buf[:n])
		}
		if err != nil {
			if IsTimeout(err) {
				continue
			}
			return errors.Annotate(err, "uart read")
		}
	}
}

func (self *Link) Close() error {
	err := self.port.Close()
	if self.de != nil {
		if err2 := self.de.Close(); err == nil {
			err = err2
		}
	}
	return err
}

// Open creates Link from config: tty device, or stdout when device is "-".
func Open(c Config, de *DriverEnable, log *log2.Log) (*Link, error) {
	var port Porter
	if c.Device == "-" {
		port = NewNullUart(nil, os.Stdout)
	} else {
		port = NewFileUart(c.ReadTimeout)
	}
	baud := c.Baud
	if baud == 0 {
		baud = DefaultBaud
	}
	if err := port.Open(c.Device, baud); err != nil {
		return nil, errors.Trace(err)
	}
	log.Debugf("uart device=%s baud=%d", c.Device, baud)
	return NewLink(port, de, log), nil
}
