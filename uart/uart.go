// Package uart is byte transport of telemetry link: tty device with termios
// settings, optional RS-485 driver enable pin, and mock port for tests.
package uart

import (
	"time"
)

const DefaultBaud = 115200

type ErrTimeoutT string

type Timeouter interface {
	Timeout() bool
}

func (e ErrTimeoutT) Error() string { return string(e) }
func (ErrTimeoutT) Timeout() bool   { return true }

func IsTimeout(err error) bool {
	if t, ok := err.(Timeouter); ok {
		return t.Timeout()
	}
	return false
}

type Porter interface {
	Open(path string, baud int) error
	// Read waits up to read timeout for at least one byte, then returns ErrTimeoutT.
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// Drain blocks until written bytes left the wire.
	Drain() error
	Close() error
}

type Config struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}
