package uart

import (
	"os"
	"syscall"
	"time"

	"github.com/juju/errors"
)

const DefaultReadTimeout = 20 * time.Millisecond

type fileUart struct {
	f       *os.File
	reader  fdReader
	t2      termios2
	timeout time.Duration
}

func NewFileUart(readTimeout time.Duration) *fileUart {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &fileUart{timeout: readTimeout}
}

func (self *fileUart) Open(path string, baud int) (err error) {
	if self.f != nil {
		self.f.Close()
	}
	self.f, err = os.OpenFile(path, syscall.O_RDWR|syscall.O_NOCTTY, 0600)
	if err != nil {
		return errors.Annotatef(err, "uart open device=%s", path)
	}
	self.reader = fdReader{fd: self.f.Fd(), timeout: self.timeout}
	err = io_reset_termios(self.f.Fd(), &self.t2, baud)
	if err != nil {
		self.f.Close()
		self.f = nil
		return errors.Annotatef(err, "uart termios device=%s baud=%d", path, baud)
	}
	return nil
}

func (self *fileUart) Read(p []byte) (int, error) {
	if self.f == nil {
		return 0, errors.New("uart not open")
	}
	return self.reader.Read(p)
}

func (self *fileUart) Write(p []byte) (int, error) {
	if self.f == nil {
		return 0, errors.New("uart not open")
	}
	return self.f.Write(p)
}

func (self *fileUart) Drain() error {
	if self.f == nil {
		return nil
	}
	return io_drain(self.f.Fd())
}

func (self *fileUart) Close() error {
	if self.f == nil {
		return nil
	}
	err := self.f.Close()
	self.f = nil
	return err
}
