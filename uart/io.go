package uart

import (
	"errors"
	"os"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	cBOTHER   = 0x1000
	cFIONREAD = 0x541b
	cNCCS     = 19
	cTCSBRK   = 0x5409
	cTCSETSF2 = 0x402c542d
)

type cc_t byte
type speed_t uint32
type tcflag_t uint32
type termios2 struct {
	c_iflag  tcflag_t    // input mode flags
	c_oflag  tcflag_t    // output mode flags
	c_cflag  tcflag_t    // control mode flags
	c_lflag  tcflag_t    // local mode flags
	c_line   cc_t        // line discipline
	c_cc     [cNCCS]cc_t // control characters
	c_ispeed speed_t     // input speed
	c_ospeed speed_t     // output speed
}

type fdReader struct {
	fd      uintptr
	timeout time.Duration
}

func (self fdReader) Read(p []byte) (n int, err error) {
	err = io_wait_read(self.fd, 1, self.timeout)
	if err != nil {
		return 0, err
	}
	return syscall.Read(int(self.fd), p)
}

func ioctl(fd uintptr, op, arg uintptr) (err error) {
	r, _, errno := syscall.Syscall(syscall.SYS_IOCTL, fd, op, arg)
	if errno != 0 {
		err = os.NewSyscallError("SYS_IOCTL", errno)
	} else if r != 0 {
		err = errors.New("unknown error from SYS_IOCTL")
	}
	return err
}

func io_wait_read(fd uintptr, min int, wait time.Duration) error {
	var err error
	var out int
	tfinal := time.Now().Add(wait)
	for {
		err = ioctl(fd, uintptr(cFIONREAD), uintptr(unsafe.Pointer(&out)))
		if err != nil {
			return err
		}
		if out >= min {
			return nil
		}
		time.Sleep(wait / 16)
		if time.Now().After(tfinal) {
			return ErrTimeoutT("io_wait_read timeout")
		}
	}
}

// raw 8N1, any baud via BOTHER
func io_reset_termios(fd uintptr, t2 *termios2, baud int) error {
	if baud <= 0 {
		return errors.New("baud must be positive")
	}
	*t2 = termios2{
		c_iflag:  unix.IGNBRK | unix.IGNPAR,
		c_cflag:  cBOTHER | syscall.CLOCAL | syscall.CREAD | syscall.CS8,
		c_ispeed: speed_t(baud),
		c_ospeed: speed_t(baud),
	}
	t2.c_cc[syscall.VMIN] = 0
	t2.c_cc[syscall.VTIME] = 0
	return io_tcsetsf2(fd, t2)
}

// flush input and output
func io_tcsetsf2(fd uintptr, t2 *termios2) error {
	return ioctl(fd, uintptr(cTCSETSF2), uintptr(unsafe.Pointer(t2)))
}

// tcdrain
func io_drain(fd uintptr) error {
	return ioctl(fd, uintptr(cTCSBRK), 1)
}
