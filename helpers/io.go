package helpers

import (
	"io"
)

// WriteAll retries partial writes, serial drivers may accept less than a frame per call.
// Zero progress without error is reported as io.ErrShortWrite instead of spinning.
func WriteAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}
