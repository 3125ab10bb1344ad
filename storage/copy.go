package storage

import (
	"fmt"
	"io"
)

const copyBufferSize = 1 << 20

// Copies exactly n bytes from src to dst through a bounded buffer. Running out of input first is
// ErrUnexpectedEOF.
func CopyN(dst io.Writer, src io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	buf := make([]byte, min(n, copyBufferSize))
	for n > 0 {
		read, err := src.Read(buf[:min(n, int64(len(buf)))])
		if read > 0 {
			_, writeErr := dst.Write(buf[:read])
			if writeErr != nil {
				return writeErr
			}
			n -= int64(read)
		}
		if err == io.EOF {
			if n > 0 {
				return fmt.Errorf("%w: %v bytes short", ErrUnexpectedEOF, n)
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}
