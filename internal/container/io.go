package container

import (
	"errors"
	"io"
	"math"
)

// ErrOverflow is returned when a byte counter exceeds math.MaxInt64.
var ErrOverflow = errors.New("sealpack: byte count overflow")

// CountingWriter wraps an io.Writer and tracks the total bytes written.
type CountingWriter struct {
	W io.Writer
	N int64
}

func (cw *CountingWriter) Write(p []byte) (int, error) {
	n, err := cw.W.Write(p)
	if n > 0 {
		if cw.N > math.MaxInt64-int64(n) {
			return n, ErrOverflow
		}
		cw.N += int64(n)
	}
	return n, err
}

// CountingReader wraps an io.Reader and tracks the total bytes read.
type CountingReader struct {
	R io.Reader
	N int64
}

func (cr *CountingReader) Read(p []byte) (int, error) {
	n, err := cr.R.Read(p)
	if n > 0 {
		if cr.N > math.MaxInt64-int64(n) {
			return n, ErrOverflow
		}
		cr.N += int64(n)
	}
	return n, err
}
