// Package compress provides the per-entry compression stage.
//
// The algorithm and effort level are chosen per content category through a
// Policy table. Streams are processed through bounded buffers so peak
// memory does not depend on input size.
package compress

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/meigma/sealpack/internal/classify"
)

// Algorithm identifies how an entry's payload was compressed.
type Algorithm uint8

const (
	None Algorithm = iota
	Zstd
)

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// Valid reports whether a is an algorithm this version understands.
func (a Algorithm) Valid() bool {
	return a <= Zstd
}

// Setting is one policy row: the algorithm and, for zstd, the effort level.
type Setting struct {
	Algorithm Algorithm
	Level     zstd.EncoderLevel
}

// Policy maps content categories to compression settings.
//
// A Policy is consulted once per entry; categories missing from the table
// fall back to fast zstd.
type Policy map[classify.Category]Setting

// DefaultPolicy favors ratio for text-bearing categories and skips
// precompressed ones.
func DefaultPolicy() Policy {
	return Policy{
		classify.Text:     {Algorithm: Zstd, Level: zstd.SpeedBestCompression},
		classify.Document: {Algorithm: Zstd, Level: zstd.SpeedBestCompression},
		classify.Image:    {Algorithm: None},
		classify.Binary:   {Algorithm: Zstd, Level: zstd.SpeedFastest},
		classify.Unknown:  {Algorithm: Zstd, Level: zstd.SpeedFastest},
	}
}

// For returns the setting for a category, falling back to fast zstd.
func (p Policy) For(c classify.Category) Setting {
	if s, ok := p[c]; ok {
		return s
	}
	return Setting{Algorithm: Zstd, Level: zstd.SpeedFastest}
}

// nopWriteCloser passes writes through for uncompressed entries.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w with the compressor selected by s.
//
// The returned writer must be closed to flush; closing does not close w.
func NewWriter(w io.Writer, s Setting) (io.WriteCloser, error) {
	switch s.Algorithm {
	case None:
		return nopWriteCloser{w}, nil
	case Zstd:
		if s.Level == 0 {
			s.Level = zstd.SpeedDefault
		}
		enc, err := zstd.NewWriter(w,
			zstd.WithEncoderLevel(s.Level),
			zstd.WithEncoderConcurrency(1),
			zstd.WithLowerEncoderMem(true),
		)
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("unknown compression algorithm: %d", s.Algorithm)
	}
}

// decReadCloser adapts a zstd decoder to io.ReadCloser.
type decReadCloser struct {
	*zstd.Decoder
}

func (d decReadCloser) Close() error {
	d.Decoder.Close()
	return nil
}

// NewReader wraps r with the decompressor for the recorded algorithm.
func NewReader(r io.Reader, a Algorithm) (io.ReadCloser, error) {
	switch a {
	case None:
		return io.NopCloser(r), nil
	case Zstd:
		dec, err := zstd.NewReader(r,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(true),
		)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		return decReadCloser{dec}, nil
	default:
		return nil, fmt.Errorf("unknown compression algorithm: %d", a)
	}
}
