package container

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Writer builds a container in two passes. Payload blocks are appended
// to a staging file first, because the manifest cannot be sealed until
// every entry's offset and outcome is known. Seal then assembles the
// final file next to the destination and renames it into place, so a
// failed or cancelled build never leaves a partial archive behind.
type Writer struct {
	path  string
	stage *os.File
	buf   *bufio.Writer
	off   int64
	done  bool
}

// NewWriter creates a staged writer targeting path. The staging file
// lives in the destination directory so the final rename stays on one
// filesystem.
func NewWriter(path string) (*Writer, error) {
	stage, err := os.CreateTemp(filepath.Dir(path), ".sealpack-stage-*")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	return &Writer{
		path:  path,
		stage: stage,
		buf:   bufio.NewWriterSize(stage, 64*1024),
	}, nil
}

// Offset returns the payload-relative offset at which the next block
// will begin.
func (w *Writer) Offset() int64 { return w.off }

// Write appends payload bytes to the staging file.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	w.off += int64(n)
	return n, err
}

// Seal writes the finished container: header, sealed manifest, then the
// staged payload, and atomically renames it over the destination.
func (w *Writer) Seal(h Header, m *Manifest, manifestKey []byte) (err error) {
	if w.done {
		return fmt.Errorf("container already sealed")
	}
	w.done = true
	defer w.cleanupStage()

	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush staging file: %w", err)
	}
	if _, err := w.stage.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind staging file: %w", err)
	}

	sealed, err := m.Seal(manifestKey)
	if err != nil {
		return fmt.Errorf("seal manifest: %w", err)
	}
	h.Version = Version
	h.ManifestLen = uint32(len(sealed))

	final, err := os.CreateTemp(filepath.Dir(w.path), ".sealpack-final-*")
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if err != nil {
			final.Close()
			os.Remove(final.Name())
		}
	}()

	out := bufio.NewWriterSize(final, 64*1024)
	if _, err = out.Write(h.encode()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err = out.Write(sealed); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if _, err = io.Copy(out, w.stage); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	if err = out.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if err = final.Sync(); err != nil {
		return fmt.Errorf("sync output: %w", err)
	}
	if err = final.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err = os.Rename(final.Name(), w.path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

// Discard abandons the build and removes the staging file. Safe to call
// after Seal; it then does nothing.
func (w *Writer) Discard() {
	if w.done {
		return
	}
	w.done = true
	w.cleanupStage()
}

func (w *Writer) cleanupStage() {
	if w.stage != nil {
		w.stage.Close()
		os.Remove(w.stage.Name())
		w.stage = nil
	}
}
