package sealpack

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/sealpack/internal/container"
)

// EntryInfo is the listing metadata for one stored entry.
type EntryInfo struct {
	Path           string
	OriginalSize   int64
	CompressedSize int64
	Category       Category
	Digest         digest.Digest
}

// SkipInfo records an input that was screened out or failed while the
// archive was built.
type SkipInfo struct {
	Path   string
	Status string
	Reason string
}

// OpenOption configures Open.
type OpenOption func(*openConfig)

type openConfig struct {
	logger *slog.Logger
}

// OpenWithLogger enables debug logging on the given logger.
func OpenWithLogger(logger *slog.Logger) OpenOption {
	return func(c *openConfig) {
		c.logger = logger
	}
}

// Archive is an open sealed container. It holds the derived payload key
// for the life of the handle, so the passphrase is stretched only once.
type Archive struct {
	r      *container.Reader
	logger *slog.Logger
}

// Open unseals the container at path. A wrong passphrase surfaces as
// ErrWrongPassphrase before any payload is touched.
func Open(path, passphrase string, opts ...OpenOption) (*Archive, error) {
	var cfg openConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r, err := container.OpenFile(path, passphrase)
	if err != nil {
		return nil, err
	}
	a := &Archive{r: r, logger: cfg.logger}
	a.log().Debug("archive opened",
		"path", path,
		"entries", len(r.Entries()),
		"skipped", len(r.Skipped()))
	return a, nil
}

func (a *Archive) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// List returns entry metadata in archive order. The order is the build's
// input order and is stable across calls.
func (a *Archive) List() []EntryInfo {
	entries := a.r.Entries()
	infos := make([]EntryInfo, len(entries))
	for i := range entries {
		e := &entries[i]
		infos[i] = EntryInfo{
			Path:           e.Path,
			OriginalSize:   e.OriginalSize,
			CompressedSize: e.CompressedSize,
			Category:       e.Category,
			Digest:         e.Digest(),
		}
	}
	return infos
}

// Skipped returns the archive's record of inputs it does not contain.
func (a *Archive) Skipped() []SkipInfo {
	skipped := a.r.Skipped()
	infos := make([]SkipInfo, len(skipped))
	for i, s := range skipped {
		status := "failed"
		if s.Status == container.SkipRejected {
			status = "rejected"
		}
		infos[i] = SkipInfo{Path: s.Path, Status: status, Reason: s.Reason}
	}
	return infos
}

// Open returns a verified reader over one entry's content. Reads fail
// with ErrAuthentication on tampered ciphertext; a read that reaches
// EOF has passed both AEAD and checksum verification.
func (a *Archive) Open(path string) (io.ReadCloser, error) {
	i, ok := a.r.Index(path)
	if !ok {
		return nil, fmt.Errorf("sealpack: no entry %q", path)
	}
	return a.r.Open(i)
}

// Close releases the underlying file. Readers obtained from Open become
// invalid.
func (a *Archive) Close() error {
	return a.r.Close()
}
