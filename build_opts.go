package sealpack

import (
	"io"
	"log/slog"
	"runtime"

	"github.com/meigma/sealpack/internal/compress"
	"github.com/meigma/sealpack/internal/crypt"
	"github.com/meigma/sealpack/internal/scan"
)

// ProgressFunc is called after each input reaches a terminal state.
type ProgressFunc func(path string, status EntryStatus)

// TextExtractorFunc pulls scannable text out of document content. The
// default treats the raw bytes as UTF-8.
type TextExtractorFunc func(path string, data []byte) (string, error)

// BuildOption configures a build.
type BuildOption func(*buildConfig)

type buildConfig struct {
	blacklist *scan.Blacklist
	policy    compress.Policy
	workers   int
	override  bool
	extractor TextExtractorFunc
	progress  ProgressFunc
	logger    *slog.Logger
	kdf       crypt.Params
}

func newBuildConfig(opts []BuildOption) *buildConfig {
	cfg := &buildConfig{
		policy:  compress.DefaultPolicy(),
		workers: runtime.GOMAXPROCS(0),
		kdf:     crypt.DefaultParams(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = 1
	}
	return cfg
}

// log returns the configured logger, or a discard logger when none is
// set.
func (c *buildConfig) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// BuildWithBlacklist screens scannable inputs against bl and rejects
// any that match. A nil or empty blacklist disables screening.
func BuildWithBlacklist(bl *Blacklist) BuildOption {
	return func(c *buildConfig) {
		c.blacklist = bl
	}
}

// BuildWithPolicy replaces the per-category compression policy.
func BuildWithPolicy(p CompressionPolicy) BuildOption {
	return func(c *buildConfig) {
		c.policy = p
	}
}

// BuildWithWorkers bounds how many inputs are processed concurrently.
// The default is GOMAXPROCS.
func BuildWithWorkers(n int) BuildOption {
	return func(c *buildConfig) {
		c.workers = n
	}
}

// BuildWithScanOverride packages inputs even when screening matches.
// Matches are still recorded in the report and the archive.
func BuildWithScanOverride() BuildOption {
	return func(c *buildConfig) {
		c.override = true
	}
}

// BuildWithTextExtractor installs a custom text extractor for document
// inputs.
func BuildWithTextExtractor(fn TextExtractorFunc) BuildOption {
	return func(c *buildConfig) {
		c.extractor = fn
	}
}

// BuildWithProgress installs a per-input progress callback. It is
// invoked from the build goroutine, in commit order.
func BuildWithProgress(fn ProgressFunc) BuildOption {
	return func(c *buildConfig) {
		c.progress = fn
	}
}

// BuildWithLogger enables debug logging on the given logger.
func BuildWithLogger(logger *slog.Logger) BuildOption {
	return func(c *buildConfig) {
		c.logger = logger
	}
}

// BuildWithKDFParams overrides the Argon2id cost parameters recorded in
// the container header. Lowering these weakens the archive against
// passphrase guessing.
func BuildWithKDFParams(p KDFParams) BuildOption {
	return func(c *buildConfig) {
		c.kdf = p
	}
}
