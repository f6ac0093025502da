package sealpack

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/sealpack/internal/classify"
	"github.com/meigma/sealpack/internal/compress"
	"github.com/meigma/sealpack/internal/container"
	"github.com/meigma/sealpack/internal/crypt"
)

// headSize is how much of a file the classifier sees.
const headSize = 512

// Build packages the input files into a sealed container at outputPath.
//
// Inputs are processed concurrently but committed in input order, so
// listings are deterministic. A failure on one input never aborts the
// build: the input is recorded as rejected or failed, in the returned
// report and inside the archive's manifest. Only archive-level failures
// (output I/O, cancellation) abort, and an aborted build leaves no
// output file behind.
func Build(ctx context.Context, inputs []string, passphrase, outputPath string, opts ...BuildOption) (*BuildReport, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("sealpack: empty passphrase")
	}
	cfg := newBuildConfig(opts)

	salt, err := crypt.NewSalt()
	if err != nil {
		return nil, err
	}
	master, err := crypt.DeriveKey([]byte(passphrase), salt, cfg.kdf)
	if err != nil {
		return nil, err
	}
	manifestKey, err := crypt.Subkey(master, container.ManifestKeyInfo)
	if err != nil {
		return nil, err
	}
	payloadKey, err := crypt.Subkey(master, container.PayloadKeyInfo)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp(filepath.Dir(outputPath), ".sealpack-work-*")
	if err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	b := &builder{
		cfg:        cfg,
		payloadKey: payloadKey,
		workDir:    workDir,
	}

	results := make([]*entryResult, len(inputs))
	seen := make(map[string]int, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers)
	for i, input := range inputs {
		i, input := i, input
		arc, aerr := archivePath(input)
		if aerr == nil {
			if prev, dup := seen[arc]; dup {
				aerr = fmt.Errorf("archive path collides with input %q", inputs[prev])
			} else {
				seen[arc] = i
			}
		}
		if aerr != nil {
			results[i] = &entryResult{report: EntryReport{
				Path:   input,
				Status: StatusFailed,
				Reason: aerr.Error(),
			}}
			continue
		}

		g.Go(func() error {
			res, err := b.process(gctx, input, arc)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	w, err := container.NewWriter(outputPath)
	if err != nil {
		return nil, err
	}
	defer w.Discard()

	report := &BuildReport{Entries: make([]EntryReport, 0, len(inputs))}
	manifest := &container.Manifest{}
	for _, res := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res.entry != nil {
			res.entry.Offset = w.Offset()
			if err := res.commit(w); err != nil {
				return nil, fmt.Errorf("commit %q: %w", res.entry.Path, err)
			}
			manifest.Entries = append(manifest.Entries, *res.entry)
			b.cfg.log().Debug("entry written",
				"path", res.entry.Path,
				"category", res.entry.Category.String(),
				"size", res.entry.OriginalSize,
				"compressed", res.entry.CompressedSize)
		} else if res.skip != nil {
			manifest.Skipped = append(manifest.Skipped, *res.skip)
			b.cfg.log().Debug("entry skipped",
				"path", res.skip.Path, "reason", res.skip.Reason)
		}

		report.Entries = append(report.Entries, res.report)
		switch res.report.Status {
		case StatusWritten:
			report.Written++
		case StatusRejected:
			report.Rejected++
		case StatusFailed:
			report.Failed++
		}
		if cfg.progress != nil {
			cfg.progress(res.report.Path, res.report.Status)
		}
	}

	var h container.Header
	copy(h.Salt[:], salt)
	h.KDF = cfg.kdf
	if err := w.Seal(h, manifest, manifestKey); err != nil {
		return nil, err
	}
	b.cfg.log().Debug("container sealed",
		"path", outputPath,
		"written", report.Written,
		"rejected", report.Rejected,
		"failed", report.Failed)
	return report, nil
}

type builder struct {
	cfg        *buildConfig
	payloadKey []byte
	workDir    string
}

// entryResult is one input's outcome, carried from the worker pool to
// the ordered commit loop.
type entryResult struct {
	report EntryReport
	entry  *container.Entry // set when the input was packaged
	spill  string           // staged sealed payload for the entry
	skip   *container.Skipped
}

// commit appends the staged payload block to the container, checking
// that the spill file still holds exactly the bytes recorded at staging
// time so a damaged spill cannot shift later entries' offsets.
func (r *entryResult) commit(w *container.Writer) error {
	f, err := os.Open(r.spill)
	if err != nil {
		return err
	}
	defer f.Close()
	cr := &container.CountingReader{R: f}
	if _, err := io.Copy(w, cr); err != nil {
		return err
	}
	if cr.N != r.entry.StoredSize {
		return fmt.Errorf("staged payload is %d bytes, recorded %d", cr.N, r.entry.StoredSize)
	}
	return nil
}

// process runs one input through classify, scan, compress, and seal.
// Entry-level problems come back inside the result; a returned error is
// archive-level and aborts the whole build.
func (b *builder) process(ctx context.Context, input, arc string) (*entryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &entryResult{report: EntryReport{Path: arc}}

	f, err := os.Open(input)
	if err != nil {
		return b.fail(res, input, fmt.Sprintf("open: %v", err)), nil
	}
	defer f.Close()

	head := make([]byte, headSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return b.fail(res, input, fmt.Sprintf("read: %v", err)), nil
	}
	head = head[:n]

	det := classify.Detect(arc, head)
	res.report.Category = det.Category.String()
	res.report.Confidence = det.Confidence
	b.cfg.log().Debug("classified",
		"path", arc, "category", det.Category.String(),
		"rule", det.Rule, "confidence", det.Confidence)

	// Screening needs the whole content; the buffered copy also feeds
	// the pipeline below so scanned files are read once.
	var content []byte
	if det.Category.Caps().Scan && b.cfg.blacklist != nil && !b.cfg.blacklist.Empty() {
		content, err = readRest(f, head)
		if err != nil {
			return b.fail(res, input, fmt.Sprintf("read: %v", err)), nil
		}
		scanRes := b.cfg.blacklist.Scan(b.extractText(input, det.Category, content))
		for _, m := range scanRes.Matches {
			res.report.Matches = append(res.report.Matches, Match{
				Term: m.Term,
				Kind: m.Category.String(),
			})
		}
		if !scanRes.Pass() && !b.cfg.override {
			res.report.Status = StatusRejected
			res.report.Reason = "blacklisted content: " + scanRes.Terms()
			res.skip = &container.Skipped{
				Path:   arc,
				Status: container.SkipRejected,
				Reason: res.report.Reason,
			}
			return res, nil
		}
	}

	var src io.Reader
	if content != nil {
		src = bytes.NewReader(content)
	} else {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return b.fail(res, input, fmt.Sprintf("seek: %v", err)), nil
		}
		src = f
	}

	entry, spill, err := b.stage(arc, det.Category, src)
	if err != nil {
		// Only failures of the builder's own staging I/O abort the
		// build; a bad input or compressor error is this entry's
		// problem alone.
		var se *stageError
		if errors.As(err, &se) {
			return nil, err
		}
		return b.fail(res, input, fmt.Sprintf("stage: %v", err)), nil
	}
	res.entry = entry
	res.spill = spill
	res.report.Status = StatusWritten
	res.report.OriginalSize = entry.OriginalSize
	res.report.CompressedSize = entry.CompressedSize
	res.report.Digest = digest.NewDigestFromBytes(digest.SHA256, entry.Checksum[:])
	return res, nil
}

// stageError marks a failure of the builder's own staging machinery:
// spill-file I/O or pipeline setup. These abort the whole build. Any
// other error out of the staging pipeline came from the input or the
// compressor and is isolated to the entry.
type stageError struct {
	err error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// stageWriter tags spill-file write errors so they keep their
// archive-level meaning through the compress and seal layers.
type stageWriter struct {
	w io.Writer
}

func (sw stageWriter) Write(p []byte) (int, error) {
	n, err := sw.w.Write(p)
	if err != nil {
		err = &stageError{err}
	}
	return n, err
}

// stage compresses and seals src into a spill file and returns the
// manifest entry, minus its final offset.
func (b *builder) stage(arc string, cat classify.Category, src io.Reader) (*container.Entry, string, error) {
	spill, err := os.CreateTemp(b.workDir, "entry-*")
	if err != nil {
		return nil, "", &stageError{fmt.Errorf("create spill file: %w", err)}
	}
	defer spill.Close()

	prefix, err := crypt.NewNoncePrefix()
	if err != nil {
		return nil, "", &stageError{err}
	}
	stored := &container.CountingWriter{W: stageWriter{spill}}
	sw, err := crypt.NewSealWriter(stored, b.payloadKey, prefix, []byte(arc), crypt.DefaultChunkSize)
	if err != nil {
		return nil, "", &stageError{err}
	}
	compressed := &container.CountingWriter{W: sw}
	cw, err := compress.NewWriter(compressed, b.cfg.policy.For(cat))
	if err != nil {
		return nil, "", &stageError{err}
	}

	hash := sha256.New()
	origSize, err := io.Copy(cw, io.TeeReader(src, hash))
	if err != nil {
		return nil, "", fmt.Errorf("stage %q: %w", arc, err)
	}
	if err := cw.Close(); err != nil {
		return nil, "", fmt.Errorf("stage %q: %w", arc, err)
	}
	if err := sw.Close(); err != nil {
		return nil, "", fmt.Errorf("stage %q: %w", arc, err)
	}

	entry := &container.Entry{
		Path:           arc,
		OriginalSize:   origSize,
		CompressedSize: compressed.N,
		StoredSize:     stored.N,
		Category:       cat,
		Algorithm:      b.cfg.policy.For(cat).Algorithm,
	}
	hash.Sum(entry.Checksum[:0])
	copy(entry.NoncePrefix[:], prefix)
	copy(entry.AuthTag[:], sw.Tag())
	return entry, spill.Name(), nil
}

func (b *builder) fail(res *entryResult, input, reason string) *entryResult {
	res.report.Status = StatusFailed
	res.report.Reason = reason
	res.skip = &container.Skipped{
		Path:   res.report.Path,
		Status: container.SkipFailed,
		Reason: reason,
	}
	b.cfg.log().Debug("entry failed", "input", input, "reason", reason)
	return res
}

// extractText pulls scannable text from content. Documents go through
// the configured extractor when one is set; otherwise content is
// treated as UTF-8 with invalid sequences dropped.
func (b *builder) extractText(input string, cat classify.Category, content []byte) string {
	if cat == classify.Document && b.cfg.extractor != nil {
		text, err := b.cfg.extractor(input, content)
		if err == nil {
			return text
		}
		// Extraction failure falls back to the raw bytes rather than
		// letting unscannable content through unscreened.
		b.cfg.log().Debug("text extraction failed, scanning raw bytes",
			"input", input, "error", err)
	}
	if utf8.Valid(content) {
		return string(content)
	}
	return strings.ToValidUTF8(string(content), "")
}

// readRest returns head plus the remainder of f.
func readRest(f *os.File, head []byte) ([]byte, error) {
	rest, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(rest) == 0 {
		return head, nil
	}
	return append(append(make([]byte, 0, len(head)+len(rest)), head...), rest...), nil
}

// archivePath normalizes an input path into its archive form: cleaned,
// slash-separated, relative, with no upward traversal.
func archivePath(input string) (string, error) {
	p := filepath.ToSlash(filepath.Clean(input))
	p = strings.TrimPrefix(p, "/")
	for strings.HasPrefix(p, "../") {
		p = strings.TrimPrefix(p, "../")
	}
	if p == "" || p == "." || p == ".." {
		return "", fmt.Errorf("unusable input path %q", input)
	}
	return p, nil
}
