package sealpack

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExtractFile writes one entry's verified content to w and returns the
// byte count.
func (a *Archive) ExtractFile(path string, w io.Writer) (int64, error) {
	rc, err := a.Open(path)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return io.Copy(w, rc)
}

// ExtractAll restores every entry under destDir, preserving archive
// paths. Each file is written to a temporary name and renamed into
// place only after full verification, so a tampered or damaged entry
// never leaves partial content behind. Per-entry failures are collected
// in the report; only destination-level problems and cancellation
// return an error.
func (a *Archive) ExtractAll(ctx context.Context, destDir string) (*ExtractReport, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}

	report := &ExtractReport{Errors: make(map[string]error)}
	for i, e := range a.r.Entries() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := a.extractOne(i, e.Path, destDir); err != nil {
			report.Failed++
			report.Errors[e.Path] = err
			a.log().Debug("extract failed", "path", e.Path, "error", err)
			continue
		}
		report.Restored++
		a.log().Debug("extracted", "path", e.Path)
	}
	return report, nil
}

func (a *Archive) extractOne(i int, path, destDir string) error {
	dest, err := securePath(destDir, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	rc, err := a.r.Open(i)
	if err != nil {
		return err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".sealpack-extract-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, rc); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// securePath joins an archive path to the destination, rejecting
// anything that would escape it.
func securePath(destDir, path string) (string, error) {
	if path == "" || strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("unsafe archive path %q", path)
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return "", fmt.Errorf("unsafe archive path %q", path)
		}
	}
	return filepath.Join(destDir, filepath.FromSlash(path)), nil
}
