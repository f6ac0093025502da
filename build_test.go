package sealpack

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/sealpack/internal/classify"
	"github.com/meigma/sealpack/internal/container"
)

// failingReader errors on the first read, like an input file going bad
// after open.
type failingReader struct {
	err error
}

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func testBuilder(t *testing.T) *builder {
	t.Helper()
	return &builder{
		cfg:        newBuildConfig(nil),
		payloadKey: make([]byte, 32),
		workDir:    t.TempDir(),
	}
}

func TestStageInputErrorIsEntryLevel(t *testing.T) {
	b := testBuilder(t)
	readErr := errors.New("input/output error")

	_, _, err := b.stage("a.txt", classify.Text, failingReader{err: readErr})
	require.Error(t, err)
	require.ErrorIs(t, err, readErr)

	var se *stageError
	assert.False(t, errors.As(err, &se),
		"a failing input must stay isolated to its entry")
}

func TestStageSpillErrorIsArchiveLevel(t *testing.T) {
	b := testBuilder(t)
	b.workDir = filepath.Join(b.workDir, "missing")

	_, _, err := b.stage("a.txt", classify.Text, strings.NewReader("content"))
	require.Error(t, err)

	var se *stageError
	assert.True(t, errors.As(err, &se),
		"broken staging I/O must abort the build")
}

func TestCommitRejectsDamagedSpill(t *testing.T) {
	dir := t.TempDir()
	spill := filepath.Join(dir, "spill")
	require.NoError(t, os.WriteFile(spill, []byte("short"), 0o644))

	w, err := container.NewWriter(filepath.Join(dir, "out.spk"))
	require.NoError(t, err)
	defer w.Discard()

	res := &entryResult{
		entry: &container.Entry{Path: "a.txt", StoredSize: 64},
		spill: spill,
	}
	require.Error(t, res.commit(w),
		"a spill that no longer matches its recorded size must not commit")
}
