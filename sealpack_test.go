package sealpack_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/sealpack"
)

// fastKDF keeps Argon2id cheap in tests.
var fastKDF = sealpack.KDFParams{Time: 1, MemoryKiB: 64, Threads: 1}

// chdir switches the working directory for the test and restores it on
// cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

// writeInputs materializes a relative path -> content map and returns
// the paths in sorted-insertion order matching the slice given.
func writeInputs(t *testing.T, files map[string][]byte) {
	t.Helper()
	for path, content := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, content, 0o644))
	}
}

func TestBuildExtractRoundTrip(t *testing.T) {
	chdir(t, t.TempDir())
	ctx := context.Background()

	binary := make([]byte, 8192)
	_, err := rand.Read(binary)
	require.NoError(t, err)

	files := map[string][]byte{
		"docs/notes.txt":  bytes.Repeat([]byte("ordinary notes about nothing special\n"), 100),
		"data/random.bin": binary,
		"img/pic.png":     append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, binary[:256]...),
		"empty.txt":       {},
	}
	writeInputs(t, files)
	inputs := []string{"docs/notes.txt", "data/random.bin", "img/pic.png", "empty.txt"}

	report, err := sealpack.Build(ctx, inputs, "passphrase", "out.spk",
		sealpack.BuildWithKDFParams(fastKDF),
	)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Written)
	assert.Zero(t, report.Rejected)
	assert.Zero(t, report.Failed)

	archive, err := sealpack.Open("out.spk", "passphrase")
	require.NoError(t, err)
	defer archive.Close()

	list := archive.List()
	require.Len(t, list, 4)
	assert.Equal(t, "docs/notes.txt", list[0].Path)
	assert.Equal(t, sealpack.CategoryText, list[0].Category)
	assert.Equal(t, sealpack.CategoryImage, list[2].Category)
	assert.Less(t, list[0].CompressedSize, list[0].OriginalSize,
		"repetitive text should compress")

	result, err := archive.ExtractAll(ctx, "restored")
	require.NoError(t, err)
	assert.Equal(t, 4, result.Restored)
	assert.Zero(t, result.Failed)

	for path, want := range files {
		got, err := os.ReadFile(filepath.Join("restored", path))
		require.NoError(t, err, path)
		assert.True(t, bytes.Equal(want, got), "content mismatch for %s", path)
	}
}

func TestExtractFile(t *testing.T) {
	chdir(t, t.TempDir())
	ctx := context.Background()

	content := []byte("just one file")
	writeInputs(t, map[string][]byte{"one.txt": content})

	_, err := sealpack.Build(ctx, []string{"one.txt"}, "pw", "out.spk",
		sealpack.BuildWithKDFParams(fastKDF))
	require.NoError(t, err)

	archive, err := sealpack.Open("out.spk", "pw")
	require.NoError(t, err)
	defer archive.Close()

	var buf bytes.Buffer
	n, err := archive.ExtractFile("one.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)
	assert.Equal(t, content, buf.Bytes())

	_, err = archive.ExtractFile("missing.txt", &buf)
	assert.Error(t, err)
}

func TestWrongPassphrase(t *testing.T) {
	chdir(t, t.TempDir())
	writeInputs(t, map[string][]byte{"a.txt": []byte("hello")})

	_, err := sealpack.Build(context.Background(), []string{"a.txt"}, "right", "out.spk",
		sealpack.BuildWithKDFParams(fastKDF))
	require.NoError(t, err)

	_, err = sealpack.Open("out.spk", "wrong")
	require.ErrorIs(t, err, sealpack.ErrWrongPassphrase)
}

func TestTamperedPayload(t *testing.T) {
	chdir(t, t.TempDir())
	ctx := context.Background()
	payload := make([]byte, 8192)
	_, err := rand.Read(payload)
	require.NoError(t, err)
	writeInputs(t, map[string][]byte{"a.bin": payload})

	_, err = sealpack.Build(ctx, []string{"a.bin"}, "pw", "out.spk",
		sealpack.BuildWithKDFParams(fastKDF))
	require.NoError(t, err)

	raw, err := os.ReadFile("out.spk")
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0x01
	require.NoError(t, os.WriteFile("out.spk", raw, 0o600))

	archive, err := sealpack.Open("out.spk", "pw")
	if err != nil {
		// The flipped byte may have landed in the manifest block.
		require.ErrorIs(t, err, sealpack.ErrWrongPassphrase)
		return
	}
	defer archive.Close()

	result, err := archive.ExtractAll(ctx, "restored")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	require.ErrorIs(t, result.Errors["a.bin"], sealpack.ErrAuthentication)

	_, statErr := os.Stat(filepath.Join("restored", "a.bin"))
	assert.True(t, os.IsNotExist(statErr), "tampered entry must not be restored")
}

func TestBlacklistWordRejection(t *testing.T) {
	chdir(t, t.TempDir())
	writeInputs(t, map[string][]byte{
		"leak.txt":  []byte("the project badword1 must not ship"),
		"clean.txt": []byte("nothing to see here"),
	})

	bl := sealpack.NewBlacklist([]string{"badword1"}, nil)
	report, err := sealpack.Build(context.Background(),
		[]string{"leak.txt", "clean.txt"}, "pw", "out.spk",
		sealpack.BuildWithKDFParams(fastKDF),
		sealpack.BuildWithBlacklist(bl),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Written)
	assert.Equal(t, 1, report.Rejected)

	var rejected *sealpack.EntryReport
	for i := range report.Entries {
		if report.Entries[i].Status == sealpack.StatusRejected {
			rejected = &report.Entries[i]
		}
	}
	require.NotNil(t, rejected)
	assert.Equal(t, "leak.txt", rejected.Path)
	require.Len(t, rejected.Matches, 1)
	assert.Equal(t, "badword1", rejected.Matches[0].Term)
	assert.Equal(t, "word-blacklist", rejected.Matches[0].Kind)

	archive, err := sealpack.Open("out.spk", "pw")
	require.NoError(t, err)
	defer archive.Close()
	require.Len(t, archive.List(), 1)
	require.Len(t, archive.Skipped(), 1)
	assert.Equal(t, "rejected", archive.Skipped()[0].Status)
}

func TestBlacklistPhoneFormats(t *testing.T) {
	chdir(t, t.TempDir())
	writeInputs(t, map[string][]byte{
		"contact.txt": []byte("call me at 123-456-7890 after lunch"),
	})

	bl := sealpack.NewBlacklist(nil, []string{"1234567890"})
	report, err := sealpack.Build(context.Background(),
		[]string{"contact.txt"}, "pw", "out.spk",
		sealpack.BuildWithKDFParams(fastKDF),
		sealpack.BuildWithBlacklist(bl),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rejected)
	require.NotEmpty(t, report.Entries[0].Matches)
	assert.Equal(t, "phone-blacklist", report.Entries[0].Matches[0].Kind)
}

func TestBlacklistHanTerm(t *testing.T) {
	chdir(t, t.TempDir())
	writeInputs(t, map[string][]byte{
		"chat.txt": []byte("请尽快转账到新账户"),
	})

	bl := sealpack.NewBlacklist([]string{"转账"}, nil)
	report, err := sealpack.Build(context.Background(),
		[]string{"chat.txt"}, "pw", "out.spk",
		sealpack.BuildWithKDFParams(fastKDF),
		sealpack.BuildWithBlacklist(bl),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rejected)
}

func TestScanOverride(t *testing.T) {
	chdir(t, t.TempDir())
	writeInputs(t, map[string][]byte{
		"leak.txt": []byte("contains badword1 anyway"),
	})

	bl := sealpack.NewBlacklist([]string{"badword1"}, nil)
	report, err := sealpack.Build(context.Background(),
		[]string{"leak.txt"}, "pw", "out.spk",
		sealpack.BuildWithKDFParams(fastKDF),
		sealpack.BuildWithBlacklist(bl),
		sealpack.BuildWithScanOverride(),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Written)
	assert.Zero(t, report.Rejected)
	// Matches still surface in the report even though the entry shipped.
	require.Len(t, report.Entries[0].Matches, 1)
	assert.Equal(t, "badword1", report.Entries[0].Matches[0].Term)
}

func TestPartialBuild(t *testing.T) {
	chdir(t, t.TempDir())
	writeInputs(t, map[string][]byte{
		"a.txt":     []byte("alpha"),
		"b.txt":     []byte("bravo"),
		"c.txt":     []byte("charlie"),
		"dirty.txt": []byte("badword1 inside"),
	})

	bl := sealpack.NewBlacklist([]string{"badword1"}, nil)
	report, err := sealpack.Build(context.Background(),
		[]string{"a.txt", "b.txt", "c.txt", "dirty.txt", "missing.txt"},
		"pw", "out.spk",
		sealpack.BuildWithKDFParams(fastKDF),
		sealpack.BuildWithBlacklist(bl),
	)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Written)
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Entries, 5)

	archive, err := sealpack.Open("out.spk", "pw")
	require.NoError(t, err)
	defer archive.Close()
	assert.Len(t, archive.List(), 3)
	assert.Len(t, archive.Skipped(), 2)
}

func TestBuildContinuesPastUnreadableInput(t *testing.T) {
	chdir(t, t.TempDir())
	writeInputs(t, map[string][]byte{
		"good.txt":  []byte("fine content"),
		"other.txt": []byte("also fine"),
	})
	// A directory opens cleanly but errors on the first read, like a
	// file that goes bad after open.
	require.NoError(t, os.Mkdir("broken", 0o755))

	report, err := sealpack.Build(context.Background(),
		[]string{"good.txt", "broken", "other.txt"}, "pw", "out.spk",
		sealpack.BuildWithKDFParams(fastKDF))
	require.NoError(t, err, "one bad input must not abort the build")
	assert.Equal(t, 2, report.Written)
	assert.Equal(t, 1, report.Failed)

	archive, err := sealpack.Open("out.spk", "pw")
	require.NoError(t, err)
	defer archive.Close()
	assert.Len(t, archive.List(), 2)
	require.Len(t, archive.Skipped(), 1)
	assert.Equal(t, "failed", archive.Skipped()[0].Status)
}

func TestTextExtractorFailureFallsBack(t *testing.T) {
	chdir(t, t.TempDir())
	pdf := append([]byte("%PDF-1.4\n"), "stream badword1 endstream"...)
	writeInputs(t, map[string][]byte{"doc.pdf": pdf})

	bl := sealpack.NewBlacklist([]string{"badword1"}, nil)
	report, err := sealpack.Build(context.Background(),
		[]string{"doc.pdf"}, "pw", "out.spk",
		sealpack.BuildWithKDFParams(fastKDF),
		sealpack.BuildWithBlacklist(bl),
		sealpack.BuildWithTextExtractor(func(string, []byte) (string, error) {
			return "", errors.New("parser crash")
		}),
	)
	require.NoError(t, err)
	// Raw bytes still get screened when extraction fails.
	assert.Equal(t, 1, report.Rejected)
}

func TestListStable(t *testing.T) {
	chdir(t, t.TempDir())
	writeInputs(t, map[string][]byte{
		"z.txt": []byte("z"),
		"a.txt": []byte("a"),
		"m.txt": []byte("m"),
	})
	inputs := []string{"z.txt", "a.txt", "m.txt"}

	_, err := sealpack.Build(context.Background(), inputs, "pw", "out.spk",
		sealpack.BuildWithKDFParams(fastKDF))
	require.NoError(t, err)

	archive, err := sealpack.Open("out.spk", "pw")
	require.NoError(t, err)
	defer archive.Close()

	first := archive.List()
	second := archive.List()
	require.Equal(t, first, second)
	// Input order, not sorted.
	assert.Equal(t, "z.txt", first[0].Path)
	assert.Equal(t, "a.txt", first[1].Path)
	assert.Equal(t, "m.txt", first[2].Path)
}

func TestBuildCancelled(t *testing.T) {
	chdir(t, t.TempDir())
	writeInputs(t, map[string][]byte{"a.txt": []byte("hello")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sealpack.Build(ctx, []string{"a.txt"}, "pw", "out.spk",
		sealpack.BuildWithKDFParams(fastKDF))
	require.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat("out.spk")
	assert.True(t, os.IsNotExist(statErr), "cancelled build must leave no output")
}

func TestBuildProgress(t *testing.T) {
	chdir(t, t.TempDir())
	writeInputs(t, map[string][]byte{
		"a.txt": []byte("a"),
		"b.txt": []byte("b"),
	})

	var calls []string
	_, err := sealpack.Build(context.Background(),
		[]string{"a.txt", "b.txt"}, "pw", "out.spk",
		sealpack.BuildWithKDFParams(fastKDF),
		sealpack.BuildWithProgress(func(path string, status sealpack.EntryStatus) {
			calls = append(calls, path+":"+status.String())
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt:written", "b.txt:written"}, calls)
}

func TestEmptyPassphrase(t *testing.T) {
	_, err := sealpack.Build(context.Background(), nil, "", "out.spk")
	require.Error(t, err)
}

func TestDuplicateInput(t *testing.T) {
	chdir(t, t.TempDir())
	writeInputs(t, map[string][]byte{"a.txt": []byte("a")})

	report, err := sealpack.Build(context.Background(),
		[]string{"a.txt", "./a.txt"}, "pw", "out.spk",
		sealpack.BuildWithKDFParams(fastKDF))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Written)
	assert.Equal(t, 1, report.Failed)
}
