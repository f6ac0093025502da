package container

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/meigma/sealpack/internal/compress"
	"github.com/meigma/sealpack/internal/crypt"
)

// Subkey derivation labels. The manifest and payload use independent
// keys so neither block's ciphertext is ever useful against the other.
const (
	ManifestKeyInfo = "sealpack/manifest"
	PayloadKeyInfo  = "sealpack/payload"
)

// Reader provides random access to a sealed container. The passphrase
// is stretched exactly once at open time; per-entry reads reuse the
// derived payload subkey.
type Reader struct {
	f           *os.File
	header      Header
	manifest    *Manifest
	payloadKey  []byte
	payloadBase int64
	payloadSize int64
	byPath      map[string]int
}

// OpenFile opens the container at path and unseals its manifest.
func OpenFile(path, passphrase string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	r, err := newReader(f, passphrase)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func newReader(f *os.File, passphrase string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat container: %w", err)
	}

	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	h, err := decodeHeader(hdr)
	if err != nil {
		return nil, err
	}

	payloadBase := int64(HeaderSize) + int64(h.ManifestLen)
	if payloadBase > info.Size() {
		return nil, fmt.Errorf("%w: manifest length exceeds file size", ErrCorrupt)
	}

	sealed := make([]byte, h.ManifestLen)
	if _, err := io.ReadFull(f, sealed); err != nil {
		return nil, fmt.Errorf("%w: truncated manifest", ErrCorrupt)
	}

	master, err := crypt.DeriveKey([]byte(passphrase), h.Salt[:], h.KDF)
	if err != nil {
		return nil, err
	}
	manifestKey, err := crypt.Subkey(master, ManifestKeyInfo)
	if err != nil {
		return nil, err
	}
	payloadKey, err := crypt.Subkey(master, PayloadKeyInfo)
	if err != nil {
		return nil, err
	}

	m, err := OpenManifest(sealed, manifestKey)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		f:           f,
		header:      h,
		manifest:    m,
		payloadKey:  payloadKey,
		payloadBase: payloadBase,
		payloadSize: info.Size() - payloadBase,
		byPath:      make(map[string]int, len(m.Entries)),
	}
	for i := range m.Entries {
		e := &m.Entries[i]
		if e.Offset < 0 || e.StoredSize < 0 || e.Offset+e.StoredSize > r.payloadSize {
			return nil, fmt.Errorf("%w: entry %q outside payload", ErrCorrupt, e.Path)
		}
		r.byPath[e.Path] = i
	}
	return r, nil
}

// Entries returns the stored entries in archive order.
func (r *Reader) Entries() []Entry { return r.manifest.Entries }

// Skipped returns the inputs recorded as absent from the archive.
func (r *Reader) Skipped() []Skipped { return r.manifest.Skipped }

// Lookup finds an entry by its archive path.
func (r *Reader) Lookup(path string) (*Entry, bool) {
	i, ok := r.byPath[path]
	if !ok {
		return nil, false
	}
	return &r.manifest.Entries[i], true
}

// Index returns the position of the entry with the given path.
func (r *Reader) Index(path string) (int, bool) {
	i, ok := r.byPath[path]
	return i, ok
}

// Open returns a reader over the decrypted, decompressed content of the
// i-th entry. The stream verifies both the AEAD tags and the recorded
// checksum; a read that reaches EOF without error is fully verified.
func (r *Reader) Open(i int) (io.ReadCloser, error) {
	if i < 0 || i >= len(r.manifest.Entries) {
		return nil, fmt.Errorf("entry index %d out of range", i)
	}
	e := &r.manifest.Entries[i]

	section := io.NewSectionReader(r.f, r.payloadBase+e.Offset, e.StoredSize)
	open, err := crypt.NewOpenReader(section, r.payloadKey, e.NoncePrefix[:], []byte(e.Path), crypt.DefaultChunkSize)
	if err != nil {
		return nil, err
	}
	dec, err := compress.NewReader(open, e.Algorithm)
	if err != nil {
		return nil, err
	}
	return &entryReader{
		entry: e,
		open:  open,
		body:  dec,
		hash:  sha256.New(),
	}, nil
}

// entryReader layers checksum verification over the decrypt/decompress
// stack and cross-checks the manifest's auth tag once the ciphertext is
// fully consumed.
type entryReader struct {
	entry    *Entry
	open     *crypt.OpenReader
	body     io.ReadCloser
	hash     hash.Hash
	read     int64
	verified bool
	err      error
}

func (er *entryReader) Read(p []byte) (int, error) {
	if er.err != nil {
		return 0, er.err
	}
	n, err := er.body.Read(p)
	if n > 0 {
		er.hash.Write(p[:n])
		er.read += int64(n)
	}
	if err == io.EOF {
		if verr := er.verify(); verr != nil {
			err = verr
		}
	}
	if err != nil && err != io.EOF {
		er.err = err
	}
	return n, err
}

func (er *entryReader) verify() error {
	if er.verified {
		return nil
	}
	er.verified = true
	// The decompressor can reach its end before the final AEAD chunk has
	// been consumed; drain so the tag below reflects the whole stream.
	if _, err := io.Copy(io.Discard, er.open); err != nil {
		return err
	}
	if er.read != er.entry.OriginalSize {
		return fmt.Errorf("%w: entry %q: got %d bytes, recorded %d",
			ErrChecksumMismatch, er.entry.Path, er.read, er.entry.OriginalSize)
	}
	if !bytes.Equal(er.hash.Sum(nil), er.entry.Checksum[:]) {
		return fmt.Errorf("%w: entry %q", ErrChecksumMismatch, er.entry.Path)
	}
	if !bytes.Equal(er.open.Tag(), er.entry.AuthTag[:]) {
		return fmt.Errorf("%w: entry %q: auth tag mismatch", crypt.ErrAuthentication, er.entry.Path)
	}
	return nil
}

func (er *entryReader) Close() error {
	return er.body.Close()
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}
