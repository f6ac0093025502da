package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/meigma/sealpack/internal/classify"
	"github.com/meigma/sealpack/internal/compress"
	"github.com/meigma/sealpack/internal/crypt"
)

const manifestVersion = 1

// maxManifestSize bounds the decoded manifest to keep a corrupt length
// field from driving a huge allocation.
const maxManifestSize = 256 << 20

// Skip status codes recorded for inputs that produced no payload.
const (
	SkipRejected uint8 = 1
	SkipFailed   uint8 = 2
)

// Entry describes one stored file: where its payload block lives and
// everything needed to decrypt, decompress, and verify it.
type Entry struct {
	Path           string
	OriginalSize   int64
	CompressedSize int64
	StoredSize     int64
	Offset         int64
	Checksum       [32]byte
	Category       classify.Category
	Algorithm      compress.Algorithm
	NoncePrefix    [crypt.NoncePrefixSize]byte
	AuthTag        [crypt.TagSize]byte
}

// Digest returns the entry's content checksum as an OCI digest string.
func (e *Entry) Digest() digest.Digest {
	return digest.NewDigestFromBytes(digest.SHA256, e.Checksum[:])
}

// Skipped records an input that was scanned out or failed during the
// build, so the archive itself documents what it does not contain.
type Skipped struct {
	Path   string
	Status uint8
	Reason string
}

// Manifest is the sealed entry table.
type Manifest struct {
	Entries []Entry
	Skipped []Skipped
}

func putString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("string too long: %d bytes", len(s))
	}
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
	return nil
}

func getString(r *bytes.Reader) (string, error) {
	var n [2]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return "", err
	}
	b := make([]byte, binary.BigEndian.Uint16(n[:]))
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func (m *Manifest) encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(manifestVersion)

	var n [8]byte
	binary.BigEndian.PutUint32(n[:4], uint32(len(m.Entries)))
	buf.Write(n[:4])
	for i := range m.Entries {
		e := &m.Entries[i]
		if err := putString(&buf, e.Path); err != nil {
			return nil, fmt.Errorf("entry %q: %w", e.Path, err)
		}
		binary.BigEndian.PutUint64(n[:], uint64(e.OriginalSize))
		buf.Write(n[:])
		binary.BigEndian.PutUint64(n[:], uint64(e.CompressedSize))
		buf.Write(n[:])
		binary.BigEndian.PutUint64(n[:], uint64(e.StoredSize))
		buf.Write(n[:])
		binary.BigEndian.PutUint64(n[:], uint64(e.Offset))
		buf.Write(n[:])
		buf.Write(e.Checksum[:])
		buf.WriteByte(uint8(e.Category))
		buf.WriteByte(uint8(e.Algorithm))
		buf.Write(e.NoncePrefix[:])
		buf.Write(e.AuthTag[:])
	}

	binary.BigEndian.PutUint32(n[:4], uint32(len(m.Skipped)))
	buf.Write(n[:4])
	for _, s := range m.Skipped {
		if err := putString(&buf, s.Path); err != nil {
			return nil, fmt.Errorf("skipped %q: %w", s.Path, err)
		}
		buf.WriteByte(s.Status)
		if err := putString(&buf, s.Reason); err != nil {
			return nil, fmt.Errorf("skipped %q: %w", s.Path, err)
		}
	}
	return buf.Bytes(), nil
}

func decodeManifest(data []byte) (*Manifest, error) {
	r := bytes.NewReader(data)
	ver, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: empty manifest", ErrCorrupt)
	}
	if ver != manifestVersion {
		return nil, fmt.Errorf("%w: manifest version %d", ErrVersion, ver)
	}

	var n [8]byte
	if _, err := io.ReadFull(r, n[:4]); err != nil {
		return nil, fmt.Errorf("%w: truncated manifest", ErrCorrupt)
	}
	count := binary.BigEndian.Uint32(n[:4])
	if int64(count)*80 > int64(r.Len()) {
		return nil, fmt.Errorf("%w: entry count %d exceeds manifest size", ErrCorrupt, count)
	}

	m := &Manifest{Entries: make([]Entry, count)}
	for i := range m.Entries {
		e := &m.Entries[i]
		if e.Path, err = getString(r); err != nil {
			return nil, fmt.Errorf("%w: truncated entry", ErrCorrupt)
		}
		fields := []*int64{&e.OriginalSize, &e.CompressedSize, &e.StoredSize, &e.Offset}
		for _, f := range fields {
			if _, err := io.ReadFull(r, n[:]); err != nil {
				return nil, fmt.Errorf("%w: truncated entry %q", ErrCorrupt, e.Path)
			}
			v := binary.BigEndian.Uint64(n[:])
			if v > math.MaxInt64 {
				return nil, fmt.Errorf("%w: entry %q size out of range", ErrCorrupt, e.Path)
			}
			*f = int64(v)
		}
		if _, err := io.ReadFull(r, e.Checksum[:]); err != nil {
			return nil, fmt.Errorf("%w: truncated entry %q", ErrCorrupt, e.Path)
		}
		var cb [2]byte
		if _, err := io.ReadFull(r, cb[:]); err != nil {
			return nil, fmt.Errorf("%w: truncated entry %q", ErrCorrupt, e.Path)
		}
		e.Category = classify.Category(cb[0])
		e.Algorithm = compress.Algorithm(cb[1])
		if !e.Category.Valid() {
			return nil, fmt.Errorf("%w: entry %q: unknown category %d", ErrCorrupt, e.Path, cb[0])
		}
		if !e.Algorithm.Valid() {
			return nil, fmt.Errorf("%w: entry %q: unknown algorithm %d", ErrCorrupt, e.Path, cb[1])
		}
		if _, err := io.ReadFull(r, e.NoncePrefix[:]); err != nil {
			return nil, fmt.Errorf("%w: truncated entry %q", ErrCorrupt, e.Path)
		}
		if _, err := io.ReadFull(r, e.AuthTag[:]); err != nil {
			return nil, fmt.Errorf("%w: truncated entry %q", ErrCorrupt, e.Path)
		}
	}

	if _, err := io.ReadFull(r, n[:4]); err != nil {
		return nil, fmt.Errorf("%w: truncated manifest", ErrCorrupt)
	}
	count = binary.BigEndian.Uint32(n[:4])
	if int64(count)*5 > int64(r.Len()) {
		return nil, fmt.Errorf("%w: skip count %d exceeds manifest size", ErrCorrupt, count)
	}
	m.Skipped = make([]Skipped, count)
	for i := range m.Skipped {
		s := &m.Skipped[i]
		if s.Path, err = getString(r); err != nil {
			return nil, fmt.Errorf("%w: truncated skip record", ErrCorrupt)
		}
		st, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated skip record", ErrCorrupt)
		}
		s.Status = st
		if s.Reason, err = getString(r); err != nil {
			return nil, fmt.Errorf("%w: truncated skip record", ErrCorrupt)
		}
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing manifest bytes", ErrCorrupt, r.Len())
	}
	return m, nil
}

// Seal encodes, compresses, and encrypts the manifest under key. The
// result is a random 24-byte nonce followed by the ciphertext.
func (m *Manifest) Seal(key []byte) ([]byte, error) {
	plain, err := m.encode()
	if err != nil {
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	compressed := enc.EncodeAll(plain, nil)
	if err := enc.Close(); err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, err := crypt.RandomBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	sealed := aead.Seal(nonce, nonce, compressed, []byte(Magic))
	return sealed, nil
}

// OpenManifest decrypts and decodes a sealed manifest block. Any
// authentication failure maps to ErrManifest: the caller cannot tell a
// wrong passphrase from corruption, and neither can we.
func OpenManifest(sealed, key []byte) (*Manifest, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX+crypt.TagSize {
		return nil, fmt.Errorf("%w: manifest block too short", ErrCorrupt)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := sealed[:chacha20poly1305.NonceSizeX]
	compressed, err := aead.Open(nil, nonce, sealed[chacha20poly1305.NonceSizeX:], []byte(Magic))
	if err != nil {
		return nil, ErrManifest
	}

	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(maxManifestSize),
	)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	plain, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest decompression: %v", ErrCorrupt, err)
	}
	return decodeManifest(plain)
}
