// Package container implements the sealed archive container format.
//
// Layout:
//
//	[magic "SPK1"][version][flags][reserved]
//	[salt][argon2id parameters]
//	[manifest length][manifest block]
//	[payload blocks, contiguous, in manifest order]
//
// The manifest block is the zstd-compressed entry table sealed under the
// manifest subkey. Payload blocks are chunked AEAD streams under the
// payload subkey, independently addressable by offset and length so a
// reader can extract one entry without touching others. The container is
// append-only during construction and immutable once sealed.
package container

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/meigma/sealpack/internal/crypt"
)

// Magic identifies a sealed container file.
const Magic = "SPK1"

// Version is the only container format version this build reads or writes.
const Version = 1

// HeaderSize is the fixed length of the encoded header.
const HeaderSize = 4 + 1 + 1 + 2 + crypt.SaltSize + 4 + 4 + 1 + 3 + 4

// Sentinel errors.
var (
	// ErrCorrupt is returned when the container structure is malformed:
	// bad magic, impossible offsets, or a truncated file.
	ErrCorrupt = errors.New("sealpack: container corrupt")

	// ErrVersion is returned when the container was written by an
	// unsupported format version.
	ErrVersion = errors.New("sealpack: unsupported container version")

	// ErrManifest is returned when the manifest cannot be opened. The
	// cause is a wrong passphrase or a corrupt manifest block; the format
	// deliberately cannot distinguish the two.
	ErrManifest = errors.New("sealpack: wrong passphrase or corrupt manifest")

	// ErrChecksumMismatch is returned when extracted content does not
	// match the checksum recorded at build time.
	ErrChecksumMismatch = errors.New("sealpack: checksum mismatch")
)

// Header is the plaintext portion of the container: everything needed to
// re-derive the keys before the manifest can be opened.
type Header struct {
	Version     uint8
	Salt        [crypt.SaltSize]byte
	KDF         crypt.Params
	ManifestLen uint32
}

func (h Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, Magic)
	buf[4] = h.Version
	// buf[5] flags, buf[6:8] reserved
	copy(buf[8:], h.Salt[:])
	off := 8 + crypt.SaltSize
	binary.BigEndian.PutUint32(buf[off:], h.KDF.Time)
	binary.BigEndian.PutUint32(buf[off+4:], h.KDF.MemoryKiB)
	buf[off+8] = h.KDF.Threads
	// 3 reserved bytes
	binary.BigEndian.PutUint32(buf[off+12:], h.ManifestLen)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	if string(buf[:4]) != Magic {
		return Header{}, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}

	var h Header
	h.Version = buf[4]
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: version %d", ErrVersion, h.Version)
	}
	copy(h.Salt[:], buf[8:])
	off := 8 + crypt.SaltSize
	h.KDF.Time = binary.BigEndian.Uint32(buf[off:])
	h.KDF.MemoryKiB = binary.BigEndian.Uint32(buf[off+4:])
	h.KDF.Threads = buf[off+8]
	h.ManifestLen = binary.BigEndian.Uint32(buf[off+12:])

	if err := h.KDF.Validate(); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return h, nil
}
