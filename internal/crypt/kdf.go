// Package crypt implements key derivation and authenticated sealing for
// archive payloads.
//
// A single master key is derived once per archive from the passphrase and a
// random salt using Argon2id. The manifest and payload keys are separate
// HKDF subkeys of the master so compromise of one never exposes the other.
// Entries are sealed as a chunked XChaCha20-Poly1305 stream with bounded
// memory regardless of entry size.
package crypt

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the length of all derived keys.
	KeySize = 32

	// SaltSize is the length of the per-archive random salt.
	SaltSize = 32
)

// Params are the Argon2id cost parameters recorded in the archive header so
// the same passphrase reproduces the same key on open.
type Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultParams follows the RFC 9106 second recommended option, which fits
// machines where 64 MiB per derivation is acceptable.
func DefaultParams() Params {
	return Params{Time: 3, MemoryKiB: 64 * 1024, Threads: 4}
}

// Validate rejects parameter combinations Argon2id cannot accept.
func (p Params) Validate() error {
	if p.Time == 0 {
		return errors.New("crypt: argon2 time parameter must be positive")
	}
	if p.MemoryKiB < 8*uint32(p.Threads) {
		return errors.New("crypt: argon2 memory parameter too small")
	}
	if p.Threads == 0 {
		return errors.New("crypt: argon2 threads parameter must be positive")
	}
	return nil
}

// NewSalt returns a fresh random salt.
func NewSalt() ([]byte, error) {
	return RandomBytes(SaltSize)
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate random bytes: %w", err)
	}
	return b, nil
}

// DeriveKey runs Argon2id over the passphrase. This is deliberately slow
// and should happen exactly once per build or open.
func DeriveKey(passphrase, salt []byte, p Params) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("crypt: salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	return argon2.IDKey(passphrase, salt, p.Time, p.MemoryKiB, p.Threads, KeySize), nil
}

// Subkey derives an independent key from the master for the given purpose.
func Subkey(master []byte, purpose string) ([]byte, error) {
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, master, nil, []byte(purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s subkey: %w", purpose, err)
	}
	return key, nil
}
