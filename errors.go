package sealpack

import (
	"github.com/meigma/sealpack/internal/container"
	"github.com/meigma/sealpack/internal/crypt"
)

// Errors re-exported from the container layer. Wrapped errors from Open
// and extraction match these with errors.Is.
var (
	// ErrContainerCorrupt is returned when a container is structurally
	// invalid: bad magic, truncation, or impossible offsets.
	ErrContainerCorrupt = container.ErrCorrupt

	// ErrUnsupportedVersion is returned when a container was written by
	// an unsupported format version.
	ErrUnsupportedVersion = container.ErrVersion

	// ErrWrongPassphrase is returned when the manifest fails to open. A
	// wrong passphrase and a corrupted manifest are indistinguishable.
	ErrWrongPassphrase = container.ErrManifest

	// ErrAuthentication is returned when payload ciphertext fails AEAD
	// verification: the archive was tampered with or damaged.
	ErrAuthentication = crypt.ErrAuthentication

	// ErrChecksumMismatch is returned when decrypted, decompressed
	// content does not match the checksum recorded at build time.
	ErrChecksumMismatch = container.ErrChecksumMismatch
)
