// Package sealpack packages files into a single sealed container with
// per-file classification, content screening, compression, and
// authenticated encryption, and unpacks it with integrity verification.
//
// A build classifies each input by content, screens text-bearing inputs
// against blacklist dictionaries (exact words in any script, and phone
// numbers in any common formatting), compresses per a category policy,
// and encrypts every payload with a key stretched from a passphrase.
// Inputs that fail screening or cannot be read are recorded, not fatal:
// the archive still seals with the rest, and both the returned report
// and the archive's own manifest say what is missing and why.
//
// # Quick Start
//
// Build an archive:
//
//	bl := sealpack.NewBlacklist([]string{"secret-project"}, []string{"1234567890"})
//	report, err := sealpack.Build(ctx, inputs, passphrase, "out.spk",
//	    sealpack.BuildWithBlacklist(bl),
//	)
//
// Open and extract:
//
//	archive, err := sealpack.Open("out.spk", passphrase)
//	if err != nil {
//	    return err
//	}
//	defer archive.Close()
//	result, err := archive.ExtractAll(ctx, "./restored")
//
// # Integrity
//
// Every payload chunk is sealed with XChaCha20-Poly1305; the manifest
// is sealed separately under its own subkey. A flipped byte anywhere in
// an entry surfaces as [ErrAuthentication] on read, and extracted
// content is additionally rechecked against the sha256 recorded at
// build time. A wrong passphrase fails at [Open] with
// [ErrWrongPassphrase] before any payload is touched.
package sealpack
