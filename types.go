package sealpack

import (
	"fmt"
	"io"

	"github.com/meigma/sealpack/internal/classify"
	"github.com/meigma/sealpack/internal/compress"
	"github.com/meigma/sealpack/internal/crypt"
	"github.com/meigma/sealpack/internal/scan"
)

// --- Re-exports from internal packages ---

// Category is a detected content category. It selects the compression
// setting and decides whether content is screened.
type Category = classify.Category

// Content category constants.
const (
	CategoryBinary   = classify.Binary
	CategoryText     = classify.Text
	CategoryDocument = classify.Document
	CategoryImage    = classify.Image
	CategoryUnknown  = classify.Unknown
)

// Blacklist holds the screening dictionaries: exact words (any script)
// and phone numbers. Build it once and share it across builds; it is
// immutable after construction.
type Blacklist = scan.Blacklist

// NewBlacklist builds a blacklist from word and phone number lists.
func NewBlacklist(words, phones []string) *Blacklist {
	return scan.New(words, phones)
}

// LoadBlacklist reads newline-separated dictionaries. Blank lines and
// lines starting with '#' are ignored. Either reader may be nil.
func LoadBlacklist(words, phones io.Reader) (*Blacklist, error) {
	var wordTerms, phoneTerms []string
	var err error
	if words != nil {
		if wordTerms, err = scan.Load(words); err != nil {
			return nil, fmt.Errorf("load word blacklist: %w", err)
		}
	}
	if phones != nil {
		if phoneTerms, err = scan.Load(phones); err != nil {
			return nil, fmt.Errorf("load phone blacklist: %w", err)
		}
	}
	return scan.New(wordTerms, phoneTerms), nil
}

// CompressionPolicy maps content categories to compression settings.
type CompressionPolicy = compress.Policy

// CompressionSetting selects an algorithm and level for one category.
type CompressionSetting = compress.Setting

// Compression algorithm constants.
const (
	CompressionNone = compress.None
	CompressionZstd = compress.Zstd
)

// DefaultCompressionPolicy returns the built-in policy: strong zstd for
// text-bearing categories, store for precompressed content, fast zstd
// for the rest.
func DefaultCompressionPolicy() CompressionPolicy {
	return compress.DefaultPolicy()
}

// KDFParams are the Argon2id cost parameters recorded in the container
// header.
type KDFParams = crypt.Params

// DefaultKDFParams returns the RFC 9106 low-memory parameters used
// unless overridden.
func DefaultKDFParams() KDFParams {
	return crypt.DefaultParams()
}
