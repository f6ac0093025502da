// Package classify assigns a content category to each input file.
//
// Classification combines the file extension with magic-number sniffing of
// the leading bytes. Detection never fails: content that matches nothing
// falls back to the binary category with low confidence.
package classify

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// Category identifies the content class of an input file.
type Category uint8

const (
	Binary Category = iota
	Text
	Document
	Image
	Unknown
)

func (c Category) String() string {
	switch c {
	case Binary:
		return "binary"
	case Text:
		return "text"
	case Document:
		return "document"
	case Image:
		return "image"
	default:
		return "unknown"
	}
}

// Valid reports whether c is a category this version understands.
// Manifest decoding uses it to reject categories from future formats.
func (c Category) Valid() bool {
	return c <= Unknown
}

// Caps describes what the pipeline may do with a category.
type Caps struct {
	// ExtractText indicates text can be pulled out for content scanning.
	ExtractText bool

	// Precompressed indicates the content is already entropy-coded and
	// recompression is wasted work.
	Precompressed bool

	// Scan indicates the content filter applies to this category.
	Scan bool
}

var capsTable = [...]Caps{
	Binary:   {},
	Text:     {ExtractText: true, Scan: true},
	Document: {ExtractText: true, Scan: true},
	Image:    {Precompressed: true},
	Unknown:  {},
}

// Caps returns the capability table entry for the category.
func (c Category) Caps() Caps {
	if int(c) >= len(capsTable) {
		return Caps{}
	}
	return capsTable[c]
}

// Result carries the assigned category plus how it was decided.
type Result struct {
	Category   Category
	Confidence float64
	Rule       string
}

// extCategories maps common extensions to their expected category.
var extCategories = map[string]Category{
	".txt":  Text,
	".md":   Text,
	".csv":  Text,
	".log":  Text,
	".json": Text,
	".xml":  Text,
	".html": Text,
	".pdf":  Document,
	".doc":  Document,
	".docx": Document,
	".rtf":  Document,
	".odt":  Document,
	".jpg":  Image,
	".jpeg": Image,
	".png":  Image,
	".gif":  Image,
	".webp": Image,
	".bmp":  Image,
}

// Detect assigns a category from the filename and leading bytes.
//
// The sniffed content type wins over the extension; an extension that
// disagrees with the sniffed bytes lowers confidence rather than failing.
// Detect never returns an error.
func Detect(name string, head []byte) Result {
	ext := strings.ToLower(filepath.Ext(name))
	extCat, extKnown := extCategories[ext]

	sniffCat, sniffed := sniff(head)

	switch {
	case sniffed && extKnown && sniffCat == extCat:
		return Result{Category: sniffCat, Confidence: 0.95, Rule: "extension+magic"}
	case sniffed && extKnown:
		// Content disagrees with the claimed extension; trust the bytes.
		return Result{Category: sniffCat, Confidence: 0.6, Rule: "extension-mismatch"}
	case sniffed:
		return Result{Category: sniffCat, Confidence: 0.8, Rule: "magic"}
	case extKnown && looksTextual(head):
		return Result{Category: extCat, Confidence: 0.7, Rule: "extension"}
	case extKnown && extCat != Text:
		return Result{Category: extCat, Confidence: 0.5, Rule: "extension"}
	case looksTextual(head):
		return Result{Category: Text, Confidence: 0.5, Rule: "utf8-heuristic"}
	}
	return Result{Category: Binary, Confidence: 0.3, Rule: "fallback"}
}

// sniff maps the detected MIME type onto a category.
func sniff(head []byte) (Category, bool) {
	if len(head) == 0 {
		return Binary, false
	}
	mt := mimetype.Detect(head)
	switch {
	case strings.HasPrefix(mt.String(), "image/"):
		return Image, true
	case mt.Is("application/pdf"), mt.Is("application/msword"),
		mt.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"),
		mt.Is("application/rtf"), mt.Is("application/vnd.oasis.opendocument.text"):
		return Document, true
	case strings.HasPrefix(mt.String(), "text/"):
		return Text, true
	}
	return Binary, false
}

// looksTextual reports whether head is plausibly UTF-8 text.
func looksTextual(head []byte) bool {
	if len(head) == 0 {
		return false
	}
	if !utf8.Valid(head) {
		// The sample may split a multi-byte rune at the end.
		trimmed := head
		for len(trimmed) > 0 && len(head)-len(trimmed) < utf8.UTFMax && !utf8.Valid(trimmed) {
			trimmed = trimmed[:len(trimmed)-1]
		}
		if !utf8.Valid(trimmed) {
			return false
		}
		head = trimmed
	}
	for _, b := range head {
		if b == 0 {
			return false
		}
	}
	return true
}
