package sealpack

import "github.com/opencontainers/go-digest"

// EntryStatus is the terminal state an input reached during a build.
type EntryStatus uint8

const (
	// StatusWritten means the input was packaged into the archive.
	StatusWritten EntryStatus = iota

	// StatusRejected means content screening refused the input.
	StatusRejected

	// StatusFailed means the input could not be processed, typically a
	// read error.
	StatusFailed
)

func (s EntryStatus) String() string {
	switch s {
	case StatusWritten:
		return "written"
	case StatusRejected:
		return "rejected"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Match is one blacklist hit found while screening an input.
type Match struct {
	// Term is the dictionary entry that matched, in canonical form.
	Term string

	// Kind names the dictionary: "word-blacklist" or "phone-blacklist".
	Kind string
}

// EntryReport describes the outcome for a single input.
type EntryReport struct {
	// Path is the input's path inside the archive (or the raw input
	// path when it never got far enough to be assigned one).
	Path string

	Status EntryStatus

	// Category is the detected content category ("text", "image", ...).
	Category string

	// Confidence is the classifier's confidence in Category, in [0,1].
	Confidence float64

	// OriginalSize and CompressedSize are set for written entries.
	OriginalSize   int64
	CompressedSize int64

	// Digest is the sha256 of the original content, set for written
	// entries.
	Digest digest.Digest

	// Matches holds blacklist hits. Present for rejected entries, and
	// for written entries packaged under an override policy.
	Matches []Match

	// Reason explains a rejection or failure in one line.
	Reason string
}

// BuildReport summarizes a build. A build that produced an archive can
// still report rejected and failed inputs; those are recorded both here
// and inside the archive itself.
type BuildReport struct {
	Written  int
	Rejected int
	Failed   int
	Entries  []EntryReport
}

// ExtractReport summarizes an ExtractAll run.
type ExtractReport struct {
	Restored int
	Failed   int

	// Errors maps entry paths to what went wrong for them.
	Errors map[string]error
}
