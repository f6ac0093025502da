// Package scan implements the content filter that gates archive inclusion.
//
// A Blacklist holds two dictionaries loaded once at startup: prohibited
// words matched as exact tokens, and phone numbers matched after
// normalization. Scanning is read-only over its input and reports every
// match rather than stopping at the first.
package scan

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// MatchCategory identifies which dictionary produced a match.
type MatchCategory uint8

const (
	MatchWord MatchCategory = iota
	MatchPhone
)

func (c MatchCategory) String() string {
	switch c {
	case MatchWord:
		return "word-blacklist"
	case MatchPhone:
		return "phone-blacklist"
	default:
		return "unknown"
	}
}

// Match is one blacklist hit found in scanned text.
type Match struct {
	// Term is the dictionary entry that matched.
	Term string

	// Category says which dictionary the term came from.
	Category MatchCategory
}

// Result is the outcome of scanning one text.
type Result struct {
	Matches []Match
}

// Pass reports whether the text is clean.
func (r Result) Pass() bool {
	return len(r.Matches) == 0
}

// Terms returns the matched terms joined for reporting.
func (r Result) Terms() string {
	parts := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		parts[i] = fmt.Sprintf("%s (%s)", m.Term, m.Category)
	}
	return strings.Join(parts, ", ")
}

// Blacklist is an immutable pair of prohibited-content dictionaries.
//
// Construct once via New and share freely; Scan never mutates state, so a
// single Blacklist is safe for concurrent use.
type Blacklist struct {
	words map[string]struct{}
	// phones maps every comparison variant of a blacklisted number to its
	// canonical (bare-digit) form for reporting.
	phones   map[string]string
	maxGram  int
	anyWords bool
}

// New builds a Blacklist from word terms and phone numbers.
//
// Words are lowered and matched as exact tokens. Phone numbers are
// normalized (see NormalizeNumber) before storage so formatting in the
// dictionary does not matter.
func New(words, phones []string) *Blacklist {
	b := &Blacklist{
		words:  make(map[string]struct{}, len(words)),
		phones: make(map[string]string, len(phones)),
	}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		b.words[w] = struct{}{}
		if n := utf8.RuneCountInString(w); n > b.maxGram {
			b.maxGram = n
		}
	}
	for _, p := range phones {
		canonical := NormalizeNumber(p)
		if canonical == "" {
			continue
		}
		for _, v := range normalizeVariants(p) {
			b.phones[v] = canonical
		}
	}
	b.anyWords = len(b.words) > 0
	return b
}

// Load reads one dictionary term per line, skipping blanks and #-comments.
func Load(r io.Reader) ([]string, error) {
	var terms []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading blacklist: %w", err)
	}
	return terms, nil
}

// Empty reports whether both dictionaries are empty.
func (b *Blacklist) Empty() bool {
	return len(b.words) == 0 && len(b.phones) == 0
}

// Scan checks text against both dictionaries and returns every match.
func (b *Blacklist) Scan(text string) Result {
	var res Result
	seen := make(map[Match]struct{})

	record := func(m Match) {
		if _, dup := seen[m]; dup {
			return
		}
		seen[m] = struct{}{}
		res.Matches = append(res.Matches, m)
	}

	if b.anyWords {
		for _, tok := range Tokenize(text, b.maxGram) {
			if _, ok := b.words[tok]; ok {
				record(Match{Term: tok, Category: MatchWord})
			}
		}
	}

	if len(b.phones) > 0 {
		for _, cand := range phoneCandidates(text) {
			for _, v := range normalizeVariants(cand) {
				if canonical, ok := b.phones[v]; ok {
					record(Match{Term: canonical, Category: MatchPhone})
					break
				}
			}
		}
	}

	return res
}
