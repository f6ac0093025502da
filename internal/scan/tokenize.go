package scan

import (
	"unicode"
)

// scriptClass groups runes by how their script delimits words.
type scriptClass uint8

const (
	classOther scriptClass = iota
	classSpaced
	classHan
)

func classOf(r rune) scriptClass {
	switch {
	case unicode.Is(unicode.Han, r):
		return classHan
	case unicode.IsLetter(r) || unicode.IsDigit(r):
		return classSpaced
	default:
		return classOther
	}
}

// Tokenize splits text into match candidates.
//
// Spaced scripts produce one token per letter/digit run. Han runs have no
// word delimiters, so every window of 1..maxGram consecutive characters is
// emitted as a candidate; exact dictionary lookup then decides what counts
// as a word. Runs never cross a script boundary, so a Latin fragment glued
// to a Han fragment yields separate tokens rather than a merged one.
func Tokenize(text string, maxGram int) []string {
	if maxGram < 1 {
		maxGram = 1
	}

	tokens := make([]string, 0, 16)
	var run []rune
	runClass := classOther

	flush := func() {
		if len(run) == 0 {
			return
		}
		switch runClass {
		case classSpaced:
			tokens = append(tokens, string(run))
		case classHan:
			tokens = append(tokens, hanGrams(run, maxGram)...)
		}
		run = run[:0]
	}

	for _, r := range text {
		c := classOf(r)
		if c == classOther {
			flush()
			continue
		}
		if c != runClass {
			flush()
			runClass = c
		}
		run = append(run, unicode.ToLower(r))
	}
	flush()

	return tokens
}

// hanGrams emits every n-gram window of length 1..maxGram over a Han run.
func hanGrams(run []rune, maxGram int) []string {
	grams := make([]string, 0, len(run))
	for i := range run {
		limit := maxGram
		if rest := len(run) - i; rest < limit {
			limit = rest
		}
		for n := 1; n <= limit; n++ {
			grams = append(grams, string(run[i:i+n]))
		}
	}
	return grams
}
