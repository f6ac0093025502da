package scan

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// minPhoneDigits is the smallest digit count treated as a phone candidate.
// Shorter runs are almost always dates, counts, or version numbers.
const minPhoneDigits = 5

// NormalizeNumber reduces a phone number to bare digits.
//
// Full-width digits are narrowed and separators (spaces, dashes, dots,
// parentheses) are stripped. The result may be empty when the input
// carries no digits.
func NormalizeNumber(s string) string {
	digits, _ := splitNumber(s)
	return digits
}

// normalizeVariants returns the comparison forms of a phone number: the
// bare digits, plus prefix-stripped forms when the number carried an
// explicit country-code marker ("+cc" or the "00cc" dialing form).
// Country codes are 1-3 digits and their length cannot be known without a
// numbering-plan table, so every stripping that leaves a plausible number
// is produced; two numbers match when their variant sets intersect.
func normalizeVariants(s string) []string {
	digits, international := splitNumber(s)
	if digits == "" {
		return nil
	}

	variants := []string{digits}
	if !international {
		return variants
	}
	for n := 1; n <= 3 && len(digits)-n >= minPhoneDigits; n++ {
		variants = append(variants, digits[n:])
	}
	return variants
}

// splitNumber narrows and strips s to bare digits and reports whether the
// number used an international prefix.
func splitNumber(s string) (digits string, international bool) {
	s = width.Narrow.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		if r == '+' && i == 0 {
			international = true
			continue
		}
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits = b.String()

	if !international && strings.HasPrefix(digits, "00") {
		digits = digits[2:]
		international = true
	}
	return digits, international
}

// phoneCandidates extracts digit runs that look like phone numbers.
//
// A candidate is a maximal run of digits and in-number separators
// containing at least minPhoneDigits digits. Full-width digits count.
func phoneCandidates(text string) []string {
	text = width.Narrow.String(text)

	var candidates []string
	var run strings.Builder
	digitCount := 0

	flush := func() {
		if digitCount >= minPhoneDigits {
			candidates = append(candidates, run.String())
		}
		run.Reset()
		digitCount = 0
	}

	for _, r := range text {
		switch {
		case unicode.IsDigit(r):
			run.WriteRune(r)
			digitCount++
		case r == '+' && run.Len() == 0:
			run.WriteRune(r)
		case isPhoneSeparator(r) && run.Len() > 0:
			run.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return candidates
}

func isPhoneSeparator(r rune) bool {
	switch r {
	case '-', '.', ' ', '(', ')', ' ':
		return true
	}
	return false
}
