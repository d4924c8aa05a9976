// Package normalize canonicalizes counterparty identity fields coming
// out of free-text bank statement lines: CUI (Romanian tax id) and
// company names. All functions are pure and never fail; degenerate
// input yields an empty result.
package normalize

import (
	"strings"
	"unicode"
)

// minCUIDigits is the shortest digit run still accepted as a CUI.
const minCUIDigits = 6

var diacritics = strings.NewReplacer(
	"ă", "a", "â", "a", "î", "i", "ș", "s", "ş", "s", "ț", "t", "ţ", "t",
	"Ă", "a", "Â", "a", "Î", "i", "Ș", "s", "Ş", "s", "Ț", "t", "Ţ", "t",
	"é", "e", "è", "e", "ê", "e", "á", "a", "à", "a", "ä", "a",
	"ö", "o", "ô", "o", "ü", "u", "û", "u", "ç", "c",
)

// Romanian legal-form suffixes dropped from names before comparison.
var legalForms = map[string]bool{
	"srl":  true,
	"sa":   true,
	"pfa":  true,
	"snc":  true,
	"scs":  true,
	"sca":  true,
	"srld": true,
}

// CUI extracts a normalized tax id from a raw statement field: country
// prefix and all non-digit characters stripped. Returns "" when fewer
// than six digits remain, which callers treat as "no tax id".
func CUI(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < minCUIDigits {
		return ""
	}
	return digits
}

// Name lowercases, folds diacritics, drops punctuation and legal-form
// suffixes (SRL, SA, PFA, ...), and collapses whitespace.
func Name(raw string) string {
	s := strings.ToLower(raw)
	s = diacritics.Replace(s)
	// Joining punctuation is removed so "S.R.L." and "SRL-D" collapse
	// to single tokens; everything else non-alphanumeric splits words.
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return r
		case r == '.' || r == ',' || r == '-' || r == '\'':
			return -1
		default:
			return ' '
		}
	}, s)

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if legalForms[f] {
			continue
		}
		kept = append(kept, f)
	}
	// A name that is nothing but a legal form stays as-is rather than
	// normalizing to empty.
	if len(kept) == 0 {
		kept = fields
	}
	return strings.Join(kept, " ")
}

// Similarity is a Levenshtein ratio in [0,1] over already-normalized
// names. Symmetric and deterministic; both-empty input scores 0 since
// it carries no signal.
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	ra := []rune(a)
	rb := []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return 1 - float64(levenshtein(ra, rb))/float64(maxLen)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minInt(a, b, c int) int {
	if a < b && a < c {
		return a
	}
	if b < c {
		return b
	}
	return c
}
