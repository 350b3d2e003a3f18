// Package textnorm canonicalizes worker utterances before any rule looks at them.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// nonAnswers are dismissive placeholders, stored in Compact form.
var nonAnswers = toSet(
	"なし", "無し", "ナシ", "なしです", "特になし", "特に無し", "とくになし",
	"ない", "無い", "ないです", "特にない", "特に無い", "特にないです",
	"ありません", "特にありません",
	"わからない", "分からない", "わかりません", "分かりません",
	"n/a", "na", "none", "nothing", "no", "ー",
)

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// Normalize NFKC-folds the text, collapses every whitespace run (including
// U+3000) into one ASCII space and trims the ends.
func Normalize(text string) string {
	folded := norm.NFKC.String(text)
	return strings.Join(strings.Fields(folded), " ")
}

// Compact NFKC-folds, lower-cases and removes all whitespace. Detectors
// match against this form so "ｋｙ　完了" and "KY完了" look the same.
func Compact(text string) string {
	folded := strings.ToLower(norm.NFKC.String(text))
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// StripPunctuation removes trailing and leading sentence punctuation.
func StripPunctuation(text string) string {
	return strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || r == '〜' || r == '~'
	})
}

// IsNonAnswer reports whether text is a dismissive placeholder such as
// "なし" or "特になし". It is total: any string is accepted.
func IsNonAnswer(text string) bool {
	key := StripPunctuation(Compact(text))
	if key == "" {
		return false
	}
	_, ok := nonAnswers[key]
	return ok
}

// IsMeaningful reports whether text carries an actual answer.
func IsMeaningful(text string) bool {
	return strings.TrimSpace(text) != "" && !IsNonAnswer(text)
}

// Truncate cuts text to at most max runes.
func Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
