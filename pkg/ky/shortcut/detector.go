// Package shortcut recognizes deterministic utterances that can be resolved
// without asking the model.
package shortcut

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/textnorm"
)

const (
	// MaxGoalLength caps an extracted action goal, in runes.
	MaxGoalLength = 120
	minQuotedGoal = 2
	maxBareGoal   = 40
)

var (
	quotedPatterns = []*regexp.Regexp{
		regexp.MustCompile(`「([^「」]+)」`),
		regexp.MustCompile(`『([^『』]+)』`),
		regexp.MustCompile(`"([^"]+)"`),
		regexp.MustCompile(`“([^“”]+)”`),
		regexp.MustCompile(`'([^']+)'`),
	}

	goalStatement = regexp.MustCompile(`(?:行動)?目標は[、,:：\s]*(.+)$`)
	goalFiller    = regexp.MustCompile(`(?:にします|とします|でお願いします|でいきます|です|だ)[。.!！]*$`)

	goalKeywords = []string{"よし", "ヨシ", "確認", "徹底", "厳守", "実施"}

	completionTokens = []string{"確定", "終了", "完了", "終わり", "これでok", "これで大丈夫", "finish", "done"}

	// Whole utterances only: "次の作業は配管の溶接です" carries content and
	// belongs to the model.
	nextItemForms = map[string]struct{}{
		"次": {}, "次へ": {}, "次へ進む": {}, "次へ進みます": {}, "次に進む": {}, "次に進みます": {},
		"次の作業": {}, "次の作業へ": {}, "次の作業へ進みます": {}, "次の作業に進みます": {},
		"次の作業に移ります": {}, "次の作業へ移ります": {}, "次お願いします": {}, "次をお願いします": {},
	}

	noMoreItemsTokens = []string{
		"他にありません", "ほかにありません", "他にない", "ほかにない", "他はありません", "ほかはありません",
		"これで十分", "これで完了", "以上です", "もうない", "もうありません",
	}

	acknowledgements = map[string]struct{}{
		"はい": {}, "うん": {}, "了解": {}, "了解です": {}, "りょうかい": {}, "わかりました": {},
		"分かりました": {}, "承知しました": {}, "ok": {}, "okです": {}, "おっけー": {},
		"yes": {}, "いいよ": {}, "ええ": {}, "そうです": {}, "よし": {}, "ヨシ": {},
	}

	kyCompleteForms = []string{"ky完了", "けーわい完了", "ケーワイ完了"}

	ordinalItem  = regexp.MustCompile(`^(?:では|じゃあ|それでは)?[0-9一二三四五六七八九十]+件目(?:の作業)?(?:に|へ)(?:移|進|行|い)(?:ります|りましょう|る|みます|みましょう|む|きます|きましょう|く|ます|ましょう)?$`)
	riskSelected = regexp.MustCompile(`^(?:危険度|リスク|レベル|risk)?[:：は]?([1-5])(?:です|で|にします)?$`)
)

// ExtractActionGoal pulls an action goal from text. The first rule that
// yields something wins: quoted span, "目標は…" statement, short keyword
// phrase. ok is false when nothing qualifies.
func ExtractActionGoal(text string) (goal string, ok bool) {
	normalized := textnorm.Normalize(text)
	if normalized == "" {
		return "", false
	}

	for _, pattern := range quotedPatterns {
		for _, m := range pattern.FindAllStringSubmatch(normalized, -1) {
			candidate := strings.TrimSpace(m[1])
			n := utf8.RuneCountInString(candidate)
			if n >= minQuotedGoal && n <= MaxGoalLength {
				return finishGoal(candidate)
			}
		}
	}

	if m := goalStatement.FindStringSubmatch(normalized); m != nil {
		candidate := goalFiller.ReplaceAllString(strings.TrimSpace(m[1]), "")
		candidate = textnorm.StripPunctuation(candidate)
		if candidate != "" && textnorm.IsMeaningful(candidate) {
			return finishGoal(candidate)
		}
	}

	if utf8.RuneCountInString(normalized) <= maxBareGoal && containsAny(normalized, goalKeywords) {
		if textnorm.IsMeaningful(normalized) && !IsAcknowledgement(normalized) {
			return finishGoal(normalized)
		}
	}
	return "", false
}

func finishGoal(candidate string) (string, bool) {
	goal := textnorm.Truncate(textnorm.Normalize(candidate), MaxGoalLength)
	return goal, goal != ""
}

// IsCompletionIntent reports whether the worker is saying they are done.
func IsCompletionIntent(text string) bool {
	return containsAny(textnorm.Compact(text), completionTokens)
}

// IsMoveToNextIntent reports whether the worker wants to leave the current
// work item, either for another one or because there are no more.
func IsMoveToNextIntent(text string) bool {
	return IsNextItemIntent(text) || IsNoMoreItemsIntent(text)
}

// IsNextItemIntent matches a bare request for the next work item, e.g.
// "次へ" or "2件目に移ります". Anything that also describes the work is not
// a match.
func IsNextItemIntent(text string) bool {
	key := textnorm.StripPunctuation(textnorm.Compact(text))
	if key == "" {
		return false
	}
	if _, ok := nextItemForms[key]; ok {
		return true
	}
	return ordinalItem.MatchString(key)
}

// IsNoMoreItemsIntent reports whether the worker says there are no further
// work items, e.g. "他にありません" or "これで十分です".
func IsNoMoreItemsIntent(text string) bool {
	return containsAny(textnorm.Compact(text), noMoreItemsTokens)
}

// IsKYComplete matches "KY完了" in any width or case, including the kana
// reading.
func IsKYComplete(text string) bool {
	return containsAny(textnorm.Compact(text), kyCompleteForms)
}

// IsAcknowledgement reports whether text is a bare "yes"/"ok" style reply.
func IsAcknowledgement(text string) bool {
	key := textnorm.StripPunctuation(textnorm.Compact(text))
	_, ok := acknowledgements[key]
	return ok
}

// ParseRiskLevel recognizes an explicit risk selection such as "3",
// "危険度4" or "レベル2です".
func ParseRiskLevel(text string) (int, bool) {
	key := textnorm.StripPunctuation(textnorm.Compact(text))
	m := riskSelected.FindStringSubmatch(key)
	if m == nil {
		return 0, false
	}
	level, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return level, true
}

func containsAny(s string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(s, token) {
			return true
		}
	}
	return false
}
