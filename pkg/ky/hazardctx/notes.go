package hazardctx

import (
	"sort"
	"strings"
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/textnorm"
)

const (
	heatThreshold = 30.0
	coldThreshold = 5.0
)

// DayOfWeekNote returns a fatigue caution for Mondays and Fridays.
func DayOfWeekNote(day time.Weekday) string {
	switch day {
	case time.Monday:
		return "【曜日】月曜日は休み明けで体が作業に慣れていません。準備運動と声かけを丁寧に行うよう促してください。"
	case time.Friday:
		return "【曜日】金曜日は疲れがたまりやすい日です。集中力の低下や焦りによる危険にも触れてください。"
	}
	return ""
}

type weatherRule struct {
	keywords []string
	note     string
}

var weatherRules = []weatherRule{
	{keywords: []string{"雨", "rain"}, note: "雨: 足元や足場が滑りやすく、電動工具の漏電にも注意が必要です。"},
	{keywords: []string{"雪", "snow"}, note: "雪: 凍結による転倒と、視界不良に注意が必要です。"},
	{keywords: []string{"風", "wind"}, note: "強風: 高所作業での飛来落下と、資材のあおられに注意が必要です。"},
}

// WeatherNote returns weather-specific cautions, or "" when nothing applies.
func WeatherNote(weather string, temperature *float64) string {
	key := textnorm.Compact(weather)
	var notes []string
	for _, rule := range weatherRules {
		for _, kw := range rule.keywords {
			if strings.Contains(key, kw) {
				notes = append(notes, rule.note)
				break
			}
		}
	}

	hot := strings.Contains(key, "暑") || strings.Contains(key, "heat")
	cold := strings.Contains(key, "寒") || strings.Contains(key, "cold")
	if temperature != nil {
		hot = hot || *temperature >= heatThreshold
		cold = cold || *temperature <= coldThreshold
	}
	if hot {
		notes = append(notes, "暑さ: 熱中症の危険があります。水分・塩分補給と休憩の取り方を確認してください。")
	}
	if cold {
		notes = append(notes, "寒さ: 体がこわばり動きが鈍くなります。手のかじかみによる取り落としに注意が必要です。")
	}

	if len(notes) == 0 {
		return ""
	}
	return "【天候】" + strings.Join(notes, " ")
}

// Similarity is the Dice coefficient over character bigrams of the compact
// forms of a and b, in [0, 1].
func Similarity(a, b string) float64 {
	ga := bigrams(textnorm.Compact(a))
	gb := bigrams(textnorm.Compact(b))
	if len(ga) == 0 || len(gb) == 0 {
		return 0
	}
	shared := 0
	for g, n := range ga {
		if m, ok := gb[g]; ok {
			if m < n {
				shared += m
			} else {
				shared += n
			}
		}
	}
	return 2 * float64(shared) / float64(total(ga)+total(gb))
}

// RankBySimilarity orders records by how closely they match hint. Ties keep
// their original (newest-first) order. An empty hint leaves the order as is.
func RankBySimilarity(records []RiskRecord, hint string) []RiskRecord {
	if strings.TrimSpace(hint) == "" || len(records) < 2 {
		return records
	}
	scores := make([]float64, len(records))
	for i, r := range records {
		scores[i] = Similarity(hint, r.WorkDescription+" "+r.HazardDescription)
	}
	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	out := make([]RiskRecord, len(records))
	for i, j := range idx {
		out[i] = records[j]
	}
	return out
}

func bigrams(s string) map[string]int {
	runes := []rune(s)
	if len(runes) < 2 {
		if len(runes) == 1 {
			return map[string]int{s: 1}
		}
		return nil
	}
	out := make(map[string]int, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		out[string(runes[i:i+2])]++
	}
	return out
}

func total(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
