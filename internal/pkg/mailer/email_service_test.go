package mailer

import (
	"mime"
	"testing"
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderKySummary(t *testing.T) {
	temp := 31.5
	done := time.Date(2026, 10, 14, 8, 30, 0, 0, time.UTC)
	session := store.Session{
		SiteName:    "A現場",
		WorkerName:  "田中",
		Weather:     "晴れ",
		Temperature: &temp,
		CompletedAt: &done,
		WorkItems: []store.WorkItem{{
			WorkDescription:   "足場の組立",
			HazardDescription: "墜落",
			RiskLevel:         4,
			WhyDangerous:      []string{"手すりが未設置"},
			Countermeasures: []store.Countermeasure{
				{Category: store.CategoryEquipment, Text: "先行手すり"},
				{Category: store.CategoryPPE, Text: "安全帯"},
			},
		}},
		ActionGoal:       "足元確認ヨシ",
		NearMissReported: true,
		NearMissNote:     "脚立で滑った",
	}

	body := RenderKySummary(session)

	for _, want := range []string{
		"現場: A現場",
		"天候: 晴れ (31.5℃)",
		"完了: 2026-10-14 08:30",
		"■作業1: 足場の組立",
		"危険: 墜落 (危険度4)",
		"要因: 手すりが未設置",
		"対策[設備・環境]: 先行手すり",
		"対策[保護具]: 安全帯",
		"行動目標: 足元確認ヨシ",
		"ヒヤリハット: 脚立で滑った",
	} {
		assert.Contains(t, body, want)
	}
}

func TestNewKySummaryMessageHeaders(t *testing.T) {
	m := NewKySummaryMessage("ky@example.com", "KY", "boss@example.com", store.Session{SiteName: "A現場", WorkerName: "田中"})

	assert.Equal(t, []string{"boss@example.com"}, m.GetHeader("To"))
	subject, err := new(mime.WordDecoder).DecodeHeader(m.GetHeader("Subject")[0])
	require.NoError(t, err)
	assert.Equal(t, "【KY報告】A現場 田中", subject)
}
