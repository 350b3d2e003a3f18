package mapper

import (
	"testing"
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromConversationSnapshotsTheSession(t *testing.T) {
	m := NewKySessionMapper()
	done := time.Date(2026, 10, 14, 8, 30, 0, 0, time.UTC)
	conv := store.Conversation{
		Session: store.Session{
			ID:          "b3c1a7f2-0000-4000-8000-000000000001",
			SiteName:    "A現場",
			WorkItems:   []store.WorkItem{{WorkDescription: "足場", WhyDangerous: []string{"高所"}}},
			CompletedAt: &done,
		},
		Messages: []store.ChatMessage{{Role: store.RoleUser, Content: "足場"}},
		Status:   store.StatusCompleted,
	}

	e := m.FromConversation(conv)
	conv.Session.WorkItems[0].WhyDangerous[0] = "changed"

	assert.Equal(t, done, e.CompletedAt)
	assert.Equal(t, "高所", e.WorkItems[0].WhyDangerous[0])
	require.Len(t, e.Transcript, 1)

	back := m.ToSession(m.ToEntity(m.ToModel(e)))
	assert.Equal(t, "A現場", back.SiteName)
	require.NotNil(t, back.CompletedAt)
	assert.Equal(t, done, *back.CompletedAt)
}

func TestToModelNeverStoresNullWorkItems(t *testing.T) {
	m := NewKySessionMapper()
	out := m.ToModel(m.FromConversation(store.Conversation{Session: store.Session{ID: "x"}}))
	assert.NotNil(t, out.WorkItems)
}
