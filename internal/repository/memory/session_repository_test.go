package memory

import (
	"testing"
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndGetAreIsolated(t *testing.T) {
	repo := NewSessionRepository(time.Hour)
	conv := store.Conversation{
		Session: store.Session{ID: "s1", WorkItems: []store.WorkItem{{WorkDescription: "足場"}}},
		Status:  store.StatusWorkItems,
	}
	repo.Save(conv)
	conv.Session.WorkItems[0].WorkDescription = "changed"

	got, ok := repo.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "足場", got.Session.WorkItems[0].WorkDescription)

	got.Session.WorkItems[0].WorkDescription = "changed again"
	again, _ := repo.Get("s1")
	assert.Equal(t, "足場", again.Session.WorkItems[0].WorkDescription)

	repo.Delete("s1")
	_, ok = repo.Get("s1")
	assert.False(t, ok)
	assert.Zero(t, repo.Count())
}

func TestExpiry(t *testing.T) {
	repo := NewSessionRepository(20 * time.Millisecond)
	repo.Save(store.Conversation{Session: store.Session{ID: "s1"}})

	assert.Eventually(t, func() bool {
		_, ok := repo.Get("s1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
