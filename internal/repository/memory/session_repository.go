package memory

import (
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"

	"github.com/patrickmn/go-cache"
)

// SessionRepository holds live conversations until they complete or expire.
// Values are cloned on the way in and out.
type SessionRepository struct {
	cache *cache.Cache
}

func NewSessionRepository(ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SessionRepository{
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func (r *SessionRepository) Save(conv store.Conversation) {
	r.cache.Set(conv.Session.ID, conv.Clone(), cache.DefaultExpiration)
}

func (r *SessionRepository) Get(sessionID string) (store.Conversation, bool) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(store.Conversation).Clone(), true
	}
	return store.Conversation{}, false
}

func (r *SessionRepository) Delete(sessionID string) {
	r.cache.Delete(sessionID)
}

func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}
