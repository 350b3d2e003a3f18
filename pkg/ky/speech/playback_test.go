package speech

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLastClaimWins(t *testing.T) {
	var p Playback

	assert.Equal(t, "", p.Claim("m1"))
	assert.Equal(t, "m1", p.Claim("m2"))
	assert.True(t, p.IsSpeaking("m2"))
	assert.False(t, p.IsSpeaking("m1"))

	assert.False(t, p.Release("m1"), "stale owner cannot release")
	assert.Equal(t, "m2", p.Owner())

	assert.True(t, p.Release("m2"))
	assert.Equal(t, "", p.Owner())
	assert.False(t, p.Release("m2"))
	assert.False(t, p.IsSpeaking(""))
}

func TestConcurrentClaimsResolveToOneOwner(t *testing.T) {
	var p Playback
	var wg sync.WaitGroup
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			p.Claim(id)
			p.Release("nobody")
		}(id)
	}
	wg.Wait()
	assert.Contains(t, ids, p.Owner())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.For("s1").Claim("m1")

	assert.Same(t, r.For("s1"), r.For("s1"))
	assert.Equal(t, "m1", r.For("s1").Owner())
	assert.Equal(t, "", r.For("s2").Owner())

	r.Forget("s1")
	assert.Equal(t, "", r.For("s1").Owner())
}
