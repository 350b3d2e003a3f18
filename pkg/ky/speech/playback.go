// Package speech tracks which message currently owns speech playback.
package speech

import "sync"

// Playback is an owner token: the last message to claim playback owns it,
// and only the owner can release it.
type Playback struct {
	mu    sync.Mutex
	owner string
}

// Claim makes messageID the speaker and returns the one it replaced.
func (p *Playback) Claim(messageID string) (previous string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	previous = p.owner
	p.owner = messageID
	return previous
}

// Release clears playback if messageID still owns it.
func (p *Playback) Release(messageID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.owner == "" || p.owner != messageID {
		return false
	}
	p.owner = ""
	return true
}

// Owner returns the current speaker, or "".
func (p *Playback) Owner() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.owner
}

// IsSpeaking reports whether messageID owns playback.
func (p *Playback) IsSpeaking(messageID string) bool {
	return messageID != "" && p.Owner() == messageID
}

// Registry keeps one Playback per session.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Playback
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Playback)}
}

func (r *Registry) For(sessionID string) *Playback {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.sessions[sessionID]
	if !ok {
		p = &Playback{}
		r.sessions[sessionID] = p
	}
	return p
}

func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}
