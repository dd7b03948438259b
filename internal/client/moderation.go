package client

import (
	"sort"
	"sync"
)

// ModerationState is the streamer's mirror of the hub ban list. Every
// broadcast snapshot replaces the mirror wholesale, which makes applying the
// same snapshot twice a no-op.
type ModerationState struct {
	mu     sync.RWMutex
	banned map[string]struct{}
}

func NewModerationState() *ModerationState {
	return &ModerationState{banned: make(map[string]struct{})}
}

// ApplyBanSnapshot replaces the mirror with the announced ban list.
func (m *ModerationState) ApplyBanSnapshot(identities []string) {
	next := make(map[string]struct{}, len(identities))
	for _, id := range identities {
		next[id] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.banned = next
}

// IsBanned reports whether the identity appears in the mirrored ban list.
func (m *ModerationState) IsBanned(username string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.banned[username]
	return ok
}

// Identities returns the mirrored ban list, sorted for stable display.
func (m *ModerationState) Identities() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.banned))
	for id := range m.banned {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
