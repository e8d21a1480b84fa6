package client

import "sync"

// Profile is the slice of a user record chat lists render.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// ProfileCache memoizes peer profiles so rendering a chat list does not
// refetch the same user per conversation. It is an explicit, injected object
// with explicit invalidation; entries are snapshots, possibly stale until
// cleared.
type ProfileCache struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewProfileCache() *ProfileCache {
	return &ProfileCache{profiles: make(map[string]Profile)}
}

func (c *ProfileCache) Get(userID string) (Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[userID]
	return p, ok
}

func (c *ProfileCache) Put(p Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[p.ID] = p
}

// Clear drops one entry, e.g. after a profile edit.
func (c *ProfileCache) Clear(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.profiles, userID)
}

// ClearAll drops everything, e.g. on logout.
func (c *ProfileCache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles = make(map[string]Profile)
}

func (c *ProfileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.profiles)
}
