package permissions

import (
	"sync"
	"time"
)

// RoleCache caches role permission sets with a fixed TTL. It is
// process-local and advisory only: a stale entry can at worst grant for
// the staleness window, never deny, because denials re-check the store.
// The clock is injected so tests can step time.
type RoleCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]roleEntry
}

type roleEntry struct {
	permissions map[string]struct{}
	expiresAt   time.Time
}

func NewRoleCache(ttl time.Duration, now func() time.Time) *RoleCache {
	if now == nil {
		now = time.Now
	}
	return &RoleCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]roleEntry),
	}
}

// Get returns the cached permission set for a role, or nil on a miss or
// expiry.
func (c *RoleCache) Get(roleID string) map[string]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[roleID]
	if !ok {
		return nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, roleID)
		return nil
	}
	return entry.permissions
}

// Set repopulates the cache for a role.
func (c *RoleCache) Set(roleID string, permissions []string) {
	set := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		set[p] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[roleID] = roleEntry{
		permissions: set,
		expiresAt:   c.now().Add(c.ttl),
	}
}

// Invalidate drops a role's cached entry, forcing the next lookup to hit
// the store.
func (c *RoleCache) Invalidate(roleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, roleID)
}
