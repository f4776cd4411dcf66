// Package cache holds per-(project,user) access decisions for a short
// window so bursts of calls for the same pair skip re-deriving permission
// data. Only the boolean decision is cached, never the project document.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL is how long a cached decision stays valid.
const DefaultTTL = 5 * time.Minute

// AccessCache stores access decisions keyed by (projectID, userID).
type AccessCache interface {
	// Get returns the cached decision and whether a fresh entry exists.
	Get(projectID, userID string) (hasAccess bool, ok bool)
	Set(projectID, userID string, hasAccess bool)
	Delete(projectID, userID string)
	// InvalidateProject drops every cached decision for a project,
	// regardless of user.
	InvalidateProject(projectID string)
}

type entry struct {
	at        time.Time
	hasAccess bool
}

type key struct {
	projectID string
	userID    string
}

// Memory is a process-local AccessCache. Entries expire lazily: an expired
// entry is removed on the next Get of that exact key, there is no
// background sweep.
type Memory struct {
	TTL time.Duration
	Now func() time.Time

	mu      sync.Mutex
	entries map[key]entry
}

// NewMemory returns a Memory cache with the given TTL (DefaultTTL if zero).
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		TTL:     ttl,
		Now:     time.Now,
		entries: map[key]entry{},
	}
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Memory) Get(projectID, userID string) (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{projectID, userID}
	e, ok := m.entries[k]
	if !ok {
		return false, false
	}
	if m.now().Sub(e.at) > m.TTL {
		delete(m.entries, k)
		return false, false
	}
	return e.hasAccess, true
}

func (m *Memory) Set(projectID, userID string, hasAccess bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key{projectID, userID}] = entry{at: m.now(), hasAccess: hasAccess}
}

func (m *Memory) Delete(projectID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key{projectID, userID})
}

func (m *Memory) InvalidateProject(projectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if k.projectID == projectID {
			delete(m.entries, k)
		}
	}
}

// Disabled is an AccessCache that never stores anything. Useful in tests
// that need every call to re-derive permissions.
type Disabled struct{}

func (Disabled) Get(string, string) (bool, bool) { return false, false }
func (Disabled) Set(string, string, bool)        {}
func (Disabled) Delete(string, string)           {}
func (Disabled) InvalidateProject(string)        {}
