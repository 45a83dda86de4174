package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ActiveWindow is how recently a session must have been seen to count
// as active.
const ActiveWindow = 5 * time.Minute

// TouchResult reports what a non-blocking touch found.
type TouchResult int

const (
	// Touched means the entry existed and its last-seen was updated.
	Touched TouchResult = iota
	// NoEntry means the user has no registry entry (not logged in here,
	// or pruned).
	NoEntry
	// Busy means the entry was locked by a concurrent touch; the update
	// was skipped rather than waited for.
	Busy
)

// UserSession is one user's registry entry.
type UserSession struct {
	UserID    uuid.UUID `json:"id"`
	Username  string    `json:"name"`
	LoginTime time.Time `json:"loginTime"`
	LastSeen  time.Time `json:"lastSeen"`
}

type entry struct {
	mu      sync.Mutex
	session UserSession
}

const shardCount = 32

type shard struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
}

// Registry is a sharded in-memory session map. Touch never blocks on a
// contended entry; it reports Busy instead so the request path stays
// non-blocking.
type Registry struct {
	shards [shardCount]*shard

	// now is swapped in tests to pin the clock.
	now func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{now: time.Now}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[uuid.UUID]*entry)}
	}
	return r
}

func (r *Registry) shardFor(id uuid.UUID) *shard {
	// First byte is random enough for spreading UUIDv4 keys.
	return r.shards[int(id[0])%shardCount]
}

// Add registers a fresh session at login, replacing any previous entry
// for the same user.
func (r *Registry) Add(userID uuid.UUID, username string) {
	now := r.now()
	s := r.shardFor(userID)
	s.mu.Lock()
	s.entries[userID] = &entry{session: UserSession{
		UserID:    userID,
		Username:  username,
		LoginTime: now,
		LastSeen:  now,
	}}
	s.mu.Unlock()
}

// Touch updates the user's last-seen time without blocking. A locked
// entry yields Busy and the stamp is skipped; the next request will
// land it.
func (r *Registry) Touch(userID uuid.UUID) TouchResult {
	s := r.shardFor(userID)
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if !ok {
		return NoEntry
	}

	if !e.mu.TryLock() {
		return Busy
	}
	e.session.LastSeen = r.now()
	e.mu.Unlock()
	return Touched
}

// Get returns a copy of the user's session, if present.
func (r *Registry) Get(userID uuid.UUID) (UserSession, bool) {
	s := r.shardFor(userID)
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if !ok {
		return UserSession{}, false
	}

	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	return session, true
}

// ListActive returns sessions seen within ActiveWindow, most recently
// seen first.
func (r *Registry) ListActive() []UserSession {
	cutoff := r.now().Add(-ActiveWindow)

	var active []UserSession
	for _, s := range r.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			e.mu.Lock()
			session := e.session
			e.mu.Unlock()
			if session.LastSeen.After(cutoff) {
				active = append(active, session)
			}
		}
		s.mu.RUnlock()
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].LastSeen.After(active[j].LastSeen)
	})
	return active
}

// ActiveCount returns how many sessions fall inside ActiveWindow.
func (r *Registry) ActiveCount() int {
	cutoff := r.now().Add(-ActiveWindow)

	count := 0
	for _, s := range r.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			e.mu.Lock()
			lastSeen := e.session.LastSeen
			e.mu.Unlock()
			if lastSeen.After(cutoff) {
				count++
			}
		}
		s.mu.RUnlock()
	}
	return count
}

// Prune drops entries idle longer than maxIdle and returns how many
// were removed. Run by the janitor; it does not affect the active view,
// which already filters by ActiveWindow.
func (r *Registry) Prune(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	removed := 0
	for _, s := range r.shards {
		s.mu.Lock()
		for id, e := range s.entries {
			e.mu.Lock()
			stale := e.session.LastSeen.Before(cutoff)
			e.mu.Unlock()
			if stale {
				delete(s.entries, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
