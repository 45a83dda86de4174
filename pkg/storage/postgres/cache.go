package postgres

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"

	"github.com/quillforum/quill/pkg/observability"
	"github.com/quillforum/quill/pkg/storage"
)

// CachedUserStore wraps a UserStore with an in-process LRU over public
// profile lookups, the hottest read path. Entries expire after ttl so
// post counts and ban flags never lag far behind.
type CachedUserStore struct {
	storage.UserStore

	cache   *lru.Cache[uuid.UUID, cachedProfile]
	ttl     time.Duration
	metrics *observability.Metrics
}

type cachedProfile struct {
	profile  *storage.PublicUser
	cachedAt time.Time
}

// NewCachedUserStore creates the caching decorator. A nil metrics
// handle disables instrumentation.
func NewCachedUserStore(inner storage.UserStore, size int, ttl time.Duration, metrics *observability.Metrics) (*CachedUserStore, error) {
	cache, err := lru.New[uuid.UUID, cachedProfile](size)
	if err != nil {
		return nil, err
	}
	return &CachedUserStore{
		UserStore: inner,
		cache:     cache,
		ttl:       ttl,
		metrics:   metrics,
	}, nil
}

// PublicProfile serves from the cache when fresh, falling through to
// the database otherwise.
func (c *CachedUserStore) PublicProfile(ctx context.Context, id uuid.UUID) (*storage.PublicUser, error) {
	if entry, ok := c.cache.Get(id); ok && time.Since(entry.cachedAt) < c.ttl {
		c.hit()
		return entry.profile, nil
	}
	c.miss()

	profile, err := c.UserStore.PublicProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, cachedProfile{profile: profile, cachedAt: time.Now()})
	return profile, nil
}

// UpdateProfile invalidates the cached card on success.
func (c *CachedUserStore) UpdateProfile(ctx context.Context, id uuid.UUID, up storage.ProfileUpdate) error {
	if err := c.UserStore.UpdateProfile(ctx, id, up); err != nil {
		return err
	}
	c.cache.Remove(id)
	return nil
}

// WarnUser invalidates the cached card because the ban flag may change.
func (c *CachedUserStore) WarnUser(ctx context.Context, userID uuid.UUID, comment *string, warnedBy uuid.UUID, banDays *int) error {
	if err := c.UserStore.WarnUser(ctx, userID, comment, warnedBy, banDays); err != nil {
		return err
	}
	c.cache.Remove(userID)
	return nil
}

// UnbanUser invalidates the cached card.
func (c *CachedUserStore) UnbanUser(ctx context.Context, userID uuid.UUID) error {
	if err := c.UserStore.UnbanUser(ctx, userID); err != nil {
		return err
	}
	c.cache.Remove(userID)
	return nil
}

func (c *CachedUserStore) hit() {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues("public_profile").Inc()
	}
}

func (c *CachedUserStore) miss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues("public_profile").Inc()
	}
}
