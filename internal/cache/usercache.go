package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/authcore/authcore/internal/autherrors"
	"github.com/authcore/authcore/internal/models"
	"github.com/authcore/authcore/internal/repository"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

// Key namespace. Secondary entries map an alternate key to the user id;
// the full record lives only under the id key, so there is exactly one
// writable copy of each user's cached data.
const (
	keyPrefix      = "user:"
	idKeyPrefix    = keyPrefix + "id:"
	emailKeyPrefix = keyPrefix + "email:"
	nameKeyPrefix  = keyPrefix + "username:"
	phoneKeyPrefix = keyPrefix + "phone:"
)

const (
	dbRetryDelay = 100 * time.Millisecond
	dbRetryMax   = 2
)

// CacheStats is a point-in-time snapshot of cache effectiveness counters.
type CacheStats struct {
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	Invalidations  int64   `json:"invalidations"`
	TotalLookups   int64   `json:"total_lookups"`
	HitRatePercent float64 `json:"hit_rate_percent"`
}

// UserCache is a read-through, multi-key cache for user records. Lookups by
// id, email, username, and phone all resolve to the same id-keyed entry.
// Cache failures are absorbed and logged; the datastore is always the
// source of truth.
type UserCache struct {
	backend Backend
	users   repository.UserRepository
	ttl     time.Duration
	logger  *logrus.Logger

	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
}

func NewUserCache(backend Backend, users repository.UserRepository, ttl time.Duration, logger *logrus.Logger) *UserCache {
	return &UserCache{
		backend: backend,
		users:   users,
		ttl:     ttl,
		logger:  logger,
	}
}

func idKey(id int64) string {
	return idKeyPrefix + strconv.FormatInt(id, 10)
}

func emailKey(email string) string {
	return emailKeyPrefix + strings.ToLower(email)
}

func usernameKey(username string) string {
	return nameKeyPrefix + strings.ToLower(username)
}

func phoneKey(phone string) string {
	return phoneKeyPrefix + phone
}

// GetByID returns the cached record for id, falling through to the
// datastore on miss or cache failure.
func (c *UserCache) GetByID(ctx context.Context, id int64) (*models.CachedUser, error) {
	if user := c.lookupRecord(ctx, idKey(id)); user != nil {
		c.hits.Add(1)
		return user, nil
	}
	c.misses.Add(1)

	return c.fetchAndPopulate(ctx, func(ctx context.Context) (*models.User, error) {
		return c.users.GetByID(ctx, id)
	})
}

func (c *UserCache) GetByEmail(ctx context.Context, email string) (*models.CachedUser, error) {
	return c.getBySecondary(ctx, emailKey(email), func(ctx context.Context) (*models.User, error) {
		return c.users.GetByEmail(ctx, email)
	})
}

func (c *UserCache) GetByUsername(ctx context.Context, username string) (*models.CachedUser, error) {
	return c.getBySecondary(ctx, usernameKey(username), func(ctx context.Context) (*models.User, error) {
		return c.users.GetByUsername(ctx, username)
	})
}

func (c *UserCache) GetByPhone(ctx context.Context, phone string) (*models.CachedUser, error) {
	return c.getBySecondary(ctx, phoneKey(phone), func(ctx context.Context) (*models.User, error) {
		return c.users.GetByPhone(ctx, phone)
	})
}

// getBySecondary performs the two-hop lookup: index entry resolves to the
// user id, then the id entry holds the record. Either hop missing counts
// as a single miss and falls through to the datastore.
func (c *UserCache) getBySecondary(ctx context.Context, indexKey string, fetch func(context.Context) (*models.User, error)) (*models.CachedUser, error) {
	if raw := c.lookupRaw(ctx, indexKey); raw != nil {
		if id, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			if user := c.lookupRecord(ctx, idKey(id)); user != nil {
				c.hits.Add(1)
				return user, nil
			}
		} else {
			c.logger.WithField("key", indexKey).Warn("Malformed cache index entry, treating as miss")
		}
	}
	c.misses.Add(1)

	return c.fetchAndPopulate(ctx, fetch)
}

// lookupRaw reads a key, absorbing every cache failure as a miss.
func (c *UserCache) lookupRaw(ctx context.Context, key string) []byte {
	value, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, autherrors.ErrCacheMiss) {
			c.logger.WithError(err).WithField("key", key).Warn("Cache read failed, degrading to datastore")
		}
		return nil
	}
	return value
}

func (c *UserCache) lookupRecord(ctx context.Context, key string) *models.CachedUser {
	raw := c.lookupRaw(ctx, key)
	if raw == nil {
		return nil
	}
	user := &models.CachedUser{}
	if err := json.Unmarshal(raw, user); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Corrupt cache entry, treating as miss")
		return nil
	}
	return user
}

// fetchAndPopulate queries the datastore (bounded constant-delay retry,
// reads are idempotent) and, when the user exists, populates the id entry
// plus every non-empty secondary index entry. Negative results are never
// cached.
func (c *UserCache) fetchAndPopulate(ctx context.Context, fetch func(context.Context) (*models.User, error)) (*models.CachedUser, error) {
	var user *models.User
	backoff := retry.WithMaxRetries(dbRetryMax, retry.NewConstant(dbRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var fetchErr error
		user, fetchErr = fetch(ctx)
		if fetchErr == nil || errors.Is(fetchErr, repository.ErrNotFound) {
			return fetchErr
		}
		return retry.RetryableError(fetchErr)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, autherrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}

	c.populate(ctx, user)
	return user.Public(), nil
}

func (c *UserCache) populate(ctx context.Context, user *models.User) {
	payload, err := json.Marshal(user.Public())
	if err != nil {
		c.logger.WithError(err).Error("Failed to serialize user for cache")
		return
	}

	c.setQuietly(ctx, idKey(user.ID), payload)

	id := []byte(strconv.FormatInt(user.ID, 10))
	if user.Email != "" {
		c.setQuietly(ctx, emailKey(user.Email), id)
	}
	if user.Username != "" {
		c.setQuietly(ctx, usernameKey(user.Username), id)
	}
	if user.Phone != "" {
		c.setQuietly(ctx, phoneKey(user.Phone), id)
	}
}

func (c *UserCache) setQuietly(ctx context.Context, key string, value []byte) {
	if err := c.backend.Set(ctx, key, value, c.ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
}

// Invalidate removes the id entry and whichever secondary keys the caller
// supplies. Callers must pass every secondary key they know about at the
// time of the mutation; anything omitted ages out via TTL.
func (c *UserCache) Invalidate(ctx context.Context, id int64, email, username, phone string) {
	keys := []string{idKey(id)}
	if email != "" {
		keys = append(keys, emailKey(email))
	}
	if username != "" {
		keys = append(keys, usernameKey(username))
	}
	if phone != "" {
		keys = append(keys, phoneKey(phone))
	}

	if err := c.backend.Delete(ctx, keys...); err != nil {
		c.logger.WithError(err).WithField("user_id", id).Warn("Cache invalidation failed")
	}
	c.invalidations.Add(1)
}

// InvalidateAll drops every cached user entry. Reserved for migrations and
// admin operations, not the request-serving path.
func (c *UserCache) InvalidateAll(ctx context.Context) error {
	if err := c.backend.DeletePrefix(ctx, keyPrefix); err != nil {
		c.logger.WithError(err).Error("Bulk cache invalidation failed")
		return err
	}
	c.invalidations.Add(1)
	return nil
}

// Stats returns a snapshot of the cache counters.
func (c *UserCache) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	var rate float64
	if total > 0 {
		rate = float64(hits) / float64(total) * 100
	}

	return CacheStats{
		Hits:           hits,
		Misses:         misses,
		Invalidations:  c.invalidations.Load(),
		TotalLookups:   total,
		HitRatePercent: rate,
	}
}
