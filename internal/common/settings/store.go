// Package settings resolves the webhook URL configured for a logical channel.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "leadgen-workers/internal/common/errors"
	"leadgen-workers/internal/common/logger"
)

// Well-known channels.
const (
	ChannelGlobal            = "global"
	ChannelChat              = "chat"
	ChannelEmailVerification = "email-verification"
	ChannelPersonalization   = "personalization"
)

const (
	DefaultCacheTTL = 5 * time.Minute
	cacheKeyPrefix  = "webhook:url:"
)

// Store returns the URL for a channel, falling back to the global channel.
// An empty string with a nil error means nothing is configured.
type Store interface {
	GetURL(ctx context.Context, channel string) (string, error)
}

// candidates lists the channels consulted for a lookup, most specific first.
func candidates(channel string) []string {
	channel = strings.TrimSpace(channel)
	if channel == "" || channel == ChannelGlobal {
		return []string{ChannelGlobal}
	}
	return []string{channel, ChannelGlobal}
}

// StaticStore serves URLs from configuration.
type StaticStore struct {
	urls map[string]string
}

func NewStaticStore(urls map[string]string) *StaticStore {
	copied := make(map[string]string, len(urls))
	for k, v := range urls {
		copied[strings.ToLower(k)] = strings.TrimSpace(v)
	}
	return &StaticStore{urls: copied}
}

func (s *StaticStore) GetURL(_ context.Context, channel string) (string, error) {
	for _, c := range candidates(strings.ToLower(channel)) {
		if u := s.urls[c]; u != "" {
			return u, nil
		}
	}
	return "", nil
}

// PostgresStore reads the webhook_settings table through a Redis cache.
// A nil cache disables caching.
type PostgresStore struct {
	db     *sql.DB
	cache  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewPostgresStore(db *sql.DB, cache redis.Cmdable, ttl time.Duration, log logger.Logger) *PostgresStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &PostgresStore{db: db, cache: cache, ttl: ttl, logger: log}
}

func CacheKey(channel string) string {
	return cacheKeyPrefix + channel
}

func (s *PostgresStore) GetURL(ctx context.Context, channel string) (string, error) {
	for _, c := range candidates(channel) {
		u, err := s.lookup(ctx, c)
		if err != nil {
			return "", apperrors.NewSettingsLookupError(c, err)
		}
		if u != "" {
			return u, nil
		}
	}
	return "", nil
}

func (s *PostgresStore) lookup(ctx context.Context, channel string) (string, error) {
	key := CacheKey(channel)
	if s.cache != nil {
		if val, err := s.cache.Get(ctx, key).Result(); err == nil && val != "" {
			return val, nil
		} else if err != nil && !errors.Is(err, redis.Nil) {
			s.logger.Debug("settings cache read failed", map[string]interface{}{
				"channel": channel,
				"error":   err.Error(),
			})
		}
	}

	var u string
	query := `SELECT url FROM webhook_settings WHERE channel = $1`
	err := s.db.QueryRowContext(ctx, query, channel).Scan(&u)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("query webhook_settings: %w", err)
	}
	u = strings.TrimSpace(u)

	if s.cache != nil && u != "" {
		if err := s.cache.Set(ctx, key, u, s.ttl).Err(); err != nil {
			s.logger.Debug("settings cache write failed", map[string]interface{}{
				"channel": channel,
				"error":   err.Error(),
			})
		}
	}
	return u, nil
}

// SetURL upserts a channel's URL and drops its cache entry.
func (s *PostgresStore) SetURL(ctx context.Context, channel, rawURL string) error {
	query := `INSERT INTO webhook_settings (channel, url, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (channel) DO UPDATE SET url = EXCLUDED.url, updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, query, channel, rawURL); err != nil {
		return apperrors.NewSettingsLookupError(channel, err)
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, CacheKey(channel)).Err(); err != nil {
			s.logger.Warn("settings cache invalidation failed", map[string]interface{}{
				"channel": channel,
				"error":   err.Error(),
			})
		}
	}
	return nil
}
