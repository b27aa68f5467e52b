package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TsutomuTakai/pp-case-api/internal/config"
)

// Listing responses are cached under a common prefix so a single
// mutation can invalidate every cached page/filter/sort combination.
const listingKeyPrefix = "cache:users:"

// Store caches serialized listing responses keyed by request path+query
type Store interface {
	GetListing(ctx context.Context, key string) ([]byte, bool)
	SetListing(ctx context.Context, key string, payload []byte) error
	InvalidateListings(ctx context.Context) error
	Close() error
}

// ListingKey builds the cache key for a listing request URI,
// including its full query string.
func ListingKey(requestURI string) string {
	return listingKeyPrefix + requestURI
}

type redisStore struct {
	client *redis.Client
	logger *slog.Logger
	cfg    *config.Config
}

// New creates a Redis-backed response cache
func New(cfg *config.Config, logger *slog.Logger) (Store, error) {
	logger.Info("🔌 [Cache] Connecting to Redis...",
		"host", cfg.RedisHost,
		"port", cfg.RedisPort,
		"db", cfg.RedisDatabase,
	)

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       int(cfg.RedisDatabase),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("✅ [Cache] Redis connection established")

	return &redisStore{
		client: client,
		logger: logger,
		cfg:    cfg,
	}, nil
}

// NewForTesting creates a Store with a provided redis.Client (for testing)
func NewForTesting(client *redis.Client, cfg *config.Config, logger *slog.Logger) Store {
	return &redisStore{
		client: client,
		logger: logger,
		cfg:    cfg,
	}
}

func (s *redisStore) GetListing(ctx context.Context, key string) ([]byte, bool) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// Treat a broken cache as a miss; the handler recomputes
			s.logger.Error("❌ [Cache] Failed to read cached listing", "key", key, "error", err)
		}
		return nil, false
	}

	s.logger.Debug("📖 [Cache] Listing cache hit", "key", key)
	return payload, true
}

func (s *redisStore) SetListing(ctx context.Context, key string, payload []byte) error {
	ttl := time.Duration(s.cfg.ListingCacheTTL) * time.Second

	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		s.logger.Error("❌ [Cache] Failed to store listing", "key", key, "error", err)
		return err
	}

	s.logger.Debug("💾 [Cache] Stored listing response", "key", key, "ttl", ttl)
	return nil
}

// InvalidateListings drops every cached listing response. Called after
// each successful mutation so reads never observe stale pages.
func (s *redisStore) InvalidateListings(ctx context.Context) error {
	var keys []string
	iter := s.client.Scan(ctx, 0, listingKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Error("❌ [Cache] Failed to scan listing keys", "error", err)
		return err
	}

	if len(keys) == 0 {
		return nil
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.logger.Error("❌ [Cache] Failed to invalidate listings", "error", err)
		return err
	}

	s.logger.Debug("🗑️ [Cache] Invalidated cached listings", "keys", len(keys))
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

// NoOpStore disables response caching. Used when Redis is unavailable.
type NoOpStore struct{}

// NewNoOpStore creates a cache store that never hits
func NewNoOpStore(logger *slog.Logger) Store {
	logger.Warn("⚠️ [Cache] Using no-op cache store - response caching is disabled")
	return &NoOpStore{}
}

func (s *NoOpStore) GetListing(ctx context.Context, key string) ([]byte, bool) {
	return nil, false
}

func (s *NoOpStore) SetListing(ctx context.Context, key string, payload []byte) error {
	return nil
}

func (s *NoOpStore) InvalidateListings(ctx context.Context) error {
	return nil
}

func (s *NoOpStore) Close() error {
	return nil
}
