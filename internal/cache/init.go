package cache

import (
	"github.com/meterline/meterline/internal/config"
	"github.com/meterline/meterline/internal/logger"
	redisClient "github.com/meterline/meterline/internal/redis"
)

// CacheType represents the type of cache to use
type CacheType string

const (
	// CacheTypeInMemory represents an in-memory cache
	CacheTypeInMemory CacheType = "inmemory"

	// CacheTypeRedis represents a Redis-backed cache
	CacheTypeRedis CacheType = "redis"
)

// Initialize initializes the cache system based on the configured type.
// Redis requires a connected client; in-memory is the fallback.
func Initialize(cfg *config.Configuration, client *redisClient.Client, log *logger.Logger) Cache {
	log.Infow("initializing cache system", "type", cfg.Cache.Type)

	var cache Cache

	switch CacheType(cfg.Cache.Type) {
	case CacheTypeRedis:
		InitializeRedisCache(client, log, cfg)
		cache = GetRedisCache()
	case CacheTypeInMemory:
		fallthrough
	default:
		InitializeInMemoryCache()
		cache = GetInMemoryCache()
	}

	log.Infow("cache system initialized", "type", cfg.Cache.Type)
	return cache
}
