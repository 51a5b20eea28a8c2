package cache

import (
	"fmt"
	"path/filepath"

	"imagegen/config"
)

// Open builds the Store selected by cfg.Backend. An empty dataDir falls back
// to the IMAGEGEN_DATA_DIR location.
func Open(cfg config.CacheConfig, dataDir string) (Store, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemoryStore(cfg.MaxEntries, cfg.TTL), nil
	case "redis":
		return NewRedisStore(cfg.RedisURL, cfg.TTL, cfg.KeyPrefix)
	case "pebble":
		path := config.GetCacheDBPath()
		if dataDir != "" {
			path = filepath.Join(dataDir, "cache.db")
		}
		return OpenPebbleStore(path, cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}
