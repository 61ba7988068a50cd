package screener

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Cache persists screening results as JSON files so a restart between
// rebalances does not force a full re-screen.
type Cache struct {
	dir string
	log zerolog.Logger
}

type cacheEnvelope struct {
	SavedAt time.Time       `json:"saved_at"`
	Payload json.RawMessage `json:"payload"`
}

func NewCache(dir string, log zerolog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir, log: log}, nil
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func (c *Cache) Set(key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache marshal failed")
		return
	}
	env := cacheEnvelope{SavedAt: time.Now().UTC(), Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache marshal failed")
		return
	}
	if err := os.WriteFile(c.path(key), data, 0o644); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// Get loads a cached value no older than maxAge into out. Returns false on
// miss, decode failure or expiry.
func (c *Cache) Get(key string, maxAge time.Duration, out any) bool {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return false
	}
	var env cacheEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache decode failed, ignoring entry")
		return false
	}
	if time.Since(env.SavedAt) > maxAge {
		return false
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache payload decode failed")
		return false
	}
	return true
}

// Clear removes all cache files and returns how many were deleted.
func (c *Cache) Clear() int {
	entries, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return 0
	}
	removed := 0
	for _, path := range entries {
		if os.Remove(path) == nil {
			removed++
		}
	}
	return removed
}
