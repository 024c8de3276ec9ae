package solc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"dappforge/internal/logging"
)

const (
	ozPrefix     = "@openzeppelin/contracts/"
	ozRawBase    = "https://raw.githubusercontent.com/OpenZeppelin/openzeppelin-contracts"
	sourceTTL    = 24 * time.Hour
	fetchTimeout = 15 * time.Second
)

// SourceCache resolves OpenZeppelin import paths to source text, backed
// by Redis with an in-memory fallback when Redis is unavailable.
type SourceCache struct {
	rdb *redis.Client // nil when running memory-only
	tag string        // pinned OpenZeppelin release tag

	mu  sync.RWMutex
	mem map[string]string

	httpClient *http.Client
	// fetch is swappable in tests; defaults to fetchFromGitHub.
	fetch func(ctx context.Context, importPath string) (string, error)
}

// NewSourceCache creates a source cache pinned to one OpenZeppelin tag.
// redisURL may be empty; resolution then uses only the in-memory map.
func NewSourceCache(redisURL, ozTag string) *SourceCache {
	c := &SourceCache{
		tag:        ozTag,
		mem:        make(map[string]string),
		httpClient: &http.Client{Timeout: fetchTimeout},
	}
	c.fetch = c.fetchFromGitHub

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logging.S().Warnf("invalid redis url, using in-memory source cache: %v", err)
			return c
		}
		rdb := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logging.S().Warnf("redis unreachable, using in-memory source cache: %v", err)
			_ = rdb.Close()
			return c
		}
		c.rdb = rdb
	}
	return c
}

// Resolve returns the source for one @openzeppelin import path.
func (c *SourceCache) Resolve(ctx context.Context, importPath string) (string, error) {
	if !strings.HasPrefix(importPath, ozPrefix) {
		return "", fmt.Errorf("unresolvable import %q: only %s imports are supported", importPath, ozPrefix)
	}

	key := fmt.Sprintf("oz:%s:%s", c.tag, importPath)

	c.mu.RLock()
	src, ok := c.mem[key]
	c.mu.RUnlock()
	if ok {
		return src, nil
	}

	if c.rdb != nil {
		if src, err := c.rdb.Get(ctx, key).Result(); err == nil {
			c.remember(key, src)
			return src, nil
		}
	}

	src, err := c.fetch(ctx, importPath)
	if err != nil {
		return "", err
	}

	c.remember(key, src)
	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, src, sourceTTL).Err(); err != nil {
			logging.S().Warnf("failed to cache %s in redis: %v", importPath, err)
		}
	}
	return src, nil
}

func (c *SourceCache) remember(key, src string) {
	c.mu.Lock()
	c.mem[key] = src
	c.mu.Unlock()
}

func (c *SourceCache) fetchFromGitHub(ctx context.Context, importPath string) (string, error) {
	rel := strings.TrimPrefix(importPath, ozPrefix)
	url := fmt.Sprintf("%s/%s/contracts/%s", ozRawBase, c.tag, rel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", importPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s: status %d", importPath, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Close releases the Redis connection if one is held.
func (c *SourceCache) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}
