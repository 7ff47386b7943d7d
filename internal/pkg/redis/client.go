package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Client wraps a go-redis universal client plus a registry of named Lua
// scripts. Scripts are registered once at construction and run via EvalSha
// with an Eval fallback, which is the cheapest way to get atomic multi-key
// operations.
type Client struct {
	rdb redis.UniversalClient

	mu      sync.RWMutex
	scripts map[string]*redis.Script
}

// NewClient connects to the addresses in addrs (comma-separated). One address
// gives a single-node client, several give a cluster client.
func NewClient(addrs string) (*Client, error) {
	nodes := strings.Split(addrs, ",")
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: nodes})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping failed")
	}

	return &Client{rdb: rdb, scripts: make(map[string]*redis.Script)}, nil
}

// LoadScriptFromContent registers a named Lua script.
func (c *Client) LoadScriptFromContent(name, content string) error {
	if content == "" {
		return errors.Errorf("empty script content for %q", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[name] = redis.NewScript(content)
	return nil
}

// RunScript executes a previously registered script.
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("script %q not loaded", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// GetClient exposes the underlying client for plain commands.
func (c *Client) GetClient() redis.UniversalClient {
	return c.rdb
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
