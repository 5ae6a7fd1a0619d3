package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// SessionCache persists join credentials per agent so reconnecting
// clients land in the same room without re-provisioning. Entries are
// never expired by age; they are evicted only when the server rejects
// them.
type SessionCache struct {
	mu      sync.Mutex
	path    string
	entries map[string]JoinCredentials
}

// NewSessionCache loads (or starts) a cache backed by the JSON file at
// path. An empty path keeps the cache in memory only.
func NewSessionCache(path string) (*SessionCache, error) {
	c := &SessionCache{
		path:    path,
		entries: make(map[string]JoinCredentials),
	}
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session cache: %w", err)
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		// A corrupt cache is not fatal; start clean.
		c.entries = make(map[string]JoinCredentials)
	}
	return c, nil
}

// Get returns the cached credentials for an agent.
func (c *SessionCache) Get(agentID string) (JoinCredentials, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	creds, ok := c.entries[agentID]
	return creds, ok
}

// Put stores credentials and persists the cache.
func (c *SessionCache) Put(agentID string, creds JoinCredentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[agentID] = creds
	return c.persist()
}

// Delete evicts an agent's credentials and persists the cache.
func (c *SessionCache) Delete(agentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, agentID)
	return c.persist()
}

func (c *SessionCache) persist() error {
	if c.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session cache: %w", err)
	}
	return os.Rename(tmp, c.path)
}
