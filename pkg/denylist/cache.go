package denylist

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/user/remotevideo/pkg/ports"
)

// ModuleSource lists the modules a denylist is checked against.
type ModuleSource interface {
	LoadedModules() ([]ports.Module, error)
	SystemModule(name string) (ports.Module, bool)
}

// Cache memoizes the denylist verdict for one configuration string. Find and
// Clear are called from the control queue only; the mutex publishes the
// result to readers elsewhere.
type Cache struct {
	name   string
	source ModuleSource
	log    ports.Logger

	mu     sync.Mutex
	config string
	match  string
	scans  int
}

// NewCache creates an empty cache. name labels log lines.
func NewCache(name string, source ModuleSource, log ports.Logger) *Cache {
	return &Cache{name: name, source: source, log: log}
}

// Find returns the first denylisted module present in the process, formatted
// as "name (a.b.c.d)", or "" if none. An unchanged config returns the cached
// verdict. An empty config disables denylisting and resets the cache.
func (c *Cache) Find(config string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if config == "" {
		c.config = ""
		c.match = ""
		return ""
	}
	if config == c.config {
		return c.match
	}

	c.scans++
	c.config = config
	c.match = c.scan(config)
	if c.match != "" && c.log != nil {
		c.log.Info("Denylisted module found for %s: %s", c.name, c.match)
	}
	return c.match
}

// Matched returns the last verdict without scanning.
func (c *Cache) Matched() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.match
}

// Scans returns how many times modules have been scanned.
func (c *Cache) Scans() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scans
}

// Clear forgets the cached verdict.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = ""
	c.match = ""
}

func (c *Cache) scan(config string) string {
	entries := Parse(config, c.log)
	if len(entries) == 0 {
		return ""
	}

	loaded, err := c.source.LoadedModules()
	if err != nil && c.log != nil {
		c.log.Warn("Failed to list loaded modules: %v", err)
	}
	byName := make(map[string]ports.Module, len(loaded))
	for _, m := range loaded {
		key := moduleKey(m.Name)
		if _, dup := byName[key]; !dup {
			byName[key] = m
		}
	}

	for _, e := range entries {
		m, ok := byName[moduleKey(e.Module)]
		if !ok {
			m, ok = c.source.SystemModule(e.Module)
		}
		if !ok {
			continue
		}
		if e.Denies(m.Version) {
			return fmt.Sprintf("%s (%s)", e.Module, m.Version)
		}
	}
	return ""
}

func moduleKey(name string) string {
	return strings.ToLower(filepath.Base(name))
}
