// Package logtest provides an in-memory logrus hook for asserting on log
// output in tests, adapted from k6's tests.LogCache
// (tests/logrus_hook.go), trimmed to what this repo's own tests need.
package logtest

import (
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Cache implements logrus.Hook, recording every fired entry so tests can
// assert on log output without parsing stdout/stderr.
type Cache struct {
	HookedLevels []logrus.Level
	mutex        sync.RWMutex
	entries      []logrus.Entry
}

func (c *Cache) Levels() []logrus.Level {
	return c.HookedLevels
}

func (c *Cache) Fire(e *logrus.Entry) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = append(c.entries, *e)
	return nil
}

// Drain returns every cached entry and clears the cache.
func (c *Cache) Drain() []logrus.Entry {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	out := c.entries
	c.entries = nil
	return out
}

// Contains reports whether any cached entry's message contains msg.
func (c *Cache) Contains(msg string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	for _, e := range c.entries {
		if strings.Contains(e.Message, msg) {
			return true
		}
	}
	return false
}

var _ logrus.Hook = &Cache{}

// Attach sets logger to DebugLevel, attaches a Cache hook discarding the
// real output, and returns the hook.
func Attach(logger *logrus.Logger) *Cache {
	c := &Cache{HookedLevels: []logrus.Level{
		logrus.DebugLevel, logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel,
	}}
	logger.SetLevel(logrus.DebugLevel)
	logger.AddHook(c)
	logger.SetOutput(io.Discard)
	return c
}
