package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache stores finished translations keyed by Key(target, text).
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

const keyPrefix = "bilingo:tr:"

// Key derives the cache key for a text translated into target.
func Key(target, text string) string {
	sum := sha256.Sum256([]byte(target + "\x00" + text))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// DefaultMaxEntries bounds a Memory cache built with a non-positive size.
const DefaultMaxEntries = 10000

// Memory is a process-local LRU cache. Entries expire after ttl when
// ttl > 0, and the least recently used entry is evicted once size is reached.
type Memory struct {
	lru *expirable.LRU[string, string]
}

func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = DefaultMaxEntries
	}
	return &Memory{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	value, ok := m.lru.Get(key)
	return value, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.lru.Add(key, value)
	return nil
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	return m.lru.Len()
}

func (m *Memory) Close() error {
	m.lru.Purge()
	return nil
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (Nop) Set(context.Context, string, string) error         { return nil }
func (Nop) Close() error                                      { return nil }
