package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"etfscraper/internal/provider"
)

// MemoryStore is an in-process LRU whose entries expire after a fixed TTL.
type MemoryStore struct {
	lru *expirable.LRU[string, *provider.Page]
}

// NewMemoryStore holds at most maxItems pages for ttl each.
func NewMemoryStore(maxItems int, ttl time.Duration) *MemoryStore {
	if maxItems <= 0 {
		maxItems = 256
	}
	return &MemoryStore{lru: expirable.NewLRU[string, *provider.Page](maxItems, nil, ttl)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*provider.Page, bool, error) {
	p, ok := m.lru.Get(key)
	return p, ok, nil
}

// Set stores page; the TTL given at construction applies.
func (m *MemoryStore) Set(_ context.Context, key string, page *provider.Page, _ time.Duration) error {
	m.lru.Add(key, page)
	return nil
}

// Len is the number of live entries.
func (m *MemoryStore) Len() int { return m.lru.Len() }

// RedisStore keeps pages as JSON in Redis so several runs can share them.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) (*provider.Page, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var p provider.Page
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, false, fmt.Errorf("decoding cached page: %w", err)
	}
	return &p, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, page *provider.Page, ttl time.Duration) error {
	b, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("encoding page: %w", err)
	}
	if err := r.client.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
