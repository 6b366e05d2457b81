// Package cache is a short-TTL in-process cache sitting in front of
// Storage lookups and computed message links, sparing a round-trip on the
// hot process_updates path. Values are gob-encoded into a freecache store
// behind an RWMutex; it holds Source rows and message-link strings.
package cache

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/coocood/freecache"
	"go.uber.org/zap"

	"github.com/aclr/agg-go/internal/models"
)

const (
	// SourceTTLSeconds is how long a resolved Source stays cached by
	// origin key before a fresh Storage.SearchSource is required.
	SourceTTLSeconds = 10 * 60
	// MessageLinkTTLSeconds is long because a computed message link never
	// changes once known.
	MessageLinkTTLSeconds = 60 * 60
)

var instance *Cache

type Cache struct {
	cache *freecache.Cache
	mu    sync.RWMutex
	log   *zap.Logger
}

func InitCache(log *zap.Logger) {
	log = log.Named("Cache")
	gob.Register(models.Source{})
	defer log.Sugar().Info("Initialized")
	instance = &Cache{cache: freecache.NewCache(32 * 1024 * 1024), log: log}
}

func GetCache() *Cache {
	return instance
}

func (c *Cache) GetSource(key string) (*models.Source, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := c.cache.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	var source models.Source
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&source); err != nil {
		return nil, err
	}
	return &source, nil
}

func (c *Cache) SetSource(key string, source models.Source, expireSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(source); err != nil {
		return err
	}
	return c.cache.Set([]byte(key), buf.Bytes(), expireSeconds)
}

func (c *Cache) GetMessageLink(key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := c.cache.Get([]byte(key))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Cache) SetMessageLink(key, link string, expireSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Set([]byte(key), []byte(link), expireSeconds)
}

func (c *Cache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Del([]byte(key))
	return nil
}
