package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// Cache is a content-addressed response cache backed by badger. Keys are
// derived from the model name and the full request payload, so a prompt
// repeated across pipeline re-runs is served without a provider call.
type Cache struct {
	db *badger.DB
}

// OpenCache opens (or creates) a cache database at dir.
func OpenCache(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache at %s: %w", dir, err)
	}
	return &Cache{db: db}, nil
}

// CacheKey derives the cache key for a request against a model.
func CacheKey(model, payload string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + payload))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached response for key, if present.
func (c *Cache) Get(key string) (string, bool, error) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get: %w", err)
	}
	return string(value), true, nil
}

// Put stores a response under key.
func (c *Cache) Put(key, value string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
