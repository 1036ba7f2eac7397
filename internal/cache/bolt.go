package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketResponses = []byte("responses")

// expiryHeaderLen prefixes each stored value with its expiry in unix nanoseconds.
const expiryHeaderLen = 8

// BoltCache implements Cache on a local bbolt file. Useful for a single
// instance that should keep its cache across restarts.
type BoltCache struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenBoltCache opens (or creates) the cache database at path.
// Parent directories are created automatically.
func OpenBoltCache(path string) (*BoltCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("bolt cache: create directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt cache: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketResponses)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt cache: create bucket: %w", err)
	}
	return &BoltCache{db: db, now: time.Now}, nil
}

// Get implements Cache.Get. Expired entries are deleted on access.
func (c *BoltCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	var (
		value   []byte
		expired bool
	)
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketResponses).Get([]byte(key))
		if raw == nil {
			return nil
		}
		if len(raw) < expiryHeaderLen {
			expired = true
			return nil
		}
		expiresAt := time.Unix(0, int64(binary.BigEndian.Uint64(raw[:expiryHeaderLen])))
		if !c.now().Before(expiresAt) {
			expired = true
			return nil
		}
		// raw is only valid inside the transaction.
		value = append([]byte(nil), raw[expiryHeaderLen:]...)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("bolt cache: get: %w", err)
	}
	if expired {
		if err := c.delete(key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return value, value != nil, nil
}

// Set implements Cache.Set.
func (c *BoltCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw := make([]byte, expiryHeaderLen+len(value))
	binary.BigEndian.PutUint64(raw[:expiryHeaderLen], uint64(c.now().Add(ttl).UnixNano()))
	copy(raw[expiryHeaderLen:], value)
	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResponses).Put([]byte(key), raw)
	})
	if err != nil {
		return fmt.Errorf("bolt cache: set: %w", err)
	}
	return nil
}

func (c *BoltCache) delete(key string) error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResponses).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("bolt cache: delete: %w", err)
	}
	return nil
}

// Sweep removes every expired entry and returns how many were removed.
func (c *BoltCache) Sweep() (int, error) {
	now := c.now()
	var removed int
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResponses)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if len(v) < expiryHeaderLen || !now.Before(time.Unix(0, int64(binary.BigEndian.Uint64(v[:expiryHeaderLen])))) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(expired)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bolt cache: sweep: %w", err)
	}
	return removed, nil
}

// Ping reports whether the database is open.
func (c *BoltCache) Ping() error {
	return c.db.View(func(tx *bolt.Tx) error { return nil })
}

// Close closes the database.
func (c *BoltCache) Close() error {
	return c.db.Close()
}
