package iana

import (
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	bucketBodies = []byte("bodies")
	bucketEtags  = []byte("etags")
)

// Cache persists fetched registry documents and their validators between
// runs, so a fresh process can compile delegation tables before its first
// successful fetch and revalidate with If-None-Match afterwards.
type Cache struct {
	db *bbolt.DB
}

// OpenCache opens or creates the cache file.
func OpenCache(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bootstrap cache: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketBodies, bucketEtags} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare bootstrap cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Get returns the cached document and validator for a registry file, a nil
// body when absent.
func (c *Cache) Get(name string) (body []byte, etag string, err error) {
	err = c.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketBodies).Get([]byte(name)); v != nil {
			body = append([]byte(nil), v...)
		}
		if v := tx.Bucket(bucketEtags).Get([]byte(name)); v != nil {
			etag = string(v)
		}
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("read bootstrap cache: %w", err)
	}
	return body, etag, nil
}

// Put stores a document and its validator.
func (c *Cache) Put(name string, body []byte, etag string) error {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketBodies).Put([]byte(name), body); err != nil {
			return err
		}
		return tx.Bucket(bucketEtags).Put([]byte(name), []byte(etag))
	})
	if err != nil {
		return fmt.Errorf("write bootstrap cache: %w", err)
	}
	return nil
}

// Close closes the cache file.
func (c *Cache) Close() error {
	return c.db.Close()
}
