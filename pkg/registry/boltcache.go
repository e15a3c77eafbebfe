package registry

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketResponses = []byte("responses")

// BoltCache is a Cache persisted in a bbolt database file.
type BoltCache struct {
	db *bolt.DB
}

// type check
var _ Cache = &BoltCache{}

// OpenBoltCache opens (or creates) the cache database at path.
func OpenBoltCache(path string) (*BoltCache, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketResponses)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltCache{db: db}, nil
}

func (b *BoltCache) Close() error {
	return b.db.Close()
}

func (b *BoltCache) Get(key string) ([]byte, bool) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketResponses).Get([]byte(key)); v != nil {
			// v is valid only in this transaction.
			value = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil || value == nil {
		return nil, false
	}
	return value, true
}

func (b *BoltCache) Put(key string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResponses).Put([]byte(key), value)
	})
}
