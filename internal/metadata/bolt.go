package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var manifestsBucket = []byte("manifests")

// BoltStore is a ManifestStore backed by a single BoltDB file.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) the BoltDB file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(manifestsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// PutManifest stores a manifest under its id.
func (bs *BoltStore) PutManifest(m TransferManifest) error {
	if err := checkStorable(m); err != nil {
		return err
	}
	encoded, err := json.Marshal(m)
	if err != nil {
		return err
	}

	return bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(manifestsBucket)
		if b.Get([]byte(m.ID)) != nil {
			return fmt.Errorf("%w: %s", ErrManifestExists, m.ID)
		}
		return b.Put([]byte(m.ID), encoded)
	})
}

// GetManifest retrieves a manifest by id.
func (bs *BoltStore) GetManifest(id string) (TransferManifest, error) {
	var meta TransferManifest
	err := bs.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(manifestsBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrManifestNotFound, id)
		}
		return json.Unmarshal(data, &meta)
	})
	return meta, err
}

// ListManifests returns every stored manifest, newest first.
func (bs *BoltStore) ListManifests() ([]TransferManifest, error) {
	var list []TransferManifest
	err := bs.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(manifestsBucket).ForEach(func(_, v []byte) error {
			var meta TransferManifest
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			list = append(list, meta)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortManifests(list)
	return list, nil
}

// DeleteManifest removes a manifest. The remote chunks are left untouched.
func (bs *BoltStore) DeleteManifest(id string) error {
	return bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(manifestsBucket)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrManifestNotFound, id)
		}
		return b.Delete([]byte(id))
	})
}

// Close closes the database file.
func (bs *BoltStore) Close() error {
	return bs.db.Close()
}
