package metadata

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore wraps BadgerDB for manifest operations.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a BadgerDB at the given path.
func OpenBadgerStore(dbPath string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the BadgerDB.
func (bs *BadgerStore) Close() error {
	return bs.db.Close()
}

// PutManifest stores a manifest under its id.
func (bs *BadgerStore) PutManifest(m TransferManifest) error {
	if err := checkStorable(m); err != nil {
		return err
	}
	val, err := json.Marshal(m)
	if err != nil {
		return err
	}
	key := manifestKey(m.ID)
	return bs.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: %s", ErrManifestExists, m.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, val)
	})
}

// GetManifest retrieves a manifest by id.
func (bs *BadgerStore) GetManifest(id string) (TransferManifest, error) {
	var meta TransferManifest
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(manifestKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrManifestNotFound, id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	return meta, err
}

// ListManifests returns every stored manifest, newest first.
func (bs *BadgerStore) ListManifests() ([]TransferManifest, error) {
	var list []TransferManifest
	err := bs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = manifestKey("")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var meta TransferManifest
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			})
			if err != nil {
				return err
			}
			list = append(list, meta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortManifests(list)
	return list, nil
}

// DeleteManifest removes a manifest. The remote chunks are left untouched.
func (bs *BadgerStore) DeleteManifest(id string) error {
	key := manifestKey(id)
	return bs.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrManifestNotFound, id)
			}
			return err
		}
		return txn.Delete(key)
	})
}
