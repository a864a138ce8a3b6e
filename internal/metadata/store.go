package metadata

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrManifestNotFound is returned when no manifest is stored under an id.
	ErrManifestNotFound = errors.New("manifest not found")
	// ErrManifestExists is returned when an id is already taken. Manifests
	// are immutable once stored.
	ErrManifestExists = errors.New("manifest already exists")
)

// ManifestStore persists transfer manifests keyed by manifest id.
type ManifestStore interface {
	PutManifest(m TransferManifest) error
	GetManifest(id string) (TransferManifest, error)
	ListManifests() ([]TransferManifest, error)
	DeleteManifest(id string) error
	Close() error
}

// Store drivers.
const (
	DriverBadger = "badger"
	DriverBolt   = "bolt"
)

// OpenManifestStore opens the store selected by driver at path.
func OpenManifestStore(driver, path string) (ManifestStore, error) {
	switch driver {
	case "", DriverBadger:
		return OpenBadgerStore(path)
	case DriverBolt:
		return OpenBoltStore(path)
	default:
		return nil, fmt.Errorf("unknown manifest store driver %q", driver)
	}
}

func manifestKey(id string) []byte {
	return []byte("manifest:" + id)
}

// sortManifests orders newest first, then by id for a stable listing.
func sortManifests(list []TransferManifest) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt > list[j].CreatedAt
		}
		return list[i].ID < list[j].ID
	})
}

func checkStorable(m TransferManifest) error {
	if m.ID == "" {
		return errors.New("manifest id is required")
	}
	return m.Validate()
}
