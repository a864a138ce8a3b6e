package metadata

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jaywantadh/TeleVault/internal/chunker"
	"github.com/jaywantadh/TeleVault/internal/vaulterr"
)

// TransferManifest is the durable record of one uploaded file. The order of
// ChunkFileIDs is the only thing that encodes reassembly order.
//
// The four keys original_filename, original_size, chunks and chunk_file_ids
// are always present; the rest are optional so that manifests written by
// older tools remain readable.
type TransferManifest struct {
	ID               string   `json:"id,omitempty"`
	OriginalFilename string   `json:"original_filename"`
	OriginalSize     int64    `json:"original_size"`
	Chunks           int      `json:"chunks"`
	ChunkFileIDs     []string `json:"chunk_file_ids"`
	Caption          string   `json:"caption,omitempty"`
	ChunkSize        int64    `json:"chunk_size,omitempty"`
	Compression      string   `json:"compression,omitempty"`
	ChunkChecksums   []string `json:"chunk_checksums,omitempty"`
	CreatedAt        int64    `json:"created_at,omitempty"` // Unix timestamp
}

// ManifestParams carries everything needed to build a manifest once every
// chunk has been accepted by the remote store.
type ManifestParams struct {
	ID               string
	OriginalFilename string
	OriginalSize     int64
	ChunkSize        int64
	ChunkFileIDs     []string
	ChunkChecksums   []string
	Caption          string
	Compression      string
}

// NewTransferManifest builds and validates a manifest. It fails unless
// there is exactly one non-empty reference id per planned chunk, so a
// partially uploaded file can never be turned into a manifest.
func NewTransferManifest(p ManifestParams) (*TransferManifest, error) {
	count, err := chunker.Plan(p.OriginalSize, p.ChunkSize)
	if err != nil {
		return nil, err
	}

	m := &TransferManifest{
		ID:               p.ID,
		OriginalFilename: p.OriginalFilename,
		OriginalSize:     p.OriginalSize,
		Chunks:           count,
		ChunkFileIDs:     append([]string(nil), p.ChunkFileIDs...),
		Caption:          p.Caption,
		ChunkSize:        p.ChunkSize,
		Compression:      p.Compression,
		ChunkChecksums:   append([]string(nil), p.ChunkChecksums...),
		CreatedAt:        time.Now().Unix(),
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the invariants a manifest must satisfy to be downloadable.
func (m *TransferManifest) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return vaulterr.Errorf(vaulterr.InvalidInput, "validate_manifest", format, args...)
	}

	if m.OriginalSize < 0 {
		return invalid("original size must not be negative, got %d", m.OriginalSize)
	}
	if m.Chunks < 1 {
		return invalid("chunk count must be at least 1, got %d", m.Chunks)
	}
	if len(m.ChunkFileIDs) != m.Chunks {
		return invalid("manifest lists %d chunk ids for %d chunks", len(m.ChunkFileIDs), m.Chunks)
	}
	for i, id := range m.ChunkFileIDs {
		if id == "" {
			return invalid("chunk %d has no reference id", i)
		}
	}
	if m.ChunkSize > 0 {
		want, err := chunker.Plan(m.OriginalSize, m.ChunkSize)
		if err != nil {
			return err
		}
		if want != m.Chunks {
			return invalid("%d bytes in chunks of %d need %d chunks, manifest has %d", m.OriginalSize, m.ChunkSize, want, m.Chunks)
		}
	}
	if len(m.ChunkChecksums) != 0 && len(m.ChunkChecksums) != m.Chunks {
		return invalid("manifest lists %d checksums for %d chunks", len(m.ChunkChecksums), m.Chunks)
	}
	return nil
}

// References returns a copy of the ordered chunk reference ids.
func (m *TransferManifest) References() []string {
	return append([]string(nil), m.ChunkFileIDs...)
}

// ChunkRanges returns the plain byte ranges of every chunk, or nil when the
// manifest does not record its chunk size.
func (m *TransferManifest) ChunkRanges() []chunker.Range {
	if m.ChunkSize <= 0 {
		return nil
	}
	ranges, err := chunker.Ranges(m.OriginalSize, m.ChunkSize)
	if err != nil {
		return nil
	}
	return ranges
}

// ParseManifest decodes and validates a JSON encoded manifest.
func ParseManifest(data []byte) (*TransferManifest, error) {
	var m TransferManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, vaulterr.New(vaulterr.InvalidInput, "parse_manifest", fmt.Errorf("failed to decode manifest: %w", err))
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
