package chunker

import (
	"github.com/jaywantadh/TeleVault/internal/vaulterr"
)

// MaxRemoteChunkSize is the largest chunk sent to the Telegram Bot API
// (1.9 GiB). Chunk sizes above it are rejected.
const MaxRemoteChunkSize int64 = 2040109465

// Range is the byte span of one chunk inside the source file.
type Range struct {
	Index  int   `json:"index"`
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
}

// End returns the offset one past the last byte of the range.
func (r Range) End() int64 {
	return r.Offset + r.Length
}

// Plan returns the number of chunks needed to hold totalSize bytes when no
// chunk may exceed maxChunkSize. An empty file still occupies one chunk.
func Plan(totalSize, maxChunkSize int64) (int, error) {
	if maxChunkSize <= 0 {
		return 0, vaulterr.Errorf(vaulterr.InvalidInput, "plan", "max chunk size must be positive, got %d", maxChunkSize)
	}
	if totalSize < 0 {
		return 0, vaulterr.Errorf(vaulterr.InvalidInput, "plan", "total size must not be negative, got %d", totalSize)
	}
	if totalSize == 0 {
		return 1, nil
	}
	count := totalSize / maxChunkSize
	if totalSize%maxChunkSize != 0 {
		count++
	}
	return int(count), nil
}

// Ranges lays out every chunk of a totalSize byte file in index order.
// All ranges but the last are exactly maxChunkSize long.
func Ranges(totalSize, maxChunkSize int64) ([]Range, error) {
	count, err := Plan(totalSize, maxChunkSize)
	if err != nil {
		return nil, err
	}

	ranges := make([]Range, count)
	for i := range ranges {
		offset := int64(i) * maxChunkSize
		length := maxChunkSize
		if remaining := totalSize - offset; remaining < length {
			length = remaining
		}
		ranges[i] = Range{Index: i, Offset: offset, Length: length}
	}
	return ranges, nil
}

// ValidateChunkSize checks that size can be used as a max chunk size against
// the remote store.
func ValidateChunkSize(size int64) error {
	if size <= 0 {
		return vaulterr.Errorf(vaulterr.InvalidInput, "plan", "max chunk size must be positive, got %d", size)
	}
	if size > MaxRemoteChunkSize {
		return vaulterr.Errorf(vaulterr.InvalidInput, "plan", "max chunk size %d exceeds remote limit %d", size, MaxRemoteChunkSize)
	}
	return nil
}
