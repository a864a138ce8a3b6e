package chunker

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/jaywantadh/TeleVault/internal/vaulterr"
)

// TempChunk is one chunk materialised as a standalone file on local disk.
type TempChunk struct {
	Range    Range
	Path     string
	Checksum string
	removed  bool
}

// Open opens the chunk file for reading.
func (c *TempChunk) Open() (*os.File, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, vaulterr.New(vaulterr.IOError, "open_chunk", err)
	}
	return f, nil
}

// Remove deletes the chunk file. Calling it more than once is harmless.
func (c *TempChunk) Remove() error {
	if c == nil || c.removed {
		return nil
	}
	c.removed = true
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return vaulterr.New(vaulterr.IOError, "remove_chunk", err)
	}
	return nil
}

// CreateTemp creates an empty temporary file for chunk index of the transfer
// identified by transferID. The name embeds both so concurrent transfers
// sharing dir never collide.
func CreateTemp(dir, transferID string, index int) (*os.File, error) {
	pattern := fmt.Sprintf("televault-%s-chunk-%d-*.bin", transferID, index)
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, vaulterr.New(vaulterr.IOError, "create_chunk", err)
	}
	return f, nil
}

// WriteChunk copies the bytes of r from src into a new temporary file and
// returns it together with its blake3 checksum. A source shorter than
// r.End() is reported as an IOError and nothing is left on disk.
func WriteChunk(src io.ReaderAt, dir, transferID string, r Range) (*TempChunk, error) {
	if r.Offset < 0 || r.Length < 0 {
		return nil, vaulterr.Errorf(vaulterr.InvalidInput, "write_chunk", "invalid range offset=%d length=%d", r.Offset, r.Length)
	}

	f, err := CreateTemp(dir, transferID, r.Index)
	if err != nil {
		return nil, err
	}
	chunk := &TempChunk{Range: r, Path: f.Name()}

	hasher := blake3.New()
	n, copyErr := io.Copy(io.MultiWriter(f, hasher), io.NewSectionReader(src, r.Offset, r.Length))
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		err = vaulterr.New(vaulterr.IOError, "write_chunk", fmt.Errorf("failed to copy chunk %d: %w", r.Index, copyErr))
	case n != r.Length:
		err = vaulterr.New(vaulterr.IOError, "write_chunk",
			fmt.Errorf("source truncated: chunk %d wanted %d bytes at offset %d, read %d", r.Index, r.Length, r.Offset, n))
	case closeErr != nil:
		err = vaulterr.New(vaulterr.IOError, "write_chunk", fmt.Errorf("failed to flush chunk %d: %w", r.Index, closeErr))
	}
	if err != nil {
		_ = chunk.Remove()
		return nil, err
	}

	chunk.Checksum = hex.EncodeToString(hasher.Sum(nil))
	return chunk, nil
}

// WithChunk materialises r, hands it to fn and removes the temporary file
// afterwards, whether fn succeeds or not.
func WithChunk(src io.ReaderAt, dir, transferID string, r Range, fn func(*TempChunk) error) error {
	chunk, err := WriteChunk(src, dir, transferID, r)
	if err != nil {
		return err
	}
	defer chunk.Remove()
	return fn(chunk)
}

// Checksum returns the hex blake3 digest of everything read from r.
func Checksum(r io.Reader) (string, error) {
	hasher := blake3.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
