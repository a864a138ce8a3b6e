package chunker

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/jaywantadh/TeleVault/internal/vaulterr"
)

// Expect describes what a chunk must look like once appended. A negative
// Size or empty Checksum disables that check.
type Expect struct {
	Size     int64
	Checksum string
}

// AppendChunk streams src onto the end of dst without buffering more than
// io.Copy does.
func AppendChunk(dst io.Writer, src io.Reader) (int64, error) {
	n, err := io.Copy(dst, src)
	if err != nil {
		return n, vaulterr.New(vaulterr.IOError, "append_chunk", err)
	}
	return n, nil
}

// AppendVerified appends src to out and checks the result against want.
// On a mismatch out is truncated back to where the chunk started, so the
// output only ever holds chunks that passed verification.
func AppendVerified(out *os.File, src io.Reader, index int, want Expect) (int64, error) {
	start, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, vaulterr.New(vaulterr.IOError, "append_chunk", err)
	}

	hasher := blake3.New()
	n, err := AppendChunk(io.MultiWriter(out, hasher), src)
	if err != nil {
		return n, err
	}

	var mismatch error
	if want.Size >= 0 && n != want.Size {
		mismatch = fmt.Errorf("chunk %d has %d bytes, want %d", index, n, want.Size)
	} else if want.Checksum != "" {
		if got := hex.EncodeToString(hasher.Sum(nil)); got != want.Checksum {
			mismatch = fmt.Errorf("checksum mismatch for chunk %d: expected %s, got %s", index, want.Checksum, got)
		}
	}
	if mismatch == nil {
		return n, nil
	}

	if err := out.Truncate(start); err != nil {
		return n, vaulterr.New(vaulterr.IOError, "append_chunk", fmt.Errorf("failed to roll back chunk %d: %w", index, err))
	}
	if _, err := out.Seek(start, io.SeekStart); err != nil {
		return n, vaulterr.New(vaulterr.IOError, "append_chunk", err)
	}
	return 0, vaulterr.New(vaulterr.Integrity, "append_chunk", mismatch)
}
