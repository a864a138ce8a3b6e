package transfer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jaywantadh/TeleVault/internal/chunker"
	"github.com/jaywantadh/TeleVault/internal/compressor"
	"github.com/jaywantadh/TeleVault/internal/retry"
	"github.com/jaywantadh/TeleVault/internal/vaulterr"
)

// Options tunes both orchestrators.
type Options struct {
	// MaxChunkSize is used when a call does not pass its own chunk size.
	MaxChunkSize int64
	// TempDir holds chunk files while they are in flight. Empty means os.TempDir().
	TempDir string
	// Concurrency is the number of chunks uploaded at once. Downloads are
	// always sequential.
	Concurrency int
	// CallTimeout bounds each remote call. Zero disables it.
	CallTimeout time.Duration
	// FileTimeout bounds a whole transfer. It is checked before each chunk
	// starts, never in the middle of one. Zero disables it.
	FileTimeout time.Duration
	// Compression is none, lz4, zstd or auto.
	Compression string
	// ProgressRetention is how long a Service keeps finished transfers in
	// its progress tracker. Zero keeps them forever.
	ProgressRetention time.Duration
	Retry             retry.Config
}

// DefaultOptions uses 1.9 GiB chunks sent one
// at a time.
func DefaultOptions() Options {
	return Options{
		MaxChunkSize:      chunker.MaxRemoteChunkSize,
		TempDir:           os.TempDir(),
		Concurrency:       1,
		CallTimeout:       10 * time.Minute,
		Compression:       compressor.None,
		ProgressRetention: time.Hour,
		Retry:             retry.DefaultConfig(),
	}
}

func (o Options) tempDir() string {
	if o.TempDir == "" {
		return os.TempDir()
	}
	return o.TempDir
}

// ChunkCaption returns the caption attached to chunk index. Only the first
// chunk carries the caption supplied for the file; the rest are labelled by
// position.
func ChunkCaption(index int, caption string) string {
	if index == 0 && caption != "" {
		return caption
	}
	return fmt.Sprintf("Chunk %d", index)
}

// ChunkName returns the remote file name used for chunk index.
func ChunkName(index int) string {
	return fmt.Sprintf("chunk_%d.bin", index)
}

// gate decides whether the next chunk may start.
type gate struct {
	ctx      context.Context
	started  time.Time
	deadline time.Duration
}

func newGate(ctx context.Context, deadline time.Duration) gate {
	return gate{ctx: ctx, started: time.Now(), deadline: deadline}
}

func (g gate) check(op string, chunk, completed int) error {
	if err := g.ctx.Err(); err != nil {
		return &vaulterr.Error{Kind: vaulterr.Canceled, Op: op, Chunk: chunk, Completed: completed, Err: err}
	}
	if g.deadline > 0 && time.Since(g.started) > g.deadline {
		return &vaulterr.Error{
			Kind:      vaulterr.Canceled,
			Op:        op,
			Chunk:     chunk,
			Completed: completed,
			Err:       fmt.Errorf("file timeout of %s exceeded", g.deadline),
		}
	}
	return nil
}

// chunkContext detaches a chunk from cancellation of the transfer: once a
// chunk has started it runs to completion, retries included.
func chunkContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// callContext bounds one remote call by CallTimeout.
func (o Options) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.CallTimeout > 0 {
		return context.WithTimeout(ctx, o.CallTimeout)
	}
	return context.WithCancel(ctx)
}
