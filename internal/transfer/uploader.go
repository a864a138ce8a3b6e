package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jaywantadh/TeleVault/internal/chunker"
	"github.com/jaywantadh/TeleVault/internal/compressor"
	"github.com/jaywantadh/TeleVault/internal/metadata"
	"github.com/jaywantadh/TeleVault/internal/retry"
	"github.com/jaywantadh/TeleVault/internal/storage"
	"github.com/jaywantadh/TeleVault/internal/vaulterr"
)

// Uploader splits files into chunks and pushes them to a Storage backend.
type Uploader struct {
	store    storage.Storage
	opts     Options
	logger   *logrus.Logger
	progress *ProgressTracker
}

// NewUploader returns an Uploader. progress may be nil.
func NewUploader(store storage.Storage, opts Options, logger *logrus.Logger, progress *ProgressTracker) *Uploader {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	return &Uploader{store: store, opts: opts, logger: logger, progress: progress}
}

// uploadJob is the state shared by every chunk of one file.
type uploadJob struct {
	transferID string
	src        *os.File
	caption    string
	codec      string
	refs       []string
	checksums  []string
	completed  atomic.Int32
	log        *logrus.Entry
}

// UploadFile uploads the file at path and returns its manifest. A
// maxChunkSize of zero selects Options.MaxChunkSize.
//
// Upload is all or nothing: on any terminal chunk failure no manifest is
// returned. Chunks accepted before the failure stay in the remote store.
func (u *Uploader) UploadFile(ctx context.Context, path, caption string, maxChunkSize int64) (*metadata.TransferManifest, error) {
	if maxChunkSize == 0 {
		maxChunkSize = u.opts.MaxChunkSize
	}
	if err := chunker.ValidateChunkSize(maxChunkSize); err != nil {
		return nil, err
	}
	codec, err := compressor.Resolve(u.opts.Compression, path)
	if err != nil {
		return nil, vaulterr.New(vaulterr.InvalidInput, "upload", err)
	}

	src, err := os.Open(path)
	if err != nil {
		return nil, vaulterr.New(vaulterr.IOError, "upload", fmt.Errorf("failed to open file: %w", err))
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return nil, vaulterr.New(vaulterr.IOError, "upload", fmt.Errorf("failed to stat file: %w", err))
	}
	if info.IsDir() {
		return nil, vaulterr.Errorf(vaulterr.InvalidInput, "upload", "%s is a directory", path)
	}

	ranges, err := chunker.Ranges(info.Size(), maxChunkSize)
	if err != nil {
		return nil, err
	}

	job := &uploadJob{
		transferID: uuid.NewString(),
		src:        src,
		caption:    caption,
		codec:      codec,
		refs:       make([]string, len(ranges)),
		checksums:  make([]string, len(ranges)),
	}
	job.log = u.logger.WithFields(logrus.Fields{
		"transfer_id": job.transferID,
		"file":        info.Name(),
	})
	job.log.WithFields(logrus.Fields{
		"bytes":       info.Size(),
		"chunks":      len(ranges),
		"chunk_size":  maxChunkSize,
		"compression": codec,
	}).Info("starting upload")

	u.progress.StartTracking(job.transferID, info.Name(), DirectionUpload, len(ranges), info.Size())

	if u.opts.Concurrency > 1 && len(ranges) > 1 {
		err = u.uploadParallel(ctx, job, ranges)
	} else {
		err = u.uploadSequential(ctx, job, ranges)
	}
	if err != nil {
		u.finish(job, err)
		return nil, err
	}

	manifest, err := metadata.NewTransferManifest(metadata.ManifestParams{
		ID:               job.transferID,
		OriginalFilename: info.Name(),
		OriginalSize:     info.Size(),
		ChunkSize:        maxChunkSize,
		ChunkFileIDs:     job.refs,
		ChunkChecksums:   job.checksums,
		Caption:          caption,
		Compression:      codec,
	})
	if err != nil {
		u.finish(job, err)
		return nil, err
	}

	u.finish(job, nil)
	job.log.WithField("chunks", manifest.Chunks).Info("✅ upload complete")
	return manifest, nil
}

func (u *Uploader) finish(job *uploadJob, err error) {
	switch {
	case err == nil:
		u.progress.Finish(job.transferID, StatusCompleted, nil)
	case errors.Is(err, vaulterr.Canceled):
		u.progress.Finish(job.transferID, StatusCancelled, err)
		job.log.WithError(err).Warn("upload stopped")
	default:
		u.progress.Finish(job.transferID, StatusFailed, err)
		job.log.WithError(err).WithField("completed", job.completed.Load()).Error("❌ upload failed, uploaded chunks are orphaned")
	}
}

func (u *Uploader) uploadSequential(ctx context.Context, job *uploadJob, ranges []chunker.Range) error {
	g := newGate(ctx, u.opts.FileTimeout)
	for _, r := range ranges {
		if err := g.check("upload", r.Index, r.Index); err != nil {
			return err
		}
		if err := u.uploadChunk(chunkContext(ctx), job, r); err != nil {
			return vaulterr.ForChunk(err, vaulterr.IOError, "upload", r.Index, int(job.completed.Load()))
		}
	}
	return nil
}

// uploadParallel runs Concurrency workers. Each worker stores its result in
// the slot of its chunk index, so manifest order never depends on
// completion order.
func (u *Uploader) uploadParallel(ctx context.Context, job *uploadJob, ranges []chunker.Range) error {
	workers := u.opts.Concurrency
	if workers > len(ranges) {
		workers = len(ranges)
	}

	tasks := make(chan chunker.Range)
	stop := make(chan struct{})
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			close(stop)
		})
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range tasks {
				if err := u.uploadChunk(chunkContext(ctx), job, r); err != nil {
					fail(vaulterr.ForChunk(err, vaulterr.IOError, "upload", r.Index, int(job.completed.Load())))
				}
			}
		}()
	}

	g := newGate(ctx, u.opts.FileTimeout)
feed:
	for _, r := range ranges {
		if err := g.check("upload", r.Index, int(job.completed.Load())); err != nil {
			fail(err)
			break
		}
		select {
		case tasks <- r:
		case <-stop:
			break feed
		}
	}
	close(tasks)
	wg.Wait()

	return firstErr
}

// uploadChunk materialises one chunk, optionally compresses it, and uploads
// it with retries. The temporary files are removed on every path.
func (u *Uploader) uploadChunk(ctx context.Context, job *uploadJob, r chunker.Range) error {
	return chunker.WithChunk(job.src, u.opts.tempDir(), job.transferID, r, func(chunk *chunker.TempChunk) error {
		payload := chunk.Path
		if job.codec != compressor.None {
			compressed, err := u.compressChunk(job, chunk)
			if err != nil {
				return err
			}
			defer os.Remove(compressed)
			payload = compressed
		}

		info, err := os.Stat(payload)
		if err != nil {
			return vaulterr.New(vaulterr.IOError, "upload", err)
		}

		obj := storage.Object{
			Name:    ChunkName(r.Index),
			Caption: ChunkCaption(r.Index, job.caption),
			Size:    info.Size(),
		}

		var ref string
		err = retry.Do(ctx, u.retryConfig(job, r.Index), nil, func(ctx context.Context) error {
			f, err := os.Open(payload)
			if err != nil {
				return vaulterr.New(vaulterr.IOError, "upload", err)
			}
			defer f.Close()

			callCtx, cancel := u.opts.callContext(ctx)
			defer cancel()
			obj.Body = f
			id, err := u.store.Put(callCtx, obj)
			if err != nil {
				return err
			}
			if id == "" {
				return vaulterr.Errorf(vaulterr.RemoteRejected, "upload", "remote store returned an empty reference id")
			}
			ref = id
			return nil
		})
		if err != nil {
			return err
		}

		job.refs[r.Index] = ref
		job.checksums[r.Index] = chunk.Checksum
		job.completed.Add(1)
		u.progress.ChunkDone(job.transferID, r.Length)
		job.log.WithFields(logrus.Fields{
			"chunk": r.Index,
			"bytes": r.Length,
			"ref":   ref,
		}).Debug("chunk uploaded")
		return nil
	})
}

func (u *Uploader) compressChunk(job *uploadJob, chunk *chunker.TempChunk) (string, error) {
	in, err := chunk.Open()
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.CreateTemp(u.opts.tempDir(), fmt.Sprintf("televault-%s-chunk-%d-*.%s", job.transferID, chunk.Range.Index, job.codec))
	if err != nil {
		return "", vaulterr.New(vaulterr.IOError, "compress_chunk", err)
	}

	_, err = compressor.Compress(job.codec, out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(out.Name())
		return "", vaulterr.New(vaulterr.IOError, "compress_chunk", err)
	}
	return out.Name(), nil
}

func (u *Uploader) retryConfig(job *uploadJob, index int) retry.Config {
	cfg := u.opts.Retry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		job.log.WithError(err).WithFields(logrus.Fields{
			"chunk":   index,
			"attempt": attempt,
			"wait":    wait,
		}).Warn("⚠️ chunk upload failed, retrying")
	}
	return cfg
}
