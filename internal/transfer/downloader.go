package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
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

// Downloader fetches chunks in manifest order and appends them to one
// output file.
type Downloader struct {
	store    storage.Storage
	opts     Options
	logger   *logrus.Logger
	progress *ProgressTracker
}

// NewDownloader returns a Downloader. progress may be nil.
func NewDownloader(store storage.Storage, opts Options, logger *logrus.Logger, progress *ProgressTracker) *Downloader {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	return &Downloader{store: store, opts: opts, logger: logger, progress: progress}
}

// downloadPlan is what the downloader knows about each chunk before it is
// fetched. Only refs is required.
type downloadPlan struct {
	name      string
	refs      []string
	codec     string
	sizes     []int64
	checksums []string
	total     int64
}

func (p downloadPlan) expect(index int) chunker.Expect {
	want := chunker.Expect{Size: -1}
	if p.sizes != nil {
		want.Size = p.sizes[index]
	}
	if p.checksums != nil {
		want.Checksum = p.checksums[index]
	}
	return want
}

// DownloadFile fetches refs in order and writes their concatenation to
// outputPath, which is created or truncated. It returns outputPath.
//
// A failure part way through leaves the partial output in place; the
// returned error reports how many chunks were completed.
func (d *Downloader) DownloadFile(ctx context.Context, refs []string, outputPath string) (string, error) {
	if len(refs) == 0 {
		return "", vaulterr.Errorf(vaulterr.InvalidInput, "download", "reference list is empty")
	}
	for i, ref := range refs {
		if ref == "" {
			return "", vaulterr.Errorf(vaulterr.InvalidInput, "download", "reference %d is empty", i)
		}
	}
	return d.download(ctx, downloadPlan{
		name:  outputPath,
		refs:  refs,
		codec: compressor.None,
		total: -1,
	}, outputPath)
}

// DownloadManifest restores the file described by m. Manifests that record
// chunk sizes, checksums or a codec get those applied and verified.
func (d *Downloader) DownloadManifest(ctx context.Context, m *metadata.TransferManifest, outputPath string) (string, error) {
	if m == nil {
		return "", vaulterr.Errorf(vaulterr.InvalidInput, "download", "manifest is nil")
	}
	if err := m.Validate(); err != nil {
		return "", err
	}

	plan := downloadPlan{
		name:      m.OriginalFilename,
		refs:      m.References(),
		codec:     m.Compression,
		checksums: m.ChunkChecksums,
		total:     m.OriginalSize,
	}
	if plan.codec == "" {
		plan.codec = compressor.None
	}
	if len(plan.checksums) == 0 {
		plan.checksums = nil
	}
	if ranges := m.ChunkRanges(); ranges != nil {
		plan.sizes = make([]int64, len(ranges))
		for i, r := range ranges {
			plan.sizes[i] = r.Length
		}
	}
	return d.download(ctx, plan, outputPath)
}

func (d *Downloader) download(ctx context.Context, plan downloadPlan, outputPath string) (string, error) {
	if outputPath == "" {
		return "", vaulterr.Errorf(vaulterr.InvalidInput, "download", "output path is required")
	}
	if !compressor.Known(plan.codec) {
		return "", vaulterr.Errorf(vaulterr.InvalidInput, "download", "unknown compression %q", plan.codec)
	}

	transferID := uuid.NewString()
	log := d.logger.WithFields(logrus.Fields{
		"transfer_id": transferID,
		"output":      outputPath,
	})
	log.WithField("chunks", len(plan.refs)).Info("starting download")

	out, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return "", vaulterr.New(vaulterr.IOError, "download", fmt.Errorf("failed to create output file: %w", err))
	}

	d.progress.StartTracking(transferID, plan.name, DirectionDownload, len(plan.refs), plan.total)

	written, err := d.fetchAll(ctx, transferID, plan, out, log)
	if err == nil && plan.total >= 0 && written != plan.total {
		err = vaulterr.Errorf(vaulterr.Integrity, "download", "reassembled %d bytes, manifest says %d", written, plan.total)
	}
	if err == nil {
		if syncErr := out.Sync(); syncErr != nil {
			err = vaulterr.New(vaulterr.IOError, "download", syncErr)
		}
	}
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = vaulterr.New(vaulterr.IOError, "download", closeErr)
	}

	if err != nil {
		status := StatusFailed
		if errors.Is(err, vaulterr.Canceled) {
			status = StatusCancelled
		}
		d.progress.Finish(transferID, status, err)
		log.WithError(err).WithField("completed", vaulterr.CompletedOf(err)).Error("❌ download failed, partial output left in place")
		return "", err
	}

	d.progress.Finish(transferID, StatusCompleted, nil)
	log.WithField("bytes", written).Info("✅ download complete")
	return outputPath, nil
}

func (d *Downloader) fetchAll(ctx context.Context, transferID string, plan downloadPlan, out *os.File, log *logrus.Entry) (int64, error) {
	g := newGate(ctx, d.opts.FileTimeout)
	var written int64
	for i, ref := range plan.refs {
		if err := g.check("download", i, i); err != nil {
			return written, err
		}
		n, err := d.fetchChunk(chunkContext(ctx), transferID, plan, i, ref, out, log)
		if err != nil {
			return written, vaulterr.ForChunk(err, vaulterr.IOError, "download", i, i)
		}
		written += n
		d.progress.ChunkDone(transferID, n)
		log.WithFields(logrus.Fields{
			"chunk": i,
			"bytes": n,
		}).Debug("chunk appended")
	}
	return written, nil
}

// fetchChunk downloads one object into a temp file, retrying transient
// failures from scratch, then decodes and appends it to out.
func (d *Downloader) fetchChunk(ctx context.Context, transferID string, plan downloadPlan, index int, ref string, out *os.File, log *logrus.Entry) (int64, error) {
	tmp, err := chunker.CreateTemp(d.opts.tempDir(), transferID, index)
	if err != nil {
		return 0, err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	cfg := d.opts.Retry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{
			"chunk":   index,
			"attempt": attempt,
			"wait":    wait,
		}).Warn("⚠️ chunk fetch failed, retrying")
	}

	err = retry.Do(ctx, cfg, nil, func(ctx context.Context) error {
		if err := tmp.Truncate(0); err != nil {
			return vaulterr.New(vaulterr.IOError, "fetch", err)
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return vaulterr.New(vaulterr.IOError, "fetch", err)
		}
		callCtx, cancel := d.opts.callContext(ctx)
		defer cancel()
		_, err := d.store.Get(callCtx, ref, tmp)
		return err
	})
	if err != nil {
		return 0, err
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return 0, vaulterr.New(vaulterr.IOError, "fetch", err)
	}
	body, err := compressor.NewReader(plan.codec, tmp)
	if err != nil {
		return 0, vaulterr.New(vaulterr.InvalidInput, "fetch", err)
	}
	defer body.Close()

	return chunker.AppendVerified(out, body, index, plan.expect(index))
}
