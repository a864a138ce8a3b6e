package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/jaywantadh/TeleVault/internal/metadata"
	"github.com/jaywantadh/TeleVault/internal/storage"
	"github.com/jaywantadh/TeleVault/internal/vaulterr"
)

// Service ties the orchestrators to a manifest store: uploads become
// persisted manifests and persisted manifests can be restored by id.
type Service struct {
	uploader   *Uploader
	downloader *Downloader
	manifests  metadata.ManifestStore
	progress   *ProgressTracker
	opts       Options
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewService builds a Service sharing one progress tracker between uploads
// and downloads.
func NewService(store storage.Storage, manifests metadata.ManifestStore, opts Options, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	progress := NewProgressTracker(logger)
	progress.SetRetention(opts.ProgressRetention)
	return &Service{
		uploader:   NewUploader(store, opts, logger, progress),
		downloader: NewDownloader(store, opts, logger, progress),
		manifests:  manifests,
		progress:   progress,
		opts:       opts,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Archive uploads the file at path and persists its manifest.
func (s *Service) Archive(ctx context.Context, path, caption string) (*metadata.TransferManifest, error) {
	m, err := s.uploader.UploadFile(ctx, path, caption, 0)
	if err != nil {
		return nil, err
	}
	if err := s.manifests.PutManifest(*m); err != nil {
		return nil, vaulterr.New(vaulterr.IOError, "archive", fmt.Errorf("failed to store manifest: %w", err))
	}
	s.logger.WithFields(logrus.Fields{
		"manifest_id": m.ID,
		"file":        m.OriginalFilename,
		"chunks":      m.Chunks,
	}).Info("manifest stored")
	return m, nil
}

// Restore downloads the file recorded under id to outputPath.
func (s *Service) Restore(ctx context.Context, id, outputPath string) (string, error) {
	m, err := s.Get(id)
	if err != nil {
		return "", err
	}
	return s.downloader.DownloadManifest(ctx, m, outputPath)
}

// RestoreManifest downloads from a manifest supplied by the caller, which
// need not be stored.
func (s *Service) RestoreManifest(ctx context.Context, m *metadata.TransferManifest, outputPath string) (string, error) {
	return s.downloader.DownloadManifest(ctx, m, outputPath)
}

// RestoreReferences downloads a bare ordered list of reference ids.
func (s *Service) RestoreReferences(ctx context.Context, refs []string, outputPath string) (string, error) {
	return s.downloader.DownloadFile(ctx, refs, outputPath)
}

// Get returns the stored manifest with the given id.
func (s *Service) Get(id string) (*metadata.TransferManifest, error) {
	if id == "" {
		return nil, vaulterr.Errorf(vaulterr.InvalidInput, "get_manifest", "manifest id is required")
	}
	m, err := s.manifests.GetManifest(id)
	if err != nil {
		return nil, storeError("get_manifest", err)
	}
	return &m, nil
}

// List returns every stored manifest, newest first.
func (s *Service) List() ([]metadata.TransferManifest, error) {
	list, err := s.manifests.ListManifests()
	if err != nil {
		return nil, storeError("list_manifests", err)
	}
	return list, nil
}

// Delete forgets a manifest. Its chunks stay in the remote store.
func (s *Service) Delete(id string) error {
	if err := s.manifests.DeleteManifest(id); err != nil {
		return storeError("delete_manifest", err)
	}
	s.logger.WithField("manifest_id", id).Info("manifest deleted")
	return nil
}

// Progress exposes the tracker shared by every transfer of this service.
func (s *Service) Progress() *ProgressTracker {
	return s.progress
}

// storeError maps manifest store errors onto the transfer error kinds.
func storeError(op string, err error) error {
	if errors.Is(err, metadata.ErrManifestNotFound) {
		return vaulterr.New(vaulterr.RemoteNotFound, op, err)
	}
	return vaulterr.New(vaulterr.IOError, op, err)
}
