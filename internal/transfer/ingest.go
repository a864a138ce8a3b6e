package transfer

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/jaywantadh/TeleVault/internal/metadata"
	"github.com/jaywantadh/TeleVault/internal/retry"
	"github.com/jaywantadh/TeleVault/internal/vaulterr"
)

// ArchiveURL downloads an http(s) URL into a temporary file and archives it.
//
// The stored name is filename when given, otherwise the last element of the
// URL path, otherwise download_<unix time>. A name without an extension gets
// one guessed from the response Content-Type. The first chunk caption
// records the source URL. The temporary file is removed on every path.
func (s *Service) ArchiveURL(ctx context.Context, rawURL, filename, caption string) (*metadata.TransferManifest, error) {
	src, err := url.Parse(rawURL)
	if err != nil || (src.Scheme != "http" && src.Scheme != "https") || src.Host == "" {
		return nil, vaulterr.Errorf(vaulterr.InvalidInput, "ingest", "invalid url %q", rawURL)
	}

	dir, err := os.MkdirTemp(s.opts.tempDir(), "televault-ingest-*")
	if err != nil {
		return nil, vaulterr.New(vaulterr.IOError, "ingest", fmt.Errorf("failed to create temp dir: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.WithError(err).WithField("dir", dir).Warn("failed to remove ingest temp dir")
		}
	}()

	local, err := s.fetchURL(ctx, src, filename, dir)
	if err != nil {
		return nil, err
	}
	return s.Archive(ctx, local, ingestCaption(filepath.Base(local), caption, src.String(), time.Now()))
}

// fetchURL streams src into dir and returns the local path. Transient
// failures restart the download from the beginning.
func (s *Service) fetchURL(ctx context.Context, src *url.URL, filename, dir string) (string, error) {
	log := s.logger.WithField("url", src.Redacted())

	cfg := s.opts.Retry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"wait":    wait,
		}).Warn("⚠️ url fetch failed, retrying")
	}

	var local string
	err := retry.Do(ctx, cfg, nil, func(ctx context.Context) error {
		callCtx, cancel := s.opts.callContext(ctx)
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, src.String(), nil)
		if err != nil {
			return vaulterr.New(vaulterr.InvalidInput, "ingest", err)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return vaulterr.New(vaulterr.Canceled, "ingest", err)
			}
			return vaulterr.New(vaulterr.RemoteTransient, "ingest", err)
		}
		defer resp.Body.Close()

		if err := fetchStatusError(resp.StatusCode); err != nil {
			return err
		}

		local = filepath.Join(dir, ingestName(src, filename, resp.Header.Get("Content-Type"), time.Now()))
		f, err := os.Create(local)
		if err != nil {
			return vaulterr.New(vaulterr.IOError, "ingest", err)
		}
		n, err := io.Copy(f, resp.Body)
		if closeErr := f.Close(); err == nil && closeErr != nil {
			return vaulterr.New(vaulterr.IOError, "ingest", closeErr)
		}
		if err != nil {
			return vaulterr.New(vaulterr.RemoteTransient, "ingest", fmt.Errorf("failed to read body: %w", err))
		}
		if resp.ContentLength >= 0 && n != resp.ContentLength {
			return vaulterr.Errorf(vaulterr.RemoteTransient, "ingest", "short body: got %d of %d bytes", n, resp.ContentLength)
		}

		log.WithFields(logrus.Fields{
			"file":  filepath.Base(local),
			"bytes": humanize.Bytes(uint64(n)),
		}).Info("url fetched")
		return nil
	})
	if err != nil {
		return "", err
	}
	return local, nil
}

func fetchStatusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return vaulterr.Errorf(vaulterr.RemoteNotFound, "ingest", "source returned %d", code)
	case code == http.StatusTooManyRequests || code >= 500:
		return vaulterr.Errorf(vaulterr.RemoteTransient, "ingest", "source returned %d", code)
	default:
		return vaulterr.Errorf(vaulterr.RemoteRejected, "ingest", "source returned %d", code)
	}
}

// ingestName picks the local file name for a fetched URL.
func ingestName(src *url.URL, filename, contentType string, now time.Time) string {
	name := cleanName(filename)
	if name == "" {
		name = cleanName(src.Path)
	}
	if name == "" {
		name = fmt.Sprintf("download_%d", now.Unix())
	}
	if path.Ext(name) != "" {
		return name
	}
	ext := ".bin"
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	return name + ext
}

// cleanName reduces name to a single path element, or "" if nothing usable
// is left.
func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}

// maxCaptionLength is the Bot API limit for document captions, in characters.
const maxCaptionLength = 1024

func ingestCaption(name, caption, source string, now time.Time) string {
	lines := []string{"Title: " + name}
	if caption != "" {
		lines = append(lines, caption)
	}
	lines = append(lines,
		"Uploaded on "+now.Format("02 January, 2006 at 15:04"),
		"Source URL: "+source,
	)
	text := []rune(strings.Join(lines, "\n"))
	if len(text) > maxCaptionLength {
		text = text[:maxCaptionLength]
	}
	return string(text)
}
