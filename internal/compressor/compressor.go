package compressor

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec names as recorded in a transfer manifest.
const (
	None = "none"
	LZ4  = "lz4"
	Zstd = "zstd"
	Auto = "auto"
)

var skipExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".webm": true, ".mov": true, ".avi": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".zip": true, ".rar": true, ".7z": true, ".gz": true, ".zst": true,
	".mp3": true, ".m4a": true, ".opus": true, ".flac": true, ".aac": true,
	".apk": true, ".iso": true,
}

// ShouldSkipCompression reports whether the file is already compressed media.
func ShouldSkipCompression(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	return skipExtensions[ext]
}

// Resolve turns a configured mode into the codec actually used for filePath.
// An empty mode means no compression.
func Resolve(mode, filePath string) (string, error) {
	switch mode {
	case "", None:
		return None, nil
	case LZ4, Zstd:
		return mode, nil
	case Auto:
		if ShouldSkipCompression(filePath) {
			return None, nil
		}
		return LZ4, nil
	default:
		return "", fmt.Errorf("unknown compression mode %q", mode)
	}
}

// Known reports whether codec can be decoded by NewReader.
func Known(codec string) bool {
	switch codec {
	case "", None, LZ4, Zstd:
		return true
	}
	return false
}

// Compress copies src into dst encoded with codec.
func Compress(codec string, dst io.Writer, src io.Reader) (int64, error) {
	switch codec {
	case "", None:
		return io.Copy(dst, src)
	case LZ4:
		w := lz4.NewWriter(dst)
		n, err := io.Copy(w, src)
		if err != nil {
			return n, fmt.Errorf("lz4 compression failed: %w", err)
		}
		return n, w.Close()
	case Zstd:
		w, err := zstd.NewWriter(dst)
		if err != nil {
			return 0, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		n, err := io.Copy(w, src)
		if err != nil {
			w.Close()
			return n, fmt.Errorf("zstd compression failed: %w", err)
		}
		return n, w.Close()
	default:
		return 0, fmt.Errorf("unknown codec %q", codec)
	}
}

// NewReader wraps src so reads return the decoded bytes.
func NewReader(codec string, src io.Reader) (io.ReadCloser, error) {
	switch codec {
	case "", None:
		return io.NopCloser(src), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(src)), nil
	case Zstd:
		d, err := zstd.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		return d.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", codec)
	}
}
