package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jaywantadh/TeleVault/internal/chunker"
	"github.com/jaywantadh/TeleVault/internal/metadata"
	"github.com/jaywantadh/TeleVault/internal/storage"
	"github.com/jaywantadh/TeleVault/internal/transfer"
	"github.com/jaywantadh/TeleVault/pkg/logging"
)

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func blake3File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return chunker.Checksum(f)
}

func main() {
	inputPath := flag.String("in", filepath.Join("samples", "sample.bin"), "file to round-trip")
	chunkSize := flag.Int64("chunk", 1<<20, "chunk size in bytes")
	compression := flag.String("compression", "auto", "none, lz4, zstd or auto")
	workDir := flag.String("work", "manualtest_out", "scratch directory")
	flag.Parse()

	if _, err := os.Stat(*inputPath); err != nil {
		fmt.Printf("❌ Sample file not found: %v\n", err)
		return
	}
	logger := logging.InitLogger(true)

	origHash, err := sha256File(*inputPath)
	if err != nil {
		fmt.Printf("❌ Failed hashing original: %v\n", err)
		return
	}
	fmt.Printf("📄 Original file: %s\n", *inputPath)
	fmt.Printf("🔑 Original SHA256: %s\n", origHash)

	_ = os.RemoveAll(*workDir)
	store, err := storage.NewLocalStorage(filepath.Join(*workDir, "objects"))
	if err != nil {
		fmt.Printf("❌ Storage init failed: %v\n", err)
		return
	}
	ms, err := metadata.OpenManifestStore(metadata.DriverBadger, filepath.Join(*workDir, "manifests"))
	if err != nil {
		fmt.Printf("❌ Manifest store init failed: %v\n", err)
		return
	}
	defer ms.Close()

	opts := transfer.DefaultOptions()
	opts.MaxChunkSize = *chunkSize
	opts.Compression = *compression
	opts.Concurrency = 4
	svc := transfer.NewService(store, ms, opts, logger)

	ctx := context.Background()
	m, err := svc.Archive(ctx, *inputPath, "manual test")
	if err != nil {
		fmt.Printf("❌ Archive failed: %v\n", err)
		return
	}
	fmt.Printf("🧩 Chunks uploaded: %d | Manifest: %s | Compression: %s\n", m.Chunks, m.ID, m.Compression)

	outPath := filepath.Join(*workDir, "reassembled_"+filepath.Base(*inputPath))
	if _, err := svc.Restore(ctx, m.ID, outPath); err != nil {
		fmt.Printf("❌ Restore failed: %v\n", err)
		return
	}

	reHash, err := sha256File(outPath)
	if err != nil {
		fmt.Printf("❌ Failed hashing reassembled: %v\n", err)
		return
	}
	origB3, _ := blake3File(*inputPath)
	reB3, _ := blake3File(outPath)
	fmt.Printf("📦 Reassembled file: %s\n", outPath)
	fmt.Printf("🔑 Reassembled SHA256: %s\n", reHash)

	if reHash == origHash && origB3 == reB3 {
		fmt.Println("✅ SUCCESS: Reassembled file matches original")
	} else {
		fmt.Println("❌ MISMATCH: Reassembled file differs from original")
	}
}
