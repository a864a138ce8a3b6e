package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jaywantadh/TeleVault/internal/compressor"
	"github.com/jaywantadh/TeleVault/internal/metadata"
	"github.com/jaywantadh/TeleVault/internal/retry"
	"github.com/jaywantadh/TeleVault/internal/storage"
	"github.com/jaywantadh/TeleVault/internal/vaulterr"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testOptions(t *testing.T) Options {
	t.Helper()
	opts := DefaultOptions()
	opts.TempDir = t.TempDir()
	opts.Retry = retry.Config{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
	return opts
}

func writeRandomFile(t *testing.T, name string, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	rand.New(rand.NewSource(int64(size))).Read(data)
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write source file: %v", err)
	}
	return path, data
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		t.Errorf("temp file left behind: %s", e.Name())
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 999, 1000, 1001, 5000}

	for _, size := range sizes {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			store := newMemStore()
			opts := testOptions(t)
			up := NewUploader(store, opts, quietLogger(), nil)
			down := NewDownloader(store, opts, quietLogger(), nil)

			path, data := writeRandomFile(t, "video.mp4", size)
			m, err := up.UploadFile(context.Background(), path, "", 1000)
			if err != nil {
				t.Fatalf("UploadFile failed: %v", err)
			}

			wantChunks := (size + 999) / 1000
			if size == 0 {
				wantChunks = 1
			}
			if m.Chunks != wantChunks || len(m.ChunkFileIDs) != wantChunks {
				t.Fatalf("manifest has %d chunks / %d ids, want %d", m.Chunks, len(m.ChunkFileIDs), wantChunks)
			}
			if m.OriginalFilename != "video.mp4" || m.OriginalSize != int64(size) {
				t.Errorf("manifest = %+v", m)
			}
			if store.puts() != wantChunks {
				t.Errorf("made %d remote writes, want %d", store.puts(), wantChunks)
			}

			out := filepath.Join(t.TempDir(), "restored.mp4")
			got, err := down.DownloadManifest(context.Background(), m, out)
			if err != nil {
				t.Fatalf("DownloadManifest failed: %v", err)
			}
			if got != out {
				t.Errorf("returned path %q, want %q", got, out)
			}
			restored, err := os.ReadFile(out)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(restored, data) {
				t.Errorf("restored %d bytes do not match original %d bytes", len(restored), len(data))
			}

			plain := filepath.Join(t.TempDir(), "plain.mp4")
			if _, err := down.DownloadFile(context.Background(), m.References(), plain); err != nil {
				t.Fatalf("DownloadFile failed: %v", err)
			}
			restored, _ = os.ReadFile(plain)
			if !bytes.Equal(restored, data) {
				t.Errorf("reference list download does not match original")
			}

			assertNoTempFiles(t, opts.TempDir)
		})
	}
}

func TestUploadChunkSizes(t *testing.T) {
	store := newMemStore()
	up := NewUploader(store, testOptions(t), quietLogger(), nil)

	path, _ := writeRandomFile(t, "big.bin", 5_000_000)
	m, err := up.UploadFile(context.Background(), path, "", 2_000_000)
	if err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}
	want := []int{2_000_000, 2_000_000, 1_000_000}
	if m.Chunks != len(want) {
		t.Fatalf("got %d chunks, want %d", m.Chunks, len(want))
	}
	for i, ref := range m.ChunkFileIDs {
		if got := len(store.object(ref)); got != want[i] {
			t.Errorf("chunk %d stored %d bytes, want %d", i, got, want[i])
		}
	}
}

func TestUploadRejectsBadChunkSize(t *testing.T) {
	store := newMemStore()
	up := NewUploader(store, testOptions(t), quietLogger(), nil)
	path, _ := writeRandomFile(t, "a.bin", 10)

	for _, size := range []int64{-1, 2_040_109_466} {
		if _, err := up.UploadFile(context.Background(), path, "", size); !errors.Is(err, vaulterr.InvalidInput) {
			t.Errorf("chunk size %d: got %v, want InvalidInput", size, err)
		}
	}
	if store.puts() != 0 {
		t.Errorf("no remote calls expected, got %d", store.puts())
	}
}

func TestUploadMissingSource(t *testing.T) {
	up := NewUploader(newMemStore(), testOptions(t), quietLogger(), nil)
	_, err := up.UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope.bin"), "", 10)
	if !errors.Is(err, vaulterr.IOError) {
		t.Errorf("got %v, want IOError", err)
	}
}

func TestUploadCaptionOnFirstChunkOnly(t *testing.T) {
	store := newMemStore()
	up := NewUploader(store, testOptions(t), quietLogger(), nil)
	path, _ := writeRandomFile(t, "clip.webm", 30)

	if _, err := up.UploadFile(context.Background(), path, "My Video", 10); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"chunk_0.bin": "My Video",
		"chunk_1.bin": "Chunk 1",
		"chunk_2.bin": "Chunk 2",
	}
	for name, caption := range want {
		got, ok := store.caption(name)
		if !ok {
			t.Errorf("no object named %s", name)
			continue
		}
		if got != caption {
			t.Errorf("%s caption = %q, want %q", name, got, caption)
		}
	}
}

func TestParallelUploadKeepsOrder(t *testing.T) {
	store := newMemStore()
	store.putDelay = func(name string) time.Duration {
		// Later chunks finish first.
		var i int
		fmt.Sscanf(name, "chunk_%d.bin", &i)
		return time.Duration(20-i) * time.Millisecond
	}
	opts := testOptions(t)
	opts.Concurrency = 4
	progress := NewProgressTracker(quietLogger())
	up := NewUploader(store, opts, quietLogger(), progress)

	path, data := writeRandomFile(t, "parallel.bin", 2000)
	m, err := up.UploadFile(context.Background(), path, "", 100)
	if err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}
	for i, ref := range m.ChunkFileIDs {
		if !bytes.Equal(store.object(ref), data[i*100:(i+1)*100]) {
			t.Fatalf("reference %d does not hold chunk %d", i, i)
		}
	}

	p, ok := progress.GetProgress(m.ID)
	if !ok {
		t.Fatal("transfer was not tracked")
	}
	if p.Status != StatusCompleted || p.ChunksDone != 20 || p.BytesDone != 2000 {
		t.Errorf("progress = %+v", p)
	}
	assertNoTempFiles(t, opts.TempDir)
}

func TestUploadRejectedChunkAborts(t *testing.T) {
	store := newMemStore()
	store.putErrs[2] = vaulterr.Errorf(vaulterr.RemoteRejected, "send_document", "file too big")
	opts := testOptions(t)
	up := NewUploader(store, opts, quietLogger(), nil)
	path, _ := writeRandomFile(t, "a.bin", 35)

	m, err := up.UploadFile(context.Background(), path, "", 10)
	if m != nil {
		t.Fatalf("expected no manifest on failure, got %+v", m)
	}
	if !errors.Is(err, vaulterr.RemoteRejected) {
		t.Fatalf("got %v, want RemoteRejected", err)
	}
	if got := vaulterr.CompletedOf(err); got != 1 {
		t.Errorf("completed = %d, want 1", got)
	}
	if store.puts() != 2 {
		t.Errorf("rejected chunk must not be retried or followed, got %d puts", store.puts())
	}
	assertNoTempFiles(t, opts.TempDir)
}

func TestParallelUploadRejectedChunkAborts(t *testing.T) {
	store := newMemStore()
	store.putErrs[3] = vaulterr.Errorf(vaulterr.RemoteRejected, "send_document", "file too big")
	store.putDelay = func(string) time.Duration { return 2 * time.Millisecond }
	opts := testOptions(t)
	opts.Concurrency = 4
	progress := NewProgressTracker(quietLogger())
	up := NewUploader(store, opts, quietLogger(), progress)
	path, _ := writeRandomFile(t, "parallel.bin", 200)

	m, err := up.UploadFile(context.Background(), path, "", 10)
	if m != nil {
		t.Fatalf("expected no manifest on failure, got %+v", m)
	}
	if !errors.Is(err, vaulterr.RemoteRejected) {
		t.Fatalf("got %v, want RemoteRejected", err)
	}
	if store.puts() >= 20 {
		t.Errorf("feeding did not stop after the rejected chunk, got %d puts", store.puts())
	}
	all := progress.GetAllProgress()
	if len(all) != 1 || all[0].Status != StatusFailed {
		t.Errorf("progress = %+v", all)
	}
	assertNoTempFiles(t, opts.TempDir)
}

func TestUploadRetriesTransientFailure(t *testing.T) {
	store := newMemStore()
	store.putErrs[1] = vaulterr.Errorf(vaulterr.RemoteTransient, "send_document", "429 Too Many Requests")
	up := NewUploader(store, testOptions(t), quietLogger(), nil)
	path, data := writeRandomFile(t, "a.bin", 25)

	m, err := up.UploadFile(context.Background(), path, "", 10)
	if err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}
	if store.puts() != 4 {
		t.Errorf("puts = %d, want 4 (3 chunks + 1 retry)", store.puts())
	}
	if !bytes.Equal(store.object(m.ChunkFileIDs[0]), data[:10]) {
		t.Errorf("retried chunk content mismatch")
	}
}

func TestUploadGivesUpAfterRetries(t *testing.T) {
	store := newMemStore()
	for call := 1; call <= 3; call++ {
		store.putErrs[call] = vaulterr.Errorf(vaulterr.RemoteTransient, "send_document", "network down")
	}
	up := NewUploader(store, testOptions(t), quietLogger(), nil)
	path, _ := writeRandomFile(t, "a.bin", 25)

	_, err := up.UploadFile(context.Background(), path, "", 10)
	if !errors.Is(err, vaulterr.RemoteTransient) {
		t.Fatalf("got %v, want RemoteTransient", err)
	}
	if store.puts() != 3 {
		t.Errorf("puts = %d, want 3", store.puts())
	}
}

func TestUploadStopsBetweenChunksOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newMemStore()
	store.onPut = func(call int) {
		if call == 1 {
			cancel()
		}
	}
	up := NewUploader(store, testOptions(t), quietLogger(), nil)
	path, _ := writeRandomFile(t, "a.bin", 30)

	_, err := up.UploadFile(ctx, path, "", 10)
	if !errors.Is(err, vaulterr.Canceled) {
		t.Fatalf("got %v, want Canceled", err)
	}
	if store.puts() != 1 {
		t.Errorf("the in-flight chunk should finish and no more start, got %d puts", store.puts())
	}
	if got := vaulterr.CompletedOf(err); got != 1 {
		t.Errorf("completed = %d, want 1", got)
	}
}

func TestUploadFileTimeout(t *testing.T) {
	store := newMemStore()
	store.putDelay = func(string) time.Duration { return 30 * time.Millisecond }
	opts := testOptions(t)
	opts.FileTimeout = 10 * time.Millisecond
	up := NewUploader(store, opts, quietLogger(), nil)
	path, _ := writeRandomFile(t, "a.bin", 30)

	_, err := up.UploadFile(context.Background(), path, "", 10)
	if !errors.Is(err, vaulterr.Canceled) {
		t.Fatalf("got %v, want Canceled", err)
	}
	if store.puts() != 1 {
		t.Errorf("puts = %d, want 1", store.puts())
	}
}

func TestDownloadEmptyReferences(t *testing.T) {
	down := NewDownloader(newMemStore(), testOptions(t), quietLogger(), nil)
	out := filepath.Join(t.TempDir(), "out.bin")

	_, err := down.DownloadFile(context.Background(), nil, out)
	if !errors.Is(err, vaulterr.InvalidInput) {
		t.Fatalf("got %v, want InvalidInput", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Errorf("output file must not be created, stat err = %v", statErr)
	}
}

func TestDownloadNotFoundLeavesPartialOutput(t *testing.T) {
	store := newMemStore()
	opts := testOptions(t)
	up := NewUploader(store, opts, quietLogger(), nil)
	down := NewDownloader(store, opts, quietLogger(), nil)

	path, data := writeRandomFile(t, "a.bin", 30)
	m, err := up.UploadFile(context.Background(), path, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	refs := m.References()
	refs[1] = "deleted-ref"

	out := filepath.Join(t.TempDir(), "out.bin")
	_, err = down.DownloadFile(context.Background(), refs, out)
	if !errors.Is(err, vaulterr.RemoteNotFound) {
		t.Fatalf("got %v, want RemoteNotFound", err)
	}
	if got := vaulterr.CompletedOf(err); got != 1 {
		t.Errorf("completed = %d, want 1", got)
	}
	if store.gets() != 2 {
		t.Errorf("not found must abort without retry or further fetches, got %d gets", store.gets())
	}

	partial, readErr := os.ReadFile(out)
	if readErr != nil {
		t.Fatalf("partial output should remain: %v", readErr)
	}
	if !bytes.Equal(partial, data[:10]) {
		t.Errorf("partial output holds %d bytes, want the first chunk", len(partial))
	}
	assertNoTempFiles(t, opts.TempDir)
}

func TestDownloadRetriesTransientFetch(t *testing.T) {
	store := newMemStore()
	store.partialGet = true
	opts := testOptions(t)
	up := NewUploader(store, opts, quietLogger(), nil)
	down := NewDownloader(store, opts, quietLogger(), nil)

	path, data := writeRandomFile(t, "a.bin", 30)
	m, err := up.UploadFile(context.Background(), path, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	store.getErrs[m.ChunkFileIDs[1]] = []error{
		vaulterr.Errorf(vaulterr.RemoteTransient, "get_file", "connection reset"),
	}

	out := filepath.Join(t.TempDir(), "out.bin")
	if _, err := down.DownloadManifest(context.Background(), m, out); err != nil {
		t.Fatalf("DownloadManifest failed: %v", err)
	}
	restored, _ := os.ReadFile(out)
	if !bytes.Equal(restored, data) {
		t.Errorf("a retried fetch must not leave partial bytes in the output")
	}
}

func TestDownloadDetectsCorruptChunk(t *testing.T) {
	store := newMemStore()
	opts := testOptions(t)
	up := NewUploader(store, opts, quietLogger(), nil)
	down := NewDownloader(store, opts, quietLogger(), nil)

	path, data := writeRandomFile(t, "a.bin", 30)
	m, err := up.UploadFile(context.Background(), path, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	corrupt := append([]byte(nil), store.object(m.ChunkFileIDs[1])...)
	corrupt[0] ^= 0xff
	store.setObject(m.ChunkFileIDs[1], corrupt)

	out := filepath.Join(t.TempDir(), "out.bin")
	_, err = down.DownloadManifest(context.Background(), m, out)
	if !errors.Is(err, vaulterr.Integrity) {
		t.Fatalf("got %v, want Integrity", err)
	}
	partial, _ := os.ReadFile(out)
	if !bytes.Equal(partial, data[:10]) {
		t.Errorf("corrupt chunk should be rolled back, output has %d bytes", len(partial))
	}
}

func TestDownloadDetectsShortChunk(t *testing.T) {
	store := newMemStore()
	opts := testOptions(t)
	up := NewUploader(store, opts, quietLogger(), nil)
	down := NewDownloader(store, opts, quietLogger(), nil)

	path, _ := writeRandomFile(t, "a.bin", 30)
	m, err := up.UploadFile(context.Background(), path, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	m.ChunkChecksums = nil
	store.setObject(m.ChunkFileIDs[2], []byte("short"))

	_, err = down.DownloadManifest(context.Background(), m, filepath.Join(t.TempDir(), "out.bin"))
	if !errors.Is(err, vaulterr.Integrity) {
		t.Fatalf("got %v, want Integrity", err)
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	for _, codec := range []string{compressor.LZ4, compressor.Zstd} {
		t.Run(codec, func(t *testing.T) {
			store := newMemStore()
			opts := testOptions(t)
			opts.Compression = codec
			up := NewUploader(store, opts, quietLogger(), nil)
			down := NewDownloader(store, opts, quietLogger(), nil)

			data := bytes.Repeat([]byte("televault compresses repetitive text well. "), 500)
			path := filepath.Join(t.TempDir(), "notes.txt")
			if err := os.WriteFile(path, data, 0644); err != nil {
				t.Fatal(err)
			}

			m, err := up.UploadFile(context.Background(), path, "", 4096)
			if err != nil {
				t.Fatalf("UploadFile failed: %v", err)
			}
			if m.Compression != codec {
				t.Errorf("manifest compression = %q, want %q", m.Compression, codec)
			}
			if stored := len(store.object(m.ChunkFileIDs[0])); stored >= 4096 {
				t.Errorf("first chunk stored %d bytes, expected it to shrink", stored)
			}

			out := filepath.Join(t.TempDir(), "notes.out")
			if _, err := down.DownloadManifest(context.Background(), m, out); err != nil {
				t.Fatalf("DownloadManifest failed: %v", err)
			}
			restored, _ := os.ReadFile(out)
			if !bytes.Equal(restored, data) {
				t.Errorf("decompressed output does not match original")
			}
			assertNoTempFiles(t, opts.TempDir)
		})
	}
}

func TestServiceArchiveRestore(t *testing.T) {
	objects, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "objects"))
	if err != nil {
		t.Fatal(err)
	}
	manifests, err := metadata.OpenManifestStore(metadata.DriverBolt, filepath.Join(t.TempDir(), "manifests.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer manifests.Close()

	opts := testOptions(t)
	opts.MaxChunkSize = 64
	svc := NewService(objects, manifests, opts, quietLogger())

	path, data := writeRandomFile(t, "song.m4a", 200)
	m, err := svc.Archive(context.Background(), path, "Song")
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if m.ID == "" || m.Chunks != 4 {
		t.Fatalf("manifest = %+v", m)
	}

	list, err := svc.List()
	if err != nil || len(list) != 1 || list[0].ID != m.ID {
		t.Fatalf("List = %v, %v", list, err)
	}

	out := filepath.Join(t.TempDir(), "restored.m4a")
	if _, err := svc.Restore(context.Background(), m.ID, out); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	restored, _ := os.ReadFile(out)
	if !bytes.Equal(restored, data) {
		t.Errorf("restored file does not match")
	}

	if len(svc.Progress().GetAllProgress()) != 2 {
		t.Errorf("expected one upload and one download to be tracked")
	}

	if err := svc.Delete(m.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.Restore(context.Background(), m.ID, out); !errors.Is(err, vaulterr.RemoteNotFound) {
		t.Errorf("restoring a deleted manifest: got %v, want RemoteNotFound", err)
	}
}
