package chunker

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaywantadh/TeleVault/internal/vaulterr"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		max   int64
		want  int
	}{
		{"empty file", 0, 10, 1},
		{"smaller than chunk", 3, 10, 1},
		{"exact multiple", 20, 10, 2},
		{"one over", 21, 10, 3},
		{"single byte chunks", 7, 1, 7},
		{"five megabyte scenario", 5_000_000, 2_000_000, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Plan(tt.total, tt.max)
			if err != nil {
				t.Fatalf("Plan(%d, %d) error: %v", tt.total, tt.max, err)
			}
			if got != tt.want {
				t.Errorf("Plan(%d, %d) = %d, want %d", tt.total, tt.max, got, tt.want)
			}
		})
	}
}

func TestPlanRejectsBadInput(t *testing.T) {
	for _, max := range []int64{0, -1} {
		if _, err := Plan(10, max); !errors.Is(err, vaulterr.InvalidInput) {
			t.Errorf("Plan(10, %d) error = %v, want InvalidInput", max, err)
		}
	}
	if _, err := Plan(-1, 10); !errors.Is(err, vaulterr.InvalidInput) {
		t.Errorf("Plan(-1, 10) error = %v, want InvalidInput", err)
	}
}

func TestRangesLastChunkSizing(t *testing.T) {
	ranges, err := Ranges(5_000_000, 2_000_000)
	if err != nil {
		t.Fatal(err)
	}
	wantLengths := []int64{2_000_000, 2_000_000, 1_000_000}
	if len(ranges) != len(wantLengths) {
		t.Fatalf("got %d ranges, want %d", len(ranges), len(wantLengths))
	}
	for i, r := range ranges {
		if r.Index != i || r.Offset != int64(i)*2_000_000 || r.Length != wantLengths[i] {
			t.Errorf("range %d = %+v", i, r)
		}
	}

	ranges, err = Ranges(20, 10)
	if err != nil {
		t.Fatal(err)
	}
	if last := ranges[len(ranges)-1]; last.Length != 10 {
		t.Errorf("last chunk of exact multiple has %d bytes, want 10", last.Length)
	}

	ranges, err = Ranges(0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranges) != 1 || ranges[0].Length != 0 {
		t.Errorf("empty file ranges = %+v, want one empty range", ranges)
	}
}

func TestValidateChunkSize(t *testing.T) {
	if err := ValidateChunkSize(MaxRemoteChunkSize); err != nil {
		t.Errorf("ceiling itself should be accepted: %v", err)
	}
	if err := ValidateChunkSize(MaxRemoteChunkSize + 1); !errors.Is(err, vaulterr.InvalidInput) {
		t.Errorf("expected InvalidInput above ceiling, got %v", err)
	}
}

func TestWriteChunkCopiesRange(t *testing.T) {
	dir := t.TempDir()
	src := bytes.NewReader([]byte("0123456789abcdef"))

	chunk, err := WriteChunk(src, dir, "t1", Range{Index: 1, Offset: 4, Length: 6})
	if err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	defer chunk.Remove()

	data, err := os.ReadFile(chunk.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "456789" {
		t.Errorf("chunk content = %q, want %q", data, "456789")
	}
	if !strings.Contains(filepath.Base(chunk.Path), "t1-chunk-1") {
		t.Errorf("temp name %q does not include transfer id and index", chunk.Path)
	}

	want, _ := Checksum(bytes.NewReader([]byte("456789")))
	if chunk.Checksum != want {
		t.Errorf("checksum = %s, want %s", chunk.Checksum, want)
	}
}

func TestWriteChunkTruncatedSource(t *testing.T) {
	dir := t.TempDir()
	src := bytes.NewReader([]byte("short"))

	_, err := WriteChunk(src, dir, "t2", Range{Index: 0, Offset: 0, Length: 10})
	if !errors.Is(err, vaulterr.IOError) {
		t.Fatalf("expected IOError for truncated source, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected temp dir to be empty after failure, found %d entries", len(entries))
	}
}

func TestWithChunkRemovesOnError(t *testing.T) {
	dir := t.TempDir()
	src := bytes.NewReader([]byte("payload"))
	boom := errors.New("upload failed")

	var seen string
	err := WithChunk(src, dir, "t3", Range{Index: 0, Length: 7}, func(c *TempChunk) error {
		seen = c.Path
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if _, statErr := os.Stat(seen); !os.IsNotExist(statErr) {
		t.Errorf("temp chunk %s still exists", seen)
	}
}

func TestAppendVerifiedRollsBack(t *testing.T) {
	out, err := os.Create(filepath.Join(t.TempDir(), "out.bin"))
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	good, _ := Checksum(strings.NewReader("hello "))
	if _, err := AppendVerified(out, strings.NewReader("hello "), 0, Expect{Size: 6, Checksum: good}); err != nil {
		t.Fatalf("first append failed: %v", err)
	}

	_, err = AppendVerified(out, strings.NewReader("world"), 1, Expect{Size: -1, Checksum: good})
	if !errors.Is(err, vaulterr.Integrity) {
		t.Fatalf("expected Integrity error, got %v", err)
	}

	data, _ := os.ReadFile(out.Name())
	if string(data) != "hello " {
		t.Errorf("output after rollback = %q, want %q", data, "hello ")
	}
}
