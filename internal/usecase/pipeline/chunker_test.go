package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestShouldChunk_ThresholdWithHeadroom(t *testing.T) {
	c := NewAudioChunker(1800, t.TempDir(), time.Hour, nil)

	cases := []struct {
		duration float64
		want     bool
	}{
		{600, false},
		{1800, false},
		// Within the 20% headroom: splitting buys nothing.
		{2000, false},
		{2159.9, false},
		// The headroom boundary itself chunks.
		{2160, true},
		{2160.5, true},
		{7200, true},
	}
	for _, tc := range cases {
		if got := c.ShouldChunk(tc.duration); got != tc.want {
			t.Errorf("ShouldChunk(%v) = %v, want %v", tc.duration, got, tc.want)
		}
	}
}

func TestShouldChunk_DefaultsOnZeroThreshold(t *testing.T) {
	c := NewAudioChunker(0, t.TempDir(), 0, nil)
	if c.ShouldChunk(2000) {
		t.Fatalf("default threshold should be 1800 with headroom")
	}
	if !c.ShouldChunk(3000) {
		t.Fatalf("3000s must chunk under the default threshold")
	}
}

func TestCleanup_OnlyRemovesFilesUnderWorkDir(t *testing.T) {
	workDir := t.TempDir()
	jobDir := filepath.Join(workDir, "job")
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		t.Fatal(err)
	}
	chunkPath := filepath.Join(jobDir, "chunk_000.mp3")
	if err := os.WriteFile(chunkPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	outside := filepath.Join(t.TempDir(), "source.mp3")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewAudioChunker(1800, workDir, time.Hour, nil)
	c.Cleanup([]Chunk{
		{Index: 0, Path: chunkPath},
		{Index: 1, Path: outside},
	})

	if _, err := os.Stat(chunkPath); !os.IsNotExist(err) {
		t.Fatalf("chunk file under work dir should be removed")
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("source file outside work dir must never be touched: %v", err)
	}
}

func TestSweep_RemovesOnlyStaleEntries(t *testing.T) {
	workDir := t.TempDir()

	stale := filepath.Join(workDir, "stale-job")
	fresh := filepath.Join(workDir, "fresh-job")
	for _, dir := range []string{stale, fresh} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	c := NewAudioChunker(1800, workDir, time.Hour, nil)
	c.Sweep()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale job dir should be swept")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh job dir must survive the sweep: %v", err)
	}
}

func TestSplit_ShortFileIsSingleChunk(t *testing.T) {
	c := NewAudioChunker(1800, t.TempDir(), time.Hour, nil)

	chunks, err := c.Split(context.Background(),"/audio/source.mp3", 900)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected single chunk, got %d", len(chunks))
	}
	if chunks[0].Path != "/audio/source.mp3" || chunks[0].StartOffset != 0 || chunks[0].Duration != 900 {
		t.Fatalf("unexpected chunk: %+v", chunks[0])
	}
}
