package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// chunkHeadroom lets files marginally over the threshold through unsplit.
// Chunking a 31-minute file into 30+1 buys nothing.
const chunkHeadroom = 1.2

// Chunk is one bounded slice of a recording, owned by the job that split it.
type Chunk struct {
	Index       int
	Path        string
	StartOffset float64
	Duration    float64
}

// AudioChunker splits long recordings into provider-sized pieces with ffmpeg
// stream copy and sweeps orphaned chunk files left by crashed jobs.
type AudioChunker struct {
	thresholdSec int
	workDir      string
	sweepAfter   time.Duration
	logger       *zap.Logger
}

// NewAudioChunker creates a chunker writing under workDir
func NewAudioChunker(thresholdSec int, workDir string, sweepAfter time.Duration, logger *zap.Logger) *AudioChunker {
	if thresholdSec <= 0 {
		thresholdSec = 1800
	}
	if sweepAfter <= 0 {
		sweepAfter = time.Hour
	}
	return &AudioChunker{
		thresholdSec: thresholdSec,
		workDir:      workDir,
		sweepAfter:   sweepAfter,
		logger:       logger,
	}
}

// ShouldChunk reports whether the recording must be split. True once the
// duration reaches the threshold with headroom.
func (c *AudioChunker) ShouldChunk(durationSeconds float64) bool {
	return durationSeconds >= float64(c.thresholdSec)*chunkHeadroom
}

// ProbeDuration reads the container duration with ffprobe
func (c *AudioChunker) ProbeDuration(ctx context.Context, localPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		localPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe returned unparseable duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return dur, nil
}

// Split cuts the file into threshold-sized chunks using stream copy, no
// re-encode. Boundaries are time-aligned, not content-aware. If ffmpeg is
// unavailable or fails, the whole file is returned as a single chunk and the
// provider's own size handling absorbs the risk.
func (c *AudioChunker) Split(ctx context.Context, localPath string, durationSeconds float64) ([]Chunk, error) {
	if !c.ShouldChunk(durationSeconds) {
		return []Chunk{{Index: 0, Path: localPath, StartOffset: 0, Duration: durationSeconds}}, nil
	}

	jobDir := filepath.Join(c.workDir, uuid.New().String())
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chunk dir: %w", err)
	}

	var chunks []Chunk
	threshold := float64(c.thresholdSec)
	ext := filepath.Ext(localPath)
	if ext == "" {
		ext = ".mp3"
	}

	for i := 0; ; i++ {
		offset := float64(i) * threshold
		if offset >= durationSeconds {
			break
		}
		length := threshold
		if offset+length > durationSeconds {
			length = durationSeconds - offset
		}

		chunkPath := filepath.Join(jobDir, fmt.Sprintf("chunk_%03d%s", i, ext))
		cmd := exec.CommandContext(ctx, "ffmpeg",
			"-hide_banner", "-loglevel", "error",
			"-ss", formatSeconds(offset),
			"-t", formatSeconds(length),
			"-i", localPath,
			"-c", "copy",
			"-y", chunkPath,
		)
		if err := cmd.Run(); err != nil {
			if c.logger != nil {
				c.logger.Warn("⚠️ ffmpeg split failed, falling back to single chunk",
					zap.Int("chunk_index", i),
					zap.Error(err),
				)
			}
			c.Cleanup(chunks)
			return []Chunk{{Index: 0, Path: localPath, StartOffset: 0, Duration: durationSeconds}}, nil
		}

		chunks = append(chunks, Chunk{
			Index:       i,
			Path:        chunkPath,
			StartOffset: offset,
			Duration:    length,
		})
	}

	if c.logger != nil {
		c.logger.Info("✂️ Recording split into chunks",
			zap.Int("chunk_count", len(chunks)),
			zap.Float64("duration_seconds", durationSeconds),
		)
	}
	return chunks, nil
}

// Cleanup deletes the job's chunk files unconditionally. The source file is
// never touched; only paths under the chunker's work dir are removed.
func (c *AudioChunker) Cleanup(chunks []Chunk) {
	dirs := map[string]struct{}{}
	for _, chunk := range chunks {
		if !strings.HasPrefix(chunk.Path, c.workDir) {
			continue
		}
		_ = os.Remove(chunk.Path)
		dirs[filepath.Dir(chunk.Path)] = struct{}{}
	}
	for dir := range dirs {
		_ = os.Remove(dir)
	}
}

// Sweep removes chunk files older than the sweep window. Bounds disk usage
// when a process crashed mid-job and never reached Cleanup.
func (c *AudioChunker) Sweep() {
	cutoff := time.Now().Add(-c.sweepAfter)
	entries, err := os.ReadDir(c.workDir)
	if err != nil {
		return
	}
	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(c.workDir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 && c.logger != nil {
		c.logger.Info("🧹 Swept stale chunk directories", zap.Int("removed", removed))
	}
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
