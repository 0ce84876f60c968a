package codec

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// exportPrefix names every file the transcoder writes so the janitor
// never touches anything else in the output directory.
const exportPrefix = "stt_"

// janitorInterval is how often the janitor sweeps the output directory.
const janitorInterval = 5 * time.Minute

// Config contains transcoder configuration.
type Config struct {
	FFmpegPath    string        // ffmpeg binary, resolved via PATH when bare
	OutputDir     string        // directory for exported MP3 files
	MaxConcurrent int           // bound on simultaneous ffmpeg invocations
	StaleMaxAge   time.Duration // exports older than this are evicted
}

// Transcoder converts WAV buffers to MP3 files on disk. Conversion is
// CPU-bound and runs through a semaphore-bounded pool so concurrent
// utterances cannot saturate the host.
type Transcoder struct {
	config    Config
	logger    *slog.Logger
	semaphore chan struct{}

	// Statistics
	conversions uint64
	failures    uint64
	evicted     uint64

	// Janitor control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu sync.RWMutex
}

// TranscoderStats represents transcoder statistics.
type TranscoderStats struct {
	Conversions   uint64 `json:"conversions"`
	Failures      uint64 `json:"failures"`
	EvictedFiles  uint64 `json:"evicted_files"`
	OutputDir     string `json:"output_dir"`
	MaxConcurrent int    `json:"max_concurrent"`
}

// NewTranscoder creates a transcoder and ensures the output directory
// exists. The ffmpeg binary is not probed until the first conversion.
func NewTranscoder(config Config, logger *slog.Logger) (*Transcoder, error) {
	if config.FFmpegPath == "" {
		config.FFmpegPath = "ffmpeg"
	}

	if config.OutputDir == "" {
		return nil, fmt.Errorf("output directory cannot be empty")
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 2
	}

	if config.StaleMaxAge <= 0 {
		config.StaleMaxAge = time.Hour
	}

	if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", config.OutputDir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Transcoder{
		config:    config,
		logger:    logger,
		semaphore: make(chan struct{}, config.MaxConcurrent),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Transcode converts a WAV buffer to an MP3 file and returns its path.
// The call blocks while waiting for a pool slot and for ffmpeg to finish;
// cancellation of ctx aborts both.
func (t *Transcoder) Transcode(ctx context.Context, wav []byte) (string, error) {
	select {
	case t.semaphore <- struct{}{}:
		defer func() { <-t.semaphore }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	outputPath := t.exportPath()

	cmd := exec.CommandContext(ctx, t.config.FFmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-f", "wav", "-i", "pipe:0",
		"-codec:a", "libmp3lame", "-qscale:a", "2",
		"-y", outputPath,
	)
	cmd.Stdin = bytes.NewReader(wav)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		t.recordFailure()
		os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg conversion failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	t.recordConversion()
	t.logger.Debug("Converted utterance to MP3",
		slog.String("path", outputPath),
		slog.Int("wav_bytes", len(wav)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return outputPath, nil
}

// exportPath builds a collision-free output path. The timestamp keeps the
// on-disk naming scheme operators expect; the uuid suffix keeps two
// utterances in the same second from colliding.
func (t *Transcoder) exportPath() string {
	name := fmt.Sprintf("%s%s_%s.mp3",
		exportPrefix,
		time.Now().Format("20060102150405"),
		uuid.NewString()[:8],
	)
	return filepath.Join(t.config.OutputDir, name)
}

// StartJanitor launches the background sweep that evicts stale exports.
// Nothing else removes exported files, so without the janitor the output
// directory grows without bound.
func (t *Transcoder) StartJanitor() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				removed, err := t.SweepStale()
				if err != nil {
					t.logger.Warn("Export janitor sweep failed", slog.String("error", err.Error()))
				} else if removed > 0 {
					t.logger.Info("Evicted stale MP3 exports", slog.Int("removed", removed))
				}
			case <-t.ctx.Done():
				return
			}
		}
	}()
}

// SweepStale removes exports older than the configured max age and
// returns how many files were deleted.
func (t *Transcoder) SweepStale() (int, error) {
	entries, err := os.ReadDir(t.config.OutputDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read output directory: %w", err)
	}

	cutoff := time.Now().Add(-t.config.StaleMaxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), exportPrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(t.config.OutputDir, entry.Name())); err != nil {
			t.logger.Warn("Failed to remove stale export",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		t.mu.Lock()
		t.evicted += uint64(removed)
		t.mu.Unlock()
	}

	return removed, nil
}

// Stop shuts down the janitor and waits for it to exit.
func (t *Transcoder) Stop() {
	t.cancel()
	t.wg.Wait()
}

// GetStats returns current transcoder statistics.
func (t *Transcoder) GetStats() TranscoderStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return TranscoderStats{
		Conversions:   t.conversions,
		Failures:      t.failures,
		EvictedFiles:  t.evicted,
		OutputDir:     t.config.OutputDir,
		MaxConcurrent: t.config.MaxConcurrent,
	}
}

func (t *Transcoder) recordConversion() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conversions++
}

func (t *Transcoder) recordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures++
}
