// Package render turns a job's source photo into a short vertical video.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwoolee/stylereel/internal/assets"
)

// Renderer produces the output video for a job and returns its path.
type Renderer interface {
	Render(ctx context.Context, jobID uuid.UUID, imagePath string) (string, error)
}

// FFmpegRenderer shells out to ffmpeg to loop the still photo into a
// 1080x1920 clip with a silent audio track.
type FFmpegRenderer struct {
	storage *assets.Storage
	seconds float64
	timeout time.Duration
	logger  *slog.Logger
}

var _ Renderer = (*FFmpegRenderer)(nil)

func NewFFmpegRenderer(storage *assets.Storage, seconds float64, logger *slog.Logger) *FFmpegRenderer {
	return &FFmpegRenderer{
		storage: storage,
		seconds: seconds,
		timeout: 2 * time.Minute,
		logger:  logger,
	}
}

func (r *FFmpegRenderer) Render(ctx context.Context, jobID uuid.UUID, imagePath string) (string, error) {
	if imagePath == "" {
		return "", fmt.Errorf("render: no source image")
	}
	if _, err := os.Stat(imagePath); err != nil {
		return "", fmt.Errorf("render: source image: %w", err)
	}
	output := r.storage.VideoPath(jobID)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Scale to fit, pad to portrait, pair with silent audio so upload
	// targets that require an audio stream accept the file.
	filter := "scale=1080:1920:force_original_aspect_ratio=decrease," +
		"pad=1080:1920:(ow-iw)/2:(oh-ih)/2:color=black,format=yuv420p"
	args := []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-f", "lavfi",
		"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		"-t", fmt.Sprintf("%.2f", r.seconds),
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-c:a", "aac",
		"-shortest",
		output,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		os.Remove(output)
		return "", fmt.Errorf("render: ffmpeg: %w: %s", err, tail(stderr.String(), 400))
	}
	r.logger.Info("video rendered", "job_id", jobID, "output", output, "duration", time.Since(start))
	return output, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// StubRenderer writes a placeholder file instead of invoking ffmpeg. Used
// in tests and when real rendering is disabled.
type StubRenderer struct {
	storage *assets.Storage

	// Fail forces the next Render call to error.
	Fail bool
}

var _ Renderer = (*StubRenderer)(nil)

func NewStubRenderer(storage *assets.Storage) *StubRenderer {
	return &StubRenderer{storage: storage}
}

func (r *StubRenderer) Render(_ context.Context, jobID uuid.UUID, _ string) (string, error) {
	if r.Fail {
		return "", fmt.Errorf("render: stub failure")
	}
	output := r.storage.VideoPath(jobID)
	if err := os.WriteFile(output, []byte("FAKE_MP4_FOR_TEST"), 0o644); err != nil {
		return "", fmt.Errorf("render: write stub video: %w", err)
	}
	return output, nil
}
