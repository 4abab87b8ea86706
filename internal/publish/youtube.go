// Package publish uploads rendered videos to YouTube as Shorts.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/jwoolee/stylereel/internal/config"
)

// Result identifies an uploaded video.
type Result struct {
	VideoID string
	URL     string
}

// Publisher uploads a rendered video. Configured reports whether real
// uploads can happen; when false the pipeline marks uploads as skipped.
type Publisher interface {
	Configured() bool
	Publish(ctx context.Context, videoPath, title, description string) (Result, error)
}

// YouTubePublisher uploads through the YouTube Data API using a refresh
// token issued offline.
type YouTubePublisher struct {
	cfg    config.YouTubeConfig
	logger *slog.Logger
}

var _ Publisher = (*YouTubePublisher)(nil)

func NewYouTubePublisher(cfg config.YouTubeConfig, logger *slog.Logger) *YouTubePublisher {
	return &YouTubePublisher{cfg: cfg, logger: logger}
}

func (p *YouTubePublisher) Configured() bool {
	return p.cfg.ClientID != "" && p.cfg.ClientSecret != "" && p.cfg.RefreshToken != ""
}

func (p *YouTubePublisher) Publish(ctx context.Context, videoPath, title, description string) (Result, error) {
	if !p.Configured() {
		return Result{}, fmt.Errorf("publish: youtube credentials not configured")
	}

	file, err := os.Open(videoPath)
	if err != nil {
		return Result{}, fmt.Errorf("publish: open video: %w", err)
	}
	defer file.Close()

	oauthCfg := &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope},
	}
	httpClient := oauthCfg.Client(ctx, &oauth2.Token{RefreshToken: p.cfg.RefreshToken})

	svc, err := youtube.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return Result{}, fmt.Errorf("publish: youtube service: %w", err)
	}

	upload := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: description,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           p.cfg.PrivacyStatus,
			SelfDeclaredMadeForKids: false,
		},
	}

	call := svc.Videos.Insert([]string{"snippet", "status"}, upload).Media(file)
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return Result{}, fmt.Errorf("publish: upload: %w", err)
	}

	result := Result{
		VideoID: resp.Id,
		URL:     "https://www.youtube.com/watch?v=" + resp.Id,
	}
	p.logger.Info("video published", "video_id", resp.Id, "privacy", p.cfg.PrivacyStatus)
	return result, nil
}

// Noop is used when no credentials are configured; Publish always errors
// so callers fall through to the skipped path after checking Configured.
type Noop struct{}

var _ Publisher = (*Noop)(nil)

func (Noop) Configured() bool { return false }

func (Noop) Publish(context.Context, string, string, string) (Result, error) {
	return Result{}, fmt.Errorf("publish: no publisher configured")
}
