// Package media republishes channel media into the AI provider's file store.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/chatrelay/chatrelay/internal/assistant"
)

// Downloader fetches media bytes from the messaging channel.
type Downloader interface {
	DownloadMedia(ctx context.Context, mediaID string) (data []byte, mimeType string, err error)
}

// Uploader publishes a file to the AI provider.
type Uploader interface {
	UploadFile(ctx context.Context, filename string, data io.Reader, purpose string) (assistant.File, error)
}

// Bridge moves one media object from the channel to the provider. It does
// not retry; retry policy belongs to the caller.
type Bridge struct {
	downloader Downloader
	uploader   Uploader
	logger     *slog.Logger
}

// NewBridge creates a media bridge.
func NewBridge(log *slog.Logger, downloader Downloader, uploader Uploader) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		downloader: downloader,
		uploader:   uploader,
		logger:     log.With(slog.String("service", "media")),
	}
}

// FetchAndRepublish downloads the media once, uploads it for vision use, and
// returns the provider file id.
func (b *Bridge) FetchAndRepublish(ctx context.Context, mediaID string) (string, error) {
	data, mimeType, err := b.downloader.DownloadMedia(ctx, mediaID)
	if err != nil {
		return "", fmt.Errorf("download media %s: %w", mediaID, err)
	}

	filename := fmt.Sprintf("whatsapp_image_%s%s", mediaID, extensionFromMime(mimeType))
	file, err := b.uploader.UploadFile(ctx, filename, bytes.NewReader(data), "vision")
	if err != nil {
		return "", fmt.Errorf("upload media %s: %w", mediaID, err)
	}
	if file.ID == "" {
		return "", fmt.Errorf("upload media %s: provider returned no file id", mediaID)
	}

	b.logger.Debug("media republished",
		slog.String("media_id", mediaID),
		slog.String("file_id", file.ID),
		slog.Int("size_bytes", len(data)))
	return file.ID, nil
}

func extensionFromMime(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
