package media

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/chatrelay/chatrelay/internal/assistant"
)

type fakeDownloader struct {
	downloadFunc func(ctx context.Context, mediaID string) ([]byte, string, error)
}

func (f *fakeDownloader) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	if f.downloadFunc != nil {
		return f.downloadFunc(ctx, mediaID)
	}
	return []byte("jpeg-bytes"), "image/jpeg", nil
}

type fakeUploader struct {
	uploadFunc func(ctx context.Context, filename string, data io.Reader, purpose string) (assistant.File, error)
}

func (f *fakeUploader) UploadFile(ctx context.Context, filename string, data io.Reader, purpose string) (assistant.File, error) {
	if f.uploadFunc != nil {
		return f.uploadFunc(ctx, filename, data, purpose)
	}
	return assistant.File{ID: "file-1"}, nil
}

func TestFetchAndRepublish(t *testing.T) {
	t.Parallel()
	var gotFilename, gotPurpose, gotBody string
	up := &fakeUploader{
		uploadFunc: func(ctx context.Context, filename string, data io.Reader, purpose string) (assistant.File, error) {
			body, _ := io.ReadAll(data)
			gotFilename, gotPurpose, gotBody = filename, purpose, string(body)
			return assistant.File{ID: "file-42", Filename: filename}, nil
		},
	}
	b := NewBridge(nil, &fakeDownloader{}, up)

	fileID, err := b.FetchAndRepublish(context.Background(), "media-9")
	if err != nil {
		t.Fatalf("FetchAndRepublish: %v", err)
	}
	if fileID != "file-42" {
		t.Fatalf("file id = %q", fileID)
	}
	if gotFilename != "whatsapp_image_media-9.jpg" {
		t.Fatalf("filename = %q", gotFilename)
	}
	if gotPurpose != "vision" {
		t.Fatalf("purpose = %q", gotPurpose)
	}
	if gotBody != "jpeg-bytes" {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestFetchAndRepublish_DownloadFailure(t *testing.T) {
	t.Parallel()
	down := &fakeDownloader{
		downloadFunc: func(ctx context.Context, mediaID string) ([]byte, string, error) {
			return nil, "", fmt.Errorf("media expired")
		},
	}
	b := NewBridge(nil, down, &fakeUploader{})
	if _, err := b.FetchAndRepublish(context.Background(), "media-9"); err == nil {
		t.Fatalf("FetchAndRepublish should fail when download fails")
	}
}

func TestFetchAndRepublish_MissingFileID(t *testing.T) {
	t.Parallel()
	up := &fakeUploader{
		uploadFunc: func(ctx context.Context, filename string, data io.Reader, purpose string) (assistant.File, error) {
			return assistant.File{}, nil
		},
	}
	b := NewBridge(nil, &fakeDownloader{}, up)
	if _, err := b.FetchAndRepublish(context.Background(), "media-9"); err == nil {
		t.Fatalf("FetchAndRepublish should fail when provider returns no file id")
	}
}

func TestExtensionFromMime(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mime string
		want string
	}{
		{"image/png", ".png"},
		{"IMAGE/PNG", ".png"},
		{"image/webp", ".webp"},
		{"image/gif", ".gif"},
		{"image/jpeg", ".jpg"},
		{"", ".jpg"},
	}
	for _, tt := range tests {
		if got := extensionFromMime(tt.mime); got != tt.want {
			t.Errorf("extensionFromMime(%q) = %q, want %q", tt.mime, got, tt.want)
		}
	}
}
