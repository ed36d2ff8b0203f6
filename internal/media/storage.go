// README: Media uploads to a Firebase Storage (GCS) bucket with tokenised download URLs.
package media

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"giftwave/internal/apperr"
)

const (
	MaxImageBytes = 10 << 20
	MaxVideoBytes = 100 << 20
)

// Upload rejections are validation failures so callers report them as such.
var (
	ErrEmpty       = apperr.Validation("media", "File is empty")
	ErrTooLarge    = apperr.Validation("media", "File is too large")
	ErrUnsupported = apperr.Validation("media", "Only JPEG, PNG, WebP images and MP4 videos are accepted")
)

var allowedTypes = map[string]int{
	"image/jpeg": MaxImageBytes,
	"image/png":  MaxImageBytes,
	"image/webp": MaxImageBytes,
	"video/mp4":  MaxVideoBytes,
}

// openFunc starts an object write with the given attributes.
type openFunc func(ctx context.Context, path, contentType string, metadata map[string]string) io.WriteCloser

type Storage struct {
	bucket   string
	open     openFunc
	newToken func() string
}

func NewStorage(client *storage.Client, bucket string) *Storage {
	return &Storage{
		bucket: bucket,
		open: func(ctx context.Context, path, contentType string, metadata map[string]string) io.WriteCloser {
			w := client.Bucket(bucket).Object(path).NewWriter(ctx)
			w.ContentType = contentType
			w.Metadata = metadata
			return w
		},
		newToken: uuid.NewString,
	}
}

// Store uploads data to path and returns a public download URL.
func (s *Storage) Store(ctx context.Context, data []byte, contentType, path string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType == "" {
		contentType = "image/jpeg"
	}
	limit, ok := allowedTypes[contentType]
	if !ok {
		return "", ErrUnsupported
	}
	if len(data) > limit {
		return "", ErrTooLarge
	}

	token := s.newToken()
	w := s.open(ctx, path, contentType, map[string]string{
		"firebaseStorageDownloadTokens": token,
	})
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return DownloadURL(s.bucket, path, token), nil
}

func DownloadURL(bucket, path, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(path), token)
}
