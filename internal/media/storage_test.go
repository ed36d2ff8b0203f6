package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giftwave/internal/apperr"
)

type memObject struct {
	bytes.Buffer
	path        string
	contentType string
	metadata    map[string]string
	closed      bool
	closeErr    error
}

func (m *memObject) Close() error {
	m.closed = true
	return m.closeErr
}

func newMemStorage(closeErr error) (*Storage, *[]*memObject) {
	var objects []*memObject
	s := &Storage{
		bucket: "giftwave-test.appspot.com",
		open: func(_ context.Context, path, contentType string, metadata map[string]string) io.WriteCloser {
			obj := &memObject{path: path, contentType: contentType, metadata: metadata, closeErr: closeErr}
			objects = append(objects, obj)
			return obj
		},
		newToken: func() string { return "tok-123" },
	}
	return s, &objects
}

func TestStore_UploadsWithDownloadToken(t *testing.T) {
	s, objects := newMemStorage(nil)

	u, err := s.Store(context.Background(), []byte("jpegdata"), "", "gift_images/o1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://firebasestorage.googleapis.com/v0/b/giftwave-test.appspot.com/o/gift_images%2Fo1.jpg?alt=media&token=tok-123", u)

	require.Len(t, *objects, 1)
	obj := (*objects)[0]
	assert.Equal(t, "gift_images/o1.jpg", obj.path)
	assert.Equal(t, "image/jpeg", obj.contentType)
	assert.Equal(t, "tok-123", obj.metadata["firebaseStorageDownloadTokens"])
	assert.Equal(t, "jpegdata", obj.String())
	assert.True(t, obj.closed)
}

func TestStore_Rejects(t *testing.T) {
	s, objects := newMemStorage(nil)
	ctx := context.Background()

	_, err := s.Store(ctx, nil, "image/jpeg", "a.jpg")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = s.Store(ctx, []byte("x"), "application/pdf", "a.pdf")
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = s.Store(ctx, make([]byte, MaxImageBytes+1), "image/png", "big.png")
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Empty(t, *objects)
}

func TestStore_VideoLimit(t *testing.T) {
	s, _ := newMemStorage(nil)
	_, err := s.Store(context.Background(), make([]byte, MaxImageBytes+1), "video/mp4", "reaction_videos/o1.mp4")
	assert.NoError(t, err)
}

func TestStore_CloseFailure(t *testing.T) {
	s, _ := newMemStorage(errors.New("bucket gone"))
	_, err := s.Store(context.Background(), []byte("x"), "image/jpeg", "a.jpg")
	assert.ErrorContains(t, err, "bucket gone")
}
