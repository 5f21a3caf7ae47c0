package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUploadsDisabled    = errors.New("image uploads are not configured")
	ErrUnsupportedContent = errors.New("unsupported image type")
)

// Uploader stores an object and returns the public URL it can be read from.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// PostImageKey builds the object key of an image attached to a post.
func PostImageKey(challengeID, userID, contentType string) (string, error) {
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, contentType)
	}
	return path.Join("posts", sanitizeSegment(challengeID), sanitizeSegment(userID), uuid.New().String()+ext), nil
}

func sanitizeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
	if s == "" {
		return "_"
	}
	return s
}

type disabledUploader struct{}

// Disabled rejects every upload. Posts can still reference an image URL.
func Disabled() Uploader {
	return disabledUploader{}
}

func (disabledUploader) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	return "", ErrUploadsDisabled
}
