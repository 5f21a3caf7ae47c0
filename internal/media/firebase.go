package media

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// FirebaseUploader writes to the app's Firebase Storage bucket. Objects get a
// download token so clients can fetch them without credentials.
type FirebaseUploader struct {
	bucket     *storage.BucketHandle
	bucketName string
}

func NewFirebaseUploader(bucket *storage.BucketHandle, bucketName string) *FirebaseUploader {
	return &FirebaseUploader{
		bucket:     bucket,
		bucketName: bucketName,
	}
}

func (u *FirebaseUploader) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	token := uuid.New().String()

	w := u.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{
		"firebaseStorageDownloadTokens": token,
	}

	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write %s to Firebase Storage: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to upload %s to Firebase Storage: %w", key, err)
	}

	return downloadURL(u.bucketName, key, token), nil
}

func downloadURL(bucket, key, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(key), token)
}
