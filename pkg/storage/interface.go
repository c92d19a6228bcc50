package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"
)

// StorageProvider keeps export artifacts and issues download links for them.
type StorageProvider interface {
	Upload(ctx context.Context, request *UploadRequest) (*UploadResponse, error)
	GetURL(ctx context.Context, key string, expiration time.Duration) (string, error)
}

// UploadRequest describes one artifact. Size is zero when unknown.
type UploadRequest struct {
	Key         string
	Reader      io.Reader
	ContentType string
	Size        int64
	Metadata    map[string]string
}

type UploadResponse struct {
	Key      string
	Size     int64
	Location string
}

// attachment is the Content-Disposition served with a downloaded export.
func attachment(key string) string {
	return fmt.Sprintf("attachment; filename=%q", path.Base(key))
}
