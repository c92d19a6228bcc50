package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// singleShotLimit is the size below which exports go up in one request
// instead of a resumable session.
const singleShotLimit = 8 << 20

type GCSStorage struct {
	client    *storage.Client
	bucket    string
	cdnDomain string
}

func NewGCPStorage(ctx context.Context, bucket, credentialsFile, cdnDomain string) (*GCSStorage, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStorage{client: client, bucket: bucket, cdnDomain: cdnDomain}, nil
}

func (g *GCSStorage) Upload(ctx context.Context, request *UploadRequest) (*UploadResponse, error) {
	w := g.client.Bucket(g.bucket).Object(request.Key).NewWriter(ctx)
	w.ContentType = request.ContentType
	w.ContentDisposition = attachment(request.Key)
	w.Metadata = request.Metadata
	if request.Size > 0 && request.Size < singleShotLimit {
		w.ChunkSize = 0
	}

	written, err := io.Copy(w, request.Reader)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to upload export to gcs: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize gcs export: %w", err)
	}

	return &UploadResponse{
		Key:      request.Key,
		Size:     written,
		Location: "gs://" + g.bucket + "/" + request.Key,
	}, nil
}

func (g *GCSStorage) GetURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	if g.cdnDomain != "" {
		return "https://" + g.cdnDomain + "/" + key, nil
	}

	url, err := g.client.Bucket(g.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(expiration),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign export url: %w", err)
	}
	return url, nil
}
