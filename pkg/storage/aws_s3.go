package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Storage writes exports to a bucket. Links are presigned unless a CDN
// domain fronts the bucket.
type S3Storage struct {
	client    *s3.Client
	presign   *s3.PresignClient
	bucket    string
	cdnDomain string
}

func NewAWSS3Storage(ctx context.Context, region, bucket, cdnDomain string) (*S3Storage, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Storage{
		client:    client,
		presign:   s3.NewPresignClient(client),
		bucket:    bucket,
		cdnDomain: cdnDomain,
	}, nil
}

func (s *S3Storage) Upload(ctx context.Context, request *UploadRequest) (*UploadResponse, error) {
	input := &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(request.Key),
		Body:                 request.Reader,
		ContentType:          aws.String(request.ContentType),
		ContentDisposition:   aws.String(attachment(request.Key)),
		Metadata:             request.Metadata,
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	}
	if request.Size > 0 {
		input.ContentLength = aws.Int64(request.Size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to upload export to s3: %w", err)
	}
	return &UploadResponse{
		Key:      request.Key,
		Size:     request.Size,
		Location: "s3://" + s.bucket + "/" + request.Key,
	}, nil
}

func (s *S3Storage) GetURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	if s.cdnDomain != "" {
		return "https://" + s.cdnDomain + "/" + key, nil
	}

	signed, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiration))
	if err != nil {
		return "", fmt.Errorf("failed to presign export url: %w", err)
	}
	return signed.URL, nil
}
