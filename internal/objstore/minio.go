package objstore

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds connection settings for a MinIO or S3-compatible
// backend.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Validate checks the configuration.
func (c MinIOConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint required", ErrInvalidConfig)
	}
	if c.Bucket == "" {
		return fmt.Errorf("%w: bucket required", ErrInvalidConfig)
	}
	return nil
}

// MinIOStorage implements Storage over a single bucket.
type MinIOStorage struct {
	client *minio.Client
	bucket string
}

var _ Storage = (*MinIOStorage)(nil)

// NewMinIOStorage connects to the backend and creates the bucket if it
// does not exist.
func NewMinIOStorage(ctx context.Context, cfg MinIOConfig) (*MinIOStorage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to minio: %v", ErrExternalService, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: checking bucket %s: %v", ErrExternalService, cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("%w: creating bucket %s: %v", ErrExternalService, cfg.Bucket, err)
		}
	}
	return &MinIOStorage{client: client, bucket: cfg.Bucket}, nil
}

// Upload streams the object into the bucket.
func (s *MinIOStorage) Upload(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		UserMetadata: metadata,
	})
	if err != nil {
		return "", fmt.Errorf("%w: uploading %s: %v", ErrExternalService, key, err)
	}
	return key, nil
}

// Delete removes the object. Removing an absent object is not an
// error: MinIO treats it as a no-op and delete-time cleanup is
// best-effort anyway.
func (s *MinIOStorage) Delete(ctx context.Context, locator string) error {
	err := s.client.RemoveObject(ctx, s.bucket, locator, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("%w: deleting %s: %v", ErrExternalService, locator, err)
	}
	return nil
}
