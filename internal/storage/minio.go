package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// MinioOptions configures a MinIO (or any S3 compatible) backend.
type MinioOptions struct {
	Endpoint  string // host[:port], no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Secure    bool
}

// MinioClient stores objects with minio-go.
type MinioClient struct {
	client *minio.Client
	bucket string
}

// NewMinioClient connects and verifies that the bucket exists.
func NewMinioClient(ctx context.Context, opts MinioOptions) (*MinioClient, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init minio client: %w", err)
	}
	m := &MinioClient{client: client, bucket: opts.Bucket}
	if err := m.Ping(ctx); err != nil {
		return nil, err
	}
	log.Info().Str("endpoint", opts.Endpoint).Str("bucket", opts.Bucket).Msg("minio object store configured")
	return m, nil
}

// Put uploads data under key.
func (m *MinioClient) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}

// Ping checks that the bucket exists.
func (m *MinioClient) Ping(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", m.bucket)
	}
	return nil
}
