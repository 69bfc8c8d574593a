package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// ObjectStore is the write side of an object store. Put must be idempotent
// for identical keys and content.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Ping checks that the configured bucket is reachable.
	Ping(ctx context.Context) error
}

// S3Options configures an S3 compatible client.
type S3Options struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// S3Client wraps the AWS S3 client and upload manager.
type S3Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucketName string
}

// R2Endpoint returns the Cloudflare R2 endpoint for an account.
func R2Endpoint(accountID string) string {
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
}

// NewS3Client creates a new S3 client. Static credentials are used when
// given, otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, opts S3Options) (*S3Client, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	loadOpts := []func(*awscfg.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	log.Info().Str("bucket", opts.Bucket).Str("endpoint", opts.Endpoint).Str("region", opts.Region).Msg("s3 object store configured")

	return &S3Client{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		bucketName: opts.Bucket,
	}, nil
}

// Put uploads data under key, overwriting any existing object.
func (s *S3Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Debug().Str("key", key).Int("size", len(data)).Msg("uploaded object to S3")
	return nil
}

// Ping checks bucket access with HeadBucket.
func (s *S3Client) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucketName, err)
	}
	return nil
}
