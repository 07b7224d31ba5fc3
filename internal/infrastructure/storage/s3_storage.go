// Package storage mirrors composed label artifacts to S3-compatible object
// storage (AWS S3, MinIO, RustFS).
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/erp/shipping/internal/domain/shipping"
	infraconfig "github.com/erp/shipping/internal/infrastructure/config"
	"go.uber.org/zap"
)

// S3Mirror uploads artifacts to {bucket}/{kind}/{storeId}/{file}.
type S3Mirror struct {
	client *s3.Client
	bucket string
	logger *zap.Logger
}

// S3MirrorOption is a functional option for configuring S3Mirror
type S3MirrorOption func(*S3Mirror)

// WithLogger sets a custom logger for S3Mirror
func WithLogger(logger *zap.Logger) S3MirrorOption {
	return func(s *S3Mirror) {
		s.logger = logger
	}
}

// NewS3Mirror creates a new S3Mirror from configuration.
func NewS3Mirror(cfg *infraconfig.StorageConfig, opts ...S3MirrorOption) (*S3Mirror, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid storage endpoint: %w", err)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})

	m := &S3Mirror{client: client, bucket: cfg.Bucket, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (m *S3Mirror) EnsureBucket(ctx context.Context) error {
	_, err := m.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(m.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	m.logger.Info("Creating storage bucket", zap.String("bucket", m.bucket))
	_, err = m.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(m.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Key returns the object key of an artifact.
func Key(storeID int64, kind shipping.ArtifactKind, orderNumber string) string {
	return path.Join(string(kind), strconv.FormatInt(storeID, 10), kind.FileName(orderNumber))
}

// Mirror uploads one artifact.
func (m *S3Mirror) Mirror(ctx context.Context, storeID int64, kind shipping.ArtifactKind, orderNumber string, data []byte) error {
	key := Key(storeID, kind, orderNumber)
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(kind.ContentType()),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to mirror %s: %v", shipping.ErrIO, key, err)
	}
	m.logger.Debug("Artifact mirrored", zap.String("bucket", m.bucket), zap.String("key", key))
	return nil
}

// Exists reports whether an artifact has been mirrored.
func (m *S3Mirror) Exists(ctx context.Context, storeID int64, kind shipping.ArtifactKind, orderNumber string) (bool, error) {
	_, err := m.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(Key(storeID, kind, orderNumber)),
	})
	if err != nil {
		var notFound *types.NotFound
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

// Bucket returns the bucket name
func (m *S3Mirror) Bucket() string {
	return m.bucket
}
