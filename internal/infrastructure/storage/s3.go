package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"go.uber.org/zap"
)

// S3Config holds object store settings
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // e.g. http://localhost:4566 for LocalStack or a MinIO URL
	Prefix   string
}

// ObjectPutter is the subset of *s3.Client used for uploads and removals
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// GetPresigner is the subset of *s3.PresignClient used for retrieval URLs
type GetPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store implements port.FileStore on S3-compatible object storage
type S3Store struct {
	putter    ObjectPutter
	presigner GetPresigner
	bucket    string
	prefix    string
	logger    *zap.Logger
}

// NewS3Store loads AWS configuration from the environment and builds the clients
func NewS3Store(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("S3 file store configured",
		zap.String("bucket", cfg.Bucket),
		zap.String("region", cfg.Region),
		zap.String("endpoint", cfg.Endpoint))

	return NewS3StoreWithClients(client, s3.NewPresignClient(client), cfg.Bucket, cfg.Prefix, logger), nil
}

// NewS3StoreWithClients wires explicit clients
func NewS3StoreWithClients(putter ObjectPutter, presigner GetPresigner, bucket, prefix string, logger *zap.Logger) *S3Store {
	return &S3Store{
		putter:    putter,
		presigner: presigner,
		bucket:    bucket,
		prefix:    strings.Trim(prefix, "/"),
		logger:    logger,
	}
}

// Put uploads data under the prefixed key with server-side encryption
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (*entity.FileRef, error) {
	objectKey := s.objectKey(key)

	_, err := s.putter.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(objectKey),
		Body:                 bytes.NewReader(data),
		ContentLength:        aws.Int64(int64(len(data))),
		ContentType:          aws.String(contentType),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		s.logger.Error("Failed to upload object",
			zap.String("bucket", s.bucket),
			zap.String("key", objectKey),
			zap.Error(err))
		return nil, fmt.Errorf("failed to upload object: %w", err)
	}

	s.logger.Debug("Object uploaded",
		zap.String("key", objectKey),
		zap.Int("size", len(data)))

	return &entity.FileRef{
		Locator: objectKey,
		Format:  strings.TrimPrefix(path.Ext(key), "."),
	}, nil
}

// SignedURL presigns a GET for the object
func (s *S3Store) SignedURL(ctx context.Context, ref *entity.FileRef, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref.Locator),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign object: %w", err)
	}
	return req.URL, nil
}

// Delete removes the object; S3 reports success for keys that do not exist
func (s *S3Store) Delete(ctx context.Context, ref *entity.FileRef) error {
	_, err := s.putter.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref.Locator),
	})
	if err != nil {
		s.logger.Error("Failed to delete object",
			zap.String("bucket", s.bucket),
			zap.String("key", ref.Locator),
			zap.Error(err))
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Verify interface compliance
var _ port.FileStore = (*S3Store)(nil)
