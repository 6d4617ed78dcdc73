// Package storage keeps the original photo files in object storage.
package storage

import (
	"bytes"
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-archive/internal/database"
)

const service = "s3"

// ObjectStore stores and removes archive objects.
type ObjectStore interface {
	// Put uploads data under key and returns its storage location.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// API is the subset of the S3 client used here.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 implements ObjectStore on an S3 bucket.
type S3 struct {
	api    API
	bucket string
	log    *zap.Logger
}

// NewS3 creates an object store for bucket.
func NewS3(api API, bucket string, log *zap.Logger) *S3 {
	if log == nil {
		log = zap.NewNop()
	}
	return &S3{api: api, bucket: bucket, log: log}
}

// NewS3FromConfig creates the SDK client from a loaded AWS config. Path-style
// addressing is used with custom endpoints such as LocalStack.
func NewS3FromConfig(awsCfg aws.Config, bucket string, log *zap.Logger) *S3 {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = awsCfg.BaseEndpoint != nil
	})
	return NewS3(client, bucket, log)
}

func (s *S3) Bucket() string {
	return s.bucket
}

func (s *S3) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		s.log.Error("failed to upload object", zap.String("key", key), zap.Error(err))
		return "", database.NewServiceError(service, "PutObject", err)
	}
	s.log.Debug("uploaded object", zap.String("key", key), zap.Int("size", len(data)))
	return Location(s.bucket, key), nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return database.NewServiceError(service, "DeleteObject", err)
	}
	return nil
}

// Location formats the s3:// URL stored in PhotoRecord.StorageLocation.
func Location(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

// ParseLocation splits an s3:// URL into bucket and key.
func ParseLocation(location string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(location, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// ContentType guesses the MIME type from the file extension.
func ContentType(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".tif"), strings.HasSuffix(lower, ".tiff"):
		return "image/tiff"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	case strings.HasSuffix(lower, ".bmp"):
		return "image/bmp"
	default:
		return "image/jpeg"
	}
}
