package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store writes media blobs to an S3-compatible bucket (Cloudflare R2).
// Object keys follow the same {kind}s/{unique name} layout as the disk
// store, so stored paths stay interchangeable.
type S3Store struct {
	client *s3.Client
	bucket string
	logger *slog.Logger

	timeNow func() time.Time // for testability
	rng     *rand.Rand
}

// S3Config holds the connection settings for the object store.
type S3Config struct {
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// NewS3Store creates an object-store-backed media store with R2-compatible
// client settings.
func NewS3Store(cfg S3Config, logger *slog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := s3.New(s3.Options{
		Region: "auto", // R2 uses auto region
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // No session token for R2
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true, // R2 requires path-style addressing
	})

	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		logger:  logger,
		timeNow: time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Save uploads the blob and returns its object key.
func (s *S3Store) Save(ctx context.Context, content Payload, kind, filename string) (string, error) {
	data, err := content.Bytes()
	if err != nil {
		return "", err
	}

	if _, ok := Extensions[kind]; !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}

	filename = SanitizeFilename(filename)
	if filename == "" || !ValidExtension(filename, kind) {
		return "", fmt.Errorf("%w: %s for kind %s", ErrInvalidExtension, filename, kind)
	}

	key := s.ObjectKey(kind, filename)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if mime := MIMEType(filename); mime != "" {
		input.ContentType = aws.String(mime)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	s.logger.Info("saved media object",
		slog.String("kind", kind),
		slog.String("key", key),
		slog.Int("bytes", len(data)))

	return key, nil
}

// ObjectKey builds the object key for a sanitized filename:
// {kind}s/{base}_{YYYYMMDD_HHMMSS}_{6 lowercase alphanumerics}.{ext}
func (s *S3Store) ObjectKey(kind, filename string) string {
	return kindDir(kind) + "/" + uniqueName(filename, s.timeNow(), s.rng)
}
