package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/pipeline"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/tracing"
)

var (
	ErrNotConfigured = errors.New("export sink not configured")
	ErrNoSnapshot    = errors.New("no snapshot to export")
)

// ObjectPutter is the part of the S3 client the sink needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SinkConfig holds the bucket connection settings
type SinkConfig struct {
	Bucket          string
	Endpoint        string // empty for AWS, set for R2/MinIO
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string // default "reports"
}

// UploadResult describes a stored workbook
type UploadResult struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Size   int    `json:"size"`
}

// Sink uploads snapshot workbooks to a bucket
type Sink struct {
	client  ObjectPutter
	bucket  string
	prefix  string
	timeNow func() time.Time
	logger  zerolog.Logger
}

// NewSink creates a sink backed by an S3 client
func NewSink(cfg SinkConfig, logger zerolog.Logger) (*Sink, error) {
	if cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("export access key ID and secret are required")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	opts := s3.Options{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return NewSinkWithClient(s3.New(opts), cfg.Bucket, cfg.Prefix, logger), nil
}

// NewSinkWithClient creates a sink around an existing client
func NewSinkWithClient(client ObjectPutter, bucket, prefix string, logger zerolog.Logger) *Sink {
	if prefix == "" {
		prefix = "reports"
	}
	return &Sink{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		timeNow: time.Now,
		logger:  logger.With().Str("component", "export").Logger(),
	}
}

// ObjectKey builds a unique key: {prefix}/{yyyy}/{mm}/{dd}/{dataset}-g{generation}-{uuid}.xlsx
func (s *Sink) ObjectKey(snap *pipeline.Snapshot) string {
	dataset := sanitizePathComponent(snap.DatasetID)
	if dataset == "" {
		dataset = "dataset"
	}
	return fmt.Sprintf("%s/%s/%s-g%d-%s.xlsx",
		s.prefix,
		s.timeNow().UTC().Format("2006/01/02"),
		dataset,
		snap.Generation,
		uuid.New().String(),
	)
}

// Upload renders snap and stores it in the bucket
func (s *Sink) Upload(ctx context.Context, snap *pipeline.Snapshot, limit int) (_ *UploadResult, err error) {
	if snap == nil {
		return nil, ErrNoSnapshot
	}

	ctx, endSpan := tracing.StartSpan(ctx, "export.upload",
		attribute.String("bucket", s.bucket),
		attribute.String("dataset_id", snap.DatasetID),
	)
	defer func() { endSpan(err) }()

	data, err := Render(snap, limit)
	if err != nil {
		return nil, err
	}

	key := s.ObjectKey(snap)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(ContentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	s.logger.Info().
		Str("bucket", s.bucket).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("workbook exported")

	return &UploadResult{Bucket: s.bucket, Key: key, Size: len(data)}, nil
}

// sanitizePathComponent keeps alphanumerics, hyphens and underscores
func sanitizePathComponent(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
