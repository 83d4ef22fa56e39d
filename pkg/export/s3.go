package export

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config locates the bucket. Endpoint and static keys are optional; when
// unset the default AWS credential chain applies.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// Uploader is the subset of manager.Uploader used by S3Sink.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// NewS3Uploader builds a multipart uploader from cfg.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*manager.Uploader, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("export: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return manager.NewUploader(client), nil
}

// S3Sink uploads every batch as its own object:
// <prefix>/<collection>/page-00001.json
type S3Sink struct {
	uploader Uploader
	bucket   string
	prefix   string
	enc      *Encoder
}

func NewS3Sink(u Uploader, bucket, prefix string, enc *Encoder) *S3Sink {
	return &S3Sink{uploader: u, bucket: bucket, prefix: prefix, enc: enc}
}

// Key returns the object key for a batch.
func (s *S3Sink) Key(b Batch) string {
	return path.Join(s.prefix, b.Collection, fmt.Sprintf("page-%05d.json", b.Page))
}

func (s *S3Sink) Write(ctx context.Context, b Batch) error {
	data, err := s.enc.Encode(b)
	if err != nil {
		return err
	}
	key := s.Key(b)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"collection": b.Collection,
			"format":     string(s.enc.Format()),
		},
	})
	if err != nil {
		return fmt.Errorf("export: upload s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *S3Sink) Close() error { return nil }
