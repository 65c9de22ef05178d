package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mgruene/ARANDU-PUB/internal/config"
)

// uploadTimeout bounds a single object upload.
const uploadTimeout = 2 * time.Minute

// S3 stores archives in a bucket under an optional key prefix.
type S3 struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	log      *slog.Logger
}

// NewS3 builds an S3 archive. Static credentials are used when both keys
// are set; otherwise the SDK's default credential chain applies.
func NewS3(ctx context.Context, cfg config.S3Config, log *slog.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: S3 bucket name not set")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("archive: AWS_REGION not set")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3FromClient(client, cfg.Bucket, cfg.Prefix, log), nil
}

// NewS3FromClient wraps an existing client.
func NewS3FromClient(client *s3.Client, bucket, prefix string, log *slog.Logger) *S3 {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &S3{uploader: manager.NewUploader(client), bucket: bucket, prefix: prefix, log: log}
}

// Put implements Archive. The returned location is an s3:// URI.
func (a *S3) Put(ctx context.Context, docid, filename string, data []byte, md map[string]any) (string, error) {
	side, err := sidecar(md)
	if err != nil {
		return "", err
	}
	key := path.Join(a.prefix, ObjectName(docid, filename))
	if err := a.upload(ctx, key, data, "application/pdf"); err != nil {
		return "", err
	}
	if err := a.upload(ctx, path.Join(a.prefix, SidecarName(docid)), side, "application/json"); err != nil {
		return "", err
	}
	loc := fmt.Sprintf("s3://%s/%s", a.bucket, key)
	a.log.Info("upload archived", slog.String("docid", docid), slog.String("location", loc), slog.Int("bytes", len(data)))
	return loc, nil
}

func (a *S3) upload(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 upload %s failed: %w", key, err)
	}
	return nil
}
