package results

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Writer uploads result lists to an S3 bucket.
type S3Writer struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	compress bool
}

// NewS3Writer uses the default AWS credential chain and region.
func NewS3Writer(ctx context.Context, bucket, prefix string, compress bool) (*S3Writer, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewS3WriterFromClient(s3.NewFromConfig(cfg), bucket, prefix, compress), nil
}

// NewS3WriterFromClient wraps an existing client.
func NewS3WriterFromClient(client *s3.Client, bucket, prefix string, compress bool) *S3Writer {
	return &S3Writer{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		compress: compress,
	}
}

// Write implements Writer.
func (w *S3Writer) Write(ctx context.Context, name string, recs []Record) (string, error) {
	data, err := Encode(recs, w.compress)
	if err != nil {
		return "", err
	}
	key := objectKey(w.prefix, name)
	contentType := "application/json"
	if w.compress {
		key += CompressedExt
		contentType = "application/zstd"
	}

	_, err = w.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading results to s3://%s/%s: %w", w.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", w.bucket, key), nil
}
