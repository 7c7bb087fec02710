package results

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOWriter uploads result lists to a MinIO (or other S3-compatible) bucket.
type MinIOWriter struct {
	client   *minio.Client
	bucket   string
	prefix   string
	compress bool
}

// MinIOOptions configures NewMinIOWriter.
type MinIOOptions struct {
	Endpoint  string // host:port
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
	Region    string
	Compress  bool
}

// NewMinIOWriter creates a client for opts.Endpoint.
func NewMinIOWriter(opts MinIOOptions) (*MinIOWriter, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MinIO client: %w", err)
	}
	return &MinIOWriter{client: client, bucket: opts.Bucket, prefix: opts.Prefix, compress: opts.Compress}, nil
}

// Write implements Writer.
func (w *MinIOWriter) Write(ctx context.Context, name string, recs []Record) (string, error) {
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

	_, err = w.client.PutObject(ctx, w.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploading results to minio %s/%s: %w", w.bucket, key, err)
	}
	return fmt.Sprintf("minio://%s/%s", w.bucket, key), nil
}
