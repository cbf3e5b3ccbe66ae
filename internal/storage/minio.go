package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIO stores artifacts as objects named <folder>/<filename> in one bucket.
type MinIO struct {
	client *minio.Client
	bucket string

	bucketOnce sync.Once
	bucketErr  error
}

func NewMinIO(cfg MinIOConfig) (*MinIO, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required when STORAGE_BACKEND=minio")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = "tickethub-artifacts"
	}
	return &MinIO{client: client, bucket: bucket}, nil
}

func (m *MinIO) ensureBucket(ctx context.Context) error {
	m.bucketOnce.Do(func() {
		exists, err := m.client.BucketExists(ctx, m.bucket)
		if err != nil {
			m.bucketErr = err
			return
		}
		if !exists {
			m.bucketErr = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
		}
	})
	return m.bucketErr
}

func (m *MinIO) Upload(ctx context.Context, data []byte, folder, filename string) (string, error) {
	name, err := objectName(folder, filename)
	if err != nil {
		return "", err
	}

	if err := m.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("minio bucket %s: %w", m.bucket, err)
	}

	_, err = m.client.PutObject(ctx, m.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType(filename)})
	if err != nil {
		return "", fmt.Errorf("minio put %s: %w", name, err)
	}
	return "s3://" + m.bucket + "/" + name, nil
}

func contentType(filename string) string {
	if strings.HasSuffix(strings.ToLower(filename), ".png") {
		return "image/png"
	}
	return "application/octet-stream"
}
