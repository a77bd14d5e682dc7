package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	rawPrefix       = "raw/"
	processedPrefix = "processed/"
	errorPrefix     = "error/"
)

// Store archives feed files in an S3-compatible bucket. Every file lands
// under raw/ first and is moved to processed/ or error/ exactly once per run.
type Store struct {
	client *minio.Client
	bucket string
	region string
	now    func() time.Time
}

// New buat koneksi MinIO
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &Store{client: cli, bucket: bucket, region: region, now: func() time.Time { return time.Now().UTC() }}, nil
}

// StoreRaw lands the feed byte stream under raw/ with a timestamped key.
func (s *Store) StoreRaw(ctx context.Context, name string, r io.Reader) (string, error) {
	key := fmt.Sprintf("%s%s-%s", rawPrefix, s.now().Format("2006/01/02/150405"), path.Base(name))
	_, err := s.client.PutObject(ctx, s.bucket, key, r, -1, minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// MoveProcessed relocates a raw object under processed/.
func (s *Store) MoveProcessed(ctx context.Context, key string) (string, error) {
	return s.move(ctx, key, processedPrefix)
}

// MoveError relocates a raw object under error/.
func (s *Store) MoveError(ctx context.Context, key string) (string, error) {
	return s.move(ctx, key, errorPrefix)
}

// move = server-side copy lalu hapus object lama
func (s *Store) move(ctx context.Context, key, prefix string) (string, error) {
	dst := prefix + strings.TrimPrefix(key, rawPrefix)
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: dst},
		minio.CopySrcOptions{Bucket: s.bucket, Object: key},
	)
	if err != nil {
		return "", fmt.Errorf("copying %s to %s: %w", key, dst, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return "", fmt.Errorf("removing %s after copy: %w", key, err)
	}
	return dst, nil
}
