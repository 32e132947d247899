package minio

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/port"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Storage reads uploaded videos and writes analysis reports. Sampled frames
// never leave the worker; only the final report is stored.
type Storage struct {
	client  *miniogo.Client
	uploads string
	reports string
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UploadBucket string
	ReportBucket string
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	if cfg.UploadBucket == "" || cfg.ReportBucket == "" {
		return nil, errors.New("upload and report buckets are required")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Storage{client: client, uploads: cfg.UploadBucket, reports: cfg.ReportBucket}, nil
}

// EnsureBuckets creates any missing bucket.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.uploads, s.reports} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		err = s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{})
		if err != nil && !isAlreadyOwned(err) {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// DownloadVideo copies an uploaded video to destPath.
func (s *Storage) DownloadVideo(ctx context.Context, objectKey string, destPath string) error {
	info, err := s.client.StatObject(ctx, s.uploads, objectKey, miniogo.StatObjectOptions{})
	if err != nil {
		return fmt.Errorf("stat %s/%s: %w", s.uploads, objectKey, err)
	}
	if info.Size == 0 {
		return fmt.Errorf("%s/%s: %w", s.uploads, objectKey, port.ErrEmptyVideo)
	}

	if err := s.client.FGetObject(ctx, s.uploads, objectKey, destPath, miniogo.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download %s/%s: %w", s.uploads, objectKey, err)
	}
	return nil
}

// UploadReport stores a JSON analysis report under objectKey.
func (s *Storage) UploadReport(ctx context.Context, objectKey string, reader io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.reports, objectKey, reader, size, miniogo.PutObjectOptions{
		ContentType:  "application/json",
		CacheControl: "no-cache",
	})
	if err != nil {
		return fmt.Errorf("upload report %s/%s: %w", s.reports, objectKey, err)
	}
	return nil
}

// Ping checks that the upload bucket is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.uploads)
	return err
}

// isAlreadyOwned covers two workers racing to create the same bucket.
func isAlreadyOwned(err error) bool {
	code := miniogo.ToErrorResponse(err).Code
	return code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists"
}
