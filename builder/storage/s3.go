package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/sha256-simd"

	"opencsg.com/pulp-migrator/common/config"
	"opencsg.com/pulp-migrator/common/errorx"
)

const (
	s3PutParallel = 5
	s3PartSize    = 5 << 20
)

var bucketLookupMapping = map[string]minio.BucketLookupType{
	"auto": minio.BucketLookupAuto,
	"dns":  minio.BucketLookupDNS,
	"path": minio.BucketLookupPath,
}

// S3Storage stores artifacts in an object bucket. The digest is
// verified while streaming, so a corrupted source file never lands in
// the bucket under a clean name.
type S3Storage struct {
	client *minio.Client
	bucket string
}

func NewS3Storage(cfg *config.Config) (*S3Storage, error) {
	bucketLookupType, ok := bucketLookupMapping[cfg.S3.BucketLookup]
	if !ok {
		bucketLookupType = minio.BucketLookupAuto
	}
	client, err := minio.New(cfg.S3.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.S3.AccessKeyID, cfg.S3.AccessKeySecret, ""),
		Secure:       cfg.S3.EnableSSL,
		BucketLookup: bucketLookupType,
		Region:       cfg.S3.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init s3 client, error:%w", err)
	}
	return &S3Storage{client: client, bucket: cfg.S3.Bucket}, nil
}

func (s *S3Storage) Store(ctx context.Context, srcPath, sha256Hex string, size int64) (string, error) {
	relPath := ArtifactPath(sha256Hex)

	_, err := s.client.StatObject(ctx, s.bucket, relPath, minio.StatObjectOptions{})
	if err == nil {
		return relPath, nil
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) || resp.Code != "NoSuchKey" {
		return "", err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	h := sha256.New()
	reader := io.TeeReader(src, h)
	info, err := s.client.PutObject(ctx, s.bucket, relPath, reader, size, minio.PutObjectOptions{
		ContentType:           "application/octet-stream",
		SendContentMd5:        true,
		ConcurrentStreamParts: true,
		NumThreads:            s3PutParallel,
		PartSize:              s3PartSize,
	})
	if err != nil {
		return "", err
	}
	if size >= 0 && info.Size != size {
		return "", errorx.ArtifactValidation(srcPath, sha256Hex, hex.EncodeToString(h.Sum(nil)))
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != sha256Hex {
		removeErr := s.client.RemoveObject(ctx, s.bucket, relPath, minio.RemoveObjectOptions{})
		if removeErr != nil {
			return "", errors.Join(errorx.ArtifactValidation(srcPath, sha256Hex, got), removeErr)
		}
		return "", errorx.ArtifactValidation(srcPath, sha256Hex, got)
	}
	return relPath, nil
}

func (s *S3Storage) Exists(ctx context.Context, sha256Hex string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, ArtifactPath(sha256Hex), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
		return false, nil
	}
	return false, err
}

func (s *S3Storage) Remove(ctx context.Context, relPath string) error {
	return s.client.RemoveObject(ctx, s.bucket, relPath, minio.RemoveObjectOptions{})
}
