package objstore

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/hyperjump/sokkuri/internal/config"
	"github.com/hyperjump/sokkuri/internal/errs"
	"github.com/hyperjump/sokkuri/internal/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements Store on a MinIO / S3-compatible endpoint.
type MinioStore struct {
	client *minio.Client
}

// NewMinioStore creates a store from storage settings.
func NewMinioStore(cfg *config.StorageConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "objstore.NewMinioStore", err)
	}
	return &MinioStore{client: client}, nil
}

// Get returns the full object bytes.
func (s *MinioStore) Get(ctx context.Context, ref models.ObjectRef) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, ref.Bucket, ref.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify("objstore.Get", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify("objstore.Get", err)
	}
	return data, nil
}

// Put writes the object bytes with the given content type.
func (s *MinioStore) Put(ctx context.Context, ref models.ObjectRef, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, ref.Bucket, ref.Key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return classify("objstore.Put", err)
	}
	return nil
}

// Stat verifies the object exists.
func (s *MinioStore) Stat(ctx context.Context, ref models.ObjectRef) error {
	_, err := s.client.StatObject(ctx, ref.Bucket, ref.Key, minio.StatObjectOptions{})
	if err != nil {
		return classify("objstore.Stat", err)
	}
	return nil
}

// EnsureBucket creates the bucket if it does not exist.
func (s *MinioStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return classify("objstore.EnsureBucket", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return classify("objstore.EnsureBucket", err)
	}
	return nil
}

// PresignGet returns a time-limited GET URL for the object.
func (s *MinioStore) PresignGet(ctx context.Context, ref models.ObjectRef, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, ref.Bucket, ref.Key, expiry, nil)
	if err != nil {
		return "", classify("objstore.PresignGet", err)
	}
	return u.String(), nil
}

// classify maps MinIO error codes onto the error taxonomy: missing objects
// and buckets are not-found, everything else is an upstream failure.
func classify(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return errs.New(errs.KindNotFound, op, "object not found in storage")
	}
	return errs.Wrap(errs.KindUpstream, op, err)
}
