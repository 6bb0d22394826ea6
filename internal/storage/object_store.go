package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore implements BlobStore on MinIO/S3 compatible storage.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

// NewObjectStore connects to MinIO and ensures the bucket exists.
func NewObjectStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*ObjectStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &ObjectStore{client: client, bucket: bucket}, nil
}

// Save uploads an object.
func (o *ObjectStore) Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	_, err := o.client.PutObject(ctx, o.bucket, name, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// Open streams an object; a missing key reports os.ErrNotExist so callers
// handle local and object storage the same way.
func (o *ObjectStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := o.client.GetObject(ctx, o.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	// GetObject is lazy; Stat forces the existence check.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, errors.Join(os.ErrNotExist, err)
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}
	return obj, nil
}

// Remove deletes an object.
func (o *ObjectStore) Remove(ctx context.Context, name string) error {
	if err := o.client.RemoveObject(ctx, o.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
