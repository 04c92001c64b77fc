package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/i474232898/gdelt-news-cache/internal/logging"
	"github.com/i474232898/gdelt-news-cache/internal/news"
)

// RemoteConfig addresses an S3-compatible bucket.
type RemoteConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// bucketStore is a blobStore over one bucket.
type bucketStore struct {
	client *minio.Client
	bucket string
}

func (b bucketStore) read(ctx context.Context, name string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, notFound(err)
	}
	return data, nil
}

func (b bucketStore) write(ctx context.Context, name string, data []byte) error {
	contentType := "application/json"
	if strings.HasSuffix(name, ".parquet") {
		contentType = "application/vnd.apache.parquet"
	}
	_, err := b.client.PutObject(ctx, b.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (b bucketStore) namespaces(ctx context.Context) ([]string, error) {
	var out []string
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if prefix, ok := strings.CutSuffix(obj.Key, "/"); ok {
			out = append(out, prefix)
		}
	}
	return out, nil
}

func notFound(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return err
}

// Remote stores namespaces as <bucket>/<hash>/ and datasets as
// <bucket>/<hash>/datasets/<name>.parquet.
type Remote struct {
	objectBackend
}

var _ news.Backend = (*Remote)(nil)

// NewRemote connects to the endpoint and creates the bucket if missing.
func NewRemote(ctx context.Context, cfg RemoteConfig, logger *slog.Logger) (*Remote, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("remote storage needs an endpoint and a bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: check bucket %s: %w", news.ErrStorageIO, cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("%w: create bucket %s: %w", news.ErrStorageIO, cfg.Bucket, err)
		}
		logging.OrNop(logger).Info("created bucket", "bucket", cfg.Bucket)
	}
	return newRemote(bucketStore{client: client, bucket: cfg.Bucket}, logger), nil
}

func newRemote(objects blobStore, logger *slog.Logger) *Remote {
	return &Remote{objectBackend: newObjectBackend(objects, objects, nestedDatasetName, logger)}
}
