package minio

import (
	"bytes"
	"context"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

var (
	ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")
	ErrInvalidRequest = errors.New(errors.ErrCodeValidation, "invalid request")
)

// UploadResult describes a stored object.
type UploadResult struct {
	Bucket     string
	ObjectKey  string
	ETag       string
	Size       int64
	UploadedAt time.Time
}

// Upload stores data under bucket/key.
func (c *Client) Upload(ctx context.Context, bucket, key, contentType string, data []byte, meta map[string]string) (*UploadResult, error) {
	if bucket == "" || key == "" {
		return nil, ErrInvalidRequest
	}
	opts := minio.PutObjectOptions{ContentType: contentType, UserMetadata: meta}
	info, err := c.api.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeObjectStoreError, "upload %s/%s", bucket, key)
	}
	c.logger.Debug("Object uploaded",
		logging.String("bucket", bucket),
		logging.String("key", key),
		logging.Int64("size", info.Size))
	return &UploadResult{Bucket: bucket, ObjectKey: key, ETag: info.ETag, Size: info.Size, UploadedAt: time.Now()}, nil
}

// Open streams bucket/key.  The caller closes the reader.
func (c *Client) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	rc, err := c.open(ctx, bucket, key)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrObjectNotFound.WithDetail(ObjectURL(bucket, key))
		}
		return nil, errors.Wrapf(err, errors.ErrCodeObjectStoreError, "open %s/%s", bucket, key)
	}
	return rc, nil
}

// OpenURL opens an s3://bucket/key location.
func (c *Client) OpenURL(ctx context.Context, u string) (io.ReadCloser, error) {
	bucket, key, ok := ParseObjectURL(u)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeSourceLocation, "not an object URL: %q", u)
	}
	return c.Open(ctx, bucket, key)
}

// Exists reports whether bucket/key exists.
func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.api.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, errors.ErrCodeObjectStoreError, "stat %s/%s", bucket, key)
	}
	return true, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// ReportStore writes run reports into one bucket under an optional prefix.
type ReportStore struct {
	client *Client
	bucket string
	prefix string
}

// NewReportStore creates a ReportStore.  An empty bucket selects the
// configured report bucket.
func NewReportStore(c *Client, bucket, prefix string) *ReportStore {
	if bucket == "" {
		bucket = c.config.ReportBucket
	}
	return &ReportStore{client: c, bucket: bucket, prefix: prefix}
}

// Put uploads data and returns its s3:// location.
func (s *ReportStore) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := path.Join(s.prefix, name)
	res, err := s.client.Upload(ctx, s.bucket, key, contentType, data, map[string]string{"generator": "fragetl"})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeReportWrite, "upload report")
	}
	return ObjectURL(res.Bucket, res.ObjectKey), nil
}
