// Package gcs implements storage.Adapter on a GCS-like object store.
//
// The backend is reached through its S3-interoperable XML API with the
// minio-go Core client (HMAC keys against storage.googleapis.com, or any
// MinIO-compatible endpoint). Directories are emulated with zero-length
// "key/" markers exactly like the S3 adapter; visibility comes from the
// object ACL, where a READ/READER grant to allUsers or
// allAuthenticatedUsers means Public.
package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marmos91/omnifs/internal/logger"
	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/marmos91/omnifs/pkg/storage/visibility"
	"github.com/minio/minio-go/v7"
)

const (
	// PartSize is the multipart part size and the single-upload threshold.
	PartSize = 5 * 1024 * 1024

	// aclHeader carries canned ACLs on writes. The interop API maps it onto
	// the predefined object ACLs.
	aclHeader = "x-amz-acl"
)

// Client is the subset of *minio.Core the adapter uses.
type Client interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, minio.ObjectInfo, http.Header, error)
	GetObjectACL(ctx context.Context, bucketName, objectName string) (*minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucket, object string, data io.Reader, size int64, md5Base64, sha256Hex string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	CopyObject(ctx context.Context, sourceBucket, sourceObject, destBucket, destObject string, metadata map[string]string, srcOpts minio.CopySrcOptions, dstOpts minio.PutObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	RemoveObjects(ctx context.Context, bucketName string, objectsCh <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError
	ListObjectsV2(bucketName, objectPrefix, startAfter, continuationToken, delimiter string, maxkeys int) (minio.ListBucketV2Result, error)
	NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	PutObjectPart(ctx context.Context, bucket, object, uploadID string, partID int, data io.Reader, size int64, opts minio.PutObjectPartOptions) (minio.ObjectPart, error)
	CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error
}

var _ Client = (*minio.Core)(nil)

// Metrics observes multipart traffic. It is optional.
type Metrics interface {
	ObservePart(partNumber int32, bytes int64, duration time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) ObservePart(int32, int64, time.Duration, error) {}

// Config configures a GCSAdapter.
type Config struct {
	Client Client
	Bucket string
	Prefix string

	// Visibility maps visibility to ACLs. The zero value selects
	// visibility.NewACLConverter().
	Visibility *visibility.ACLConverter

	// SkipBucketCheck disables the existence probe at construction.
	SkipBucketCheck bool

	Metrics Metrics
}

// GCSAdapter implements storage.Adapter on a GCS-like bucket.
type GCSAdapter struct {
	client    Client
	bucket    string
	prefix    string
	converter visibility.ACLConverter
	metrics   Metrics
}

var _ storage.Adapter = (*GCSAdapter)(nil)

// NewCore builds the minio Core client for endpoint. Credentials are HMAC
// keys; secure selects https.
func NewCore(endpoint string, opts *minio.Options) (*minio.Core, error) {
	core, err := minio.NewCore(endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client for %s: %w", endpoint, err)
	}
	return core, nil
}

// New creates a GCSAdapter and checks that the bucket exists.
func New(ctx context.Context, cfg Config) (*GCSAdapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("object store client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	a := &GCSAdapter{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		prefix:    storage.JoinKey("", cfg.Prefix),
		converter: visibility.NewACLConverter(),
		metrics:   cfg.Metrics,
	}
	if cfg.Visibility != nil {
		a.converter = *cfg.Visibility
	}
	if a.metrics == nil {
		a.metrics = noopMetrics{}
	}

	if !cfg.SkipBucketCheck {
		ok, err := cfg.Client.BucketExists(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
		}
		if !ok {
			return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
		}
	}

	logger.Debug("GCS adapter ready: bucket=%s prefix=%q", a.bucket, a.prefix)
	return a, nil
}

func (a *GCSAdapter) key(location string) (string, string, error) {
	normalized, err := storage.NormalizePath(location)
	if err != nil {
		return "", "", err
	}
	return storage.JoinKey(a.prefix, normalized), normalized, nil
}

func listingPrefix(key string) string {
	if key == "" {
		return ""
	}
	return key + "/"
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}

func isArchived(err error) bool {
	return minio.ToErrorResponse(err).Code == "InvalidObjectState"
}
