// Package s3 implements storage.Adapter on Amazon S3 or any S3-compatible
// object store through aws-sdk-go-v2.
//
// Object stores have no directories. They are emulated with zero-length
// marker objects whose key ends in "/" and with delimiter listings. A path
// "exists" as a directory when a marker is present or when at least one key
// lives under its prefix.
package s3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/omnifs/internal/logger"
	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/marmos91/omnifs/pkg/storage/visibility"
)

const (
	// PartSize is the size of every multipart part but the last one, and
	// the threshold under which a single PutObject is used.
	PartSize = 5 * 1024 * 1024

	// maxDeleteBatch is the DeleteObjects limit.
	maxDeleteBatch = 1000
)

// Client is the subset of *s3.Client the adapter uses.
//
// It also satisfies s3.ListObjectsV2APIClient, so the SDK paginator works
// on fakes as well.
type Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObjectAcl(ctx context.Context, params *s3.GetObjectAclInput, optFns ...func(*s3.Options)) (*s3.GetObjectAclOutput, error)
	PutObjectAcl(ctx context.Context, params *s3.PutObjectAclInput, optFns ...func(*s3.Options)) (*s3.PutObjectAclOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

var _ Client = (*s3.Client)(nil)

// Metrics observes multipart traffic. It is optional.
type Metrics interface {
	ObservePart(partNumber int32, bytes int64, duration time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) ObservePart(int32, int64, time.Duration, error) {}

// Config configures an S3Adapter.
type Config struct {
	// Client is the configured S3 client. It is shared, not owned.
	Client Client

	// Bucket is the bucket name. It must already exist.
	Bucket string

	// Prefix is prepended to every key ("tenant-a/" maps "x.txt" to
	// "tenant-a/x.txt").
	Prefix string

	// Visibility maps visibility to canned ACLs and back. The zero value
	// selects visibility.NewACLConverter().
	Visibility *visibility.ACLConverter

	// SkipBucketCheck disables the HeadBucket probe at construction.
	SkipBucketCheck bool

	// Metrics, when set, observes multipart parts.
	Metrics Metrics
}

// S3Adapter implements storage.Adapter on an S3 bucket.
//
// Thread Safety:
// The adapter holds no per-call state and is safe for concurrent use as long
// as the client is (the SDK client is).
type S3Adapter struct {
	client    Client
	bucket    string
	prefix    string
	converter visibility.ACLConverter
	metrics   Metrics
}

var _ storage.Adapter = (*S3Adapter)(nil)

// New creates an S3Adapter and verifies bucket access.
//
// Context Cancellation:
// This operation checks the context before verifying bucket access.
func New(ctx context.Context, cfg Config) (*S3Adapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	a := &S3Adapter{
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
		_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)})
		if err != nil {
			return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
		}
	}

	logger.Debug("S3 adapter ready: bucket=%s prefix=%q", a.bucket, a.prefix)
	return a, nil
}

// Bucket returns the bucket name.
func (a *S3Adapter) Bucket() string {
	return a.bucket
}

// key maps a user path to an object key. The root maps to the bare prefix.
func (a *S3Adapter) key(location string) (string, string, error) {
	normalized, err := storage.NormalizePath(location)
	if err != nil {
		return "", "", err
	}
	return storage.JoinKey(a.prefix, normalized), normalized, nil
}

// listingPrefix is the prefix children of key live under.
func listingPrefix(key string) string {
	if key == "" {
		return ""
	}
	return key + "/"
}

// ============================================================================
// Error classification
// ============================================================================

// isNotFound reports whether err is a missing key or a 404 HEAD.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return false
}

// isArchived reports whether err says the object sits in an archive tier
// and cannot be read without a restore.
func isArchived(err error) bool {
	var invalidState *types.InvalidObjectState
	if errors.As(err, &invalidState) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidObjectState"
}
