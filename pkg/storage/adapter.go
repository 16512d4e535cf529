// Package storage defines the uniform file-operation contract shared by every
// backend (local disk, S3, GCS-like object stores, embedded KV) together with
// the value types that flow through it: normalized paths, FileStat, Listing,
// Visibility and WriteOptions.
//
// Backends live in sub-packages and implement Adapter. Paths given to an
// adapter are user-facing and are always normalized with NormalizePath before
// being mapped onto the backend namespace, so no operation can escape the
// adapter root.
package storage

import (
	"bytes"
	"context"
	"io"
	"os"
)

// Adapter is the uniform storage contract.
//
// Implementations hold a shared backend client and a root prefix and are safe
// for concurrent use as long as the client is. All operations block until the
// backend answers; none retries internally.
//
// Error policy:
//   - Missing paths on Stat/Read map to ErrNotFound
//   - Traversal above root maps to ErrInvalidPath
//   - Every other backend failure maps to ErrOperationFailed with the cause chained
//   - Delete of a missing object-store key is a silent no-op
type Adapter interface {
	// Exists reports whether path is a file, a directory (marker) or a link.
	Exists(ctx context.Context, path string) (bool, error)

	// Read opens path for sequential reading. The caller must close the
	// returned reader. Directory paths fail with ErrOperationFailed.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// List returns the entries under path. With deep=false only immediate
	// children are returned. Entry paths are relative to path. The returned
	// Listing is lazy: the backend is queried on first iteration.
	List(ctx context.Context, path string, deep bool) *Listing

	// Stat describes a single entry.
	Stat(ctx context.Context, path string) (*FileStat, error)

	// Visibility resolves the access level of path.
	Visibility(ctx context.Context, path string) (Visibility, error)

	// SetVisibility changes the access level of path.
	SetVisibility(ctx context.Context, path string, visibility Visibility) error

	// Write stores contents at path, replacing any previous content.
	Write(ctx context.Context, path string, contents io.Reader, opts WriteOptions) error

	// Delete removes a single file.
	Delete(ctx context.Context, path string) error

	// DeleteDirectory removes path and everything below it.
	DeleteDirectory(ctx context.Context, path string) error

	// CreateDirectory creates path (and its parents where that applies).
	CreateDirectory(ctx context.Context, path string, opts WriteOptions) error

	// Move relocates src to dst. See Copy for the overwrite rules.
	Move(ctx context.Context, src, dst string, opts WriteOptions) error

	// Copy duplicates src at dst. It fails if src is missing, or if dst
	// exists and opts.Overwrite is false.
	Copy(ctx context.Context, src, dst string, opts WriteOptions) error
}

// WriteOptions carries the per-call configuration of write-like operations.
//
// ContentType is the top-level content type and wins over any
// backend-specific content type.
type WriteOptions struct {
	ContentType string `mapstructure:"content-type"`

	// Overwrite allows Copy/Move onto an existing destination.
	Overwrite bool `mapstructure:"overwrite"`

	// Visibility, when set, is translated by the adapter into its native
	// representation (permission bits or ACL).
	Visibility *Visibility `mapstructure:"visibility"`

	Local LocalOptions  `mapstructure:"local"`
	S3    ObjectOptions `mapstructure:"s3"`
	GCS   ObjectOptions `mapstructure:"gcs"`
}

// LocalOptions are honoured by the local adapter only. Zero means "not set".
type LocalOptions struct {
	FilePermissions os.FileMode `mapstructure:"file_permissions"`
	DirPermissions  os.FileMode `mapstructure:"dir_permissions"`
}

// ObjectOptions are forwarded verbatim to object-store backends.
type ObjectOptions struct {
	ContentType  string            `mapstructure:"content-type"`
	ACL          string            `mapstructure:"acl"`
	CacheControl string            `mapstructure:"cache-control"`
	Metadata     map[string]string `mapstructure:"metadata"`
}

// ResolveContentType applies the precedence rule: top-level first, then the
// backend-specific value.
func (o WriteOptions) ResolveContentType(backend ObjectOptions) string {
	if o.ContentType != "" {
		return o.ContentType
	}
	return backend.ContentType
}

// WriteBytes writes an in-memory payload.
func WriteBytes(ctx context.Context, a Adapter, path string, contents []byte, opts WriteOptions) error {
	return a.Write(ctx, path, bytes.NewReader(contents), opts)
}

// ReadAll reads the whole content of path.
func ReadAll(ctx context.Context, a Adapter, path string) ([]byte, error) {
	rc, err := a.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc)
}
