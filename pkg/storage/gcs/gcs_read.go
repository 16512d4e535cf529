package gcs

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/marmos91/omnifs/pkg/storage/visibility"
	"github.com/minio/minio-go/v7"
)

const listPageSize = 1000

// Exists probes the object, its directory marker and finally the prefix.
func (a *GCSAdapter) Exists(ctx context.Context, location string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key, _, err := a.key(location)
	if err != nil {
		return false, err
	}
	if key == a.prefix {
		return true, nil
	}

	for _, probe := range []string{key, key + "/"} {
		found, err := a.statExists(ctx, probe)
		if err != nil {
			return false, storage.Failed("exists", location, "unable to check existence", err)
		}
		if found {
			return true, nil
		}
	}

	found, err := a.hasChildren(key)
	if err != nil {
		return false, storage.Failed("exists", location, "unable to check existence", err)
	}
	return found, nil
}

// Read returns the object body. The body is streamed from the backend as
// the caller reads.
func (a *GCSAdapter) Read(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, _, err := a.key(location)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(location, "/") || key == a.prefix {
		return nil, storage.Failed("read", location, "cannot read a directory", nil)
	}

	body, _, _, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		switch {
		case isNotFound(err):
			if marker, _ := a.statExists(ctx, key+"/"); marker {
				return nil, storage.Failed("read", location, "cannot read a directory", nil)
			}
			return nil, storage.NotFound("read", location, err)
		case isArchived(err):
			return nil, storage.Failed("read", location, "file cannot be read", err)
		default:
			return nil, storage.Failed("read", location, "unable to read file", err)
		}
	}
	return body, nil
}

// Stat resolves location as an object, then as a marker, then as a
// non-empty prefix.
func (a *GCSAdapter) Stat(ctx context.Context, location string) (*storage.FileStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, normalized, err := a.key(location)
	if err != nil {
		return nil, err
	}
	if key == a.prefix {
		return a.directoryStat(normalized, time.Time{}), nil
	}

	info, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return a.objectStat(normalized, normalized, info), nil
	}
	if !isNotFound(err) {
		return nil, storage.Failed("stat", location, "unable to retrieve metadata", err)
	}

	marker, err := a.client.StatObject(ctx, a.bucket, key+"/", minio.StatObjectOptions{})
	if err == nil {
		return a.directoryStat(normalized, marker.LastModified), nil
	}
	if !isNotFound(err) {
		return nil, storage.Failed("stat", location, "unable to retrieve metadata", err)
	}

	found, err := a.hasChildren(key)
	if err != nil {
		return nil, storage.Failed("stat", location, "unable to retrieve metadata", err)
	}
	if !found {
		return nil, storage.NotFound("stat", location, nil)
	}
	return a.directoryStat(normalized, time.Time{}), nil
}

// Visibility reads the object ACL.
func (a *GCSAdapter) Visibility(ctx context.Context, location string) (storage.Visibility, error) {
	if err := ctx.Err(); err != nil {
		return storage.Public, err
	}

	key, _, err := a.key(location)
	if err != nil {
		return storage.Public, err
	}

	info, err := a.client.GetObjectACL(ctx, a.bucket, key)
	if err != nil {
		if isNotFound(err) {
			return storage.Public, storage.NotFound("visibility", location, err)
		}
		return storage.Public, storage.Failed("visibility", location, "unable to retrieve visibility", err)
	}

	grants := make([]visibility.Grant, 0, len(info.Grant))
	for _, g := range info.Grant {
		grantee := g.Grantee.URI
		if grantee == "" {
			grantee = g.Grantee.ID
		}
		if grantee == "" {
			grantee = g.Grantee.DisplayName
		}
		grants = append(grants, visibility.Grant{Grantee: grantee, Permission: g.Permission})
	}
	return a.converter.FromGrants(grants), nil
}

// List pages through the keys under location with ListObjectsV2. With
// deep=false the "/" delimiter folds sub-prefixes into directory entries.
func (a *GCSAdapter) List(ctx context.Context, location string, deep bool) *storage.Listing {
	key, normalized, err := a.key(location)
	if err != nil {
		return storage.FailedListing(err)
	}
	prefix := listingPrefix(key)
	delimiter := ""
	if !deep {
		delimiter = "/"
	}

	return storage.NewListing(ctx, func(ctx context.Context, yield func(*storage.FileStat, error) bool) {
		token := ""
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			page, err := a.client.ListObjectsV2(a.bucket, prefix, "", token, delimiter, listPageSize)
			if err != nil {
				yield(nil, storage.Failed("list", location, "unable to list objects", err))
				return
			}

			for _, cp := range page.CommonPrefixes {
				rel := relativeTo(prefix, cp.Prefix)
				if rel == "" {
					continue
				}
				if !yield(a.directoryStat(rel, time.Time{}), nil) {
					return
				}
			}

			for _, obj := range page.Contents {
				rel := relativeTo(prefix, obj.Key)
				if rel == "" {
					continue
				}

				var stat *storage.FileStat
				if strings.HasSuffix(obj.Key, "/") {
					stat = a.directoryStat(rel, obj.LastModified)
				} else {
					stat = a.objectStat(rel, storage.JoinKey(normalized, rel), obj)
				}
				if !yield(stat, nil) {
					return
				}
			}

			if !page.IsTruncated || page.NextContinuationToken == "" {
				return
			}
			token = page.NextContinuationToken
		}
	})
}

// ============================================================================
// Helpers
// ============================================================================

func (a *GCSAdapter) objectStat(path, fullPath string, info minio.ObjectInfo) *storage.FileStat {
	contentType := info.ContentType
	if contentType == "" {
		contentType = storage.GuessByExtension(path)
	}
	return storage.NewFileStat(storage.FileStatAttrs{
		Path:         path,
		LastModified: info.LastModified,
		Size:         info.Size,
		MimeType:     contentType,
		Resolver: func(ctx context.Context) (storage.Visibility, error) {
			return a.Visibility(ctx, fullPath)
		},
	})
}

func (a *GCSAdapter) directoryStat(path string, modified time.Time) *storage.FileStat {
	return storage.NewDirectoryStat(path, modified, nil, a.converter.DefaultForDirectories())
}

func (a *GCSAdapter) statExists(ctx context.Context, key string) (bool, error) {
	_, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (a *GCSAdapter) hasChildren(key string) (bool, error) {
	page, err := a.client.ListObjectsV2(a.bucket, listingPrefix(key), "", "", "", 1)
	if err != nil {
		return false, err
	}
	return len(page.Contents) > 0 || len(page.CommonPrefixes) > 0, nil
}

func relativeTo(prefix, key string) string {
	return strings.TrimSuffix(strings.TrimPrefix(key, prefix), "/")
}
