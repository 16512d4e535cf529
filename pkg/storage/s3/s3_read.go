package s3

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/marmos91/omnifs/pkg/storage/visibility"
)

// Exists probes the key, then its directory marker, then a one-key listing
// under its prefix.
func (a *S3Adapter) Exists(ctx context.Context, location string) (bool, error) {
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

	found, err := a.headExists(ctx, key)
	if err != nil || found {
		return found, a.wrap("exists", location, err)
	}

	found, err = a.headExists(ctx, key+"/")
	if err != nil || found {
		return found, a.wrap("exists", location, err)
	}

	found, err = a.hasChildren(ctx, key)
	return found, a.wrap("exists", location, err)
}

// Read streams the object at location. The body is pulled from the network
// as the caller reads.
func (a *S3Adapter) Read(ctx context.Context, location string) (io.ReadCloser, error) {
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

	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		switch {
		case isNotFound(err):
			if marker, _ := a.headExists(ctx, key+"/"); marker {
				return nil, storage.Failed("read", location, "cannot read a directory", nil)
			}
			return nil, storage.NotFound("read", location, err)
		case isArchived(err):
			return nil, storage.Failed("read", location, "file cannot be read", err)
		default:
			return nil, storage.Failed("read", location, "unable to read file", err)
		}
	}

	return result.Body, nil
}

// Stat describes location. Directories resolve through the marker object
// first and fall back to a one-key listing under the prefix.
func (a *S3Adapter) Stat(ctx context.Context, location string) (*storage.FileStat, error) {
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

	head, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return a.objectStat(normalized, normalized, aws.ToTime(head.LastModified), aws.ToInt64(head.ContentLength), aws.ToString(head.ContentType)), nil
	}
	if !isNotFound(err) {
		return nil, storage.Failed("stat", location, "unable to retrieve metadata", err)
	}

	marker, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key + "/"),
	})
	if err == nil {
		return a.directoryStat(normalized, aws.ToTime(marker.LastModified)), nil
	}
	if !isNotFound(err) {
		return nil, storage.Failed("stat", location, "unable to retrieve metadata", err)
	}

	found, err := a.hasChildren(ctx, key)
	if err != nil {
		return nil, storage.Failed("stat", location, "unable to retrieve metadata", err)
	}
	if !found {
		return nil, storage.NotFound("stat", location, nil)
	}
	return a.directoryStat(normalized, time.Time{}), nil
}

// Visibility reads the object ACL.
func (a *S3Adapter) Visibility(ctx context.Context, location string) (storage.Visibility, error) {
	if err := ctx.Err(); err != nil {
		return storage.Public, err
	}

	key, _, err := a.key(location)
	if err != nil {
		return storage.Public, err
	}

	result, err := a.client.GetObjectAcl(ctx, &s3.GetObjectAclInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return storage.Public, storage.NotFound("visibility", location, err)
		}
		return storage.Public, storage.Failed("visibility", location, "unable to retrieve visibility", err)
	}

	return a.converter.FromGrants(grantsOf(result.Grants)), nil
}

// List pages through the keys under location. With deep=false the listing
// uses the "/" delimiter and sub-prefixes come back as directories.
func (a *S3Adapter) List(ctx context.Context, location string, deep bool) *storage.Listing {
	key, normalized, err := a.key(location)
	if err != nil {
		return storage.FailedListing(err)
	}
	prefix := listingPrefix(key)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	}
	if !deep {
		input.Delimiter = aws.String("/")
	}

	return storage.NewListing(ctx, func(ctx context.Context, yield func(*storage.FileStat, error) bool) {
		paginator := s3.NewListObjectsV2Paginator(a.client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					yield(nil, ctxErr)
					return
				}
				yield(nil, storage.Failed("list", location, "unable to list objects", err))
				return
			}

			for _, cp := range page.CommonPrefixes {
				rel := relativeTo(prefix, aws.ToString(cp.Prefix))
				if rel == "" {
					continue
				}
				if !yield(a.directoryStat(rel, time.Time{}), nil) {
					return
				}
			}

			for _, obj := range page.Contents {
				objKey := aws.ToString(obj.Key)
				rel := relativeTo(prefix, objKey)
				if rel == "" {
					continue
				}

				var stat *storage.FileStat
				if strings.HasSuffix(objKey, "/") {
					stat = a.directoryStat(rel, aws.ToTime(obj.LastModified))
				} else {
					stat = a.objectStat(rel, storage.JoinKey(normalized, rel), aws.ToTime(obj.LastModified), aws.ToInt64(obj.Size), "")
				}
				if !yield(stat, nil) {
					return
				}
			}
		}
	})
}

// ============================================================================
// Helpers
// ============================================================================

// objectStat builds the stat of a file. fullPath is the adapter-relative
// path used to resolve the visibility lazily.
func (a *S3Adapter) objectStat(path, fullPath string, modified time.Time, size int64, contentType string) *storage.FileStat {
	if contentType == "" {
		contentType = storage.GuessByExtension(path)
	}
	return storage.NewFileStat(storage.FileStatAttrs{
		Path:         path,
		LastModified: modified,
		Size:         size,
		MimeType:     contentType,
		Resolver: func(ctx context.Context) (storage.Visibility, error) {
			return a.Visibility(ctx, fullPath)
		},
	})
}

func (a *S3Adapter) directoryStat(path string, modified time.Time) *storage.FileStat {
	return storage.NewDirectoryStat(path, modified, nil, a.converter.DefaultForDirectories())
}

// headExists maps a 404 HEAD to (false, nil).
func (a *S3Adapter) headExists(ctx context.Context, key string) (bool, error) {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

// hasChildren reports whether at least one key lives under key + "/".
func (a *S3Adapter) hasChildren(ctx context.Context, key string) (bool, error) {
	result, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(listingPrefix(key)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}
	return len(result.Contents) > 0 || len(result.CommonPrefixes) > 0, nil
}

func (a *S3Adapter) wrap(op, location string, err error) error {
	if err == nil {
		return nil
	}
	return storage.Failed(op, location, "unable to check existence", err)
}

// relativeTo strips the listing prefix and any trailing separator.
func relativeTo(prefix, key string) string {
	return strings.TrimSuffix(strings.TrimPrefix(key, prefix), "/")
}

func grantsOf(grants []types.Grant) []visibility.Grant {
	out := make([]visibility.Grant, 0, len(grants))
	for _, g := range grants {
		if g.Grantee == nil {
			continue
		}
		grantee := aws.ToString(g.Grantee.URI)
		if grantee == "" {
			grantee = aws.ToString(g.Grantee.ID)
		}
		out = append(out, visibility.Grant{Grantee: grantee, Permission: string(g.Permission)})
	}
	return out
}
