package gcs

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"io"
	"maps"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/marmos91/omnifs/internal/logger"
	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/minio/minio-go/v7"
)

// putOptions translates write options into minio PutObjectOptions. The
// canned ACL travels as a header in UserMetadata.
func (a *GCSAdapter) putOptions(key string, opts storage.WriteOptions, head []byte) minio.PutObjectOptions {
	put := minio.PutObjectOptions{
		ContentType:  opts.ResolveContentType(opts.GCS),
		CacheControl: opts.GCS.CacheControl,
	}
	if put.ContentType == "" {
		put.ContentType = storage.GuessByExtension(key)
	}
	if put.ContentType == "" && len(head) > 0 {
		put.ContentType = mimetype.Detect(head).String()
	}

	meta := make(map[string]string, len(opts.GCS.Metadata)+1)
	maps.Copy(meta, opts.GCS.Metadata)
	if acl := a.aclFor(opts); acl != "" {
		meta[aclHeader] = acl
	}
	if len(meta) > 0 {
		put.UserMetadata = meta
	}
	return put
}

func (a *GCSAdapter) aclFor(opts storage.WriteOptions) string {
	if opts.GCS.ACL != "" {
		return opts.GCS.ACL
	}
	if opts.Visibility != nil {
		return a.converter.ToACL(*opts.Visibility)
	}
	return ""
}

// Write uploads contents. Payloads under PartSize are a single PUT with a
// Content-MD5; larger ones a sequential multipart upload that is aborted on
// the first failing part.
func (a *GCSAdapter) Write(ctx context.Context, location string, contents io.Reader, opts storage.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, _, err := a.key(location)
	if err != nil {
		return err
	}

	first := make([]byte, PartSize)
	n, err := io.ReadFull(contents, first)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return storage.Failed("write", location, "unable to read contents", err)
	}
	first = first[:n]
	put := a.putOptions(key, opts, first)

	if n < PartSize {
		sum := md5.Sum(first)
		_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(first), int64(n),
			base64.StdEncoding.EncodeToString(sum[:]), "", put)
		if err != nil {
			return storage.Failed("write", location, "failed to upload file", err)
		}
		return nil
	}

	return a.multipartUpload(ctx, location, key, first, contents, put)
}

func (a *GCSAdapter) multipartUpload(ctx context.Context, location, key string, first []byte, rest io.Reader, put minio.PutObjectOptions) error {
	uploadID, err := a.client.NewMultipartUpload(ctx, a.bucket, key, put)
	if err != nil {
		return storage.Failed("write", location, "failed to upload file", err)
	}

	var (
		parts      []minio.CompletePart
		partNumber = 1
		chunk      = first
		buf        = make([]byte, PartSize)
	)

	for len(chunk) > 0 {
		sum := md5.Sum(chunk)
		start := time.Now()
		part, err := a.client.PutObjectPart(ctx, a.bucket, key, uploadID, partNumber,
			bytes.NewReader(chunk), int64(len(chunk)),
			minio.PutObjectPartOptions{Md5Base64: base64.StdEncoding.EncodeToString(sum[:])})
		a.metrics.ObservePart(int32(partNumber), int64(len(chunk)), time.Since(start), err)
		if err != nil {
			a.abort(key, uploadID)
			return storage.Failed("write", location, "failed to upload file", err)
		}

		parts = append(parts, minio.CompletePart{PartNumber: partNumber, ETag: part.ETag})
		partNumber++

		n, err := io.ReadFull(rest, buf)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			a.abort(key, uploadID)
			return storage.Failed("write", location, "unable to read contents", err)
		}
		chunk = buf[:n]
	}

	if _, err := a.client.CompleteMultipartUpload(ctx, a.bucket, key, uploadID, parts, minio.PutObjectOptions{}); err != nil {
		a.abort(key, uploadID)
		return storage.Failed("write", location, "failed to upload file", err)
	}

	logger.Debug("GCS multipart upload complete: key=%s parts=%d", key, len(parts))
	return nil
}

func (a *GCSAdapter) abort(key, uploadID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.client.AbortMultipartUpload(ctx, a.bucket, key, uploadID); err != nil {
		logger.Debug("GCS abort multipart upload failed: key=%s error=%v", key, err)
	}
}

// SetVisibility rewrites the object onto itself with the canned ACL for v,
// keeping its content type and user metadata.
func (a *GCSAdapter) SetVisibility(ctx context.Context, location string, v storage.Visibility) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, _, err := a.key(location)
	if err != nil {
		return err
	}

	info, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return storage.NotFound("chmod", location, err)
		}
		return storage.Failed("chmod", location, "unable to set visibility", err)
	}

	meta := make(map[string]string, len(info.UserMetadata)+2)
	maps.Copy(meta, info.UserMetadata)
	meta[aclHeader] = a.converter.ToACL(v)
	if info.ContentType != "" {
		meta["Content-Type"] = info.ContentType
	}

	_, err = a.client.CopyObject(ctx, a.bucket, key, a.bucket, key, meta,
		minio.CopySrcOptions{Bucket: a.bucket, Object: key}, minio.PutObjectOptions{})
	if err != nil {
		return storage.Failed("chmod", location, "unable to set visibility", err)
	}
	return nil
}

// Delete removes one object. A missing key is not an error.
func (a *GCSAdapter) Delete(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, _, err := a.key(location)
	if err != nil {
		return err
	}

	if err := a.client.RemoveObject(ctx, a.bucket, key, minio.RemoveObjectOptions{}); err != nil && !isNotFound(err) {
		return storage.Failed("delete", location, "unable to delete file", err)
	}
	return nil
}

// DeleteDirectory removes every key under location in one streamed batch.
// Failed keys are logged; the call still succeeds.
func (a *GCSAdapter) DeleteDirectory(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, _, err := a.key(location)
	if err != nil {
		return err
	}
	prefix := listingPrefix(key)

	var objects []minio.ObjectInfo
	token := ""
	for {
		page, err := a.client.ListObjectsV2(a.bucket, prefix, "", token, "", listPageSize)
		if err != nil {
			return storage.Failed("rmdir", location, "unable to delete directory", err)
		}
		objects = append(objects, page.Contents...)
		if !page.IsTruncated || page.NextContinuationToken == "" {
			break
		}
		token = page.NextContinuationToken
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for _, obj := range objects {
			select {
			case objectsCh <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()

	failed := 0
	for rerr := range a.client.RemoveObjects(ctx, a.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		failed++
		logger.Debug("GCS delete failed: key=%s error=%v", rerr.ObjectName, rerr.Err)
	}
	if failed > 0 {
		logger.Warn("GCS delete directory %s: %d of %d keys failed", location, failed, len(objects))
	}
	return nil
}

// CreateDirectory writes the zero-length marker "location/".
func (a *GCSAdapter) CreateDirectory(ctx context.Context, location string, opts storage.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, _, err := a.key(location)
	if err != nil {
		return err
	}
	if key == a.prefix {
		return nil
	}

	acl := a.aclFor(opts)
	if acl == "" {
		acl = a.converter.ToACL(a.converter.DefaultForDirectories())
	}

	put := minio.PutObjectOptions{UserMetadata: map[string]string{aclHeader: acl}}
	if _, err := a.client.PutObject(ctx, a.bucket, key+"/", bytes.NewReader(nil), 0, "", "", put); err != nil {
		return storage.Failed("mkdir", location, "unable to create directory", err)
	}
	return nil
}

// Copy duplicates source server-side. An explicit ACL or visibility
// replaces the destination ACL; otherwise the source one is kept.
func (a *GCSAdapter) Copy(ctx context.Context, source, destination string, opts storage.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcKey, _, err := a.key(source)
	if err != nil {
		return err
	}
	dstKey, _, err := a.key(destination)
	if err != nil {
		return err
	}

	info, err := a.client.StatObject(ctx, a.bucket, srcKey, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return storage.Failed("copy", source, "cannot copy file: source does not exist", err)
		}
		return storage.Failed("copy", source, "unable to copy file", err)
	}
	if !opts.Overwrite {
		taken, err := a.Exists(ctx, destination)
		if err != nil {
			return err
		}
		if taken {
			return storage.Failed("copy", destination, "cannot copy file: destination already exist and overwrite flag is not set", nil)
		}
	}

	acl := a.aclFor(opts)
	if acl == "" {
		if v, err := a.Visibility(ctx, source); err == nil {
			acl = a.converter.ToACL(v)
		}
	}

	var meta map[string]string
	if acl != "" {
		meta = make(map[string]string, len(info.UserMetadata)+2)
		maps.Copy(meta, info.UserMetadata)
		meta[aclHeader] = acl
		if info.ContentType != "" {
			meta["Content-Type"] = info.ContentType
		}
	}

	_, err = a.client.CopyObject(ctx, a.bucket, srcKey, a.bucket, dstKey, meta,
		minio.CopySrcOptions{Bucket: a.bucket, Object: srcKey}, minio.PutObjectOptions{})
	if err != nil {
		return storage.Failed("copy", source, "unable to copy file", err)
	}
	return nil
}

// Move is Copy followed by Delete of the source.
func (a *GCSAdapter) Move(ctx context.Context, source, destination string, opts storage.WriteOptions) error {
	if err := a.Copy(ctx, source, destination, opts); err != nil {
		return err
	}
	if err := a.Delete(ctx, source); err != nil {
		return storage.Failed("move", source, "unable to move file", err)
	}
	return nil
}
