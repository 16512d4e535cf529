package s3

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"io"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/marmos91/omnifs/internal/logger"
	"github.com/marmos91/omnifs/pkg/storage"
)

// uploadParams is what both upload paths put on the object.
type uploadParams struct {
	contentType  string
	acl          types.ObjectCannedACL
	cacheControl *string
	metadata     map[string]string
}

func (a *S3Adapter) uploadParams(key string, opts storage.WriteOptions, head []byte) uploadParams {
	p := uploadParams{
		contentType: opts.ResolveContentType(opts.S3),
		acl:         a.aclFor(opts),
		metadata:    opts.S3.Metadata,
	}
	if opts.S3.CacheControl != "" {
		p.cacheControl = aws.String(opts.S3.CacheControl)
	}
	if p.contentType == "" {
		p.contentType = storage.GuessByExtension(key)
	}
	if p.contentType == "" && len(head) > 0 {
		p.contentType = mimetype.Detect(head).String()
	}
	return p
}

// aclFor returns the explicit ACL, else the one matching opts.Visibility,
// else none (bucket default).
func (a *S3Adapter) aclFor(opts storage.WriteOptions) types.ObjectCannedACL {
	if opts.S3.ACL != "" {
		return types.ObjectCannedACL(opts.S3.ACL)
	}
	if opts.Visibility != nil {
		return types.ObjectCannedACL(a.converter.ToACL(*opts.Visibility))
	}
	return ""
}

// Write uploads contents to location.
//
// Payloads under PartSize go out as one PutObject carrying a Content-MD5.
// Larger payloads use a multipart upload with sequential PartSize parts
// numbered from 1. Any part failure aborts the upload before the error is
// returned; the abort error itself is ignored.
func (a *S3Adapter) Write(ctx context.Context, location string, contents io.Reader, opts storage.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, _, err := a.key(location)
	if err != nil {
		return err
	}

	// ========================================================================
	// Step 1: Read the first part to pick the upload path
	// ========================================================================

	first := make([]byte, PartSize)
	n, err := io.ReadFull(contents, first)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return storage.Failed("write", location, "unable to read contents", err)
	}
	first = first[:n]
	params := a.uploadParams(key, opts, first)

	// ========================================================================
	// Step 2: Small payloads use a single PutObject
	// ========================================================================

	if n < PartSize {
		return a.putObject(ctx, location, key, first, params)
	}

	// ========================================================================
	// Step 3: Large payloads use a multipart upload
	// ========================================================================

	return a.multipartUpload(ctx, location, key, first, contents, params)
}

func (a *S3Adapter) putObject(ctx context.Context, location, key string, data []byte, p uploadParams) error {
	sum := md5.Sum(data)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentMD5:    aws.String(base64.StdEncoding.EncodeToString(sum[:])),
		ACL:           p.acl,
		CacheControl:  p.cacheControl,
		Metadata:      p.metadata,
	}
	if p.contentType != "" {
		input.ContentType = aws.String(p.contentType)
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return storage.Failed("write", location, "failed to upload file", err)
	}
	return nil
}

func (a *S3Adapter) multipartUpload(ctx context.Context, location, key string, first []byte, rest io.Reader, p uploadParams) error {
	create := &s3.CreateMultipartUploadInput{
		Bucket:       aws.String(a.bucket),
		Key:          aws.String(key),
		ACL:          p.acl,
		CacheControl: p.cacheControl,
		Metadata:     p.metadata,
	}
	if p.contentType != "" {
		create.ContentType = aws.String(p.contentType)
	}

	upload, err := a.client.CreateMultipartUpload(ctx, create)
	if err != nil {
		return storage.Failed("write", location, "failed to upload file", err)
	}
	uploadID := upload.UploadId

	var (
		parts      []types.CompletedPart
		partNumber int32 = 1
		chunk            = first
		buf              = make([]byte, PartSize)
	)

	for len(chunk) > 0 {
		start := time.Now()
		result, err := a.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(a.bucket),
			Key:           aws.String(key),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(partNumber),
			Body:          bytes.NewReader(chunk),
			ContentLength: aws.Int64(int64(len(chunk))),
		})
		a.metrics.ObservePart(partNumber, int64(len(chunk)), time.Since(start), err)
		if err != nil {
			a.abort(key, uploadID)
			return storage.Failed("write", location, "failed to upload file", err)
		}

		parts = append(parts, types.CompletedPart{
			ETag:       result.ETag,
			PartNumber: aws.Int32(partNumber),
		})
		partNumber++

		n, err := io.ReadFull(rest, buf)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			a.abort(key, uploadID)
			return storage.Failed("write", location, "unable to read contents", err)
		}
		chunk = buf[:n]
	}

	_, err = a.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(a.bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		a.abort(key, uploadID)
		return storage.Failed("write", location, "failed to upload file", err)
	}

	logger.Debug("S3 multipart upload complete: key=%s parts=%d", key, len(parts))
	return nil
}

// abort cancels a multipart upload. It runs on a fresh context so a
// cancelled caller still releases the parts, and its error is only logged.
func (a *S3Adapter) abort(key string, uploadID *string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := a.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(a.bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
	})
	if err != nil {
		logger.Debug("S3 abort multipart upload failed: key=%s error=%v", key, err)
	}
}

// SetVisibility replaces the object ACL with the canned ACL for v.
func (a *S3Adapter) SetVisibility(ctx context.Context, location string, v storage.Visibility) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, _, err := a.key(location)
	if err != nil {
		return err
	}

	_, err = a.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		ACL:    types.ObjectCannedACL(a.converter.ToACL(v)),
	})
	if err != nil {
		if isNotFound(err) {
			return storage.NotFound("chmod", location, err)
		}
		return storage.Failed("chmod", location, "unable to set visibility", err)
	}
	return nil
}

// Delete removes one object. Deleting a missing key succeeds.
func (a *S3Adapter) Delete(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, _, err := a.key(location)
	if err != nil {
		return err
	}

	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return storage.Failed("delete", location, "unable to delete file", err)
	}
	return nil
}

// DeleteDirectory lists every key under location and removes them in
// batches. Keys the backend refuses to delete are logged and skipped; the
// directory may be left partially deleted.
func (a *S3Adapter) DeleteDirectory(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, _, err := a.key(location)
	if err != nil {
		return err
	}
	prefix := listingPrefix(key)

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return storage.Failed("rmdir", location, "unable to delete directory", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}

	failures := a.deleteBatch(ctx, keys)
	if len(failures) > 0 {
		logger.Warn("S3 delete directory %s: %d of %d keys failed", location, len(failures), len(keys))
		for k, ferr := range failures {
			logger.Debug("S3 delete failed: key=%s error=%v", k, ferr)
		}
	}
	return nil
}

// deleteBatch removes keys with DeleteObjects, chunked to the API limit.
func (a *S3Adapter) deleteBatch(ctx context.Context, keys []string) map[string]error {
	failures := make(map[string]error)

	for i := 0; i < len(keys); i += maxDeleteBatch {
		end := min(i+maxDeleteBatch, len(keys))
		batch := keys[i:end]

		objects := make([]types.ObjectIdentifier, len(batch))
		for j, k := range batch {
			objects[j] = types.ObjectIdentifier{Key: aws.String(k)}
		}

		result, err := a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			for _, k := range batch {
				failures[k] = err
			}
			continue
		}

		for _, deleteErr := range result.Errors {
			if deleteErr.Key == nil {
				continue
			}
			failures[*deleteErr.Key] = errors.New(aws.ToString(deleteErr.Code) + ": " + aws.ToString(deleteErr.Message))
		}
	}

	return failures
}

// CreateDirectory writes the zero-length marker "location/".
func (a *S3Adapter) CreateDirectory(ctx context.Context, location string, opts storage.WriteOptions) error {
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
		acl = types.ObjectCannedACL(a.converter.ToACL(a.converter.DefaultForDirectories()))
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key + "/"),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
		ACL:           acl,
	})
	if err != nil {
		return storage.Failed("mkdir", location, "unable to create directory", err)
	}
	return nil
}

// Copy duplicates the object at source with CopyObject. Without an explicit
// ACL or visibility, the copy keeps the source visibility.
func (a *S3Adapter) Copy(ctx context.Context, source, destination string, opts storage.WriteOptions) error {
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

	exists, err := a.headExists(ctx, srcKey)
	if err != nil {
		return storage.Failed("copy", source, "unable to copy file", err)
	}
	if !exists {
		return storage.Failed("copy", source, "cannot copy file: source does not exist", nil)
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
			acl = types.ObjectCannedACL(a.converter.ToACL(v))
		} else {
			logger.Debug("S3 copy: keeping bucket default ACL for %s: %v", source, err)
		}
	}

	_, err = a.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(url.PathEscape(a.bucket + "/" + srcKey)),
		ACL:        acl,
	})
	if err != nil {
		return storage.Failed("copy", source, "unable to copy file", err)
	}
	return nil
}

// Move is Copy followed by Delete of the source.
func (a *S3Adapter) Move(ctx context.Context, source, destination string, opts storage.WriteOptions) error {
	if err := a.Copy(ctx, source, destination, opts); err != nil {
		return err
	}
	if err := a.Delete(ctx, source); err != nil {
		return storage.Failed("move", source, "unable to move file", err)
	}
	return nil
}
