package gcs

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
)

type memObject struct {
	data        []byte
	contentType string
	meta        map[string]string
	modified    time.Time
}

// memCore is an in-memory Client. Canned ACLs are read back from the
// "x-amz-acl" header the adapter sends.
type memCore struct {
	mu       sync.Mutex
	objects  map[string]*memObject
	uploads  map[string]map[int][]byte
	nextID   int
	pageSize int

	completed int
	aborted   int
}

var _ Client = (*memCore)(nil)

func newMemCore() *memCore {
	return &memCore{
		objects:  make(map[string]*memObject),
		uploads:  make(map[string]map[int][]byte),
		pageSize: 2,
	}
}

func noSuchKey(key string) error {
	return minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist.", Key: key, StatusCode: http.StatusNotFound}
}

func (c *memCore) info(key string, obj *memObject) minio.ObjectInfo {
	return minio.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		LastModified: obj.modified,
		ContentType:  obj.contentType,
		UserMetadata: obj.meta,
	}
}

func (c *memCore) BucketExists(context.Context, string) (bool, error) {
	return true, nil
}

func (c *memCore) StatObject(_ context.Context, _, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.objects[key]
	if !ok {
		return minio.ObjectInfo{}, noSuchKey(key)
	}
	return c.info(key, obj), nil
}

func (c *memCore) GetObject(_ context.Context, _, key string, _ minio.GetObjectOptions) (io.ReadCloser, minio.ObjectInfo, http.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.objects[key]
	if !ok {
		return nil, minio.ObjectInfo{}, nil, noSuchKey(key)
	}
	data := append([]byte(nil), obj.data...)
	return io.NopCloser(bytes.NewReader(data)), c.info(key, obj), http.Header{}, nil
}

func (c *memCore) GetObjectACL(_ context.Context, _, key string) (*minio.ObjectInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.objects[key]
	if !ok {
		return nil, noSuchKey(key)
	}

	info := c.info(key, obj)
	var owner minio.Grant
	owner.Grantee.ID = "project-owners-123"
	owner.Permission = "FULL_CONTROL"
	info.Grant = append(info.Grant, owner)

	if obj.meta[aclHeader] == "public-read" {
		var everyone minio.Grant
		everyone.Grantee.ID = "allUsers"
		everyone.Permission = "READER"
		info.Grant = append(info.Grant, everyone)
	}
	return &info, nil
}

func (c *memCore) PutObject(_ context.Context, _, key string, data io.Reader, _ int64, _, _ string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	payload, err := io.ReadAll(data)
	if err != nil {
		return minio.UploadInfo{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[key] = &memObject{data: payload, contentType: opts.ContentType, meta: opts.UserMetadata, modified: time.Now()}
	return minio.UploadInfo{Key: key, Size: int64(len(payload))}, nil
}

func (c *memCore) CopyObject(_ context.Context, _, srcKey, _, dstKey string, metadata map[string]string, _ minio.CopySrcOptions, _ minio.PutObjectOptions) (minio.ObjectInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	src, ok := c.objects[srcKey]
	if !ok {
		return minio.ObjectInfo{}, noSuchKey(srcKey)
	}

	dst := &memObject{
		data:        append([]byte(nil), src.data...),
		contentType: src.contentType,
		meta:        src.meta,
		modified:    time.Now(),
	}
	if metadata != nil {
		dst.meta = make(map[string]string)
		for k, v := range metadata {
			if k == "Content-Type" {
				dst.contentType = v
				continue
			}
			dst.meta[k] = v
		}
	}
	c.objects[dstKey] = dst
	return c.info(dstKey, dst), nil
}

func (c *memCore) RemoveObject(_ context.Context, _, key string, _ minio.RemoveObjectOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, key)
	return nil
}

func (c *memCore) RemoveObjects(_ context.Context, _ string, objectsCh <-chan minio.ObjectInfo, _ minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError {
	errs := make(chan minio.RemoveObjectError)
	go func() {
		defer close(errs)
		for obj := range objectsCh {
			c.mu.Lock()
			delete(c.objects, obj.Key)
			c.mu.Unlock()
		}
	}()
	return errs
}

func (c *memCore) ListObjectsV2(_, prefix, _, continuationToken, delimiter string, maxKeys int) (minio.ListBucketV2Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	limit := c.pageSize
	if maxKeys > 0 && maxKeys < limit {
		limit = maxKeys
	}

	keys := make([]string, 0, len(c.objects))
	for k := range c.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out minio.ListBucketV2Result
	after := continuationToken
	seen := make(map[string]bool)
	count := 0
	for _, k := range keys {
		entry, isPrefix := k, false
		if delimiter != "" {
			if i := strings.Index(k[len(prefix):], delimiter); i >= 0 {
				entry, isPrefix = k[:len(prefix)+i+len(delimiter)], true
			}
		}
		if entry <= after || seen[entry] {
			continue
		}
		if count == limit {
			out.IsTruncated = true
			out.NextContinuationToken = after
			break
		}

		if isPrefix {
			seen[entry] = true
			out.CommonPrefixes = append(out.CommonPrefixes, minio.CommonPrefix{Prefix: entry})
		} else {
			out.Contents = append(out.Contents, c.info(k, c.objects[k]))
		}
		after = entry
		count++
	}
	return out, nil
}

func (c *memCore) NewMultipartUpload(context.Context, string, string, minio.PutObjectOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := "upload-" + strconv.Itoa(c.nextID)
	c.uploads[id] = make(map[int][]byte)
	return id, nil
}

func (c *memCore) PutObjectPart(_ context.Context, _, _, uploadID string, partID int, data io.Reader, _ int64, _ minio.PutObjectPartOptions) (minio.ObjectPart, error) {
	payload, err := io.ReadAll(data)
	if err != nil {
		return minio.ObjectPart{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	parts, ok := c.uploads[uploadID]
	if !ok {
		return minio.ObjectPart{}, minio.ErrorResponse{Code: "NoSuchUpload", StatusCode: http.StatusNotFound}
	}
	parts[partID] = payload
	sum := md5.Sum(payload)
	return minio.ObjectPart{PartNumber: partID, ETag: hex.EncodeToString(sum[:]), Size: int64(len(payload))}, nil
}

func (c *memCore) CompleteMultipartUpload(_ context.Context, _, key, uploadID string, parts []minio.CompletePart, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, ok := c.uploads[uploadID]
	if !ok {
		return minio.UploadInfo{}, minio.ErrorResponse{Code: "NoSuchUpload", StatusCode: http.StatusNotFound}
	}

	var buf bytes.Buffer
	for i, part := range parts {
		if part.PartNumber != i+1 {
			return minio.UploadInfo{}, fmt.Errorf("part %d out of order", part.PartNumber)
		}
		buf.Write(stored[part.PartNumber])
	}

	delete(c.uploads, uploadID)
	c.completed++
	c.objects[key] = &memObject{data: buf.Bytes(), modified: time.Now()}
	return minio.UploadInfo{Key: key, Size: int64(buf.Len())}, nil
}

func (c *memCore) AbortMultipartUpload(_ context.Context, _, _, uploadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.uploads, uploadID)
	c.aborted++
	return nil
}
