package s3

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// memObject is one stored object of memClient.
type memObject struct {
	data        []byte
	contentType string
	modified    time.Time
	acl         types.ObjectCannedACL
}

// memClient is an in-memory Client with just enough S3 semantics for the
// adapter: prefix/delimiter listings with pagination, canned ACLs and
// multipart uploads.
type memClient struct {
	mu      sync.Mutex
	objects map[string]*memObject
	uploads map[string]map[int32][]byte
	nextID  int

	// pageSize caps ListObjectsV2 pages to exercise pagination.
	pageSize int

	puts      []*s3.PutObjectInput
	completed int
	aborted   int
}

var _ Client = (*memClient)(nil)

func newMemClient() *memClient {
	return &memClient{
		objects:  make(map[string]*memObject),
		uploads:  make(map[string]map[int32][]byte),
		pageSize: 2,
	}
}

func (c *memClient) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (c *memClient) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (c *memClient) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	data := append([]byte(nil), obj.data...)
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (c *memClient) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if in.ContentMD5 != nil {
		sum := md5.Sum(data)
		if base64.StdEncoding.EncodeToString(sum[:]) != *in.ContentMD5 {
			return nil, &smithy.GenericAPIError{Code: "BadDigest", Message: "Content-MD5 mismatch"}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts = append(c.puts, in)
	c.objects[aws.ToString(in.Key)] = &memObject{
		data:        data,
		contentType: aws.ToString(in.ContentType),
		modified:    time.Now(),
		acl:         in.ACL,
	}
	return &s3.PutObjectOutput{}, nil
}

func (c *memClient) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	source, err := url.PathUnescape(aws.ToString(in.CopySource))
	if err != nil {
		return nil, err
	}
	_, srcKey, _ := strings.Cut(source, "/")

	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.objects[srcKey]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	c.objects[aws.ToString(in.Key)] = &memObject{
		data:        append([]byte(nil), obj.data...),
		contentType: obj.contentType,
		modified:    time.Now(),
		acl:         in.ACL,
	}
	return &s3.CopyObjectOutput{}, nil
}

func (c *memClient) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (c *memClient) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := &s3.DeleteObjectsOutput{}
	for _, id := range in.Delete.Objects {
		key := aws.ToString(id.Key)
		delete(c.objects, key)
		out.Deleted = append(out.Deleted, types.DeletedObject{Key: aws.String(key)})
	}
	return out, nil
}

func (c *memClient) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := aws.ToString(in.Prefix)
	delimiter := aws.ToString(in.Delimiter)
	after := aws.ToString(in.ContinuationToken)
	limit := c.pageSize
	if in.MaxKeys != nil && int(*in.MaxKeys) < limit {
		limit = int(*in.MaxKeys)
	}

	keys := make([]string, 0, len(c.objects))
	for k := range c.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{Prefix: in.Prefix}
	seenPrefixes := make(map[string]bool)
	count := 0
	for _, k := range keys {
		// Entries are keyed by the object key or the rolled-up prefix.
		entry := k
		isPrefix := false
		if delimiter != "" {
			if i := strings.Index(k[len(prefix):], delimiter); i >= 0 {
				entry = k[:len(prefix)+i+len(delimiter)]
				isPrefix = true
			}
		}
		if entry <= after || seenPrefixes[entry] {
			continue
		}
		if count == limit {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(after)
			break
		}

		if isPrefix {
			seenPrefixes[entry] = true
			out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(entry)})
		} else {
			obj := c.objects[k]
			out.Contents = append(out.Contents, types.Object{
				Key:          aws.String(k),
				Size:         aws.Int64(int64(len(obj.data))),
				LastModified: aws.Time(obj.modified),
			})
		}
		after = entry
		count++
	}
	out.KeyCount = aws.Int32(int32(count))
	return out, nil
}

func (c *memClient) GetObjectAcl(_ context.Context, in *s3.GetObjectAclInput, _ ...func(*s3.Options)) (*s3.GetObjectAclOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}

	out := &s3.GetObjectAclOutput{
		Grants: []types.Grant{{
			Grantee:    &types.Grantee{ID: aws.String("owner"), Type: types.TypeCanonicalUser},
			Permission: types.PermissionFullControl,
		}},
	}
	if obj.acl == types.ObjectCannedACLPublicRead {
		out.Grants = append(out.Grants, types.Grant{
			Grantee:    &types.Grantee{URI: aws.String("http://acs.amazonaws.com/groups/global/AllUsers"), Type: types.TypeGroup},
			Permission: types.PermissionRead,
		})
	}
	return out, nil
}

func (c *memClient) PutObjectAcl(_ context.Context, in *s3.PutObjectAclInput, _ ...func(*s3.Options)) (*s3.PutObjectAclOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	obj.acl = in.ACL
	return &s3.PutObjectAclOutput{}, nil
}

func (c *memClient) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := "upload-" + strconv.Itoa(c.nextID)
	c.uploads[id] = make(map[int32][]byte)
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id), Key: in.Key}, nil
}

func (c *memClient) UploadPart(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	parts, ok := c.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	parts[aws.ToInt32(in.PartNumber)] = data
	sum := md5.Sum(data)
	return &s3.UploadPartOutput{ETag: aws.String(hex.EncodeToString(sum[:]))}, nil
}

func (c *memClient) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := aws.ToString(in.UploadId)
	parts, ok := c.uploads[id]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}

	var buf bytes.Buffer
	for i, part := range in.MultipartUpload.Parts {
		number := aws.ToInt32(part.PartNumber)
		if number != int32(i+1) {
			return nil, fmt.Errorf("part %d out of order", number)
		}
		buf.Write(parts[number])
	}

	delete(c.uploads, id)
	c.completed++
	c.objects[aws.ToString(in.Key)] = &memObject{data: buf.Bytes(), modified: time.Now()}
	return &s3.CompleteMultipartUploadOutput{Key: in.Key}, nil
}

func (c *memClient) AbortMultipartUpload(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.uploads, aws.ToString(in.UploadId))
	c.aborted++
	return &s3.AbortMultipartUploadOutput{}, nil
}
