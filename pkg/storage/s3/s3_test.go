package s3

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/omnifs/pkg/storage"
	storagetesting "github.com/marmos91/omnifs/pkg/storage/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, client Client, prefix string) *S3Adapter {
	t.Helper()
	a, err := New(context.Background(), Config{Client: client, Bucket: "bucket", Prefix: prefix})
	require.NoError(t, err)
	return a
}

func TestS3Adapter(t *testing.T) {
	suite := &storagetesting.AdapterTestSuite{
		NewAdapter: func(t *testing.T) storage.Adapter {
			return newTestAdapter(t, newMemClient(), "")
		},
		IdempotentDelete: true,
	}
	suite.Run(t)
}

func TestS3Adapter_WithPrefix(t *testing.T) {
	suite := &storagetesting.AdapterTestSuite{
		NewAdapter: func(t *testing.T) storage.Adapter {
			return newTestAdapter(t, newMemClient(), "/tenant//a/")
		},
		IdempotentDelete: true,
		SkipLarge:        true,
	}
	suite.Run(t)
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Config{Bucket: "b"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Client: newMemClient()})
	assert.Error(t, err)
}

func TestKeys_UnderPrefix(t *testing.T) {
	client := newMemClient()
	a := newTestAdapter(t, client, "tenant")
	ctx := context.Background()

	require.NoError(t, storage.WriteBytes(ctx, a, "/docs/../a.txt", []byte("x"), storage.WriteOptions{}))
	require.NoError(t, a.CreateDirectory(ctx, "dir", storage.WriteOptions{}))

	assert.Contains(t, client.objects, "tenant/a.txt")
	assert.Contains(t, client.objects, "tenant/dir/")
}

func TestWrite_SmallUsesSinglePut(t *testing.T) {
	client := newMemClient()
	a := newTestAdapter(t, client, "")
	ctx := context.Background()

	opts := storage.WriteOptions{
		S3: storage.ObjectOptions{
			ContentType:  "text/csv",
			CacheControl: "max-age=60",
			Metadata:     map[string]string{"owner": "ops"},
		},
	}
	require.NoError(t, storage.WriteBytes(ctx, a, "report.bin", []byte("a,b\n1,2\n"), opts))

	require.Len(t, client.puts, 1)
	put := client.puts[0]
	assert.NotEmpty(t, aws.ToString(put.ContentMD5))
	assert.Equal(t, "text/csv", aws.ToString(put.ContentType))
	assert.Equal(t, "max-age=60", aws.ToString(put.CacheControl))
	assert.Equal(t, map[string]string{"owner": "ops"}, put.Metadata)
	assert.Equal(t, 0, client.completed)
}

func TestWrite_TopLevelContentTypeWins(t *testing.T) {
	client := newMemClient()
	a := newTestAdapter(t, client, "")

	opts := storage.WriteOptions{
		ContentType: "application/json",
		S3:          storage.ObjectOptions{ContentType: "text/plain"},
	}
	require.NoError(t, storage.WriteBytes(context.Background(), a, "x", []byte("{}"), opts))

	require.Len(t, client.puts, 1)
	assert.Equal(t, "application/json", aws.ToString(client.puts[0].ContentType))
}

func TestWrite_VisibilityBecomesACL(t *testing.T) {
	client := newMemClient()
	a := newTestAdapter(t, client, "")
	ctx := context.Background()

	public := storage.Public
	require.NoError(t, storage.WriteBytes(ctx, a, "pub.txt", []byte("x"), storage.WriteOptions{Visibility: &public}))
	require.NoError(t, storage.WriteBytes(ctx, a, "priv.txt", []byte("x"), storage.WriteOptions{}))

	v, err := a.Visibility(ctx, "pub.txt")
	require.NoError(t, err)
	assert.Equal(t, storage.Public, v)

	v, err = a.Visibility(ctx, "priv.txt")
	require.NoError(t, err)
	assert.Equal(t, storage.Private, v)

	require.NoError(t, a.SetVisibility(ctx, "priv.txt", storage.Public))
	stat, err := a.Stat(ctx, "priv.txt")
	require.NoError(t, err)
	v, err = stat.Visibility(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Public, v)

	err = a.SetVisibility(ctx, "missing.txt", storage.Public)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

type partRecorder struct {
	parts []int32
	sizes []int64
}

func (r *partRecorder) ObservePart(partNumber int32, bytes int64, _ time.Duration, _ error) {
	r.parts = append(r.parts, partNumber)
	r.sizes = append(r.sizes, bytes)
}

func TestWrite_MultipartParts(t *testing.T) {
	client := newMemClient()
	recorder := &partRecorder{}
	a, err := New(context.Background(), Config{Client: client, Bucket: "bucket", Metrics: recorder})
	require.NoError(t, err)

	data := storagetesting.GenerateTestData(2*PartSize + 1024)
	require.NoError(t, storage.WriteBytes(context.Background(), a, "big.bin", data, storage.WriteOptions{}))

	assert.Equal(t, []int32{1, 2, 3}, recorder.parts)
	assert.Equal(t, []int64{PartSize, PartSize, 1024}, recorder.sizes)
	assert.Equal(t, 1, client.completed)
	assert.Empty(t, client.puts)
	assert.Equal(t, data, client.objects["big.bin"].data)
}

func TestWrite_ExactlyOnePart(t *testing.T) {
	client := newMemClient()
	a := newTestAdapter(t, client, "")

	data := storagetesting.GenerateTestData(PartSize)
	require.NoError(t, storage.WriteBytes(context.Background(), a, "edge.bin", data, storage.WriteOptions{}))

	assert.Equal(t, 1, client.completed)
	assert.Equal(t, data, client.objects["edge.bin"].data)
}

// mockClient injects failures into the multipart path.
type mockClient struct {
	*memClient
	mock.Mock
}

func (m *mockClient) UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	args := m.Called(aws.ToInt32(in.PartNumber))
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return m.memClient.UploadPart(ctx, in, optFns...)
}

func (m *mockClient) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	m.Called(aws.ToString(in.UploadId))
	return m.memClient.CompleteMultipartUpload(ctx, in, optFns...)
}

func (m *mockClient) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	args := m.Called(aws.ToString(in.UploadId))
	_, _ = m.memClient.AbortMultipartUpload(ctx, in, optFns...)
	return nil, args.Error(0)
}

func TestWrite_PartFailureAborts(t *testing.T) {
	client := &mockClient{memClient: newMemClient()}
	client.On("UploadPart", int32(1)).Return(nil)
	client.On("UploadPart", int32(2)).Return(errors.New("connection reset"))
	// The abort error is ignored; the part error is what surfaces.
	client.On("AbortMultipartUpload", "upload-1").Return(errors.New("abort failed")).Once()

	a := newTestAdapter(t, client, "")
	data := storagetesting.GenerateTestData(3 * PartSize)

	err := storage.WriteBytes(context.Background(), a, "big.bin", data, storage.WriteOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrOperationFailed)
	assert.Contains(t, err.Error(), "failed to upload file")
	assert.Contains(t, err.Error(), "connection reset")

	client.AssertExpectations(t)
	client.AssertNotCalled(t, "UploadPart", int32(3))
	client.AssertNotCalled(t, "CompleteMultipartUpload", mock.Anything)
	assert.NotContains(t, client.objects, "big.bin")
}

func TestExists_DirectoryForms(t *testing.T) {
	client := newMemClient()
	a := newTestAdapter(t, client, "")
	ctx := context.Background()

	// Marker only.
	client.objects["marked/"] = &memObject{modified: time.Now()}
	// Children only, no marker.
	client.objects["implicit/child.txt"] = &memObject{data: []byte("x"), modified: time.Now()}

	for _, p := range []string{"marked", "implicit", "implicit/child.txt", ""} {
		exists, err := a.Exists(ctx, p)
		require.NoError(t, err)
		assert.True(t, exists, "%q should exist", p)
	}

	exists, err := a.Exists(ctx, "impl")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStat_ImplicitDirectory(t *testing.T) {
	client := newMemClient()
	a := newTestAdapter(t, client, "")
	client.objects["implicit/deep/child.txt"] = &memObject{data: []byte("x"), modified: time.Now()}

	stat, err := a.Stat(context.Background(), "implicit/deep")
	require.NoError(t, err)
	assert.True(t, stat.IsDir())
	assert.Equal(t, "implicit/deep", stat.Path())

	v, err := stat.Visibility(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.Public, v)
}

// archivedClient answers every GetObject as an archived object.
type archivedClient struct {
	*memClient
}

func (c archivedClient) GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, &types.InvalidObjectState{Message: aws.String("object is archived")}
}

func TestRead_ErrorKinds(t *testing.T) {
	ctx := context.Background()

	a := newTestAdapter(t, archivedClient{newMemClient()}, "")
	_, err := a.Read(ctx, "cold.bin")
	assert.ErrorIs(t, err, storage.ErrOperationFailed)
	assert.Contains(t, err.Error(), "file cannot be read")

	b := newTestAdapter(t, newMemClient(), "")
	_, err = b.Read(ctx, "missing.bin")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, b.CreateDirectory(ctx, "dir", storage.WriteOptions{}))
	_, err = b.Read(ctx, "dir")
	assert.ErrorIs(t, err, storage.ErrOperationFailed)
	assert.Contains(t, err.Error(), "cannot read a directory")
}

func TestList_Paginated(t *testing.T) {
	client := newMemClient()
	client.pageSize = 1
	a := newTestAdapter(t, client, "")
	ctx := context.Background()

	for _, name := range []string{"p/1.txt", "p/2.txt", "p/3.txt", "p/q/4.txt", "p/r/"} {
		client.objects[name] = &memObject{data: []byte(name), modified: time.Now()}
	}

	stats, err := a.List(ctx, "p", false).Collect()
	require.NoError(t, err)

	paths := make([]string, 0, len(stats))
	for _, s := range stats {
		paths = append(paths, s.Path())
	}
	assert.ElementsMatch(t, []string{"1.txt", "2.txt", "3.txt", "q", "r"}, paths)

	deep, err := a.List(ctx, "p", true).Collect()
	require.NoError(t, err)
	assert.Len(t, deep, 5)
}

func TestList_LazyUntilRanged(t *testing.T) {
	client := &countingClient{memClient: newMemClient()}
	a := newTestAdapter(t, client, "")

	listing := a.List(context.Background(), "", false)
	assert.Equal(t, 0, client.lists)

	_, err := listing.Collect()
	require.NoError(t, err)
	assert.Equal(t, 1, client.lists)
}

type countingClient struct {
	*memClient
	lists int
}

func (c *countingClient) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	c.lists++
	return c.memClient.ListObjectsV2(ctx, in, optFns...)
}

// refusingClient reports every batch-deleted key as failed.
type refusingClient struct {
	*memClient
}

func (c refusingClient) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	out := &s3.DeleteObjectsOutput{}
	for _, id := range in.Delete.Objects {
		out.Errors = append(out.Errors, types.Error{Key: id.Key, Code: aws.String("AccessDenied"), Message: aws.String("denied")})
	}
	return out, nil
}

func TestDeleteDirectory_PartialFailureIsNotFatal(t *testing.T) {
	client := refusingClient{newMemClient()}
	a := newTestAdapter(t, client, "")
	ctx := context.Background()

	require.NoError(t, storage.WriteBytes(ctx, a, "d/a.txt", []byte("a"), storage.WriteOptions{}))
	assert.NoError(t, a.DeleteDirectory(ctx, "d"))

	exists, err := a.Exists(ctx, "d/a.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCopy_KeepsSourceVisibility(t *testing.T) {
	client := newMemClient()
	a := newTestAdapter(t, client, "")
	ctx := context.Background()

	public := storage.Public
	require.NoError(t, storage.WriteBytes(ctx, a, "src dir/file.txt", []byte("x"), storage.WriteOptions{Visibility: &public}))
	require.NoError(t, a.Copy(ctx, "src dir/file.txt", "dst.txt", storage.WriteOptions{}))

	v, err := a.Visibility(ctx, "dst.txt")
	require.NoError(t, err)
	assert.Equal(t, storage.Public, v)
	assert.True(t, bytes.Equal([]byte("x"), client.objects["dst.txt"].data))
}
