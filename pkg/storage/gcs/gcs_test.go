package gcs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/marmos91/omnifs/pkg/storage"
	storagetesting "github.com/marmos91/omnifs/pkg/storage/testing"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, client Client) *GCSAdapter {
	t.Helper()
	a, err := New(context.Background(), Config{Client: client, Bucket: "bucket"})
	require.NoError(t, err)
	return a
}

func TestGCSAdapter(t *testing.T) {
	suite := &storagetesting.AdapterTestSuite{
		NewAdapter: func(t *testing.T) storage.Adapter {
			return newTestAdapter(t, newMemCore())
		},
		IdempotentDelete: true,
	}
	suite.Run(t)
}

type missingBucket struct {
	*memCore
}

func (missingBucket) BucketExists(context.Context, string) (bool, error) {
	return false, nil
}

func TestNew_MissingBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Client: missingBucket{newMemCore()}, Bucket: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	_, err = New(context.Background(), Config{Client: missingBucket{newMemCore()}, Bucket: "nope", SkipBucketCheck: true})
	assert.NoError(t, err)
}

func TestVisibility_Grants(t *testing.T) {
	core := newMemCore()
	a := newTestAdapter(t, core)
	ctx := context.Background()

	public := storage.Public
	require.NoError(t, storage.WriteBytes(ctx, a, "pub.txt", []byte("x"), storage.WriteOptions{Visibility: &public}))
	require.NoError(t, storage.WriteBytes(ctx, a, "priv.txt", []byte("x"), storage.WriteOptions{
		GCS: storage.ObjectOptions{Metadata: map[string]string{"team": "infra"}, ContentType: "text/markdown"},
	}))

	v, err := a.Visibility(ctx, "pub.txt")
	require.NoError(t, err)
	assert.Equal(t, storage.Public, v)

	v, err = a.Visibility(ctx, "priv.txt")
	require.NoError(t, err)
	assert.Equal(t, storage.Private, v)

	require.NoError(t, a.SetVisibility(ctx, "priv.txt", storage.Public))
	v, err = a.Visibility(ctx, "priv.txt")
	require.NoError(t, err)
	assert.Equal(t, storage.Public, v)

	// Rewriting the ACL keeps content type and user metadata.
	obj := core.objects["priv.txt"]
	assert.Equal(t, "text/markdown", obj.contentType)
	assert.Equal(t, "infra", obj.meta["team"])
}

func TestWrite_Multipart(t *testing.T) {
	core := newMemCore()
	a := newTestAdapter(t, core)

	data := storagetesting.GenerateTestData(2*PartSize + 10)
	require.NoError(t, storage.WriteBytes(context.Background(), a, "big.bin", data, storage.WriteOptions{}))

	assert.Equal(t, 1, core.completed)
	assert.Equal(t, data, core.objects["big.bin"].data)
}

// failingCore fails PutObjectPart on demand.
type failingCore struct {
	*memCore
	mock.Mock
}

func (f *failingCore) PutObjectPart(ctx context.Context, bucket, object, uploadID string, partID int, data io.Reader, size int64, opts minio.PutObjectPartOptions) (minio.ObjectPart, error) {
	if err := f.Called(partID).Error(0); err != nil {
		return minio.ObjectPart{}, err
	}
	return f.memCore.PutObjectPart(ctx, bucket, object, uploadID, partID, data, size, opts)
}

func (f *failingCore) CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.Called(uploadID)
	return f.memCore.CompleteMultipartUpload(ctx, bucket, object, uploadID, parts, opts)
}

func TestWrite_PartFailureAborts(t *testing.T) {
	core := &failingCore{memCore: newMemCore()}
	core.On("PutObjectPart", 1).Return(errors.New("503 slow down"))

	a := newTestAdapter(t, core)
	err := storage.WriteBytes(context.Background(), a, "big.bin", storagetesting.GenerateTestData(PartSize+1), storage.WriteOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrOperationFailed)
	assert.Contains(t, err.Error(), "failed to upload file")
	assert.Equal(t, 1, core.aborted)
	core.AssertNotCalled(t, "CompleteMultipartUpload", mock.Anything)
	core.AssertNumberOfCalls(t, "PutObjectPart", 1)
}

type archivedCore struct {
	*memCore
}

func (archivedCore) GetObject(context.Context, string, string, minio.GetObjectOptions) (io.ReadCloser, minio.ObjectInfo, http.Header, error) {
	return nil, minio.ObjectInfo{}, nil, minio.ErrorResponse{Code: "InvalidObjectState", StatusCode: http.StatusForbidden}
}

func TestRead_Archived(t *testing.T) {
	a := newTestAdapter(t, archivedCore{newMemCore()})

	_, err := a.Read(context.Background(), "cold.bin")
	assert.ErrorIs(t, err, storage.ErrOperationFailed)
	assert.Contains(t, err.Error(), "file cannot be read")
}

func TestList_ImplicitDirectories(t *testing.T) {
	core := newMemCore()
	core.pageSize = 1
	a := newTestAdapter(t, core)
	ctx := context.Background()

	for _, k := range []string{"root/a.txt", "root/x/y/z.txt", "root/m/"} {
		core.objects[k] = &memObject{data: []byte(k), modified: time.Now()}
	}

	stats, err := a.List(ctx, "root", false).Collect()
	require.NoError(t, err)

	byPath := make(map[string]*storage.FileStat)
	for _, s := range stats {
		byPath[s.Path()] = s
	}
	require.Len(t, byPath, 3)
	assert.False(t, byPath["a.txt"].IsDir())
	assert.True(t, byPath["x"].IsDir())
	assert.True(t, byPath["m"].IsDir())

	exists, err := a.Exists(ctx, "root/x/y")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDeleteDirectory_RemovesMarker(t *testing.T) {
	core := newMemCore()
	a := newTestAdapter(t, core)
	ctx := context.Background()

	require.NoError(t, a.CreateDirectory(ctx, "d", storage.WriteOptions{}))
	require.NoError(t, storage.WriteBytes(ctx, a, "d/f.txt", []byte("f"), storage.WriteOptions{}))
	require.NoError(t, a.DeleteDirectory(ctx, "d"))

	assert.Empty(t, core.objects)
}
