package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingListing(calls *int, names ...string) *Listing {
	return NewListing(context.Background(), func(_ context.Context, yield func(*FileStat, error) bool) {
		*calls++
		for _, name := range names {
			if !yield(NewFileStat(FileStatAttrs{Path: name, Size: 1}), nil) {
				return
			}
		}
	})
}

func TestListing_IsLazy(t *testing.T) {
	calls := 0
	listing := countingListing(&calls, "a", "b")

	assert.Equal(t, 0, calls, "producer must not run before iteration")
	assert.False(t, listing.Consumed())

	stats, err := listing.Collect()
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 1, calls)
	assert.True(t, listing.Consumed())
}

func TestListing_SinglePass(t *testing.T) {
	calls := 0
	listing := countingListing(&calls, "a", "b", "c")

	first, err := listing.Collect()
	require.NoError(t, err)
	assert.Len(t, first, 3)

	second, err := listing.Collect()
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Equal(t, 1, calls, "backend must be queried at most once")
}

func TestListing_EarlyBreakStopsProducer(t *testing.T) {
	calls := 0
	listing := countingListing(&calls, "a", "b", "c")

	seen := 0
	for range listing.All() {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestListing_ErrorInBand(t *testing.T) {
	boom := errors.New("boom")
	stats, err := FailedListing(boom).Collect()
	assert.Empty(t, stats)
	assert.ErrorIs(t, err, boom)
}

func TestListing_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	listing := NewListing(ctx, func(context.Context, func(*FileStat, error) bool) { called = true })
	_, err := listing.Collect()
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestFileStat_Directory(t *testing.T) {
	stat := NewDirectoryStat("photos", time.Unix(0, 0), nil, Private)

	assert.True(t, stat.IsDir())
	assert.Equal(t, int64(-1), stat.Size())
	assert.Equal(t, DirectoryMimeType, stat.MimeType())

	v, err := stat.Visibility(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Private, v)
}

func TestFileStat_MimeFallbacks(t *testing.T) {
	explicit := NewFileStat(FileStatAttrs{Path: "a.bin", Size: 3, MimeType: "image/png"})
	assert.Equal(t, "image/png", explicit.MimeType())

	byExt := NewFileStat(FileStatAttrs{Path: "index.html", Size: 3})
	assert.Equal(t, "text/html", byExt.MimeType())

	unknown := NewFileStat(FileStatAttrs{Path: "blob.zzzunknown", Size: 3})
	assert.Equal(t, DefaultMimeType, unknown.MimeType())
}

func TestFileStat_VisibilityResolvedOnce(t *testing.T) {
	calls := 0
	failFirst := true
	stat := NewFileStat(FileStatAttrs{
		Path: "x",
		Size: 1,
		Resolver: func(context.Context) (Visibility, error) {
			calls++
			if failFirst {
				failFirst = false
				return Public, errors.New("acl lookup failed")
			}
			return Private, nil
		},
	})

	_, err := stat.Visibility(context.Background())
	require.Error(t, err)

	for range 3 {
		v, err := stat.Visibility(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Private, v)
	}
	assert.Equal(t, 2, calls)
}

func TestDecodeWriteOptions(t *testing.T) {
	opts, err := DecodeWriteOptions(map[string]any{
		"content-type": "text/plain",
		"overwrite":    true,
		"visibility":   "private",
		"local": map[string]any{
			"file_permissions": "0640",
			"dir_permissions":  0o750,
		},
		"s3": map[string]any{
			"content-type":  "application/json",
			"acl":           "public-read",
			"cache-control": "max-age=60",
			"metadata":      map[string]string{"owner": "ops"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "text/plain", opts.ContentType)
	assert.True(t, opts.Overwrite)
	require.NotNil(t, opts.Visibility)
	assert.Equal(t, Private, *opts.Visibility)
	assert.Equal(t, os.FileMode(0o640), opts.Local.FilePermissions)
	assert.Equal(t, os.FileMode(0o750), opts.Local.DirPermissions)
	assert.Equal(t, "public-read", opts.S3.ACL)
	assert.Equal(t, "max-age=60", opts.S3.CacheControl)
	assert.Equal(t, "ops", opts.S3.Metadata["owner"])
	assert.Equal(t, "text/plain", opts.ResolveContentType(opts.S3), "top-level content type wins")

	opts.ContentType = ""
	assert.Equal(t, "application/json", opts.ResolveContentType(opts.S3))
}

func TestDecodeWriteOptions_BadPermission(t *testing.T) {
	_, err := DecodeWriteOptions(map[string]any{"local": map[string]any{"file_permissions": "rwx"}})
	assert.Error(t, err)
}
