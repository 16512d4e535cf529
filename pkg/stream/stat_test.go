package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenVisibility reports every entry with a visibility lookup that fails,
// like an object store denying GetObjectAcl.
type brokenVisibility struct {
	storage.Adapter
}

func (b brokenVisibility) Stat(ctx context.Context, path string) (*storage.FileStat, error) {
	st, err := b.Adapter.Stat(ctx, path)
	if err != nil {
		return nil, err
	}
	return storage.NewFileStat(storage.FileStatAttrs{
		Path:         st.Path(),
		LastModified: st.LastModified(),
		Size:         st.Size(),
		MimeType:     st.MimeType(),
		Resolver: func(context.Context) (storage.Visibility, error) {
			return storage.Public, errors.New("access denied")
		},
	}), nil
}

func TestURLStat_File(t *testing.T) {
	f := newFixture(t, map[string]any{"uid": 1234, "gid": 5678})
	f.put(t, "file.txt", "twelve bytes")

	st, err := f.bridge.URLStat(context.Background(), "mem://file.txt", false)
	require.NoError(t, err)

	assert.Equal(t, ModeRegular|0o644, st.Mode)
	assert.False(t, st.IsDir())
	assert.Equal(t, uint32(0o644), st.Perm())
	assert.Equal(t, int64(12), st.Size)
	assert.Equal(t, uint32(1234), st.UID)
	assert.Equal(t, uint32(5678), st.GID)
	assert.Zero(t, st.Dev)
	assert.Zero(t, st.Ino)
	assert.Zero(t, st.Nlink)
	assert.Zero(t, st.Rdev)
	assert.Equal(t, int64(-1), st.Blksize)
	assert.Equal(t, int64(-1), st.Blocks)
}

func TestURLStat_PrivateFile(t *testing.T) {
	f := newFixture(t, nil)
	private := storage.Private
	require.NoError(t, storage.WriteBytes(context.Background(), f.adapter, "secret.txt", []byte("s"),
		storage.WriteOptions{Visibility: &private}))

	st, err := f.bridge.URLStat(context.Background(), "mem://secret.txt", false)
	require.NoError(t, err)
	assert.Equal(t, ModeRegular|0o600, st.Mode)
}

func TestURLStat_Directory(t *testing.T) {
	f := newFixture(t, map[string]any{"visibility_directory_public": "0750"})
	require.NoError(t, f.adapter.CreateDirectory(context.Background(), "dir", storage.WriteOptions{}))

	st, err := f.bridge.URLStat(context.Background(), "mem://dir", false)
	require.NoError(t, err)

	// The local adapter creates 0755 directories, which read back as Public
	// and are reported with the configured public permission.
	assert.True(t, st.IsDir())
	assert.Equal(t, ModeDir|0o750, st.Mode)
	assert.Zero(t, st.Size)
}

func TestURLStat_Missing(t *testing.T) {
	f := newFixture(t, nil)

	st, err := f.bridge.URLStat(context.Background(), "mem://missing.txt", true)
	assert.Nil(t, st)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestURLStat_VisibilityErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.put(t, "file.txt", "x")
	ctx := context.Background()

	require.NoError(t, f.registry.Register("strict", brokenVisibility{f.adapter}, nil))
	require.NoError(t, f.registry.Register("lenient", brokenVisibility{f.adapter},
		map[string]any{"ignore_visibility_errors": true}))

	_, err := f.bridge.URLStat(ctx, "strict://file.txt", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	st, err := f.bridge.URLStat(ctx, "lenient://file.txt", true)
	require.NoError(t, err)
	assert.Equal(t, ModeRegular|0o644, st.Mode)
	assert.Equal(t, int64(1), st.Size)
}

func TestURLStat_EmulatedDirectoryTime(t *testing.T) {
	f := newFixture(t, map[string]any{"emulate_directory_last_modified": true})
	ctx := context.Background()

	f.put(t, "dir/old.txt", "o")
	f.put(t, "dir/new.txt", "n")
	require.NoError(t, f.adapter.CreateDirectory(ctx, "empty", storage.WriteOptions{}))

	older := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.dataFs.Chtimes("/data/dir/old.txt", older, older))
	require.NoError(t, f.dataFs.Chtimes("/data/dir/new.txt", newer, newer))

	st, err := f.bridge.URLStat(ctx, "mem://dir", false)
	require.NoError(t, err)
	assert.True(t, st.Mtime.Equal(newer), "got %v", st.Mtime)

	// An empty directory has no children to take a time from.
	st, err = f.bridge.URLStat(ctx, "mem://empty", false)
	require.NoError(t, err)
	assert.True(t, st.Mtime.IsZero())
}

func TestHandleStat_LocalCopy(t *testing.T) {
	f := newFixture(t, nil)
	f.put(t, "file.txt", "abc")
	ctx := context.Background()

	h := f.open(t, "mem://file.txt", "a")
	_, err := h.Write(ctx, []byte("defgh"))
	require.NoError(t, err)

	// Size comes from the local copy, mode from the remote file.
	st, err := h.Stat(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), st.Size)
	assert.Equal(t, ModeRegular|0o644, st.Mode)
	require.NoError(t, h.Close(ctx))

	// A file that does not exist remotely yet is described by its buffer.
	h = f.open(t, "mem://fresh.txt", "w")
	_, err = h.Write(ctx, []byte("12"))
	require.NoError(t, err)

	st, err = h.Stat(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Size)
	assert.Equal(t, ModeRegular|0o644, st.Mode)
	require.NoError(t, h.Close(ctx))
}

func TestHandleStat_NewFileUsesConfiguredPermissions(t *testing.T) {
	f := newFixture(t, map[string]any{"visibility_file_public": "0640"})
	ctx := context.Background()

	h := f.open(t, "mem://fresh.txt", "x+")
	defer func() { _ = h.Close(ctx) }()

	st, err := h.Stat(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeRegular|0o640, st.Mode)
	assert.Equal(t, int64(0), st.Size)
}

func TestHandleStat_PureRead(t *testing.T) {
	f := newFixture(t, nil)
	f.put(t, "file.txt", "abc")
	ctx := context.Background()

	h := f.open(t, "mem://file.txt", "r")
	defer func() { _ = h.Close(ctx) }()

	st, err := h.Stat(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Size)
	assert.Equal(t, ModeRegular|0o644, st.Mode)
}
