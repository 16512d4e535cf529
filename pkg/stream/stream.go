// Package stream exposes POSIX file-descriptor semantics (open, read, write,
// seek, stat, close) over any storage.Adapter registered in a
// registry.Registry.
//
// Architecture:
//
//	open("s3://bucket-dir/report.csv", "a+")
//	        |
//	        v
//	  registry.Resolve --> adapter + options
//	        |
//	        v
//	  Handle --- pure read ("r", "rb") ---> adapter.Read stream
//	        \--- any other mode ----------> LocalBuffer (temp file)
//	                                          |  flush / close
//	                                          v
//	                                     adapter.Write
//
// Object stores cannot write in place, so every session that is not a pure
// sequential read works on a local copy and writes the whole file back on
// flush and close. A Handle belongs to one session and is not safe for
// concurrent use.
package stream

import (
	"context"
	"errors"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/marmos91/omnifs/internal/logger"
	"github.com/marmos91/omnifs/pkg/registry"
	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/spf13/afero"
)

var (
	// ErrInvalidMode is returned by Open for a mode outside [rwacx](\+b?|b\+?)?.
	ErrInvalidMode = errors.New("invalid open mode")

	// ErrNotSeekable is returned when seeking a remote read stream that
	// does not support random access.
	ErrNotSeekable = errors.New("stream is not seekable")

	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("stream is closed")

	// ErrUnknownCommand is returned by Dispatch for a command with no handler.
	ErrUnknownCommand = errors.New("unknown stream command")
)

var modePattern = regexp.MustCompile(`^[rwacx](\+b?|b\+?)?$`)

// Config configures a Bridge.
type Config struct {
	Registry *registry.Registry

	// Fs holds the local buffers of writable handles. Nil selects the OS
	// filesystem.
	Fs afero.Fs

	// TempDir is where buffers are created. Empty selects os.TempDir().
	TempDir string
}

// Bridge opens handles and runs path-level verbs against the adapters of a
// registry.
type Bridge struct {
	registry *registry.Registry
	fs       afero.Fs
	tempDir  string
}

// New creates a Bridge.
func New(cfg Config) (*Bridge, error) {
	if cfg.Registry == nil {
		return nil, errors.New("stream bridge: registry is required")
	}

	b := &Bridge{registry: cfg.Registry, fs: cfg.Fs, tempDir: cfg.TempDir}
	if b.fs == nil {
		b.fs = afero.NewOsFs()
	}
	if b.tempDir == "" {
		b.tempDir = os.TempDir()
	}
	if err := b.fs.MkdirAll(b.tempDir, 0o700); err != nil {
		return nil, storage.UnableToCreateDirectory(b.tempDir, err)
	}
	return b, nil
}

// target is a resolved URL.
type target struct {
	url   string
	path  string
	entry *registry.Entry
}

func (t target) adapter() storage.Adapter {
	return t.entry.Adapter
}

func (b *Bridge) resolve(url string) (target, error) {
	entry, raw, err := b.registry.Resolve(url)
	if err != nil {
		return target{}, err
	}
	path, err := storage.NormalizePath(raw)
	if err != nil {
		return target{}, err
	}
	return target{url: url, path: path, entry: entry}, nil
}

// ============================================================================
// Open
// ============================================================================

// Open opens url with a fopen-style mode.
//
// Mode semantics:
//   - "r", "rb": streams directly from the adapter, read only
//   - "r+": local copy seeded with the remote content, read/write
//   - "w", "w+": empty local copy, truncating on write-back
//   - "a", "a+": local copy seeded with the remote content, writes append
//   - "c", "c+": like "r+" but the file need not exist, write only without "+"
//   - "x", "x+": fails with storage.ErrFileExists if the file exists
//
// Handles without "+" (other than "r") are write only and read nothing.
func (b *Bridge) Open(ctx context.Context, url, mode string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !modePattern.MatchString(mode) {
		return nil, &storage.OperationError{Op: "open", Path: url, Kind: ErrInvalidMode, Msg: "invalid mode " + mode}
	}

	t, err := b.resolve(url)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		target:       t,
		writeOnly:    !strings.Contains(mode, "+"),
		alwaysAppend: mode[0] == 'a',
	}

	if mode[0] == 'r' && h.writeOnly {
		rc, err := t.adapter().Read(ctx, t.path)
		if err != nil {
			return nil, err
		}
		h.remote = rc
		h.writeOnly = false
		h.state = StateOpenRead
		return h, nil
	}

	if err := b.openLocalCopy(ctx, h, mode[0]); err != nil {
		return nil, err
	}
	return h, nil
}

func (b *Bridge) openLocalCopy(ctx context.Context, h *Handle, kind byte) error {
	t := h.target

	var exists bool
	if kind != 'w' {
		var err error
		exists, err = t.adapter().Exists(ctx, t.path)
		if err != nil {
			return err
		}
	}
	if kind == 'x' && exists {
		return &storage.OperationError{Op: "open", Path: t.url, Kind: storage.ErrFileExists}
	}

	buffer, err := newLocalBuffer(b.fs, b.tempDir)
	if err != nil {
		return storage.Failed("open", t.url, "unable to create local buffer", err)
	}

	if exists {
		if err := seed(ctx, t, buffer); err != nil {
			_ = buffer.Release()
			return err
		}
	}

	if kind != 'a' {
		if _, err := buffer.File().Seek(0, io.SeekStart); err != nil {
			_ = buffer.Release()
			return storage.Failed("open", t.url, "unable to rewind local buffer", err)
		}
	}

	h.buffer = buffer
	h.workOnLocalCopy = true
	h.state = StateOpenWriteLocalCopy
	return nil
}

// seed copies the remote content into buffer.
func seed(ctx context.Context, t target, buffer *LocalBuffer) error {
	rc, err := t.adapter().Read(ctx, t.path)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	if _, err := io.Copy(buffer.File(), rc); err != nil {
		return storage.Failed("open", t.url, "unable to copy remote content", err)
	}
	return nil
}

// ============================================================================
// Path verbs
// ============================================================================

// URLStat describes url without opening it. A missing path returns an
// ErrNotFound error; quiet suppresses the warning log.
func (b *Bridge) URLStat(ctx context.Context, url string, quiet bool) (*Stat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := b.resolve(url)
	if err != nil {
		return nil, err
	}

	st, err := remoteStat(ctx, t)
	if err != nil {
		if !quiet {
			logger.Warn("url_stat(%s): stat failed: %v", url, err)
		}
		return nil, err
	}
	return st, nil
}

// Unlink deletes a file.
func (b *Bridge) Unlink(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t, err := b.resolve(url)
	if err != nil {
		return err
	}
	return t.adapter().Delete(ctx, t.path)
}

// Rename moves src to dst, replacing dst. Both URLs may use different
// schemes, in which case the content is streamed across adapters.
func (b *Bridge) Rename(ctx context.Context, srcURL, dstURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := b.resolve(srcURL)
	if err != nil {
		return err
	}
	dst, err := b.resolve(dstURL)
	if err != nil {
		return err
	}

	opts := storage.WriteOptions{Overwrite: true}
	if src.entry.Scheme == dst.entry.Scheme {
		return src.adapter().Move(ctx, src.path, dst.path, opts)
	}

	rc, err := src.adapter().Read(ctx, src.path)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	if err := dst.adapter().Write(ctx, dst.path, rc, opts); err != nil {
		return err
	}
	return src.adapter().Delete(ctx, src.path)
}

// Mkdir creates a directory. Without recursive the parent must exist.
func (b *Bridge) Mkdir(ctx context.Context, url string, recursive bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t, err := b.resolve(url)
	if err != nil {
		return err
	}

	a := t.adapter()
	exists, err := a.Exists(ctx, t.path)
	if err != nil {
		return err
	}
	if exists {
		return &storage.OperationError{Op: "mkdir", Path: url, Kind: storage.ErrFileExists}
	}

	if !recursive {
		if parent := storage.ParentDir(t.path); parent != "" {
			ok, err := a.Exists(ctx, parent)
			if err != nil {
				return err
			}
			if !ok {
				return storage.Failed("mkdir", url, "parent directory does not exist", nil)
			}
		}
	}

	return a.CreateDirectory(ctx, t.path, storage.WriteOptions{})
}

// Rmdir removes an empty directory.
func (b *Bridge) Rmdir(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t, err := b.resolve(url)
	if err != nil {
		return err
	}

	a := t.adapter()
	stat, err := a.Stat(ctx, t.path)
	if err != nil {
		return err
	}
	if !stat.IsDir() {
		return storage.Failed("rmdir", url, "not a directory", nil)
	}

	for _, err := range a.List(ctx, t.path, false).All() {
		if err != nil {
			return err
		}
		return storage.Failed("rmdir", url, "directory not empty", nil)
	}

	return a.DeleteDirectory(ctx, t.path)
}
