package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/spf13/afero"
)

// errStopWalk aborts a deep listing when the consumer stops ranging.
var errStopWalk = errors.New("listing consumer stopped")

// Exists reports whether location is a file, a directory or a symbolic link.
func (a *LocalAdapter) Exists(ctx context.Context, location string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path, err := a.prefix(location)
	if err != nil {
		return false, err
	}

	if a.isFile(path) || a.isDir(path) || a.isLink(path) {
		return true, nil
	}
	return false, nil
}

// Read opens location for reading. The caller must close the reader.
func (a *LocalAdapter) Read(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := a.prefix(location)
	if err != nil {
		return nil, err
	}

	info, err := a.fs.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, storage.NotFound("read", location, err)
	case err != nil:
		return nil, storage.Failed("read", location, "file does not exist or is not readable", err)
	case info.IsDir():
		return nil, storage.Failed("read", location, "cannot read a directory", nil)
	case !info.Mode().IsRegular():
		return nil, storage.Failed("read", location, "file does not exist or is not readable", nil)
	}

	file, err := a.fs.Open(path)
	if err != nil {
		return nil, storage.Failed("read", location, "file cannot be opened for read", err)
	}
	return file, nil
}

// Stat describes location. Missing paths map to ErrNotFound.
//
// The MIME type of regular files is sniffed from their content, falling back
// to the extension when the content is not recognised.
func (a *LocalAdapter) Stat(ctx context.Context, location string) (*storage.FileStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := a.prefix(location)
	if err != nil {
		return nil, err
	}

	info, err := a.fs.Stat(path)
	if err != nil {
		// Dangling symlinks still exist as far as Exists is concerned.
		linkInfo, lerr := a.lstat(path)
		if lerr != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, storage.NotFound("stat", location, err)
			}
			return nil, storage.Failed("stat", location, "stat failed", err)
		}
		info = linkInfo
	}

	normalized, _ := storage.NormalizePath(location)
	mimeType := ""
	if info.Mode().IsRegular() {
		mimeType = a.sniff(path)
	}
	return a.newFileStat(normalized, info, mimeType), nil
}

// Visibility derives the visibility from the permission bits of location.
func (a *LocalAdapter) Visibility(ctx context.Context, location string) (storage.Visibility, error) {
	if err := ctx.Err(); err != nil {
		return storage.Public, err
	}

	path, err := a.prefix(location)
	if err != nil {
		return storage.Public, err
	}

	info, err := a.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.Public, storage.NotFound("visibility", location, err)
		}
		return storage.Public, storage.Failed("visibility", location, "stat failed", err)
	}
	return a.visibilityOf(info), nil
}

// List walks location. With deep=false only direct children are returned,
// otherwise the whole subtree in lexical order. Paths are relative to
// location.
func (a *LocalAdapter) List(ctx context.Context, location string, deep bool) *storage.Listing {
	path, err := a.prefix(location)
	if err != nil {
		return storage.FailedListing(err)
	}

	return storage.NewListing(ctx, func(ctx context.Context, yield func(*storage.FileStat, error) bool) {
		if !a.isDir(path) {
			yield(nil, storage.Failed("list", location, "directory does not exist", nil))
			return
		}

		if !deep {
			a.listShallow(ctx, location, path, yield)
			return
		}
		a.listDeep(ctx, path, yield)
	})
}

func (a *LocalAdapter) listShallow(ctx context.Context, location, path string, yield func(*storage.FileStat, error) bool) {
	entries, err := afero.ReadDir(a.fs, path)
	if err != nil {
		yield(nil, storage.Failed("list", location, "cannot read directory", err))
		return
	}

	for _, info := range entries {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		if !yield(a.newFileStat(info.Name(), info, ""), nil) {
			return
		}
	}
}

func (a *LocalAdapter) listDeep(ctx context.Context, path string, yield func(*storage.FileStat, error) bool) {
	err := afero.Walk(a.fs, path, func(current string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if current == path {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(path, current)
		if err != nil {
			return err
		}
		if !yield(a.newFileStat(filepath.ToSlash(rel), info, ""), nil) {
			return errStopWalk
		}
		return nil
	})

	if err != nil && !errors.Is(err, errStopWalk) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			yield(nil, ctxErr)
			return
		}
		yield(nil, storage.Failed("list", path, "walk failed", err))
	}
}

func (a *LocalAdapter) newFileStat(relative string, info os.FileInfo, mimeType string) *storage.FileStat {
	if info.IsDir() {
		return storage.NewDirectoryStat(relative, info.ModTime(), nil, a.visibilityOf(info))
	}
	return storage.NewFileStat(storage.FileStatAttrs{
		Path:         relative,
		LastModified: info.ModTime(),
		Size:         info.Size(),
		MimeType:     mimeType,
		Visibility:   a.visibilityOf(info),
	})
}

func (a *LocalAdapter) visibilityOf(info os.FileInfo) storage.Visibility {
	if info.IsDir() {
		return a.converter.InverseForDirectory(info.Mode())
	}
	return a.converter.InverseForFile(info.Mode())
}

// sniff detects the content type of path. Unknown content falls back to the
// extension table.
func (a *LocalAdapter) sniff(path string) string {
	byExt := storage.GuessByExtension(path)

	f, err := a.fs.Open(path)
	if err != nil {
		return byExt
	}
	defer func() { _ = f.Close() }()

	detected, err := mimetype.DetectReader(f)
	if err != nil || detected.Is(storage.DefaultMimeType) {
		return byExt
	}

	mimeType := detected.String()
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	// Text sniffing cannot tell CSS from plain text; trust a known extension.
	if mimeType == "text/plain" && byExt != "" {
		return byExt
	}
	return mimeType
}
