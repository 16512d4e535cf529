package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"

	"github.com/marmos91/omnifs/internal/logger"
	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/spf13/afero"
)

// Write stores contents at location.
//
// A new file is created exclusively and chmodded with the configured (or
// default) file permissions. An existing file is truncated and only
// re-chmodded when the call carries explicit permissions. Missing parent
// directories are created with the directory permissions.
func (a *LocalAdapter) Write(ctx context.Context, location string, contents io.Reader, opts storage.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := a.prefix(location)
	if err != nil {
		return err
	}

	dirPerm, _ := a.dirPermissions(opts)
	if err := a.ensureDirectoryExists(path.Dir(target), dirPerm); err != nil {
		return err
	}

	filePerm, explicit := a.filePermissions(opts)

	file, err := a.fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err == nil {
		if err := a.fs.Chmod(target, filePerm); err != nil {
			_ = file.Close()
			return storage.Failed("write", location, "unable to set permissions", err)
		}
	} else {
		file, err = a.fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
		if err != nil {
			return storage.Failed("write", location, "unable to open file for writing", err)
		}
		if explicit {
			if err := a.fs.Chmod(target, filePerm); err != nil {
				_ = file.Close()
				return storage.Failed("write", location, "unable to set permissions", err)
			}
		}
	}

	if _, err := io.Copy(file, contextReader{ctx: ctx, r: contents}); err != nil {
		_ = file.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return storage.Failed("write", location, "unable to write file", err)
	}

	if err := file.Close(); err != nil {
		return storage.Failed("write", location, "unable to close file", err)
	}
	return nil
}

// SetVisibility chmods location with the permissions matching v.
func (a *LocalAdapter) SetVisibility(ctx context.Context, location string, v storage.Visibility) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := a.prefix(location)
	if err != nil {
		return err
	}

	info, err := a.fs.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.NotFound("chmod", location, err)
		}
		return storage.Failed("chmod", location, "stat failed", err)
	}

	perm := a.converter.ForFile(v)
	if info.IsDir() {
		perm = a.converter.ForDirectory(v)
	}
	if err := a.fs.Chmod(target, perm); err != nil {
		return storage.Failed("chmod", location, "unable to set permissions", err)
	}
	return nil
}

// Delete removes a file or a symbolic link. Missing paths and directories
// are errors.
func (a *LocalAdapter) Delete(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := a.prefix(location)
	if err != nil {
		return err
	}

	if !a.isFile(target) && !a.isLink(target) {
		return storage.Failed("delete", location, "cannot remove file: not a file", nil)
	}
	if err := a.fs.Remove(target); err != nil {
		return storage.Failed("delete", location, "cannot remove file", err)
	}
	return nil
}

// DeleteDirectory removes location recursively, children before parents,
// stopping at the first entry that cannot be removed.
func (a *LocalAdapter) DeleteDirectory(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := a.prefix(location)
	if err != nil {
		return err
	}
	if !a.isDir(target) {
		return storage.Failed("rmdir", location, "unable to delete directory: not a directory", nil)
	}

	// afero.Walk visits parents before children; removing in reverse order
	// deletes children first.
	var entries []string
	err = afero.Walk(a.fs, target, func(current string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if current != target {
			entries = append(entries, current)
		}
		return nil
	})
	if err != nil {
		return storage.Failed("rmdir", location, "unable to enumerate directory", err)
	}

	for i := len(entries) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.fs.Remove(entries[i]); err != nil {
			return storage.Failed("rmdir", location, "unable to delete file "+entries[i], err)
		}
	}

	if err := a.fs.Remove(target); err != nil {
		return storage.Failed("rmdir", location, "unable to delete directory", err)
	}

	logger.Debug("Local adapter: deleted directory %s (%d entries)", target, len(entries))
	return nil
}

// CreateDirectory creates location and its parents. If it already exists it
// is only re-chmodded, and only when the call carries explicit permissions.
func (a *LocalAdapter) CreateDirectory(ctx context.Context, location string, opts storage.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := a.prefix(location)
	if err != nil {
		return err
	}

	perm, explicit := a.dirPermissions(opts)
	if a.isDir(target) {
		if explicit {
			if err := a.fs.Chmod(target, perm); err != nil {
				return storage.Failed("mkdir", location, "unable to set permissions", err)
			}
		}
		return nil
	}

	if err := a.fs.MkdirAll(target, perm); err != nil {
		return storage.Failed("mkdir", location, "unable to create directory", err)
	}
	return nil
}

// Move renames source to destination.
func (a *LocalAdapter) Move(ctx context.Context, source, destination string, opts storage.WriteOptions) error {
	return a.transfer(ctx, "move", source, destination, opts, func(src, dst string) error {
		return a.fs.Rename(src, dst)
	})
}

// Copy duplicates the file at source onto destination.
func (a *LocalAdapter) Copy(ctx context.Context, source, destination string, opts storage.WriteOptions) error {
	return a.transfer(ctx, "copy", source, destination, opts, a.copyFile)
}

// transfer runs the checks shared by Move and Copy, then op, then re-applies
// permissions when the call asks for them.
func (a *LocalAdapter) transfer(ctx context.Context, verb, source, destination string, opts storage.WriteOptions, op func(src, dst string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := a.prefix(source)
	if err != nil {
		return err
	}
	dst, err := a.prefix(destination)
	if err != nil {
		return err
	}

	if !a.pathExists(src) {
		return storage.Failed(verb, source, "cannot "+verb+" file: source does not exist", nil)
	}
	if !opts.Overwrite && a.pathExists(dst) {
		return storage.Failed(verb, destination, "cannot "+verb+" file: destination already exist and overwrite flag is not set", nil)
	}

	dirPerm, _ := a.dirPermissions(opts)
	if err := a.ensureDirectoryExists(path.Dir(dst), dirPerm); err != nil {
		return err
	}

	if err := op(src, dst); err != nil {
		return storage.Failed(verb, source, "unable to "+verb+" file", err)
	}

	var (
		perm     os.FileMode
		explicit bool
	)
	if a.isDir(dst) {
		perm, explicit = a.dirPermissions(opts)
	} else {
		perm, explicit = a.filePermissions(opts)
	}
	if !explicit {
		return nil
	}
	if err := a.fs.Chmod(dst, perm); err != nil {
		return storage.Failed(verb, destination, "unable to set permissions", err)
	}
	return nil
}

func (a *LocalAdapter) pathExists(p string) bool {
	return a.isFile(p) || a.isDir(p) || a.isLink(p)
}

func (a *LocalAdapter) copyFile(src, dst string) error {
	info, err := a.fs.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("cannot copy a directory")
	}

	in, err := a.fs.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := a.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
