// Package local implements storage.Adapter on top of a local (or in-memory)
// filesystem through spf13/afero.
//
// Every user path is normalized and joined under the configured root, so no
// operation can reach outside it. New files get 0644 and new directories
// 0755 unless the adapter defaults or the per-call options say otherwise.
package local

import (
	"context"
	"os"
	"strings"

	"github.com/marmos91/omnifs/internal/logger"
	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/marmos91/omnifs/pkg/storage/visibility"
	"github.com/spf13/afero"
)

const (
	DefaultFilePermissions os.FileMode = 0o644
	DefaultDirPermissions  os.FileMode = 0o755
)

// Config configures a LocalAdapter.
type Config struct {
	// Root is the directory every path is resolved under. It is created if
	// missing.
	Root string

	// FilePermissions / DirPermissions are applied to newly created entries.
	// Zero selects the package defaults.
	FilePermissions os.FileMode
	DirPermissions  os.FileMode

	// Fs is the filesystem to operate on. Nil selects the OS filesystem.
	Fs afero.Fs

	// Visibility maps permission bits to visibility. The zero value selects
	// visibility.NewUnixConverter().
	Visibility *visibility.UnixConverter
}

// LocalAdapter implements storage.Adapter over an afero filesystem.
//
// Thread Safety:
// The adapter holds no mutable state. Concurrent writes to the same path
// race at the filesystem level, exactly like plain os calls would.
type LocalAdapter struct {
	fs        afero.Fs
	root      string
	filePerm  os.FileMode
	dirPerm   os.FileMode
	converter visibility.UnixConverter
}

var _ storage.Adapter = (*LocalAdapter)(nil)

// New creates a LocalAdapter and makes sure the root directory exists.
//
// Returns an ErrUnableToCreateDirectory error when the root cannot be
// created.
func New(ctx context.Context, cfg Config) (*LocalAdapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a := &LocalAdapter{
		fs:        cfg.Fs,
		root:      normalizeRoot(cfg.Root),
		filePerm:  cfg.FilePermissions,
		dirPerm:   cfg.DirPermissions,
		converter: visibility.NewUnixConverter(),
	}
	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	if a.filePerm == 0 {
		a.filePerm = DefaultFilePermissions
	}
	if a.dirPerm == 0 {
		a.dirPerm = DefaultDirPermissions
	}
	if cfg.Visibility != nil {
		a.converter = *cfg.Visibility
	}

	if err := a.ensureDirectoryExists(a.root, a.dirPerm); err != nil {
		return nil, err
	}

	logger.Debug("Local adapter ready: root=%s file_perm=%o dir_perm=%o", a.root, a.filePerm, a.dirPerm)
	return a, nil
}

// Root returns the root directory of the adapter.
func (a *LocalAdapter) Root() string {
	return a.root
}

// normalizeRoot keeps a bare "/" and strips trailing separators otherwise.
func normalizeRoot(root string) string {
	if root == "" {
		return "."
	}
	if strings.Trim(root, "/") == "" {
		return "/"
	}
	return strings.TrimRight(root, "/")
}

// prefix maps a user path to a filesystem path under the root.
func (a *LocalAdapter) prefix(location string) (string, error) {
	normalized, err := storage.NormalizePath(location)
	if err != nil {
		return "", err
	}
	return joinPath(a.root, normalized), nil
}

func joinPath(root, normalized string) string {
	joined := root + "/" + normalized
	for strings.Contains(joined, "//") {
		joined = strings.ReplaceAll(joined, "//", "/")
	}
	if joined != "/" {
		joined = strings.TrimRight(joined, "/")
	}
	return joined
}

// lstat stats path without following a trailing symlink when the
// filesystem supports it.
func (a *LocalAdapter) lstat(path string) (os.FileInfo, error) {
	if lstater, ok := a.fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(path)
		return info, err
	}
	return a.fs.Stat(path)
}

func (a *LocalAdapter) isDir(path string) bool {
	info, err := a.fs.Stat(path)
	return err == nil && info.IsDir()
}

func (a *LocalAdapter) isFile(path string) bool {
	info, err := a.fs.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (a *LocalAdapter) isLink(path string) bool {
	info, err := a.lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// ensureDirectoryExists creates dirname (and parents) if needed.
func (a *LocalAdapter) ensureDirectoryExists(dirname string, perm os.FileMode) error {
	if a.isDir(dirname) {
		return nil
	}

	mkdirErr := a.fs.MkdirAll(dirname, perm)
	if !a.isDir(dirname) {
		return storage.UnableToCreateDirectory(dirname, mkdirErr)
	}
	return nil
}

func (a *LocalAdapter) filePermissions(opts storage.WriteOptions) (os.FileMode, bool) {
	if opts.Local.FilePermissions != 0 {
		return opts.Local.FilePermissions, true
	}
	if opts.Visibility != nil {
		return a.converter.ForFile(*opts.Visibility), true
	}
	return a.filePerm, false
}

func (a *LocalAdapter) dirPermissions(opts storage.WriteOptions) (os.FileMode, bool) {
	if opts.Local.DirPermissions != 0 {
		return opts.Local.DirPermissions, true
	}
	if opts.Visibility != nil {
		return a.converter.ForDirectory(*opts.Visibility), true
	}
	return a.dirPerm, false
}
