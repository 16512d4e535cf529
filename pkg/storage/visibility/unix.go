// Package visibility maps the abstract storage.Visibility onto native access
// representations: Unix permission bits for local disks and ACL grants for
// object stores.
package visibility

import (
	"os"

	"github.com/marmos91/omnifs/pkg/storage"
)

// Default Unix permissions.
const (
	DefaultFilePublic       os.FileMode = 0o644
	DefaultFilePrivate      os.FileMode = 0o600
	DefaultDirectoryPublic  os.FileMode = 0o755
	DefaultDirectoryPrivate os.FileMode = 0o700
)

// UnixConverter translates visibility to and from permission bits.
//
// The inverse mapping only recognises exact matches; any other permission
// set is reported as Public.
type UnixConverter struct {
	FilePublic       os.FileMode
	FilePrivate      os.FileMode
	DirectoryPublic  os.FileMode
	DirectoryPrivate os.FileMode
	DirectoryDefault storage.Visibility
}

// NewUnixConverter returns a converter with the default permissions and
// Private as the default directory visibility.
func NewUnixConverter() UnixConverter {
	return UnixConverter{
		FilePublic:       DefaultFilePublic,
		FilePrivate:      DefaultFilePrivate,
		DirectoryPublic:  DefaultDirectoryPublic,
		DirectoryPrivate: DefaultDirectoryPrivate,
		DirectoryDefault: storage.Private,
	}
}

func (c UnixConverter) ForFile(v storage.Visibility) os.FileMode {
	if v == storage.Public {
		return c.FilePublic
	}
	return c.FilePrivate
}

func (c UnixConverter) ForDirectory(v storage.Visibility) os.FileMode {
	if v == storage.Public {
		return c.DirectoryPublic
	}
	return c.DirectoryPrivate
}

// InverseForFile maps permission bits back to a visibility. Type bits are ignored.
func (c UnixConverter) InverseForFile(mode os.FileMode) storage.Visibility {
	switch mode.Perm() {
	case c.FilePublic:
		return storage.Public
	case c.FilePrivate:
		return storage.Private
	default:
		return storage.Public
	}
}

func (c UnixConverter) InverseForDirectory(mode os.FileMode) storage.Visibility {
	switch mode.Perm() {
	case c.DirectoryPublic:
		return storage.Public
	case c.DirectoryPrivate:
		return storage.Private
	default:
		return storage.Public
	}
}

func (c UnixConverter) DefaultForDirectories() storage.Visibility {
	return c.DirectoryDefault
}

// DefaultDirectoryPermissions is ForDirectory(DefaultForDirectories()).
func (c UnixConverter) DefaultDirectoryPermissions() os.FileMode {
	return c.ForDirectory(c.DirectoryDefault)
}
