package registry

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/marmos91/omnifs/pkg/storage/visibility"
)

// validate is the singleton validator instance
var validate = validator.New()

// Options is the decoded per-scheme configuration consumed by the stream
// bridge.
type Options struct {
	// IgnoreVisibilityErrors makes stat fall back to Public when the
	// visibility lookup fails instead of failing the call.
	IgnoreVisibilityErrors bool `mapstructure:"ignore_visibility_errors"`

	// EmulateDirectoryLastModified computes a directory mtime as the newest
	// mtime of its immediate children. This costs one listing per stat.
	EmulateDirectoryLastModified bool `mapstructure:"emulate_directory_last_modified"`

	// UID / GID reported by stat. Detected when absent.
	UID uint32 `mapstructure:"uid"`
	GID uint32 `mapstructure:"gid"`

	VisibilityFilePublic            os.FileMode        `mapstructure:"visibility_file_public" validate:"lte=4095"`
	VisibilityFilePrivate           os.FileMode        `mapstructure:"visibility_file_private" validate:"lte=4095"`
	VisibilityDirectoryPublic       os.FileMode        `mapstructure:"visibility_directory_public" validate:"lte=4095"`
	VisibilityDirectoryPrivate      os.FileMode        `mapstructure:"visibility_directory_private" validate:"lte=4095"`
	VisibilityDefaultForDirectories storage.Visibility `mapstructure:"visibility_default_for_directories" validate:"oneof=0 1"`

	// WriteBufferSize flushes an open write handle once this many bytes were
	// written since the last flush. Zero disables auto-flush.
	WriteBufferSize int64 `mapstructure:"write_buffer_size" validate:"gte=0"`
}

// DefaultOptions returns the options used for keys missing from the
// configuration map. UID and GID are those of the current process owner.
func DefaultOptions() Options {
	uid, gid := DetectOwner()
	return Options{
		UID:                             uid,
		GID:                             gid,
		VisibilityFilePublic:            visibility.DefaultFilePublic,
		VisibilityFilePrivate:           visibility.DefaultFilePrivate,
		VisibilityDirectoryPublic:       visibility.DefaultDirectoryPublic,
		VisibilityDirectoryPrivate:      visibility.DefaultDirectoryPrivate,
		VisibilityDefaultForDirectories: storage.Private,
	}
}

// DecodeOptions overlays config onto DefaultOptions and validates the result.
// Permission values may be given as octal strings ("0644") or integers.
func DecodeOptions(config map[string]any) (Options, error) {
	opts := DefaultOptions()
	if len(config) > 0 {
		if err := storage.Decode(config, &opts); err != nil {
			return Options{}, fmt.Errorf("failed to decode protocol options: %w", err)
		}
	}

	if err := validate.Struct(&opts); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return Options{}, fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
		}
		return Options{}, err
	}
	return opts, nil
}

// Converter returns the permission converter the options describe.
func (o Options) Converter() visibility.UnixConverter {
	return visibility.UnixConverter{
		FilePublic:       o.VisibilityFilePublic,
		FilePrivate:      o.VisibilityFilePrivate,
		DirectoryPublic:  o.VisibilityDirectoryPublic,
		DirectoryPrivate: o.VisibilityDirectoryPrivate,
		DirectoryDefault: o.VisibilityDefaultForDirectories,
	}
}
