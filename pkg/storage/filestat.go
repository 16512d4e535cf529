package storage

import (
	"context"
	"sync"
	"time"
)

const (
	// DirectoryMimeType is reported for directories and object-store prefixes.
	DirectoryMimeType = "application/x-directory"

	// DefaultMimeType is reported when nothing better can be resolved.
	DefaultMimeType = "application/octet-stream"
)

// VisibilityResolver looks up the visibility of one entry on demand.
// Object stores use it to defer the ACL round-trip until somebody asks.
type VisibilityResolver func(ctx context.Context) (Visibility, error)

// FileStatAttrs is the input to NewFileStat.
type FileStatAttrs struct {
	Path         string
	LastModified time.Time
	// Size is -1 for directories and prefixes.
	Size     int64
	MimeType string

	// Exactly one of Visibility / Resolver is used. When Resolver is nil the
	// static Visibility is returned.
	Visibility Visibility
	Resolver   VisibilityResolver
}

// FileStat describes one entry of a listing or the result of a stat call.
//
// A FileStat is immutable once built. The only deferred piece is the
// visibility, which may be resolved lazily and is then memoised.
type FileStat struct {
	path         string
	lastModified time.Time
	size         int64
	mimeType     string

	visibility Visibility
	resolver   VisibilityResolver
	resolved   bool
	mu         sync.Mutex
}

// NewFileStat builds a FileStat.
func NewFileStat(attrs FileStatAttrs) *FileStat {
	return &FileStat{
		path:         attrs.Path,
		lastModified: attrs.LastModified,
		size:         attrs.Size,
		mimeType:     attrs.MimeType,
		visibility:   attrs.Visibility,
		resolver:     attrs.Resolver,
		resolved:     attrs.Resolver == nil,
	}
}

// NewDirectoryStat builds the FileStat of a directory or prefix.
func NewDirectoryStat(path string, lastModified time.Time, resolver VisibilityResolver, fallback Visibility) *FileStat {
	return NewFileStat(FileStatAttrs{
		Path:         path,
		LastModified: lastModified,
		Size:         -1,
		MimeType:     DirectoryMimeType,
		Visibility:   fallback,
		Resolver:     resolver,
	})
}

// Path is relative to the prefix the stat or listing was issued for.
func (s *FileStat) Path() string { return s.path }

func (s *FileStat) LastModified() time.Time { return s.lastModified }

// Size returns the size in bytes, or -1 for a directory.
func (s *FileStat) Size() int64 { return s.size }

func (s *FileStat) IsDir() bool { return s.size == -1 }

// MimeType returns the stored content type, falling back to an extension
// lookup and finally to DefaultMimeType.
func (s *FileStat) MimeType() string {
	if s.IsDir() {
		return DirectoryMimeType
	}
	if s.mimeType != "" {
		return s.mimeType
	}
	if guessed := GuessByExtension(s.path); guessed != "" {
		return guessed
	}
	return DefaultMimeType
}

// Visibility returns the entry visibility, resolving it on first use.
// Failed resolutions are not memoised.
func (s *FileStat) Visibility(ctx context.Context) (Visibility, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolved {
		return s.visibility, nil
	}

	v, err := s.resolver(ctx)
	if err != nil {
		return Public, err
	}

	s.visibility = v
	s.resolved = true
	return v, nil
}
