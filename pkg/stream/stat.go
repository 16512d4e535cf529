package stream

import (
	"context"
	"time"

	"github.com/marmos91/omnifs/internal/logger"
	"github.com/marmos91/omnifs/pkg/storage"
)

// File type bits of Stat.Mode.
const (
	ModeDir     uint32 = 0o040000
	ModeRegular uint32 = 0o100000
	ModeType    uint32 = 0o170000
)

// Stat is the POSIX stat record returned by Handle.Stat and
// Bridge.URLStat.
//
// Dev, Ino, Nlink and Rdev are always zero and Blksize/Blocks are -1, since
// no backend has a meaningful value for them. Atime, Mtime and Ctime all
// carry the resolved last-modified time.
type Stat struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint64
	UID     uint32
	GID     uint32
	Rdev    uint64
	Size    int64
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
	Blksize int64
	Blocks  int64
}

func (s *Stat) IsDir() bool {
	return s.Mode&ModeType == ModeDir
}

// Perm returns the permission bits of Mode.
func (s *Stat) Perm() uint32 {
	return s.Mode &^ ModeType
}

func newStat(t target) *Stat {
	return &Stat{
		UID:     t.entry.Options.UID,
		GID:     t.entry.Options.GID,
		Blksize: -1,
		Blocks:  -1,
	}
}

func (s *Stat) setTime(tm time.Time) {
	s.Atime, s.Mtime, s.Ctime = tm, tm, tm
}

// Stat describes the open file.
//
// A local copy reports its own size. Mode and time come from the remote
// entry when it exists and from the buffer otherwise. A pure read session is
// described entirely by the remote entry.
func (h *Handle) Stat(ctx context.Context) (*Stat, error) {
	switch h.state {
	case StateClosed:
		return nil, ErrClosed
	case StateOpenRead:
		return remoteStat(ctx, h.target)
	}

	info, err := h.buffer.Stat()
	if err != nil {
		return nil, storage.Failed("stat", h.target.url, "unable to stat local buffer", err)
	}

	exists, err := h.target.adapter().Exists(ctx, h.target.path)
	if err != nil {
		return nil, err
	}

	st := newStat(h.target)
	if exists {
		remote, err := remoteStat(ctx, h.target)
		if err != nil {
			return nil, err
		}
		st.Mode = remote.Mode
		st.setTime(remote.Mtime)
	} else {
		// Not written back yet: report what a public file of this protocol
		// will look like, not the permissions of the temp file.
		st.Mode = ModeRegular | uint32(h.target.entry.Options.Converter().ForFile(storage.Public))
		st.setTime(info.ModTime())
	}
	st.Size = info.Size()
	return st, nil
}

// remoteStat builds a Stat from one adapter stat plus a visibility lookup.
// A visibility failure falls back to Public when the protocol ignores
// visibility errors.
func remoteStat(ctx context.Context, t target) (*Stat, error) {
	a := t.adapter()
	opts := t.entry.Options
	converter := opts.Converter()

	fs, err := a.Stat(ctx, t.path)
	if err != nil {
		return nil, err
	}

	vis, err := fs.Visibility(ctx)
	if err != nil {
		if !opts.IgnoreVisibilityErrors {
			return nil, err
		}
		logger.Debug("stat(%s): ignoring visibility error: %v", t.url, err)
		vis = storage.Public
	}

	st := newStat(t)
	if fs.IsDir() {
		st.Mode = ModeDir | uint32(converter.ForDirectory(vis))
		mtime, err := directoryLastModified(ctx, t, fs)
		if err != nil {
			return nil, err
		}
		st.setTime(mtime)
		return st, nil
	}

	st.Mode = ModeRegular | uint32(converter.ForFile(vis))
	st.Size = fs.Size()
	st.setTime(fs.LastModified())
	return st, nil
}

// directoryLastModified returns the directory's own time, or with emulation
// enabled the newest time among its immediate children (zero for an empty
// directory). Emulation costs one listing per call.
func directoryLastModified(ctx context.Context, t target, fs *storage.FileStat) (time.Time, error) {
	if !t.entry.Options.EmulateDirectoryLastModified {
		return fs.LastModified(), nil
	}

	var newest time.Time
	for child, err := range t.adapter().List(ctx, t.path, false).All() {
		if err != nil {
			return time.Time{}, err
		}
		if child.LastModified().After(newest) {
			newest = child.LastModified()
		}
	}
	return newest, nil
}
