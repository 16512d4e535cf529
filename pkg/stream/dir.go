package stream

import (
	"context"
	"iter"

	"github.com/marmos91/omnifs/pkg/storage"
)

// DirHandle iterates the immediate children of a directory by base name.
type DirHandle struct {
	target target
	ctx    context.Context

	next   func() (*storage.FileStat, error, bool)
	stop   func()
	closed bool
}

// OpenDir opens a directory for ReadDir.
func (b *Bridge) OpenDir(ctx context.Context, url string) (*DirHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := b.resolve(url)
	if err != nil {
		return nil, err
	}

	stat, err := t.adapter().Stat(ctx, t.path)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		return nil, storage.Failed("opendir", url, "not a directory", nil)
	}

	d := &DirHandle{target: t, ctx: ctx}
	d.start()
	return d, nil
}

func (d *DirHandle) start() {
	listing := d.target.adapter().List(d.ctx, d.target.path, false)
	d.next, d.stop = iter.Pull2(listing.All())
}

// ReadDir returns the next entry name. ok is false once the listing is
// exhausted.
func (d *DirHandle) ReadDir() (name string, ok bool, err error) {
	if d.closed {
		return "", false, ErrClosed
	}

	stat, err, ok := d.next()
	if !ok {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return storage.BaseName(stat.Path()), true, nil
}

// Rewind restarts the iteration with a fresh listing.
func (d *DirHandle) Rewind() error {
	if d.closed {
		return ErrClosed
	}
	d.stop()
	d.start()
	return nil
}

// Close releases the listing.
func (d *DirHandle) Close() {
	if d.closed {
		return
	}
	d.stop()
	d.closed = true
}
