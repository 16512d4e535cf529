package metrics

import (
	"context"
	"io"
	"time"

	"github.com/marmos91/omnifs/pkg/storage"
)

// Instrument wraps adapter so that every call is observed by m under the
// storage label name. A nil m returns adapter unchanged.
func Instrument(name string, adapter storage.Adapter, m *StorageMetrics) storage.Adapter {
	if m == nil {
		return adapter
	}
	return &instrumented{Adapter: adapter, name: name, metrics: m}
}

type instrumented struct {
	storage.Adapter
	name    string
	metrics *StorageMetrics
}

// Unwrap returns the decorated adapter.
func (i *instrumented) Unwrap() storage.Adapter {
	return i.Adapter
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.metrics.ObserveOperation(i.name, op, time.Since(start), err)
}

func (i *instrumented) Exists(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	ok, err := i.Adapter.Exists(ctx, path)
	i.observe("exists", start, err)
	return ok, err
}

func (i *instrumented) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := i.Adapter.Read(ctx, path)
	i.observe("read", start, err)
	if err != nil {
		return nil, err
	}
	counted := &countingReadCloser{ReadCloser: rc, done: func(n int64) {
		i.metrics.RecordBytes(i.name, "read", n)
	}}
	if seeker, ok := rc.(io.Seeker); ok {
		return &seekableReadCloser{countingReadCloser: counted, seeker: seeker}, nil
	}
	return counted, nil
}

// List is observed when the listing is opened. Backend iteration happens
// later, on the caller's schedule.
func (i *instrumented) List(ctx context.Context, path string, deep bool) *storage.Listing {
	start := time.Now()
	l := i.Adapter.List(ctx, path, deep)
	i.observe("list", start, nil)
	return l
}

func (i *instrumented) Stat(ctx context.Context, path string) (*storage.FileStat, error) {
	start := time.Now()
	st, err := i.Adapter.Stat(ctx, path)
	i.observe("stat", start, err)
	return st, err
}

func (i *instrumented) Visibility(ctx context.Context, path string) (storage.Visibility, error) {
	start := time.Now()
	v, err := i.Adapter.Visibility(ctx, path)
	i.observe("visibility", start, err)
	return v, err
}

func (i *instrumented) SetVisibility(ctx context.Context, path string, visibility storage.Visibility) error {
	start := time.Now()
	err := i.Adapter.SetVisibility(ctx, path, visibility)
	i.observe("set_visibility", start, err)
	return err
}

func (i *instrumented) Write(ctx context.Context, path string, contents io.Reader, opts storage.WriteOptions) error {
	start := time.Now()
	counter := &countingReader{r: contents}

	err := i.Adapter.Write(ctx, path, counter, opts)
	i.observe("write", start, err)
	if err == nil {
		i.metrics.RecordBytes(i.name, "write", counter.n)
	}
	return err
}

func (i *instrumented) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := i.Adapter.Delete(ctx, path)
	i.observe("delete", start, err)
	return err
}

func (i *instrumented) DeleteDirectory(ctx context.Context, path string) error {
	start := time.Now()
	err := i.Adapter.DeleteDirectory(ctx, path)
	i.observe("delete_directory", start, err)
	return err
}

func (i *instrumented) CreateDirectory(ctx context.Context, path string, opts storage.WriteOptions) error {
	start := time.Now()
	err := i.Adapter.CreateDirectory(ctx, path, opts)
	i.observe("create_directory", start, err)
	return err
}

func (i *instrumented) Move(ctx context.Context, src, dst string, opts storage.WriteOptions) error {
	start := time.Now()
	err := i.Adapter.Move(ctx, src, dst, opts)
	i.observe("move", start, err)
	return err
}

func (i *instrumented) Copy(ctx context.Context, src, dst string, opts storage.WriteOptions) error {
	start := time.Now()
	err := i.Adapter.Copy(ctx, src, dst, opts)
	i.observe("copy", start, err)
	return err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type countingReadCloser struct {
	io.ReadCloser
	n    int64
	done func(int64)
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n += int64(n)
	return n, err
}

// Close reports the bytes read so far once.
func (c *countingReadCloser) Close() error {
	if c.done != nil {
		c.done(c.n)
		c.done = nil
	}
	return c.ReadCloser.Close()
}

type seekableReadCloser struct {
	*countingReadCloser
	seeker io.Seeker
}

func (s *seekableReadCloser) Seek(offset int64, whence int) (int64, error) {
	return s.seeker.Seek(offset, whence)
}
