package ratelimiter

import (
	"context"
	"io"

	"github.com/marmos91/omnifs/pkg/storage"
)

// Throttle wraps adapter so that every call waits for a token of limiter
// first. A cancelled wait returns the context error without reaching the
// backend.
func Throttle(adapter storage.Adapter, limiter *RateLimiter) storage.Adapter {
	if limiter == nil {
		return adapter
	}
	return &throttled{Adapter: adapter, limiter: limiter}
}

type throttled struct {
	storage.Adapter
	limiter *RateLimiter
}

// Unwrap returns the decorated adapter.
func (t *throttled) Unwrap() storage.Adapter {
	return t.Adapter
}

func (t *throttled) Exists(ctx context.Context, path string) (bool, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return false, err
	}
	return t.Adapter.Exists(ctx, path)
}

func (t *throttled) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.Adapter.Read(ctx, path)
}

// List takes its token when the listing is opened, not per page.
func (t *throttled) List(ctx context.Context, path string, deep bool) *storage.Listing {
	if err := t.limiter.Wait(ctx); err != nil {
		return storage.FailedListing(err)
	}
	return t.Adapter.List(ctx, path, deep)
}

func (t *throttled) Stat(ctx context.Context, path string) (*storage.FileStat, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.Adapter.Stat(ctx, path)
}

func (t *throttled) Visibility(ctx context.Context, path string) (storage.Visibility, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return storage.Public, err
	}
	return t.Adapter.Visibility(ctx, path)
}

func (t *throttled) SetVisibility(ctx context.Context, path string, visibility storage.Visibility) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.Adapter.SetVisibility(ctx, path, visibility)
}

func (t *throttled) Write(ctx context.Context, path string, contents io.Reader, opts storage.WriteOptions) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.Adapter.Write(ctx, path, contents, opts)
}

func (t *throttled) Delete(ctx context.Context, path string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.Adapter.Delete(ctx, path)
}

func (t *throttled) DeleteDirectory(ctx context.Context, path string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.Adapter.DeleteDirectory(ctx, path)
}

func (t *throttled) CreateDirectory(ctx context.Context, path string, opts storage.WriteOptions) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.Adapter.CreateDirectory(ctx, path, opts)
}

func (t *throttled) Move(ctx context.Context, src, dst string, opts storage.WriteOptions) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.Adapter.Move(ctx, src, dst, opts)
}

func (t *throttled) Copy(ctx context.Context, src, dst string, opts storage.WriteOptions) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.Adapter.Copy(ctx, src, dst, opts)
}
