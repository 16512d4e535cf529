package badger

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/marmos91/omnifs/pkg/storage"
)

// Exists reports whether key holds a record or has entries below it.
func (a *BadgerAdapter) Exists(ctx context.Context, location string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key, _, err := a.key(location)
	if err != nil {
		return false, err
	}
	if key == a.prefix {
		return true, nil
	}

	var found bool
	err = a.db.View(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		if rec != nil {
			found = true
			return nil
		}
		found = hasChildren(txn, key)
		return nil
	})
	if err != nil {
		return false, storage.Failed("exists", location, "unable to check existence", err)
	}
	return found, nil
}

// Read streams the content chunk by chunk. The record and every chunk come
// from one read snapshot held until Close, so a concurrent overwrite of the
// same key is never observed half way through.
func (a *BadgerAdapter) Read(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, _, err := a.key(location)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(location, "/") || key == a.prefix {
		return nil, storage.Failed("read", location, "cannot read a directory", nil)
	}

	reader, rec, implicit, err := a.openReader(ctx, key)
	if err != nil {
		return nil, storage.Failed("read", location, "unable to read file", err)
	}
	switch {
	case rec == nil && implicit:
		_ = reader.Close()
		return nil, storage.Failed("read", location, "cannot read a directory", nil)
	case rec == nil:
		_ = reader.Close()
		return nil, storage.NotFound("read", location, nil)
	case rec.Directory:
		_ = reader.Close()
		return nil, storage.Failed("read", location, "cannot read a directory", nil)
	}

	return reader, nil
}

// Stat resolves location as a record, then as an implied directory.
func (a *BadgerAdapter) Stat(ctx context.Context, location string) (*storage.FileStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, normalized, err := a.key(location)
	if err != nil {
		return nil, err
	}
	if key == a.prefix {
		return storage.NewDirectoryStat(normalized, time.Time{}, nil, storage.Public), nil
	}

	rec, implicit, err := a.lookup(key)
	if err != nil {
		return nil, storage.Failed("stat", location, "unable to retrieve metadata", err)
	}
	switch {
	case rec != nil:
		return recordStat(normalized, rec), nil
	case implicit:
		return storage.NewDirectoryStat(normalized, time.Time{}, nil, storage.Public), nil
	default:
		return nil, storage.NotFound("stat", location, nil)
	}
}

// Visibility returns the stored flag. Implied directories are public.
func (a *BadgerAdapter) Visibility(ctx context.Context, location string) (storage.Visibility, error) {
	stat, err := a.Stat(ctx, location)
	if err != nil {
		return storage.Public, err
	}
	return stat.Visibility(ctx)
}

// List scans the records under location. With deep=false, entries further
// down are collapsed into their first path segment and reported once as a
// directory.
//
// The scan runs inside one read transaction that stays open while the
// consumer ranges over the listing.
func (a *BadgerAdapter) List(ctx context.Context, location string, deep bool) *storage.Listing {
	key, _, err := a.key(location)
	if err != nil {
		return storage.FailedListing(err)
	}
	scanPrefix := keyMetaChildren(key)

	return storage.NewListing(ctx, func(ctx context.Context, yield func(*storage.FileStat, error) bool) {
		stopped := false
		err := a.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = scanPrefix
			it := txn.NewIterator(opts)
			defer it.Close()

			seen := make(map[string]bool)
			for it.Seek(scanPrefix); it.ValidForPrefix(scanPrefix); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}

				item := it.Item()
				rel := string(item.Key()[len(scanPrefix):])

				var stat *storage.FileStat
				if i := strings.IndexByte(rel, '/'); i >= 0 && !deep {
					dir := rel[:i]
					if seen[dir] {
						continue
					}
					seen[dir] = true
					stat = storage.NewDirectoryStat(dir, time.Time{}, nil, storage.Public)
				} else {
					var rec *record
					err := item.Value(func(val []byte) error {
						var err error
						rec, err = decodeRecord(val)
						return err
					})
					if err != nil {
						return err
					}
					if rec.Directory {
						if seen[rel] {
							continue
						}
						seen[rel] = true
					}
					stat = recordStat(rel, rec)
				}

				if !yield(stat, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				yield(nil, err)
				return
			}
			yield(nil, storage.Failed("list", location, "unable to list entries", err))
		}
	})
}

// ============================================================================
// Helpers
// ============================================================================

// lookup returns the record at key, or whether key is an implied directory.
func (a *BadgerAdapter) lookup(key string) (*record, bool, error) {
	var (
		rec      *record
		implicit bool
	)
	err := a.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, key)
		if err != nil || rec != nil {
			return err
		}
		implicit = hasChildren(txn, key)
		return nil
	})
	return rec, implicit, err
}

// getRecord returns nil without error when key has no record.
func getRecord(txn *badger.Txn, key string) (*record, error) {
	item, err := txn.Get(keyMeta(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec *record
	err = item.Value(func(val []byte) error {
		rec, err = decodeRecord(val)
		return err
	})
	return rec, err
}

func hasChildren(txn *badger.Txn, key string) bool {
	prefix := keyMetaChildren(key)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Seek(prefix)
	return it.ValidForPrefix(prefix)
}

func recordStat(path string, rec *record) *storage.FileStat {
	if rec.Directory {
		return storage.NewDirectoryStat(path, rec.Modified, nil, rec.Visibility)
	}
	return storage.NewFileStat(storage.FileStatAttrs{
		Path:         path,
		LastModified: rec.Modified,
		Size:         rec.Size,
		MimeType:     rec.ContentType,
		Visibility:   rec.Visibility,
	})
}

// openReader opens a read snapshot and resolves key in it. The returned
// reader is bound to the record's chunks and must be closed to release the
// snapshot, whatever the record turned out to be.
func (a *BadgerAdapter) openReader(ctx context.Context, key string) (*chunkReader, *record, bool, error) {
	txn := a.db.NewTransaction(false)

	rec, err := getRecord(txn, key)
	if err != nil {
		txn.Discard()
		return nil, nil, false, err
	}

	reader := &chunkReader{ctx: ctx, txn: txn, key: key}
	if rec == nil {
		return reader, nil, hasChildren(txn, key), nil
	}
	reader.chunks = rec.Chunks
	return reader, rec, false, nil
}

// chunkReader reads the chunks of one entry sequentially from a read
// snapshot.
type chunkReader struct {
	ctx    context.Context
	txn    *badger.Txn
	key    string
	chunks int

	next int
	buf  []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.next >= r.chunks {
			return 0, io.EOF
		}
		if err := r.ctx.Err(); err != nil {
			return 0, err
		}

		item, err := r.txn.Get(keyChunk(r.key, r.next))
		if err == nil {
			r.buf, err = item.ValueCopy(nil)
		}
		if err != nil {
			return 0, storage.Failed("read", r.key, "unable to read chunk", err)
		}
		r.next++
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *chunkReader) Close() error {
	r.next = r.chunks
	r.buf = nil
	if r.txn != nil {
		r.txn.Discard()
		r.txn = nil
	}
	return nil
}
