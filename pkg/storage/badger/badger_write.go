package badger

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/marmos91/omnifs/internal/logger"
	"github.com/marmos91/omnifs/pkg/storage"
)

// Write stores contents under location, replacing any previous file.
//
// Chunks are written before the record, so a reader never sees a record
// pointing at chunks that are not there yet. Chunks left over from a longer
// previous version are removed in the same batch.
func (a *BadgerAdapter) Write(ctx context.Context, location string, contents io.Reader, opts storage.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, _, err := a.key(location)
	if err != nil {
		return err
	}
	if key == a.prefix {
		return storage.Failed("write", location, "cannot write a directory", nil)
	}

	vis := storage.Public
	if opts.Visibility != nil {
		vis = *opts.Visibility
	}
	rec := &record{ContentType: opts.ContentType, Visibility: vis}
	if rec.ContentType == "" {
		rec.ContentType = storage.GuessByExtension(key)
	}

	return a.store(ctx, "write", location, key, contents, rec)
}

// store writes contents as the chunks of key and then rec.
func (a *BadgerAdapter) store(ctx context.Context, op, location, key string, contents io.Reader, rec *record) error {
	previous, _, err := a.lookup(key)
	if err != nil {
		return storage.Failed(op, location, "unable to write file", err)
	}
	if previous != nil && previous.Directory {
		return storage.Failed(op, location, "cannot write file: a directory exists at this path", nil)
	}

	wb := a.db.NewWriteBatch()
	defer wb.Cancel()

	var (
		index int
		size  int64
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// WriteBatch keeps a reference to the value until it commits.
		chunk := make([]byte, a.chunkSize)
		n, err := io.ReadFull(contents, chunk)
		if n > 0 {
			if index == 0 && rec.ContentType == "" {
				rec.ContentType = mimetype.Detect(chunk[:n]).String()
			}
			if err := wb.Set(keyChunk(key, index), chunk[:n]); err != nil {
				return storage.Failed(op, location, "unable to write file", err)
			}
			index++
			size += int64(n)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return storage.Failed(op, location, "unable to read contents", err)
		}
	}

	if previous != nil {
		for stale := index; stale < previous.Chunks; stale++ {
			if err := wb.Delete(keyChunk(key, stale)); err != nil {
				return storage.Failed(op, location, "unable to write file", err)
			}
		}
	}

	rec.Size = size
	rec.Chunks = index
	rec.Modified = time.Now()
	data, err := encodeRecord(rec)
	if err != nil {
		return storage.Failed(op, location, "unable to write file", err)
	}
	if err := wb.Set(keyMeta(key), data); err != nil {
		return storage.Failed(op, location, "unable to write file", err)
	}

	if err := wb.Flush(); err != nil {
		return storage.Failed(op, location, "unable to write file", err)
	}
	return nil
}

// SetVisibility updates the stored flag. Implied directories get an
// explicit record.
func (a *BadgerAdapter) SetVisibility(ctx context.Context, location string, v storage.Visibility) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, _, err := a.key(location)
	if err != nil {
		return err
	}

	err = a.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		if rec == nil {
			if !hasChildren(txn, key) {
				return storage.NotFound("chmod", location, nil)
			}
			rec = &record{Directory: true, Modified: time.Now()}
		}

		rec.Visibility = v
		data, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		return txn.Set(keyMeta(key), data)
	})
	if err != nil {
		if storage.IsNotFound(err) {
			return err
		}
		return storage.Failed("chmod", location, "unable to set visibility", err)
	}
	return nil
}

// Delete removes one file with its chunks. A missing key is not an error.
func (a *BadgerAdapter) Delete(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, _, err := a.key(location)
	if err != nil {
		return err
	}

	rec, _, err := a.lookup(key)
	if err != nil {
		return storage.Failed("delete", location, "unable to delete file", err)
	}
	if rec == nil {
		return nil
	}
	if rec.Directory {
		return storage.Failed("delete", location, "cannot remove file: not a file", nil)
	}

	wb := a.db.NewWriteBatch()
	defer wb.Cancel()

	for i := 0; i < rec.Chunks; i++ {
		if err := wb.Delete(keyChunk(key, i)); err != nil {
			return storage.Failed("delete", location, "unable to delete file", err)
		}
	}
	if err := wb.Delete(keyMeta(key)); err != nil {
		return storage.Failed("delete", location, "unable to delete file", err)
	}
	if err := wb.Flush(); err != nil {
		return storage.Failed("delete", location, "unable to delete file", err)
	}
	return nil
}

// DeleteDirectory removes the marker of location and every record and chunk
// below it.
func (a *BadgerAdapter) DeleteDirectory(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, _, err := a.key(location)
	if err != nil {
		return err
	}

	var keys [][]byte
	err = a.db.View(func(txn *badger.Txn) error {
		if rec, err := getRecord(txn, key); err != nil {
			return err
		} else if rec != nil && rec.Directory {
			keys = append(keys, keyMeta(key))
		}

		chunkPrefix := []byte(prefixChunk + key + "/")
		if key == "" {
			chunkPrefix = []byte(prefixChunk)
		}
		for _, prefix := range [][]byte{keyMetaChildren(key), chunkPrefix} {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return storage.Failed("rmdir", location, "unable to delete directory", err)
	}

	wb := a.db.NewWriteBatch()
	defer wb.Cancel()

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := wb.Delete(k); err != nil {
			return storage.Failed("rmdir", location, "unable to delete directory", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return storage.Failed("rmdir", location, "unable to delete directory", err)
	}

	logger.Debug("Badger delete directory: location=%s keys=%d", location, len(keys))
	return nil
}

// CreateDirectory writes an explicit directory record. Parents stay
// implied. An existing directory only has its visibility updated when one
// is given.
func (a *BadgerAdapter) CreateDirectory(ctx context.Context, location string, opts storage.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, _, err := a.key(location)
	if err != nil {
		return err
	}
	if key == a.prefix {
		return nil
	}

	err = a.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		switch {
		case rec == nil:
			rec = &record{Directory: true, Modified: time.Now(), Visibility: storage.Public}
		case !rec.Directory:
			return storage.UnableToCreateDirectory(location, errors.New("a file exists at this path"))
		case opts.Visibility == nil:
			return nil
		}
		if opts.Visibility != nil {
			rec.Visibility = *opts.Visibility
		}

		data, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		return txn.Set(keyMeta(key), data)
	})
	if err != nil {
		if errors.Is(err, storage.ErrUnableToCreateDirectory) {
			return err
		}
		return storage.UnableToCreateDirectory(location, err)
	}
	return nil
}

// Copy duplicates a file. The destination keeps the source content type and
// visibility unless opts override them.
func (a *BadgerAdapter) Copy(ctx context.Context, source, destination string, opts storage.WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcKey, _, err := a.key(source)
	if err != nil {
		return err
	}
	dstKey, _, err := a.key(destination)
	if err != nil {
		return err
	}

	reader, src, _, err := a.openReader(ctx, srcKey)
	if err != nil {
		return storage.Failed("copy", source, "unable to copy file", err)
	}
	defer func() { _ = reader.Close() }()

	if src == nil {
		return storage.Failed("copy", source, "cannot copy file: source does not exist", nil)
	}
	if src.Directory {
		return storage.Failed("copy", source, "cannot copy file: source is a directory", nil)
	}
	if !opts.Overwrite {
		taken, err := a.Exists(ctx, destination)
		if err != nil {
			return err
		}
		if taken {
			return storage.Failed("copy", destination, "cannot copy file: destination already exist and overwrite flag is not set", nil)
		}
	}

	rec := &record{ContentType: src.ContentType, Visibility: src.Visibility}
	if opts.ContentType != "" {
		rec.ContentType = opts.ContentType
	}
	if opts.Visibility != nil {
		rec.Visibility = *opts.Visibility
	}

	return a.store(ctx, "copy", destination, dstKey, reader, rec)
}

// Move is Copy followed by Delete of the source.
func (a *BadgerAdapter) Move(ctx context.Context, source, destination string, opts storage.WriteOptions) error {
	if err := a.Copy(ctx, source, destination, opts); err != nil {
		return err
	}
	if err := a.Delete(ctx, source); err != nil {
		return storage.Failed("move", source, "unable to move file", err)
	}
	return nil
}
