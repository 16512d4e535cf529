// Package badger implements storage.Adapter on an embedded BadgerDB.
//
// The adapter treats the database as a flat, sorted key space: every entry is
// a JSON metadata record and file content is split into fixed-size chunks
// stored next to it (see keys.go). Directories may be explicit (a record with
// directory=true) or implied by deeper keys, mirroring how object stores
// treat prefixes.
package badger

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/omnifs/internal/logger"
	"github.com/marmos91/omnifs/pkg/storage"
)

// DefaultChunkSize is the content chunk size used when Config.ChunkSize is 0.
const DefaultChunkSize = 256 * 1024

// Config configures a BadgerAdapter.
type Config struct {
	// DB is an already opened database shared with other components. When
	// set, Path/InMemory/Options are ignored and Close leaves it open.
	DB *badger.DB

	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for tests.
	InMemory bool

	// Prefix is prepended to every key, allowing several adapters to share
	// one database.
	Prefix string

	// ChunkSize is the content chunk size in bytes.
	ChunkSize int

	// Options overrides the generated badger options entirely.
	Options *badger.Options
}

// BadgerAdapter implements storage.Adapter on BadgerDB.
//
// Thread Safety:
// BadgerDB transactions are safe for concurrent use. Concurrent writes to the
// same path are last-writer-wins.
type BadgerAdapter struct {
	db        *badger.DB
	owned     bool
	prefix    string
	chunkSize int
}

var _ storage.Adapter = (*BadgerAdapter)(nil)

// New opens (or adopts) the database and returns an adapter on it.
//
// Configuration:
//   - Default options with logging routed to the module logger at WARNING
//   - Compression disabled; chunks are usually already compressed media
//   - In-memory mode when cfg.InMemory is set
func New(ctx context.Context, cfg Config) (*BadgerAdapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	a := &BadgerAdapter{
		db:        cfg.DB,
		prefix:    storage.JoinKey("", cfg.Prefix),
		chunkSize: chunkSize,
	}
	if a.db != nil {
		return a, nil
	}

	var opts badger.Options
	if cfg.Options != nil {
		opts = *cfg.Options
	} else {
		if !cfg.InMemory && cfg.Path == "" {
			return nil, fmt.Errorf("badger adapter: path is required unless in-memory")
		}
		opts = badger.DefaultOptions(cfg.Path)
		if cfg.InMemory {
			opts = badger.DefaultOptions("").WithInMemory(true)
		}
		opts = opts.
			WithLogger(badgerLogger{}).
			WithLoggingLevel(badger.WARNING).
			WithCompression(options.None)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	a.db = db
	a.owned = true

	logger.Debug("Badger adapter ready: path=%q in_memory=%v prefix=%q", cfg.Path, cfg.InMemory, a.prefix)
	return a, nil
}

// Close releases the database if the adapter opened it.
func (a *BadgerAdapter) Close() error {
	if !a.owned {
		return nil
	}
	return a.db.Close()
}

// key maps a user path to the entry key. The root maps to the bare prefix.
func (a *BadgerAdapter) key(location string) (string, string, error) {
	normalized, err := storage.NormalizePath(location)
	if err != nil {
		return "", "", err
	}
	return storage.JoinKey(a.prefix, normalized), normalized, nil
}

// badgerLogger routes badger's internal logging to the module logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any)   { logger.Error("badger: "+format, args...) }
func (badgerLogger) Warningf(format string, args ...any) { logger.Warn("badger: "+format, args...) }
func (badgerLogger) Infof(format string, args ...any)    { logger.Info("badger: "+format, args...) }
func (badgerLogger) Debugf(format string, args ...any)   { logger.Debug("badger: "+format, args...) }
