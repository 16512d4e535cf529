// Package registry maps URL schemes ("s3", "local", ...) to a storage adapter
// and the options the stream bridge applies to it.
package registry

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/omnifs/internal/logger"
	"github.com/marmos91/omnifs/pkg/storage"
)

var (
	// ErrAlreadyRegistered is returned by Register for a scheme that is taken.
	ErrAlreadyRegistered = errors.New("protocol already registered")

	// ErrNotRegistered is returned when no adapter serves a scheme.
	ErrNotRegistered = errors.New("protocol not registered")
)

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*$`)

// ValidScheme reports whether scheme can be registered.
func ValidScheme(scheme string) bool {
	return schemePattern.MatchString(scheme)
}

// Entry is one registered scheme.
type Entry struct {
	Scheme  string
	Adapter storage.Adapter
	Options Options
}

// Registry manages the scheme to adapter bindings used to resolve stream
// URLs. It is safe for concurrent use.
//
// Example usage:
//
//	reg := registry.New()
//	reg.Register("s3", s3Adapter, map[string]any{"write_buffer_size": 8 << 20})
//	reg.Register("local", localAdapter, nil)
//
//	entry, path, _ := reg.Resolve("s3://reports/q3.csv")
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register binds scheme to adapter. The config map is decoded into Options
// on top of the defaults before anything is stored, so a rejected call has
// no side effects.
//
// Returns an error if:
//   - The scheme is not a valid URL scheme
//   - The adapter is nil
//   - The scheme is already registered (ErrAlreadyRegistered)
//   - The config map does not decode or validate
func (r *Registry) Register(scheme string, adapter storage.Adapter, config map[string]any) error {
	if !ValidScheme(scheme) {
		return fmt.Errorf("invalid protocol scheme %q", scheme)
	}
	if adapter == nil {
		return fmt.Errorf("cannot register nil adapter for %q", scheme)
	}

	opts, err := DecodeOptions(config)
	if err != nil {
		return fmt.Errorf("protocol %q: %w", scheme, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[scheme]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, scheme)
	}

	r.entries[scheme] = &Entry{Scheme: scheme, Adapter: adapter, Options: opts}
	logger.Debug("Registered protocol %s://", scheme)
	return nil
}

// Unregister removes scheme. Returns false if it was not registered.
// The adapter is not closed; it may be shared.
func (r *Registry) Unregister(scheme string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[scheme]; !exists {
		return false
	}
	delete(r.entries, scheme)
	logger.Debug("Unregistered protocol %s://", scheme)
	return true
}

// UnregisterAll removes every scheme and returns how many were removed.
func (r *Registry) UnregisterAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := len(r.entries)
	r.entries = make(map[string]*Entry)
	return count
}

func (r *Registry) IsRegistered(scheme string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.entries[scheme]
	return exists
}

// Get returns the entry for scheme. The entry must not be modified.
func (r *Registry) Get(scheme string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[scheme]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, scheme)
	}
	return entry, nil
}

// Protocols returns the registered schemes, sorted.
// The returned slice is a copy and safe to modify.
func (r *Registry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve splits "scheme://path" and returns the entry serving scheme along
// with the path part.
func (r *Registry) Resolve(url string) (*Entry, string, error) {
	scheme, path, ok := SplitURL(url)
	if !ok {
		return nil, "", storage.InvalidPath(url, "missing scheme separator")
	}
	entry, err := r.Get(scheme)
	if err != nil {
		return nil, "", err
	}
	return entry, path, nil
}

// SplitURL splits "scheme://path". ok is false when there is no "://".
func SplitURL(url string) (scheme, path string, ok bool) {
	scheme, path, ok = strings.Cut(url, "://")
	if !ok || scheme == "" {
		return "", "", false
	}
	return scheme, path, true
}
