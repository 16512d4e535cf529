package storage

import (
	"errors"
	"fmt"
)

// ============================================================================
// Standard Storage Errors
// ============================================================================

// These errors provide a consistent way to indicate common failure conditions
// across all adapter implementations. Callers branch on them with errors.Is
// instead of matching messages.
//
// Usage Pattern:
//
//	stat, err := adapter.Stat(ctx, "reports/q3.csv")
//	if err != nil {
//	    if errors.Is(err, storage.ErrNotFound) {
//	        return nil // nothing to do
//	    }
//	    return err
//	}
//
// Error Wrapping:
// Adapters return *OperationError values whose Kind is one of the sentinels
// below, so both errors.Is(err, storage.ErrNotFound) and errors.As(err, &opErr)
// work on the same value.

var (
	// ErrInvalidPath indicates a path is malformed or escapes the adapter root.
	//
	// This error is returned when:
	//   - A ".." segment would traverse above the root
	//   - A stream URL has no scheme separator
	//
	// It is always fatal and never worth retrying.
	ErrInvalidPath = errors.New("invalid path")

	// ErrNotFound indicates the requested file or directory does not exist.
	//
	// This error is returned when:
	//   - Stat() is called on a missing path
	//   - Read() is called on a missing object
	//   - A stream is opened for reading on a missing path
	ErrNotFound = errors.New("not found")

	// ErrOperationFailed is the generic I/O or transport failure.
	//
	// The originating cause is always chained and reachable through
	// errors.Unwrap / errors.As.
	ErrOperationFailed = errors.New("operation failed")

	// ErrUnableToCreateDirectory indicates the adapter root or a destination
	// parent directory could not be materialized.
	ErrUnableToCreateDirectory = errors.New("unable to create directory")

	// ErrFileExists indicates an exclusive create found an existing file.
	ErrFileExists = errors.New("file already exists")

	// ErrUnsupported indicates the backend cannot perform the operation
	// (e.g. seeking a pure remote read stream).
	ErrUnsupported = errors.New("operation not supported")
)

// OperationError describes a failed adapter operation.
//
// Kind is one of the package sentinels. Err is the underlying backend error,
// if any.
type OperationError struct {
	Op   string
	Path string
	Kind error
	Msg  string
	Err  error
}

func (e *OperationError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}

	prefix := e.Op
	if e.Path != "" {
		prefix = fmt.Sprintf("%s %q", e.Op, e.Path)
	}

	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Is reports whether target is the error kind.
func (e *OperationError) Is(target error) bool {
	return e.Kind == target
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Failed builds an ErrOperationFailed error.
func Failed(op, path, msg string, cause error) error {
	return &OperationError{Op: op, Path: path, Kind: ErrOperationFailed, Msg: msg, Err: cause}
}

// NotFound builds an ErrNotFound error.
func NotFound(op, path string, cause error) error {
	return &OperationError{Op: op, Path: path, Kind: ErrNotFound, Msg: "file does not exist", Err: cause}
}

// InvalidPath builds an ErrInvalidPath error.
func InvalidPath(path, msg string) error {
	return &OperationError{Op: "normalize", Path: path, Kind: ErrInvalidPath, Msg: msg}
}

// UnableToCreateDirectory builds an ErrUnableToCreateDirectory error.
func UnableToCreateDirectory(path string, cause error) error {
	return &OperationError{Op: "mkdir", Path: path, Kind: ErrUnableToCreateDirectory, Err: cause}
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
