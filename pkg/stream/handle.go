package stream

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/marmos91/omnifs/internal/logger"
	"github.com/marmos91/omnifs/pkg/storage"
)

// readChunkSize is the initial capacity of a Read result.
const readChunkSize = 64 << 10

// State is the lifecycle state of a Handle.
type State int

const (
	StateClosed State = iota
	StateOpenRead
	StateOpenWriteLocalCopy
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpenRead:
		return "open-read"
	case StateOpenWriteLocalCopy:
		return "open-write-local-copy"
	default:
		return "unknown"
	}
}

// Handle is one open stream session.
//
// A pure read session streams from the adapter. Every other session works on
// a LocalBuffer that is written back to the adapter on Flush and Close.
type Handle struct {
	target target
	state  State

	// Pure read session.
	remote    io.ReadCloser
	remotePos int64
	remoteEOF bool

	// Local copy session.
	buffer *LocalBuffer

	writeOnly       bool
	alwaysAppend    bool
	workOnLocalCopy bool
	bytesWritten    int64
}

// URL returns the URL the handle was opened with.
func (h *Handle) URL() string { return h.target.url }

// Path returns the normalized backend path.
func (h *Handle) Path() string { return h.target.path }

func (h *Handle) State() State { return h.state }

// WorkOnLocalCopy reports whether the session is buffered locally.
func (h *Handle) WorkOnLocalCopy() bool { return h.workOnLocalCopy }

// BytesWritten returns the bytes written since the last flush.
func (h *Handle) BytesWritten() int64 { return h.bytesWritten }

// Buffer returns the local buffer, or nil for a pure read session.
func (h *Handle) Buffer() *LocalBuffer { return h.buffer }

// Read returns up to n bytes. It returns an empty slice on a write-only or
// closed handle and at end of stream.
func (h *Handle) Read(n int) ([]byte, error) {
	if h.state == StateClosed || h.writeOnly || n <= 0 {
		return []byte{}, nil
	}

	var src io.Reader = h.remote
	if h.state == StateOpenWriteLocalCopy {
		src = h.buffer.File()
	}

	// The buffer grows as bytes arrive, so a large n on a short stream does
	// not allocate n bytes up front.
	var out bytes.Buffer
	out.Grow(min(n, readChunkSize))
	read, err := io.CopyN(&out, src, int64(n))
	if h.state == StateOpenRead {
		h.remotePos += read
	}

	if errors.Is(err, io.EOF) {
		if h.state == StateOpenRead {
			h.remoteEOF = true
		}
		err = nil
	}
	if err != nil {
		return nil, storage.Failed("read", h.target.url, "unable to read stream", err)
	}
	return out.Bytes(), nil
}

// Write writes data to the local copy. Append handles write at the end and
// then restore the previous cursor. Once WriteBufferSize bytes have been
// written since the last flush the handle flushes itself.
func (h *Handle) Write(ctx context.Context, data []byte) (int, error) {
	if h.state != StateOpenWriteLocalCopy {
		return 0, nil
	}

	file := h.buffer.File()

	var cursor int64
	if h.alwaysAppend {
		var err error
		if cursor, err = file.Seek(0, io.SeekCurrent); err != nil {
			return 0, storage.Failed("write", h.target.url, "unable to seek local buffer", err)
		}
		if _, err := file.Seek(0, io.SeekEnd); err != nil {
			return 0, storage.Failed("write", h.target.url, "unable to seek local buffer", err)
		}
	}

	n, err := file.Write(data)
	h.bytesWritten += int64(n)
	if err != nil {
		return n, storage.Failed("write", h.target.url, "unable to write local buffer", err)
	}

	if h.alwaysAppend {
		if _, err := file.Seek(cursor, io.SeekStart); err != nil {
			return n, storage.Failed("write", h.target.url, "unable to seek local buffer", err)
		}
	}

	if limit := h.target.entry.Options.WriteBufferSize; limit > 0 && h.bytesWritten >= limit {
		if err := h.Flush(ctx); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Seek moves the cursor. Remote read streams are only seekable when the
// adapter stream supports it.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	switch h.state {
	case StateOpenWriteLocalCopy:
		pos, err := h.buffer.File().Seek(offset, whence)
		if err != nil {
			return 0, storage.Failed("seek", h.target.url, "unable to seek local buffer", err)
		}
		return pos, nil
	case StateOpenRead:
		seeker, ok := h.remote.(io.Seeker)
		if !ok {
			return 0, &storage.OperationError{Op: "seek", Path: h.target.url, Kind: ErrNotSeekable}
		}
		pos, err := seeker.Seek(offset, whence)
		if err != nil {
			return 0, storage.Failed("seek", h.target.url, "unable to seek stream", err)
		}
		h.remotePos = pos
		h.remoteEOF = false
		return pos, nil
	default:
		return 0, ErrClosed
	}
}

// Tell returns the cursor position.
func (h *Handle) Tell() (int64, error) {
	switch h.state {
	case StateOpenWriteLocalCopy:
		return h.buffer.File().Seek(0, io.SeekCurrent)
	case StateOpenRead:
		return h.remotePos, nil
	default:
		return 0, ErrClosed
	}
}

// EOF reports whether the cursor reached the end of the content. A remote
// stream only knows once a read came up short.
func (h *Handle) EOF() bool {
	switch h.state {
	case StateOpenWriteLocalCopy:
		pos, err := h.buffer.File().Seek(0, io.SeekCurrent)
		if err != nil {
			return false
		}
		info, err := h.buffer.Stat()
		if err != nil {
			return false
		}
		return pos >= info.Size()
	case StateOpenRead:
		return h.remoteEOF
	default:
		return false
	}
}

// Flush writes the whole local copy back to the adapter and restores the
// cursor. A failure is logged and returned; the local copy is untouched.
// Pure read sessions have nothing to flush.
func (h *Handle) Flush(ctx context.Context) error {
	if h.state == StateClosed {
		return ErrClosed
	}

	var err error
	if h.workOnLocalCopy {
		err = h.writeBack(ctx, "stream_flush")
	}
	h.bytesWritten = 0
	return err
}

func (h *Handle) writeBack(ctx context.Context, op string) error {
	file := h.buffer.File()

	cursor, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return storage.Failed("flush", h.target.url, "unable to seek local buffer", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return storage.Failed("flush", h.target.url, "unable to seek local buffer", err)
	}

	writeErr := h.target.adapter().Write(ctx, h.target.path, file, storage.WriteOptions{})
	if writeErr != nil {
		logger.Warn("%s(%s): unable to sync file: %v", op, h.target.url, writeErr)
	}

	if _, err := file.Seek(cursor, io.SeekStart); err != nil && writeErr == nil {
		return storage.Failed("flush", h.target.url, "unable to restore cursor", err)
	}
	return writeErr
}

// Close writes a local copy back one last time and releases the handle.
// The handle is closed even when the write-back fails. Closing a closed
// handle is a no-op.
func (h *Handle) Close(ctx context.Context) error {
	switch h.state {
	case StateClosed:
		return nil
	case StateOpenRead:
		h.state = StateClosed
		return h.remote.Close()
	}

	syncErr := h.writeBack(ctx, "stream_close")
	releaseErr := h.buffer.Release()
	h.buffer = nil
	h.state = StateClosed
	h.bytesWritten = 0

	if syncErr != nil {
		return syncErr
	}
	return releaseErr
}
