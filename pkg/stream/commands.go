package stream

import (
	"context"
	"fmt"
	"io"
)

// Command identifies one stream verb.
type Command int

const (
	CmdOpen Command = iota
	CmdRead
	CmdWrite
	CmdSeek
	CmdTell
	CmdEOF
	CmdFlush
	CmdClose
	CmdStat
	CmdURLStat
	CmdUnlink
	CmdRename
	CmdMkdir
	CmdRmdir
	CmdOpenDir
	CmdReadDir
	CmdRewindDir
	CmdCloseDir
)

var commandNames = map[Command]string{
	CmdOpen:      "stream_open",
	CmdRead:      "stream_read",
	CmdWrite:     "stream_write",
	CmdSeek:      "stream_seek",
	CmdTell:      "stream_tell",
	CmdEOF:       "stream_eof",
	CmdFlush:     "stream_flush",
	CmdClose:     "stream_close",
	CmdStat:      "stream_stat",
	CmdURLStat:   "url_stat",
	CmdUnlink:    "unlink",
	CmdRename:    "rename",
	CmdMkdir:     "mkdir",
	CmdRmdir:     "rmdir",
	CmdOpenDir:   "dir_opendir",
	CmdReadDir:   "dir_readdir",
	CmdRewindDir: "dir_rewinddir",
	CmdCloseDir:  "dir_closedir",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// Request carries the arguments of a dispatched command. Each command reads
// only the fields it needs.
type Request struct {
	URL    string
	Mode   string
	Handle *Handle
	Dir    *DirHandle

	Data   []byte
	Count  int
	Offset int64
	Whence int

	// Destination is the target URL of CmdRename.
	Destination string

	// Recursive applies to CmdMkdir.
	Recursive bool

	// Quiet suppresses the failure log of CmdURLStat.
	Quiet bool
}

// Response carries the results of a dispatched command.
type Response struct {
	Handle *Handle
	Dir    *DirHandle
	Stat   *Stat

	Data     []byte
	Written  int
	Position int64
	EOF      bool

	// Name and OK are the result of CmdReadDir.
	Name string
	OK   bool
}

type handlerFunc func(ctx context.Context, b *Bridge, req Request) (Response, error)

// commandTable holds one handler per command.
var commandTable = map[Command]handlerFunc{
	CmdOpen: func(ctx context.Context, b *Bridge, req Request) (Response, error) {
		h, err := b.Open(ctx, req.URL, req.Mode)
		return Response{Handle: h}, err
	},
	CmdRead: withHandle(func(_ context.Context, h *Handle, req Request) (Response, error) {
		data, err := h.Read(req.Count)
		return Response{Data: data}, err
	}),
	CmdWrite: withHandle(func(ctx context.Context, h *Handle, req Request) (Response, error) {
		n, err := h.Write(ctx, req.Data)
		return Response{Written: n}, err
	}),
	CmdSeek: withHandle(func(_ context.Context, h *Handle, req Request) (Response, error) {
		pos, err := h.Seek(req.Offset, req.Whence)
		return Response{Position: pos}, err
	}),
	CmdTell: withHandle(func(_ context.Context, h *Handle, _ Request) (Response, error) {
		pos, err := h.Tell()
		return Response{Position: pos}, err
	}),
	CmdEOF: withHandle(func(_ context.Context, h *Handle, _ Request) (Response, error) {
		return Response{EOF: h.EOF()}, nil
	}),
	CmdFlush: withHandle(func(ctx context.Context, h *Handle, _ Request) (Response, error) {
		return Response{}, h.Flush(ctx)
	}),
	CmdClose: withHandle(func(ctx context.Context, h *Handle, _ Request) (Response, error) {
		return Response{}, h.Close(ctx)
	}),
	CmdStat: withHandle(func(ctx context.Context, h *Handle, _ Request) (Response, error) {
		st, err := h.Stat(ctx)
		return Response{Stat: st}, err
	}),
	CmdURLStat: func(ctx context.Context, b *Bridge, req Request) (Response, error) {
		st, err := b.URLStat(ctx, req.URL, req.Quiet)
		return Response{Stat: st}, err
	},
	CmdUnlink: func(ctx context.Context, b *Bridge, req Request) (Response, error) {
		return Response{}, b.Unlink(ctx, req.URL)
	},
	CmdRename: func(ctx context.Context, b *Bridge, req Request) (Response, error) {
		return Response{}, b.Rename(ctx, req.URL, req.Destination)
	},
	CmdMkdir: func(ctx context.Context, b *Bridge, req Request) (Response, error) {
		return Response{}, b.Mkdir(ctx, req.URL, req.Recursive)
	},
	CmdRmdir: func(ctx context.Context, b *Bridge, req Request) (Response, error) {
		return Response{}, b.Rmdir(ctx, req.URL)
	},
	CmdOpenDir: func(ctx context.Context, b *Bridge, req Request) (Response, error) {
		d, err := b.OpenDir(ctx, req.URL)
		return Response{Dir: d}, err
	},
	CmdReadDir: withDir(func(d *DirHandle) (Response, error) {
		name, ok, err := d.ReadDir()
		return Response{Name: name, OK: ok}, err
	}),
	CmdRewindDir: withDir(func(d *DirHandle) (Response, error) {
		return Response{}, d.Rewind()
	}),
	CmdCloseDir: withDir(func(d *DirHandle) (Response, error) {
		d.Close()
		return Response{}, nil
	}),
}

func withHandle(fn func(ctx context.Context, h *Handle, req Request) (Response, error)) handlerFunc {
	return func(ctx context.Context, _ *Bridge, req Request) (Response, error) {
		if req.Handle == nil {
			return Response{}, ErrClosed
		}
		return fn(ctx, req.Handle, req)
	}
}

func withDir(fn func(d *DirHandle) (Response, error)) handlerFunc {
	return func(_ context.Context, _ *Bridge, req Request) (Response, error) {
		if req.Dir == nil {
			return Response{}, ErrClosed
		}
		return fn(req.Dir)
	}
}

// Dispatch runs cmd through the command table.
func (b *Bridge) Dispatch(ctx context.Context, cmd Command, req Request) (Response, error) {
	handler, ok := commandTable[cmd]
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
	return handler(ctx, b, req)
}

// Whence values accepted by CmdSeek.
const (
	SeekStart   = io.SeekStart
	SeekCurrent = io.SeekCurrent
	SeekEnd     = io.SeekEnd
)
