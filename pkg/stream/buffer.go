package stream

import (
	"os"

	"github.com/spf13/afero"
)

// LocalBuffer is the scratch file a writable handle works on. It lives on
// the bridge filesystem and is removed on Release.
type LocalBuffer struct {
	fs   afero.Fs
	file afero.File
}

func newLocalBuffer(fs afero.Fs, dir string) (*LocalBuffer, error) {
	file, err := afero.TempFile(fs, dir, "omnifs-stream-*")
	if err != nil {
		return nil, err
	}
	return &LocalBuffer{fs: fs, file: file}, nil
}

// File exposes the underlying file for direct access.
func (b *LocalBuffer) File() afero.File {
	return b.file
}

// Stat returns the buffer metadata (size, mode, mtime).
func (b *LocalBuffer) Stat() (os.FileInfo, error) {
	return b.file.Stat()
}

// Release closes and removes the buffer.
func (b *LocalBuffer) Release() error {
	name := b.file.Name()
	closeErr := b.file.Close()
	if err := b.fs.Remove(name); err != nil {
		return err
	}
	return closeErr
}
