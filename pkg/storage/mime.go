package storage

import (
	"mime"
	"path"
	"strings"
)

// GuessByExtension returns the media type registered for the file extension
// of name, without parameters, or "" when the extension is unknown.
func GuessByExtension(name string) string {
	ext := path.Ext(name)
	if ext == "" {
		return ""
	}

	typ := mime.TypeByExtension(strings.ToLower(ext))
	if i := strings.IndexByte(typ, ';'); i >= 0 {
		typ = strings.TrimSpace(typ[:i])
	}
	return typ
}
