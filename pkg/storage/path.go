package storage

import (
	"strings"
	"unicode"
)

// Separator is the only separator used by normalized paths.
const Separator = "/"

// NormalizePath turns a raw user path into a canonical, root-relative path.
//
// Backslashes become forward slashes, control characters are stripped,
// leading "./" sequences are removed and "." / ".." segments are folded.
// A ".." that would climb above the root fails with ErrInvalidPath.
//
// NormalizePath is idempotent: NormalizePath(NormalizePath(p)) == NormalizePath(p).
//
// Examples:
//
//	NormalizePath("/path/to/dir/.")               // "path/to/dir"
//	NormalizePath(`C:\dirname\\subdir`)           // "C:/dirname/subdir"
//	NormalizePath("/something/deep/../../dirname") // "dirname"
//	NormalizePath("a/../../x")                    // ErrInvalidPath
func NormalizePath(raw string) (string, error) {
	path := strings.ReplaceAll(raw, `\`, Separator)
	path = stripControl(path)

	for strings.HasPrefix(path, "./") {
		path = path[2:]
	}

	segments := strings.Split(path, Separator)
	kept := make([]string, 0, len(segments))
	for _, segment := range segments {
		switch segment {
		case "", ".":
			continue
		case "..":
			if len(kept) == 0 {
				return "", InvalidPath(raw, "path is outside of the defined root")
			}
			kept = kept[:len(kept)-1]
		default:
			kept = append(kept, segment)
		}
	}

	return strings.Join(kept, Separator), nil
}

// MustNormalizePath is NormalizePath for trusted literals. It panics on error.
func MustNormalizePath(raw string) string {
	path, err := NormalizePath(raw)
	if err != nil {
		panic(err)
	}
	return path
}

func stripControl(s string) string {
	if strings.IndexFunc(s, isControl) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isControl(r) {
			return -1
		}
		return r
	}, s)
}

// isControl matches the Unicode "Other" category (Cc, Cf, Co, Cs) and
// invalid runes.
func isControl(r rune) bool {
	return r == unicode.ReplacementChar || unicode.In(r, unicode.C)
}

// JoinKey joins a root prefix and a normalized path, collapsing repeated
// separators and trimming separators at both ends.
func JoinKey(root, path string) string {
	key := collapseSeparators(root + Separator + path)
	return strings.Trim(key, Separator)
}

func collapseSeparators(s string) string {
	if !strings.Contains(s, "//") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	prevSep := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '/' {
			if prevSep {
				continue
			}
			prevSep = true
		} else {
			prevSep = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// BaseName returns the last segment of a normalized path.
func BaseName(path string) string {
	path = strings.TrimSuffix(path, Separator)
	if i := strings.LastIndex(path, Separator); i >= 0 {
		return path[i+1:]
	}
	return path
}

// ParentDir returns the parent of a normalized path, "" for top-level entries.
func ParentDir(path string) string {
	path = strings.TrimSuffix(path, Separator)
	if i := strings.LastIndex(path, Separator); i >= 0 {
		return path[:i]
	}
	return ""
}
