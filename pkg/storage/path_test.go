package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{".", ""},
		{"/path/to/dir/.", "path/to/dir"},
		{"/dirname/", "dirname"},
		{"dirname/..", ""},
		{"dirname./", "dirname."},
		{"./dir/../././", ""},
		{"/something/deep/../../dirname", "dirname"},
		{"00004869/files/other/10-75..stl", "00004869/files/other/10-75..stl"},
		{`\dirname\\subdir\\\subsubdir`, "dirname/subdir/subsubdir"},
		{`C:\dirname\\subdir`, "C:/dirname/subdir"},
		{"example/path/..txt", "example/path/..txt"},
		{`\example\..\path.txt`, "path.txt"},
		{"some\x00/path.txt", "some/path.txt"},
		{"tab\tname/\u200bzero.txt", "tabname/zero.txt"},
		{"././././file", "file"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizePath(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizePath_Traversal(t *testing.T) {
	inputs := []string{
		"something/../../../hehe",
		"/something/../../..",
		"..",
		`something\..\..`,
		`\something\..\..\dirname`,
		"../x",
		"a/../../x",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := NormalizePath(input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPath), "expected ErrInvalidPath, got %v", err)

			var opErr *OperationError
			require.True(t, errors.As(err, &opErr))
			assert.Equal(t, input, opErr.Path)
		})
	}
}

func TestNormalizePath_Idempotent(t *testing.T) {
	inputs := []string{
		"/a/b/../c/./d/",
		`C:\x\y`,
		"./../a/..",
		"dirname./",
		"x//y///z",
		"a/b/c/../../../d",
	}

	for _, input := range inputs {
		once, err := NormalizePath(input)
		if err != nil {
			continue
		}
		twice, err := NormalizePath(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "input %q", input)
	}
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "root/a/b", JoinKey("/root/", "a/b"))
	assert.Equal(t, "a/b", JoinKey("/", "a/b"))
	assert.Equal(t, "", JoinKey("/", ""))
	assert.Equal(t, "root", JoinKey("root//", ""))
	assert.Equal(t, "p/q/r", JoinKey("p//q", "r"))
}

func TestBaseNameAndParentDir(t *testing.T) {
	assert.Equal(t, "c.txt", BaseName("a/b/c.txt"))
	assert.Equal(t, "b", BaseName("a/b/"))
	assert.Equal(t, "top", BaseName("top"))
	assert.Equal(t, "a/b", ParentDir("a/b/c.txt"))
	assert.Equal(t, "", ParentDir("top"))
}
