package testing

import (
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorIs checks if the error matches the expected error using errors.Is.
func AssertErrorIs(t *testing.T, expected error, actual error) {
	t.Helper()
	if !errors.Is(actual, expected) {
		t.Errorf("Expected error %v, got %v", expected, actual)
	}
}

// mustWrite writes data and fails the test if it errors.
func mustWrite(t *testing.T, a storage.Adapter, path string, data []byte) {
	t.Helper()
	err := storage.WriteBytes(testContext(), a, path, data, storage.WriteOptions{})
	require.NoError(t, err, "Write should succeed")
}

// mustRead reads content and fails the test if it errors.
func mustRead(t *testing.T, a storage.Adapter, path string) []byte {
	t.Helper()
	data, err := storage.ReadAll(testContext(), a, path)
	require.NoError(t, err, "Read should succeed")
	return data
}

// mustStat stats path and fails the test if it errors.
func mustStat(t *testing.T, a storage.Adapter, path string) *storage.FileStat {
	t.Helper()
	stat, err := a.Stat(testContext(), path)
	require.NoError(t, err, "Stat should succeed")
	return stat
}

// assertExists checks existence of path.
func assertExists(t *testing.T, a storage.Adapter, path string, expected bool) {
	t.Helper()
	exists, err := a.Exists(testContext(), path)
	require.NoError(t, err, "Exists should not error")
	assert.Equal(t, expected, exists, "Existence mismatch for %q", path)
}

// assertContentEquals checks that path holds expected.
func assertContentEquals(t *testing.T, a storage.Adapter, path string, expected []byte) {
	t.Helper()
	actual := mustRead(t, a, path)
	assert.Equal(t, expected, actual, "Content data mismatch for %q", path)
}

// listPaths collects the sorted entry paths of a listing, trailing
// separators trimmed.
func listPaths(t *testing.T, a storage.Adapter, path string, deep bool) []string {
	t.Helper()
	stats, err := a.List(testContext(), path, deep).Collect()
	require.NoError(t, err, "List should succeed")

	paths := make([]string, 0, len(stats))
	for _, s := range stats {
		paths = append(paths, strings.TrimSuffix(s.Path(), "/"))
	}
	sort.Strings(paths)
	return paths
}

// readChunk reads up to n bytes from r.
func readChunk(t *testing.T, r io.Reader, n int) string {
	t.Helper()
	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		require.NoError(t, err)
	}
	return string(buf[:read])
}

// GenerateTestData creates deterministic test data of the given size.
func GenerateTestData(size int) []byte {
	data := make([]byte, size)
	for i := 0; i < size; i++ {
		data[i] = byte(i % 251)
	}
	return data
}

// readAllErr drains and closes rc.
func readAllErr(rc io.ReadCloser) ([]byte, error) {
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
