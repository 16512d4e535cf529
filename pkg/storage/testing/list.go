package testing

import (
	"strings"
	"testing"

	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunListTests executes listing tests.
func (suite *AdapterTestSuite) RunListTests(t *testing.T) {
	t.Run("List_Shallow", suite.testListShallow)
	t.Run("List_Deep", suite.testListDeep)
	t.Run("List_SinglePass", suite.testListSinglePass)
}

func (suite *AdapterTestSuite) seedTree(t *testing.T, a storage.Adapter) {
	t.Helper()
	mustWrite(t, a, "tree/a.txt", []byte("a"))
	mustWrite(t, a, "tree/b.txt", []byte("bb"))
	mustWrite(t, a, "tree/sub/c.txt", []byte("ccc"))
	mustWrite(t, a, "tree/sub/deeper/d.txt", []byte("dddd"))
	mustWrite(t, a, "other.txt", []byte("o"))
}

func (suite *AdapterTestSuite) testListShallow(t *testing.T) {
	a := suite.NewAdapter(t)
	suite.seedTree(t, a)

	paths := listPaths(t, a, "tree", false)
	assert.Equal(t, []string{"a.txt", "b.txt", "sub"}, paths)
	for _, p := range paths {
		assert.False(t, strings.Contains(p, "/"), "shallow listing returned nested path %q", p)
	}

	stats, err := a.List(testContext(), "tree", false).Collect()
	require.NoError(t, err)
	for _, s := range stats {
		if strings.TrimSuffix(s.Path(), "/") == "sub" {
			assert.True(t, s.IsDir())
			assert.Equal(t, storage.DirectoryMimeType, s.MimeType())
		}
	}
}

func (suite *AdapterTestSuite) testListDeep(t *testing.T) {
	a := suite.NewAdapter(t)
	suite.seedTree(t, a)

	paths := listPaths(t, a, "tree", true)
	for _, want := range []string{"a.txt", "b.txt", "sub/c.txt", "sub/deeper/d.txt"} {
		assert.Contains(t, paths, want)
	}
	assert.NotContains(t, paths, "other.txt")
}

func (suite *AdapterTestSuite) testListSinglePass(t *testing.T) {
	a := suite.NewAdapter(t)
	suite.seedTree(t, a)

	listing := a.List(testContext(), "tree", false)
	first, err := listing.Collect()
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := listing.Collect()
	require.NoError(t, err)
	assert.Empty(t, second)

	fresh, err := a.List(testContext(), "tree", false).Collect()
	require.NoError(t, err)
	assert.Len(t, fresh, len(first))
}
