package testing

import (
	"testing"

	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunDirectoryTests executes directory creation and deletion tests.
func (suite *AdapterTestSuite) RunDirectoryTests(t *testing.T) {
	t.Run("CreateDirectory", suite.testCreateDirectory)
	t.Run("CreateDirectory_Existing", suite.testCreateDirectoryExisting)
	t.Run("DeleteDirectory", suite.testDeleteDirectory)
}

func (suite *AdapterTestSuite) testCreateDirectory(t *testing.T) {
	a := suite.NewAdapter(t)

	require.NoError(t, a.CreateDirectory(testContext(), "x/y/z", storage.WriteOptions{}))
	assertExists(t, a, "x/y/z", true)
	assert.True(t, mustStat(t, a, "x/y/z").IsDir())
}

func (suite *AdapterTestSuite) testCreateDirectoryExisting(t *testing.T) {
	a := suite.NewAdapter(t)

	require.NoError(t, a.CreateDirectory(testContext(), "again", storage.WriteOptions{}))
	require.NoError(t, a.CreateDirectory(testContext(), "again", storage.WriteOptions{}))
	assertExists(t, a, "again", true)
}

func (suite *AdapterTestSuite) testDeleteDirectory(t *testing.T) {
	a := suite.NewAdapter(t)
	suite.seedTree(t, a)

	require.NoError(t, a.DeleteDirectory(testContext(), "tree"))

	assertExists(t, a, "tree/a.txt", false)
	assertExists(t, a, "tree/sub/c.txt", false)
	assertExists(t, a, "tree/sub/deeper/d.txt", false)
	assertExists(t, a, "other.txt", true)
}
