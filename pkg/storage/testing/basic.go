package testing

import (
	"testing"

	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBasicTests executes read/stat/exists tests.
func (suite *AdapterTestSuite) RunBasicTests(t *testing.T) {
	t.Run("WriteRead", suite.testWriteRead)
	t.Run("ReadInChunks", suite.testReadInChunks)
	t.Run("Read_NotFound", suite.testReadNotFound)
	t.Run("Read_Directory", suite.testReadDirectory)
	t.Run("Exists", suite.testExists)
	t.Run("Stat_File", suite.testStatFile)
	t.Run("Stat_NotFound", suite.testStatNotFound)
	t.Run("Stat_Directory", suite.testStatDirectory)
	t.Run("Traversal", suite.testTraversal)
}

// ============================================================================
// Read Tests
// ============================================================================

func (suite *AdapterTestSuite) testWriteRead(t *testing.T) {
	a := suite.NewAdapter(t)

	mustWrite(t, a, "hello.txt", []byte("Hello, World!"))
	assertContentEquals(t, a, "hello.txt", []byte("Hello, World!"))
	assertContentEquals(t, a, "/./hello.txt", []byte("Hello, World!"))
}

func (suite *AdapterTestSuite) testReadInChunks(t *testing.T) {
	a := suite.NewAdapter(t)
	mustWrite(t, a, "test.txt", []byte("Test Content"))

	rc, err := a.Read(testContext(), "test.txt")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	assert.Equal(t, "Test", readChunk(t, rc, 4))
	assert.Equal(t, " Content", readChunk(t, rc, 100))
}

func (suite *AdapterTestSuite) testReadNotFound(t *testing.T) {
	a := suite.NewAdapter(t)

	rc, err := a.Read(testContext(), "missing.txt")
	if err == nil {
		// Object stores may defer the GET until the first read.
		_, err = readAllErr(rc)
	}
	require.Error(t, err)
}

func (suite *AdapterTestSuite) testReadDirectory(t *testing.T) {
	a := suite.NewAdapter(t)
	require.NoError(t, a.CreateDirectory(testContext(), "dir", storage.WriteOptions{}))

	_, err := a.Read(testContext(), "dir/")
	require.Error(t, err)
	AssertErrorIs(t, storage.ErrOperationFailed, err)
}

func (suite *AdapterTestSuite) testExists(t *testing.T) {
	a := suite.NewAdapter(t)

	assertExists(t, a, "file.txt", false)
	mustWrite(t, a, "file.txt", []byte("x"))
	assertExists(t, a, "file.txt", true)

	require.NoError(t, a.CreateDirectory(testContext(), "some/dir", storage.WriteOptions{}))
	assertExists(t, a, "some/dir", true)
}

// ============================================================================
// Stat Tests
// ============================================================================

func (suite *AdapterTestSuite) testStatFile(t *testing.T) {
	a := suite.NewAdapter(t)
	mustWrite(t, a, "docs/readme.txt", []byte("twelve bytes"))

	stat := mustStat(t, a, "docs/readme.txt")
	assert.Equal(t, int64(12), stat.Size())
	assert.False(t, stat.IsDir())
	assert.Equal(t, "docs/readme.txt", stat.Path())
	assert.NotEqual(t, storage.DirectoryMimeType, stat.MimeType())
	assert.False(t, stat.LastModified().IsZero())
}

func (suite *AdapterTestSuite) testStatNotFound(t *testing.T) {
	a := suite.NewAdapter(t)

	stat, err := a.Stat(testContext(), "missing.txt")
	require.Error(t, err)
	assert.Nil(t, stat)
	AssertErrorIs(t, storage.ErrNotFound, err)
	assertExists(t, a, "missing.txt", false)
}

func (suite *AdapterTestSuite) testStatDirectory(t *testing.T) {
	a := suite.NewAdapter(t)
	require.NoError(t, a.CreateDirectory(testContext(), "photos", storage.WriteOptions{}))

	stat := mustStat(t, a, "photos")
	assert.Equal(t, int64(-1), stat.Size())
	assert.True(t, stat.IsDir())
	assert.Equal(t, storage.DirectoryMimeType, stat.MimeType())
}

func (suite *AdapterTestSuite) testTraversal(t *testing.T) {
	a := suite.NewAdapter(t)

	_, err := a.Stat(testContext(), "../outside.txt")
	AssertErrorIs(t, storage.ErrInvalidPath, err)

	err = storage.WriteBytes(testContext(), a, "a/../../x", []byte("x"), storage.WriteOptions{})
	AssertErrorIs(t, storage.ErrInvalidPath, err)
}
