package testing

import (
	"testing"

	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/stretchr/testify/require"
)

// RunCopyMoveTests executes copy and move tests.
func (suite *AdapterTestSuite) RunCopyMoveTests(t *testing.T) {
	t.Run("Copy", suite.testCopy)
	t.Run("Copy_SourceMissing", suite.testCopySourceMissing)
	t.Run("Copy_OverwriteGuard", suite.testCopyOverwriteGuard)
	t.Run("Move", suite.testMove)
	t.Run("Move_OverwriteGuard", suite.testMoveOverwriteGuard)
}

func (suite *AdapterTestSuite) testCopy(t *testing.T) {
	a := suite.NewAdapter(t)
	mustWrite(t, a, "src.txt", []byte("payload"))

	require.NoError(t, a.Copy(testContext(), "src.txt", "nested/dir/dst.txt", storage.WriteOptions{}))

	assertContentEquals(t, a, "src.txt", []byte("payload"))
	assertContentEquals(t, a, "nested/dir/dst.txt", []byte("payload"))
}

func (suite *AdapterTestSuite) testCopySourceMissing(t *testing.T) {
	a := suite.NewAdapter(t)

	err := a.Copy(testContext(), "nope.txt", "dst.txt", storage.WriteOptions{})
	require.Error(t, err)
	AssertErrorIs(t, storage.ErrOperationFailed, err)
	assertExists(t, a, "dst.txt", false)
}

func (suite *AdapterTestSuite) testCopyOverwriteGuard(t *testing.T) {
	a := suite.NewAdapter(t)
	mustWrite(t, a, "src.txt", []byte("new"))
	mustWrite(t, a, "dst.txt", []byte("old"))

	err := a.Copy(testContext(), "src.txt", "dst.txt", storage.WriteOptions{})
	require.Error(t, err)
	AssertErrorIs(t, storage.ErrOperationFailed, err)
	assertContentEquals(t, a, "dst.txt", []byte("old"))

	require.NoError(t, a.Copy(testContext(), "src.txt", "dst.txt", storage.WriteOptions{Overwrite: true}))
	assertContentEquals(t, a, "dst.txt", []byte("new"))
}

func (suite *AdapterTestSuite) testMove(t *testing.T) {
	a := suite.NewAdapter(t)
	mustWrite(t, a, "from.txt", []byte("moving"))

	require.NoError(t, a.Move(testContext(), "from.txt", "to/here.txt", storage.WriteOptions{}))

	assertExists(t, a, "from.txt", false)
	assertContentEquals(t, a, "to/here.txt", []byte("moving"))
}

func (suite *AdapterTestSuite) testMoveOverwriteGuard(t *testing.T) {
	a := suite.NewAdapter(t)
	mustWrite(t, a, "from.txt", []byte("new"))
	mustWrite(t, a, "to.txt", []byte("old"))

	err := a.Move(testContext(), "from.txt", "to.txt", storage.WriteOptions{})
	AssertErrorIs(t, storage.ErrOperationFailed, err)
	assertExists(t, a, "from.txt", true)

	require.NoError(t, a.Move(testContext(), "from.txt", "to.txt", storage.WriteOptions{Overwrite: true}))
	assertExists(t, a, "from.txt", false)
	assertContentEquals(t, a, "to.txt", []byte("new"))
}
