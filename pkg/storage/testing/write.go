package testing

import (
	"bytes"
	"io"
	"testing"

	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunWriteTests executes write and delete tests.
func (suite *AdapterTestSuite) RunWriteTests(t *testing.T) {
	t.Run("Write_Overwrite", suite.testWriteOverwrite)
	t.Run("Write_Empty", suite.testWriteEmpty)
	t.Run("Write_UnsizedStream", suite.testWriteUnsizedStream)
	t.Run("Write_Large", suite.testWriteLarge)
	t.Run("Write_ContentType", suite.testWriteContentType)
	t.Run("Delete_Success", suite.testDeleteSuccess)
	t.Run("Delete_Missing", suite.testDeleteMissing)
}

// ============================================================================
// Write Tests
// ============================================================================

func (suite *AdapterTestSuite) testWriteOverwrite(t *testing.T) {
	a := suite.NewAdapter(t)

	mustWrite(t, a, "file.txt", []byte("first version, long"))
	mustWrite(t, a, "file.txt", []byte("second"))
	assertContentEquals(t, a, "file.txt", []byte("second"))
}

func (suite *AdapterTestSuite) testWriteEmpty(t *testing.T) {
	a := suite.NewAdapter(t)

	mustWrite(t, a, "empty.bin", nil)
	assertExists(t, a, "empty.bin", true)
	assert.Equal(t, int64(0), mustStat(t, a, "empty.bin").Size())
}

func (suite *AdapterTestSuite) testWriteUnsizedStream(t *testing.T) {
	a := suite.NewAdapter(t)
	data := GenerateTestData(64 * 1024)

	// io.MultiReader hides the length from the adapter.
	reader := io.MultiReader(bytes.NewReader(data[:1000]), bytes.NewReader(data[1000:]))
	require.NoError(t, a.Write(testContext(), "stream.bin", reader, storage.WriteOptions{}))

	assertContentEquals(t, a, "stream.bin", data)
}

func (suite *AdapterTestSuite) testWriteLarge(t *testing.T) {
	if suite.SkipLarge || testing.Short() {
		t.Skip("large writes disabled")
	}
	a := suite.NewAdapter(t)
	data := GenerateTestData(11*1024*1024 + 17)

	mustWrite(t, a, "large.bin", data)

	got := mustRead(t, a, "large.bin")
	require.Equal(t, len(data), len(got))
	assert.True(t, bytes.Equal(data, got), "large content mismatch")
	assert.Equal(t, int64(len(data)), mustStat(t, a, "large.bin").Size())
}

func (suite *AdapterTestSuite) testWriteContentType(t *testing.T) {
	a := suite.NewAdapter(t)

	opts := storage.WriteOptions{ContentType: "application/json"}
	require.NoError(t, storage.WriteBytes(testContext(), a, "data.json", []byte(`{"a":1}`), opts))
	assert.Equal(t, "application/json", mustStat(t, a, "data.json").MimeType())
}

// ============================================================================
// Delete Tests
// ============================================================================

func (suite *AdapterTestSuite) testDeleteSuccess(t *testing.T) {
	a := suite.NewAdapter(t)

	mustWrite(t, a, "gone.txt", []byte("bye"))
	require.NoError(t, a.Delete(testContext(), "gone.txt"))
	assertExists(t, a, "gone.txt", false)
}

func (suite *AdapterTestSuite) testDeleteMissing(t *testing.T) {
	a := suite.NewAdapter(t)

	err := a.Delete(testContext(), "never-existed.txt")
	if suite.IdempotentDelete {
		assert.NoError(t, err)
		return
	}
	require.Error(t, err)
	AssertErrorIs(t, storage.ErrOperationFailed, err)
}
