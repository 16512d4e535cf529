package testing

import (
	"context"
	"testing"

	"github.com/marmos91/omnifs/pkg/storage"
)

// AdapterTestSuite is a comprehensive test suite for storage.Adapter
// implementations. It tests the interface contract, not implementation
// details, making it reusable across local, S3, GCS-like and KV adapters.
//
// Usage:
//
//	func TestMyAdapter(t *testing.T) {
//	    suite := &storagetesting.AdapterTestSuite{
//	        NewAdapter: func(t *testing.T) storage.Adapter {
//	            return myadapter.New(...)
//	        },
//	        IdempotentDelete: true,
//	    }
//	    suite.Run(t)
//	}
type AdapterTestSuite struct {
	// NewAdapter creates a fresh, empty adapter for each test. This ensures
	// test isolation.
	NewAdapter func(t *testing.T) storage.Adapter

	// IdempotentDelete is true for object stores, where deleting a missing
	// key is a silent no-op. Local disks report an error instead.
	IdempotentDelete bool

	// SkipLarge disables the multipart-sized round trip.
	SkipLarge bool
}

// Run executes all tests in the suite.
func (suite *AdapterTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("WriteOperations", suite.RunWriteTests)
	t.Run("ListOperations", suite.RunListTests)
	t.Run("DirectoryOperations", suite.RunDirectoryTests)
	t.Run("CopyMoveOperations", suite.RunCopyMoveTests)
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}
