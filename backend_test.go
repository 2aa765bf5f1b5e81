package kvfs_test

import (
	"testing"

	"github.com/absfs/kvfs"
	"github.com/absfs/kvfs/backend/backendtest"
)

func TestMemoryBackend(t *testing.T) {
	backendtest.Run(t, kvfs.NewMemoryBackend())
}
