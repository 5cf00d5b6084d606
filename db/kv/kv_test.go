package kv

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/shared/testutil/assert"
	"github.com/graphops/indexer-agent/shared/testutil/require"
)

// setupDB instantiates and returns a store backed by a throwaway directory.
func setupDB(t testing.TB) *Store {
	p := t.TempDir()
	db, err := NewKVStore(p, &Config{DefaultNetwork: "eip155:1"})
	require.NoError(t, err, "Failed to instantiate DB")
	t.Cleanup(func() {
		require.NoError(t, db.Close(), "Failed to close database")
		require.NoError(t, db.ClearDB(), "Failed to clear database")
	})
	return db
}

func testDeploymentID(t testing.TB, fill byte) indexer.SubgraphDeploymentID {
	t.Helper()
	var raw [32]byte
	for i := range raw {
		raw[i] = fill
	}
	id, err := indexer.NewSubgraphDeploymentID(indexer.SubgraphDeploymentID(raw).Hex())
	require.NoError(t, err)
	return id
}

func TestNewKVStore_CreatesDatabaseFile(t *testing.T) {
	p := t.TempDir()
	db, err := NewKVStore(p, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(p, DatabaseFileName), db.DatabasePath())

	size, err := db.Size()
	require.NoError(t, err)
	if size <= 0 {
		t.Errorf("Expected a non-empty database file, got size %d", size)
	}
	require.NoError(t, db.Close())
}

func TestNewKVStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	p := t.TempDir()
	db, err := NewKVStore(p, nil)
	require.NoError(t, err)
	_, err = db.QueueAction(ctx, indexer.NewAllocateAction(testDeploymentID(t, 1), big.NewInt(100), "eip155:1", "test"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewKVStore(p, nil)
	require.NoError(t, err)
	actions, err := db.Actions(ctx, "eip155:1")
	require.NoError(t, err)
	assert.Equal(t, 1, len(actions))
	require.NoError(t, db.Close())
}

func TestClearDB(t *testing.T) {
	p := t.TempDir()
	db, err := NewKVStore(p, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.ClearDB())
	// Clearing an already removed file is a no-op.
	require.NoError(t, db.ClearDB())
}
