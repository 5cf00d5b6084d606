package kv

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/shared/errs"
	"github.com/graphops/indexer-agent/shared/testutil/assert"
	"github.com/graphops/indexer-agent/shared/testutil/require"
)

func testSummary(t testing.TB, lastByte string, network string) *indexer.AllocationSummary {
	t.Helper()
	return &indexer.AllocationSummary{
		AllocationID:    "0x" + strings.Repeat("ef", 19) + lastByte,
		DeploymentID:    testDeploymentID(t, 5),
		Amount:          big.NewInt(10000),
		CreatedAt:       1700000000,
		CreatedAtEpoch:  500,
		ProtocolNetwork: network,
	}
}

func TestAllocationSummaries_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	require.NoError(t, db.StoreAllocationSummary(ctx, testSummary(t, "01", "eip155:1")))
	require.NoError(t, db.StoreAllocationSummary(ctx, testSummary(t, "02", "eip155:1")))
	require.NoError(t, db.StoreAllocationSummary(ctx, testSummary(t, "03", "eip155:100")))

	summaries, err := db.AllocationSummaries(ctx, "eip155:1")
	require.NoError(t, err)
	require.Equal(t, 2, len(summaries))
	assert.Equal(t, true, summaries[0].Open())
	assert.Equal(t, int64(500), summaries[0].CreatedAtEpoch)

	gnosis, err := db.AllocationSummaries(ctx, "eip155:100")
	require.NoError(t, err)
	assert.Equal(t, 1, len(gnosis))
}

func TestStoreAllocationSummary_Validates(t *testing.T) {
	db := setupDB(t)
	bad := testSummary(t, "01", "eip155:1")
	bad.AllocationID = "not-an-address"
	err := db.StoreAllocationSummary(context.Background(), bad)
	require.NotNil(t, err)
	assert.Equal(t, true, errs.IsCode(err, errs.IE002))
}

func TestCloseAllocationSummary(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	summary := testSummary(t, "01", "eip155:1")
	require.NoError(t, db.StoreAllocationSummary(ctx, summary))

	closed, err := db.CloseAllocationSummary(ctx, "eip155:1", summary.AllocationID, 510)
	require.NoError(t, err)
	assert.Equal(t, int64(510), closed.ClosedAtEpoch)
	assert.Equal(t, false, closed.Open())
	if closed.ClosedAt == 0 {
		t.Error("Expected a close timestamp")
	}

	stored, err := db.AllocationSummaries(ctx, "eip155:1")
	require.NoError(t, err)
	require.Equal(t, 1, len(stored))
	assert.Equal(t, int64(510), stored[0].ClosedAtEpoch)
}

func TestCloseAllocationSummary_Missing(t *testing.T) {
	db := setupDB(t)
	_, err := db.CloseAllocationSummary(context.Background(), "eip155:1", "0x"+strings.Repeat("11", 20), 510)
	require.NotNil(t, err)
	assert.Equal(t, true, errs.IsCode(err, errs.IE045))
	assert.ErrorContains(t, "no summary for allocation", err)
}
