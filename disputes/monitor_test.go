package disputes

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/shared/testutil/assert"
	"github.com/graphops/indexer-agent/shared/testutil/require"
)

func strPtr(s string) *string { return &s }

func hashPtr(fill byte) *common.Hash {
	var h common.Hash
	for i := range h {
		h[i] = fill
	}
	return &h
}

func TestJudgeProof(t *testing.T) {
	poi := hashPtr(0xaa)
	matching := strPtr(poi.Hex())
	other := strPtr(hashPtr(0xbb).Hex())

	tests := []struct {
		name              string
		poi               *common.Hash
		reference         *string
		previousReference *string
		want              indexer.DisputeStatus
	}{
		{
			name:              "matches current reference",
			poi:               poi,
			reference:         matching,
			previousReference: other,
			want:              indexer.DisputeStatusValid,
		},
		{
			name:              "matches previous reference",
			poi:               poi,
			reference:         other,
			previousReference: matching,
			want:              indexer.DisputeStatusValid,
		},
		{
			name:              "matches neither reference",
			poi:               poi,
			reference:         other,
			previousReference: other,
			want:              indexer.DisputeStatusPotential,
		},
		{
			name:              "no references available",
			poi:               poi,
			reference:         nil,
			previousReference: nil,
			want:              indexer.DisputeStatusReferenceUnavailable,
		},
		{
			name:              "mismatch with one reference missing stays inconclusive",
			poi:               poi,
			reference:         other,
			previousReference: nil,
			want:              indexer.DisputeStatusReferenceUnavailable,
		},
		{
			name:              "nil poi with both references is disputable",
			poi:               nil,
			reference:         other,
			previousReference: other,
			want:              indexer.DisputeStatusPotential,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JudgeProof(tt.poi, tt.reference, tt.previousReference))
		})
	}
}

func TestGroupIntoPools(t *testing.T) {
	var depA, depB indexer.SubgraphDeploymentID
	depA[0], depB[0] = 1, 2

	allocations := []*indexer.Allocation{
		{ID: common.BytesToAddress([]byte{1}), SubgraphDeployment: depA, ClosedAtEpoch: 10},
		{ID: common.BytesToAddress([]byte{2}), SubgraphDeployment: depA, ClosedAtEpoch: 10},
		{ID: common.BytesToAddress([]byte{3}), SubgraphDeployment: depA, ClosedAtEpoch: 11},
		{ID: common.BytesToAddress([]byte{4}), SubgraphDeployment: depB, ClosedAtEpoch: 10},
	}

	pools := groupIntoPools(allocations)
	require.Equal(t, 3, len(pools))
	assert.Equal(t, 2, len(pools[0].allocations), "same deployment and epoch share a pool")
	assert.Equal(t, int64(10), pools[0].closedEpoch)
	assert.Equal(t, 1, len(pools[1].allocations))
	assert.Equal(t, 1, len(pools[2].allocations))
}

func TestHasDisputablePOI(t *testing.T) {
	var zero common.Hash
	tests := []struct {
		name string
		poi  *common.Hash
		want bool
	}{
		{name: "real proof", poi: hashPtr(0xaa), want: true},
		{name: "zero proof", poi: &zero, want: false},
		{name: "no proof", poi: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allocation := &indexer.Allocation{ID: common.BytesToAddress([]byte{1}), POI: tt.poi}
			assert.Equal(t, tt.want, hasDisputablePOI(allocation))
		})
	}
}

func TestNormalizeID(t *testing.T) {
	// The subgraph reports lowercase ids, the store may hold checksummed
	// ones; both must collapse to the same key.
	lower := "0x9abcdef0123456789abcdef0123456789abcdef0"
	assert.Equal(t, normalizeID(lower), normalizeID(common.HexToAddress(lower).Hex()))
}
