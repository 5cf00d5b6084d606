package indexer

import (
	"math/big"
	"strings"
	"testing"

	"github.com/graphops/indexer-agent/shared/testutil/assert"
	"github.com/graphops/indexer-agent/shared/testutil/require"
)

func TestIndexingRule_MergedWith(t *testing.T) {
	autoRenewal := false
	global := DefaultGlobalRule("eip155:1", big.NewInt(2300))
	global.MinStake = big.NewInt(1000)
	global.AutoRenewal = &autoRenewal

	rule := &IndexingRule{
		Identifier:       "0x" + strings.Repeat("ab", 32),
		IdentifierType:   IdentifierTypeDeployment,
		ProtocolNetwork:  "eip155:1",
		AllocationAmount: big.NewInt(3000),
	}
	merged := rule.MergedWith(global)

	// Explicit fields win, unset fields inherit from the global rule.
	assert.Equal(t, int64(3000), merged.AllocationAmount.Int64())
	assert.Equal(t, int64(1000), merged.MinStake.Int64())
	assert.Equal(t, 1, merged.ParallelAllocations)
	assert.Equal(t, BasisRules, merged.DecisionBasis)
	assert.Equal(t, false, merged.RenewsAutomatically())
	assert.Equal(t, true, merged.SupportRequired())

	// The receiver stays untouched.
	assert.Equal(t, true, rule.MinStake == nil)
	assert.Equal(t, DecisionBasis(""), rule.DecisionBasis)
}

func TestIndexingRule_GlobalNeverInherits(t *testing.T) {
	global := DefaultGlobalRule("eip155:1", big.NewInt(2300))
	other := DefaultGlobalRule("eip155:1", big.NewInt(9999))
	other.ParallelAllocations = 7

	merged := global.MergedWith(other)
	assert.Equal(t, int64(2300), merged.AllocationAmount.Int64())
	assert.Equal(t, 1, merged.ParallelAllocations)
}

func TestIndexingRule_DesiredLifetime(t *testing.T) {
	tests := []struct {
		name                string
		allocationLifetime  int64
		maxAllocationEpochs int64
		want                int64
	}{
		{name: "explicit lifetime wins", allocationLifetime: 10, maxAllocationEpochs: 28, want: 10},
		{name: "defaults to one below protocol max", allocationLifetime: 0, maxAllocationEpochs: 28, want: 27},
		{name: "protocol max of one still yields one", allocationLifetime: 0, maxAllocationEpochs: 1, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &IndexingRule{AllocationLifetime: tt.allocationLifetime}
			assert.Equal(t, tt.want, rule.DesiredLifetime(tt.maxAllocationEpochs))
		})
	}
}

func TestIndexingRule_Deployment(t *testing.T) {
	hexForm := "0x" + strings.Repeat("ab", 32)
	rule := &IndexingRule{Identifier: hexForm, IdentifierType: IdentifierTypeDeployment}
	id, ok := rule.Deployment()
	require.Equal(t, true, ok)
	assert.Equal(t, hexForm, id.Hex())

	// The IPFS hash spelling identifies the same deployment.
	rule = &IndexingRule{Identifier: id.IPFSHash(), IdentifierType: IdentifierTypeDeployment}
	fromHash, ok := rule.Deployment()
	require.Equal(t, true, ok)
	assert.Equal(t, id, fromHash)

	global := DefaultGlobalRule("eip155:1", big.NewInt(1))
	_, ok = global.Deployment()
	assert.Equal(t, false, ok)
}

func TestDefaultGlobalRule(t *testing.T) {
	rule := DefaultGlobalRule("eip155:5", big.NewInt(100))
	assert.Equal(t, true, rule.IsGlobal())
	assert.Equal(t, GlobalIdentifier, rule.Identifier)
	assert.Equal(t, "eip155:5", rule.ProtocolNetwork)
	assert.Equal(t, 1, rule.ParallelAllocations)
	assert.Equal(t, BasisRules, rule.DecisionBasis)
	assert.Equal(t, true, rule.SupportRequired())
	assert.Equal(t, true, rule.RenewsAutomatically())
}
