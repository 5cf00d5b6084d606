package indexer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AllocationState mirrors the staking contract's allocation state enum.
type AllocationState int

const (
	AllocationNull AllocationState = iota
	AllocationActive
	AllocationClosed
	AllocationFinalized
	AllocationClaimed
)

// String returns the contract-level state name.
func (s AllocationState) String() string {
	switch s {
	case AllocationNull:
		return "Null"
	case AllocationActive:
		return "Active"
	case AllocationClosed:
		return "Closed"
	case AllocationFinalized:
		return "Finalized"
	case AllocationClaimed:
		return "Claimed"
	default:
		return "Unknown"
	}
}

// Allocation is the on-chain record of tokens staked against a deployment
// by an indexer. The agent only ever opens and closes allocations; the
// later transitions are observed, never written.
type Allocation struct {
	ID                 common.Address
	Indexer            common.Address
	SubgraphDeployment SubgraphDeploymentID
	AllocatedTokens    *big.Int
	CreatedAtEpoch     int64
	CreatedAtBlockHash common.Hash
	ClosedAtEpoch      int64
	ClosedAtBlockHash  common.Hash
	POI                *common.Hash
	QueryFeesCollected *big.Int
	ProtocolNetwork    string
}

// Expired reports whether the allocation has outlived the desired lifetime
// at the given epoch. The boundary epoch itself counts as expired.
func (a *Allocation) Expired(currentEpoch, desiredLifetime int64) bool {
	return currentEpoch >= a.CreatedAtEpoch+desiredLifetime
}

// ActiveAllocationsForDeployment filters allocations by deployment id.
func ActiveAllocationsForDeployment(allocations []*Allocation, deployment SubgraphDeploymentID) []*Allocation {
	var matched []*Allocation
	for _, a := range allocations {
		if a.SubgraphDeployment == deployment {
			matched = append(matched, a)
		}
	}
	return matched
}

// UniqueDeployments returns the deduplicated set of deployments the given
// allocations point at.
func UniqueDeployments(allocations []*Allocation) []SubgraphDeploymentID {
	seen := make(map[SubgraphDeploymentID]bool)
	var ids []SubgraphDeploymentID
	for _, a := range allocations {
		if !seen[a.SubgraphDeployment] {
			seen[a.SubgraphDeployment] = true
			ids = append(ids, a.SubgraphDeployment)
		}
	}
	return ids
}
