package indexer

import (
	"math/big"
)

// IdentifierType says what a rule's identifier refers to.
type IdentifierType string

const (
	IdentifierTypeGroup      IdentifierType = "group"
	IdentifierTypeSubgraph   IdentifierType = "subgraph"
	IdentifierTypeDeployment IdentifierType = "deployment"
)

// DecisionBasis picks how the evaluator treats a rule.
type DecisionBasis string

const (
	BasisRules    DecisionBasis = "rules"
	BasisAlways   DecisionBasis = "always"
	BasisNever    DecisionBasis = "never"
	BasisOffchain DecisionBasis = "offchain"
)

// AllocationManagementMode controls how allocation changes are executed.
type AllocationManagementMode string

const (
	// ManagementAuto executes allocation changes directly on chain.
	ManagementAuto AllocationManagementMode = "auto"
	// ManagementManual never executes allocation changes; the operator acts
	// through the actions queue exclusively.
	ManagementManual AllocationManagementMode = "manual"
	// ManagementOversight queues proposed changes for operator approval
	// instead of executing them.
	ManagementOversight AllocationManagementMode = "oversight"
)

// GlobalIdentifier is the identifier of the fallback rule of a network.
const GlobalIdentifier = "global"

// IndexingRule is an operator-authored policy row. Threshold fields are nil
// when unset; unset fields inherit from the global rule when rules are read
// in merged form.
type IndexingRule struct {
	Identifier              string                   `json:"identifier"`
	IdentifierType          IdentifierType           `json:"identifierType"`
	ProtocolNetwork         string                   `json:"protocolNetwork"`
	AllocationAmount        *big.Int                 `json:"allocationAmount"`
	ParallelAllocations     int                      `json:"parallelAllocations"`
	MaxAllocationPercentage float64                  `json:"maxAllocationPercentage"`
	MinSignal               *big.Int                 `json:"minSignal"`
	MaxSignal               *big.Int                 `json:"maxSignal"`
	MinStake                *big.Int                 `json:"minStake"`
	MinAverageQueryFees     *big.Int                 `json:"minAverageQueryFees"`
	DecisionBasis           DecisionBasis            `json:"decisionBasis"`
	AllocationLifetime      int64                    `json:"allocationLifetime"`
	AutoRenewal             *bool                    `json:"autoRenewal"`
	RequireSupported        *bool                    `json:"requireSupported"`
	AllocationManagement    AllocationManagementMode `json:"allocationManagement,omitempty"`
}

// IsGlobal reports whether this is a network's fallback rule.
func (r *IndexingRule) IsGlobal() bool {
	return r.Identifier == GlobalIdentifier && r.IdentifierType == IdentifierTypeGroup
}

// Deployment parses the identifier as a deployment id. The second return is
// false for group rules and for unparseable identifiers.
func (r *IndexingRule) Deployment() (SubgraphDeploymentID, bool) {
	if r.IdentifierType == IdentifierTypeGroup {
		return SubgraphDeploymentID{}, false
	}
	id, err := NewSubgraphDeploymentID(r.Identifier)
	if err != nil {
		return SubgraphDeploymentID{}, false
	}
	return id, true
}

// SupportRequired reports whether the rule rejects deployments that are
// denied or indexed on an unsupported chain. Defaults to true when unset.
func (r *IndexingRule) SupportRequired() bool {
	if r.RequireSupported == nil {
		return true
	}
	return *r.RequireSupported
}

// RenewsAutomatically reports whether expired allocations are replaced with
// fresh ones. Defaults to true when unset.
func (r *IndexingRule) RenewsAutomatically() bool {
	if r.AutoRenewal == nil {
		return true
	}
	return *r.AutoRenewal
}

// DesiredLifetime returns the allocation lifetime in epochs, falling back
// to one epoch less than the protocol maximum.
func (r *IndexingRule) DesiredLifetime(maxAllocationEpochs int64) int64 {
	if r.AllocationLifetime > 0 {
		return r.AllocationLifetime
	}
	lifetime := maxAllocationEpochs - 1
	if lifetime < 1 {
		lifetime = 1
	}
	return lifetime
}

// MergedWith fills the rule's unset fields from the global rule, returning
// a copy. The receiver is not modified.
func (r *IndexingRule) MergedWith(global *IndexingRule) *IndexingRule {
	merged := *r
	if global == nil || r.IsGlobal() {
		return &merged
	}
	if merged.AllocationAmount == nil {
		merged.AllocationAmount = global.AllocationAmount
	}
	if merged.ParallelAllocations == 0 {
		merged.ParallelAllocations = global.ParallelAllocations
	}
	if merged.MaxAllocationPercentage == 0 {
		merged.MaxAllocationPercentage = global.MaxAllocationPercentage
	}
	if merged.MinSignal == nil {
		merged.MinSignal = global.MinSignal
	}
	if merged.MaxSignal == nil {
		merged.MaxSignal = global.MaxSignal
	}
	if merged.MinStake == nil {
		merged.MinStake = global.MinStake
	}
	if merged.MinAverageQueryFees == nil {
		merged.MinAverageQueryFees = global.MinAverageQueryFees
	}
	if merged.DecisionBasis == "" {
		merged.DecisionBasis = global.DecisionBasis
	}
	if merged.AllocationLifetime == 0 {
		merged.AllocationLifetime = global.AllocationLifetime
	}
	if merged.AutoRenewal == nil {
		merged.AutoRenewal = global.AutoRenewal
	}
	if merged.RequireSupported == nil {
		merged.RequireSupported = global.RequireSupported
	}
	return &merged
}

// DefaultGlobalRule is the fallback rule inserted on first start of a
// network: allocate the configured default amount, one allocation at a
// time, only to supported deployments that pass the economic thresholds.
func DefaultGlobalRule(protocolNetwork string, allocationAmount *big.Int) *IndexingRule {
	requireSupported := true
	return &IndexingRule{
		Identifier:          GlobalIdentifier,
		IdentifierType:      IdentifierTypeGroup,
		ProtocolNetwork:     protocolNetwork,
		AllocationAmount:    allocationAmount,
		ParallelAllocations: 1,
		DecisionBasis:       BasisRules,
		RequireSupported:    &requireSupported,
	}
}
