package indexer

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/graphops/indexer-agent/shared/errs"
)

// AllocationSummary is the lifecycle record the agent keeps for every
// allocation it has seen, from creation through closure. Summaries back
// the query-fee accounting surface: an open summary marks an allocation
// whose receipts are still being collected, a closed one carries the
// epoch and fee totals observed at close time.
type AllocationSummary struct {
	AllocationID    string               `json:"allocationID"`
	DeploymentID    SubgraphDeploymentID `json:"deploymentID"`
	Amount          *big.Int             `json:"amount"`
	CreatedAt       int64                `json:"createdAt"`
	CreatedAtEpoch  int64                `json:"createdAtEpoch"`
	ClosedAt        int64                `json:"closedAt"`
	ClosedAtEpoch   int64                `json:"closedAtEpoch"`
	CollectedFees   *big.Int             `json:"collectedFees"`
	WithdrawnFees   *big.Int             `json:"withdrawnFees"`
	ProtocolNetwork string               `json:"protocolNetwork"`
}

// Open reports whether the allocation behind this summary has not been
// closed yet.
func (a *AllocationSummary) Open() bool {
	return a.ClosedAtEpoch == 0
}

// Validate checks the fields a summary must carry before it can be stored.
func (a *AllocationSummary) Validate() error {
	if !common.IsHexAddress(a.AllocationID) {
		return errs.Wrap(errors.Errorf("allocation id %q is not an Ethereum address", a.AllocationID), errs.IE002)
	}
	if a.ProtocolNetwork == "" {
		return errors.New("allocation summary is missing a protocol network")
	}
	return nil
}

// Key returns the storage key for this summary, the lowercased
// allocation address.
func (a *AllocationSummary) Key() []byte {
	return []byte(strings.ToLower(a.AllocationID))
}
