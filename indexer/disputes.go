package indexer

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/graphops/indexer-agent/shared/errs"
)

// DisputeStatus classifies a stored POI dispute.
type DisputeStatus string

const (
	// DisputeStatusPotential marks a closed allocation whose POI differs
	// from both reference proofs.
	DisputeStatusPotential DisputeStatus = "potential"
	// DisputeStatusValid marks a closed allocation whose POI matches a
	// reference proof.
	DisputeStatusValid DisputeStatus = "valid"
	// DisputeStatusReferenceUnavailable marks an allocation for which no
	// reference proof could be computed.
	DisputeStatusReferenceUnavailable DisputeStatus = "reference_unavailable"
)

// POIDispute records a closed allocation whose proof of indexing was checked
// against locally computed reference proofs. Disputes are written once by the
// dispute monitor and read by operators out-of-band.
//
// AllocationID and AllocationIndexer stay strings so that malformed records
// arriving over the management API can be validated at the storage boundary.
type POIDispute struct {
	AllocationID                  string               `json:"allocationID"`
	SubgraphDeploymentID          SubgraphDeploymentID `json:"subgraphDeploymentID"`
	AllocationIndexer             string               `json:"allocationIndexer"`
	AllocationAmount              *big.Int             `json:"allocationAmount"`
	AllocationProof               string               `json:"allocationProof"`
	ClosedEpoch                   int64                `json:"closedEpoch"`
	ClosedEpochStartBlockHash     string               `json:"closedEpochStartBlockHash"`
	ClosedEpochStartBlockNumber   int64                `json:"closedEpochStartBlockNumber"`
	ClosedEpochReferenceProof     *string              `json:"closedEpochReferenceProof"`
	PreviousEpochStartBlockHash   string               `json:"previousEpochStartBlockHash"`
	PreviousEpochStartBlockNumber int64                `json:"previousEpochStartBlockNumber"`
	PreviousEpochReferenceProof   *string              `json:"previousEpochReferenceProof"`
	Status                        DisputeStatus        `json:"status"`
	ProtocolNetwork               string               `json:"protocolNetwork"`
}

// Validate checks the address-typed fields of the record.
func (d *POIDispute) Validate() error {
	if !common.IsHexAddress(d.AllocationID) {
		return errs.Wrap(errors.Errorf("allocation id %q", d.AllocationID), errs.IE002)
	}
	if !common.IsHexAddress(d.AllocationIndexer) {
		return errs.Wrap(errors.Errorf("allocation indexer %q", d.AllocationIndexer), errs.IE002)
	}
	return nil
}

// Key returns the storage key of the dispute. Allocation ids are
// case-insensitive hex, so keys are lowercased to keep upserts idempotent.
func (d *POIDispute) Key() []byte {
	return []byte(strings.ToLower(d.AllocationID))
}
