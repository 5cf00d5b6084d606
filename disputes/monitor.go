// Package disputes watches closed allocations for proofs of indexing that
// disagree with locally computed reference proofs. Every suspicious
// allocation is persisted as a POI dispute for the operator to inspect
// and, if warranted, escalate on chain.
package disputes

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/graphops/indexer-agent/db/kv"
	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/network"
	"github.com/graphops/indexer-agent/shared/errs"
)

var log = logrus.WithField("prefix", "disputes")

var disputesStored = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "indexer_agent",
	Name:      "poi_disputes_stored_total",
	Help:      "POI disputes persisted by the dispute monitor, by status.",
}, []string{"protocolNetwork", "status"})

// Monitor checks the proofs of closed allocations against reference
// proofs computed by the local graph node.
type Monitor struct {
	store *kv.Store
}

// NewMonitor returns a dispute monitor over the agent store.
func NewMonitor(store *kv.Store) *Monitor {
	return &Monitor{store: store}
}

// rewardsPool is the set of allocations closed in one epoch against one
// deployment. All of them are judged against the same epoch boundary
// blocks.
type rewardsPool struct {
	deployment  indexer.SubgraphDeploymentID
	closedEpoch int64
	allocations []*indexer.Allocation
}

// Check runs one dispute sweep for a network: it fetches the disputable
// closed allocations across the locally indexed deployments, skips the
// ones already judged and persists a dispute row for each new one.
func (m *Monitor) Check(ctx context.Context, n *network.Network, indexedDeployments []indexer.SubgraphDeploymentID, currentEpoch int64) error {
	opts := n.Spec.IndexerOptions
	if !opts.PoiDisputeMonitoring {
		return nil
	}
	networkID := n.Spec.NetworkIdentifier
	logger := log.WithField("protocolNetwork", networkID)

	minClosedEpoch := currentEpoch - opts.PoiDisputableEpochs
	disputable, err := n.DisputableAllocations(ctx, indexedDeployments, minClosedEpoch)
	if err != nil {
		return errs.Wrap(err, errs.IE010)
	}

	existing, err := m.store.PoiDisputes(ctx, networkID, 0)
	if err != nil {
		return err
	}
	judged := make(map[string]bool, len(existing))
	for _, d := range existing {
		judged[normalizeID(d.AllocationID)] = true
	}

	var fresh []*indexer.Allocation
	for _, a := range disputable {
		if !hasDisputablePOI(a) {
			continue
		}
		if !judged[normalizeID(a.ID.Hex())] {
			fresh = append(fresh, a)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	logger.WithField("allocations", len(fresh)).Info("Checking newly closed allocations for POI disputes")

	var records []*indexer.POIDispute
	for _, pool := range groupIntoPools(fresh) {
		poolRecords, err := m.judgePool(ctx, n, pool)
		if err != nil {
			// A pool that cannot be judged does not block the others;
			// the next sweep retries it.
			logger.WithError(err).WithFields(logrus.Fields{
				"deployment": pool.deployment.IPFSHash(),
				"epoch":      pool.closedEpoch,
			}).Error("Could not judge rewards pool")
			continue
		}
		records = append(records, poolRecords...)
	}
	if len(records) == 0 {
		return nil
	}

	stored, err := m.store.StorePoiDisputes(ctx, records)
	if err != nil {
		return err
	}
	for _, d := range stored {
		disputesStored.WithLabelValues(networkID, string(d.Status)).Inc()
		entry := logger.WithFields(logrus.Fields{
			"allocation": d.AllocationID,
			"deployment": d.SubgraphDeploymentID.IPFSHash(),
			"epoch":      d.ClosedEpoch,
		})
		if d.Status == indexer.DisputeStatusPotential {
			entry.Warn("Found potential POI dispute")
		} else {
			entry.Debug("Stored POI dispute check")
		}
	}
	return nil
}

// judgePool computes the reference proofs at the pool's epoch boundaries
// and classifies every allocation in it.
func (m *Monitor) judgePool(ctx context.Context, n *network.Network, pool *rewardsPool) ([]*indexer.POIDispute, error) {
	closedStart, err := n.EpochStartBlock(ctx, pool.closedEpoch)
	if err != nil {
		return nil, err
	}
	previousStart, err := n.EpochStartBlock(ctx, pool.closedEpoch-1)
	if err != nil {
		return nil, err
	}

	records := make([]*indexer.POIDispute, 0, len(pool.allocations))
	for _, allocation := range pool.allocations {
		// Reference proofs are computed for the indexer that held the
		// allocation, not for this agent's indexer.
		reference := m.proofAt(ctx, n, pool.deployment, closedStart, allocation.Indexer)
		previousReference := m.proofAt(ctx, n, pool.deployment, previousStart, allocation.Indexer)

		records = append(records, &indexer.POIDispute{
			AllocationID:                  allocation.ID.Hex(),
			SubgraphDeploymentID:          pool.deployment,
			AllocationIndexer:             allocation.Indexer.Hex(),
			AllocationAmount:              allocation.AllocatedTokens,
			AllocationProof:               proofString(allocation.POI),
			ClosedEpoch:                   pool.closedEpoch,
			ClosedEpochStartBlockHash:     closedStart.Hash.Hex(),
			ClosedEpochStartBlockNumber:   int64(closedStart.Number),
			ClosedEpochReferenceProof:     reference,
			PreviousEpochStartBlockHash:   previousStart.Hash.Hex(),
			PreviousEpochStartBlockNumber: int64(previousStart.Number),
			PreviousEpochReferenceProof:   previousReference,
			Status:                        JudgeProof(allocation.POI, reference, previousReference),
			ProtocolNetwork:               allocation.ProtocolNetwork,
		})
	}
	return records, nil
}

// proofAt asks the graph node for a reference proof; an unavailable proof
// is returned as nil and judged accordingly.
func (m *Monitor) proofAt(ctx context.Context, n *network.Network, deployment indexer.SubgraphDeploymentID, block *indexer.BlockPointer, indexerAddress common.Address) *string {
	proof, err := n.GraphNode.ProofOfIndexing(ctx, deployment, *block, indexerAddress)
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"deployment": deployment.IPFSHash(),
			"block":      block.Number,
		}).Warn("Could not compute reference proof of indexing")
		return nil
	}
	if proof == nil {
		return nil
	}
	s := proof.Hex()
	return &s
}

// hasDisputablePOI reports whether an allocation was closed with a real
// proof. Zero-POI closes forfeit rewards and carry nothing to dispute.
func hasDisputablePOI(a *indexer.Allocation) bool {
	return a.POI != nil && *a.POI != (common.Hash{})
}

// JudgeProof classifies an allocation's proof against the reference
// proofs of its rewards pool.
func JudgeProof(poi *common.Hash, reference, previousReference *string) indexer.DisputeStatus {
	if poi != nil {
		if reference != nil && poi.Hex() == *reference {
			return indexer.DisputeStatusValid
		}
		if previousReference != nil && poi.Hex() == *previousReference {
			return indexer.DisputeStatusValid
		}
	}
	if reference == nil || previousReference == nil {
		return indexer.DisputeStatusReferenceUnavailable
	}
	return indexer.DisputeStatusPotential
}

// groupIntoPools partitions allocations into rewards pools keyed by
// deployment and close epoch.
func groupIntoPools(allocations []*indexer.Allocation) []*rewardsPool {
	type key struct {
		deployment indexer.SubgraphDeploymentID
		epoch      int64
	}
	byKey := make(map[key]*rewardsPool)
	var pools []*rewardsPool
	for _, a := range allocations {
		k := key{deployment: a.SubgraphDeployment, epoch: a.ClosedAtEpoch}
		pool, ok := byKey[k]
		if !ok {
			pool = &rewardsPool{deployment: a.SubgraphDeployment, closedEpoch: a.ClosedAtEpoch}
			byKey[k] = pool
			pools = append(pools, pool)
		}
		pool.allocations = append(pool.allocations, a)
	}
	return pools
}

func proofString(poi *common.Hash) string {
	if poi == nil {
		return ""
	}
	return poi.Hex()
}

func normalizeID(id string) string {
	return common.HexToAddress(id).Hex()
}
