package agent

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/shared/errs"
)

// allocationManager is the per network surface the allocation reconciler
// drives. It is implemented by the network adapter in this package and by
// fakes in the tests.
type allocationManager interface {
	// FreshActiveAllocations re-reads the active allocations from the
	// network subgraph, bypassing the cached view.
	FreshActiveAllocations(ctx context.Context) ([]*indexer.Allocation, error)
	// OpenAllocation opens one allocation and returns its id. activeIDs
	// must carry every live id so the derived id is unique.
	OpenAllocation(ctx context.Context, deployment indexer.SubgraphDeploymentID, amount *big.Int, activeIDs []common.Address, epoch int64) (common.Address, error)
	// CloseAllocation closes one allocation with the given proof.
	CloseAllocation(ctx context.Context, allocationID common.Address, poi common.Hash) error
	// ClosedOnChain cross-checks whether the contracts consider the
	// allocation closed already.
	ClosedOnChain(ctx context.Context, allocationID common.Address) (bool, error)
	// POI resolves the proof of indexing for a deployment at the start
	// block of the given epoch, or the zero hash when unavailable.
	POI(ctx context.Context, deployment indexer.SubgraphDeploymentID, epoch int64) common.Hash
	// PendingActions lists the management-queue actions that have not
	// finished yet (queued, approved or pending).
	PendingActions(ctx context.Context) ([]*indexer.Action, error)
	// QueueIntent appends an action to the management queue for the
	// operator to approve. Failures are logged, not returned; the next
	// tick queues the intent again.
	QueueIntent(ctx context.Context, action *indexer.Action)
}

// allocationEnv carries the per network facts one allocation
// reconciliation pass runs under.
type allocationEnv struct {
	protocolNetwork           string
	currentEpoch              int64
	maxAllocationEpochs       int64
	managementMode            indexer.AllocationManagementMode
	pendingApprovedActions    bool
	networkSubgraphDeployment *indexer.SubgraphDeploymentID
	allocateOnNetworkSubgraph bool
	// closingToL2 marks deployments whose subgraph started a transfer to
	// L2; their L1 allocations are closed and the L2 tick reopens them.
	closingToL2 map[indexer.SubgraphDeploymentID]bool
	// transferredToL2 marks deployments that finished the transfer and
	// must never be allocated to again on this network.
	transferredToL2 map[indexer.SubgraphDeploymentID]bool
}

// reconcileNetworkAllocations drives the active allocations of one
// network toward its allocation decisions. A failure on one deployment is
// logged and does not stop the others; the next tick re-evaluates from
// fresh chain state.
func reconcileNetworkAllocations(ctx context.Context, mgr allocationManager, decisions []*indexer.AllocationDecision, env *allocationEnv) error {
	logger := log.WithField("protocolNetwork", env.protocolNetwork)

	if env.managementMode == indexer.ManagementManual || env.managementMode == indexer.ManagementOversight {
		return queueManualIntents(ctx, logger, mgr, decisions, env)
	}
	if env.pendingApprovedActions {
		logger.Info("Found approved actions awaiting execution, skipping allocation reconciliation")
		return nil
	}

	// Re-fetch right before acting to close the race window between the
	// cached view and chain truth.
	active, err := mgr.FreshActiveAllocations(ctx)
	if err != nil {
		return errs.Wrap(err, errs.IE010)
	}
	activeIDs := make([]common.Address, 0, len(active))
	for _, a := range active {
		activeIDs = append(activeIDs, a.ID)
	}

	for _, decision := range decisions {
		activeIDs = reconcileDeploymentAllocations(ctx, logger, mgr, decision, active, activeIDs, env)
	}
	return nil
}

// reconcileDeploymentAllocations acts on a single decision and returns
// the updated live allocation id list.
func reconcileDeploymentAllocations(ctx context.Context, logger *logrus.Entry, mgr allocationManager, decision *indexer.AllocationDecision, active []*indexer.Allocation, activeIDs []common.Address, env *allocationEnv) []common.Address {
	deployment := decision.Deployment
	entry := logger.WithField("deployment", deployment.IPFSHash())

	toAllocate := decision.ToAllocate
	if toAllocate && env.networkSubgraphDeployment != nil && deployment == *env.networkSubgraphDeployment && !env.allocateOnNetworkSubgraph {
		toAllocate = false
	}
	if env.transferredToL2[deployment] {
		toAllocate = false
	}
	if env.closingToL2[deployment] {
		entry.Info("Subgraph started transferring to L2, closing its allocations here")
		toAllocate = false
	}

	allocations := indexer.ActiveAllocationsForDeployment(active, deployment)

	if !toAllocate {
		for _, allocation := range allocations {
			if closeOne(ctx, entry, mgr, allocation, env) {
				activeIDs = removeID(activeIDs, allocation.ID)
			}
		}
		return activeIDs
	}

	rule := decision.RuleMatch.Rule
	if rule == nil || rule.AllocationAmount == nil {
		return activeIDs
	}

	if len(allocations) == 0 {
		// First allocations for this deployment. Opening threads the
		// growing id list so every derived id is unique.
		for i := 0; i < rule.ParallelAllocations; i++ {
			id, err := mgr.OpenAllocation(ctx, deployment, rule.AllocationAmount, activeIDs, env.currentEpoch)
			if err != nil {
				if errs.IsCode(err, errs.IE013) {
					entry.WithError(err).Warn("Not enough free stake to allocate, skipping")
				} else {
					entry.WithError(err).Error("Could not open allocation")
				}
				break
			}
			allocationsOpened.WithLabelValues(env.protocolNetwork).Inc()
			activeIDs = append(activeIDs, id)
		}
		return activeIDs
	}

	// Refresh the expiring allocations of an already allocated
	// deployment: close first, then open the replacement, the contracts
	// reject the reverse order.
	lifetime := rule.DesiredLifetime(env.maxAllocationEpochs)
	for _, allocation := range allocations {
		if !allocation.Expired(env.currentEpoch, lifetime) {
			continue
		}
		closed, err := mgr.ClosedOnChain(ctx, allocation.ID)
		if err != nil {
			// The subgraph says active; when the contracts cannot be
			// read, assume the close is still needed.
			entry.WithError(err).WithField("allocation", allocation.ID.Hex()).Warn("Could not cross-check allocation on chain, assuming it needs closing")
		} else if closed {
			continue
		}
		if !closeOne(ctx, entry, mgr, allocation, env) {
			continue
		}
		activeIDs = removeID(activeIDs, allocation.ID)
		if !rule.RenewsAutomatically() {
			entry.WithField("allocation", allocation.ID.Hex()).Info("Allocation expired and auto renewal is off")
			continue
		}
		id, err := mgr.OpenAllocation(ctx, deployment, rule.AllocationAmount, activeIDs, env.currentEpoch)
		if err != nil {
			entry.WithError(err).Error("Could not open replacement allocation")
			continue
		}
		allocationsOpened.WithLabelValues(env.protocolNetwork).Inc()
		activeIDs = append(activeIDs, id)
	}
	return activeIDs
}

// closeOne closes a single allocation with the proof of indexing at the
// current epoch's start block. Reports whether the close was submitted.
func closeOne(ctx context.Context, logger *logrus.Entry, mgr allocationManager, allocation *indexer.Allocation, env *allocationEnv) bool {
	poi := mgr.POI(ctx, allocation.SubgraphDeployment, env.currentEpoch)
	if poi == (common.Hash{}) {
		logger.WithField("allocation", allocation.ID.Hex()).Warn("No proof of indexing available, closing with zero POI")
	}
	if err := mgr.CloseAllocation(ctx, allocation.ID, poi); err != nil {
		logger.WithError(err).WithField("allocation", allocation.ID.Hex()).Error("Could not close allocation")
		return false
	}
	allocationsClosed.WithLabelValues(env.protocolNetwork).Inc()
	return true
}

// queueManualIntents runs when allocation management is manual or
// oversight: instead of executing, the changes the automatic mode would
// make are queued as actions for the operator to approve. Deployments
// that already have an unfinished action in the queue are left alone so
// repeated ticks never pile up duplicates.
func queueManualIntents(ctx context.Context, logger *logrus.Entry, mgr allocationManager, decisions []*indexer.AllocationDecision, env *allocationEnv) error {
	active, err := mgr.FreshActiveAllocations(ctx)
	if err != nil {
		return errs.Wrap(err, errs.IE010)
	}
	pending, err := mgr.PendingActions(ctx)
	if err != nil {
		return errs.Wrap(err, errs.IE033)
	}
	hasPending := make(map[indexer.SubgraphDeploymentID]bool, len(pending))
	for _, action := range pending {
		hasPending[action.DeploymentID] = true
	}

	net := env.protocolNetwork
	queued := 0
	for _, decision := range decisions {
		deployment := decision.Deployment
		if hasPending[deployment] {
			continue
		}
		toAllocate := decision.ToAllocate
		if toAllocate && env.networkSubgraphDeployment != nil && deployment == *env.networkSubgraphDeployment && !env.allocateOnNetworkSubgraph {
			toAllocate = false
		}
		if env.transferredToL2[deployment] || env.closingToL2[deployment] {
			toAllocate = false
		}
		allocations := indexer.ActiveAllocationsForDeployment(active, deployment)

		if !toAllocate {
			for _, allocation := range allocations {
				poi := mgr.POI(ctx, deployment, env.currentEpoch)
				mgr.QueueIntent(ctx, indexer.NewUnallocateAction(allocation.ID.Hex(), deployment, poi.Hex(), false, net, "no longer worth indexing"))
				queued++
			}
			continue
		}

		rule := decision.RuleMatch.Rule
		if rule == nil || rule.AllocationAmount == nil {
			continue
		}
		if len(allocations) == 0 {
			for i := 0; i < rule.ParallelAllocations; i++ {
				mgr.QueueIntent(ctx, indexer.NewAllocateAction(deployment, rule.AllocationAmount, net, "deployment worth indexing"))
				queued++
			}
			continue
		}
		lifetime := rule.DesiredLifetime(env.maxAllocationEpochs)
		for _, allocation := range allocations {
			if !allocation.Expired(env.currentEpoch, lifetime) {
				continue
			}
			poi := mgr.POI(ctx, deployment, env.currentEpoch)
			if rule.RenewsAutomatically() {
				mgr.QueueIntent(ctx, indexer.NewReallocateAction(allocation.ID.Hex(), deployment, rule.AllocationAmount, poi.Hex(), net, "allocation expired"))
			} else {
				mgr.QueueIntent(ctx, indexer.NewUnallocateAction(allocation.ID.Hex(), deployment, poi.Hex(), false, net, "allocation expired and auto renewal is off"))
			}
			queued++
		}
	}
	if queued > 0 {
		logger.WithField("actions", queued).Info("Allocation management is manual, queued intents for operator approval")
	}
	return nil
}

func removeID(ids []common.Address, id common.Address) []common.Address {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
