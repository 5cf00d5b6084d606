package agent

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/multinetworks"
	"github.com/graphops/indexer-agent/shared/errs"
)

// networkState is the per network input of one reconciliation tick,
// gathered up front so the later phases work from one consistent view.
type networkState struct {
	pair      *NetworkPair
	skip      bool
	rules     []*indexer.IndexingRule
	decisions []*indexer.AllocationDecision
	env       *allocationEnv
	// eligible lists deployments pinned by an active or recently closed
	// allocation; they must not be removed from the graph node.
	eligible []indexer.SubgraphDeploymentID
}

// reconcile runs one full tick: gather per network state, claim finalized
// rebates, check POIs, reconcile the graph node's deployments and finally
// reconcile allocations. Errors inside one network never stall the
// others.
func (s *Service) reconcile(ctx context.Context) error {
	supportedChains := s.supportedChains(ctx)

	states, err := multinetworks.Map(ctx, s.networks, func(ctx context.Context, id string, pair *NetworkPair) (*networkState, error) {
		return s.gatherNetworkState(ctx, pair, supportedChains)
	})
	if err != nil {
		if len(states) == 0 {
			return errs.Wrap(err, errs.IE005)
		}
		log.WithError(err).Warn("Some networks could not be prepared this tick, continuing with the others")
	}

	for _, state := range states {
		if state.skip {
			continue
		}
		s.claimRebateRewards(ctx, state.pair)
	}

	// The dispute monitor judges allocations of deployments this indexer
	// also indexes, so reference proofs can be computed locally.
	indexed, err := s.cfg.GraphNode.AssignedDeployments(ctx)
	if err != nil {
		log.WithError(err).Warn("Could not list local deployments, skipping POI checks this tick")
	} else {
		for _, state := range states {
			if state.skip {
				continue
			}
			if err := s.monitor.Check(ctx, state.pair.Network, indexed, state.env.currentEpoch); err != nil {
				log.WithError(err).WithField("protocolNetwork", state.env.protocolNetwork).Error("POI dispute check failed")
			}
		}
	}

	decisions := make(map[string][]*indexer.AllocationDecision, len(states))
	rules := make(map[string][]*indexer.IndexingRule, len(states))
	var networkSubgraphs, eligible []indexer.SubgraphDeploymentID
	for id, state := range states {
		if state.skip {
			continue
		}
		decisions[id] = state.decisions
		rules[id] = state.rules
		if d := state.pair.Network.NetworkSubgraphDeployment; d != nil {
			networkSubgraphs = append(networkSubgraphs, *d)
		}
		eligible = append(eligible, state.eligible...)
	}

	target := targetDeployments(decisions, rules, networkSubgraphs, s.cfg.OffchainSubgraphs)
	targetDeploymentsGauge.Set(float64(len(target)))

	if err := reconcileDeployments(ctx, s.cfg.GraphNode, target, eligible); err != nil {
		// Allocating against deployments the graph node is not indexing
		// would close them with zero POIs later, so bail out here.
		log.WithError(err).Warn("Deployment reconciliation failed, skipping allocation reconciliation this tick")
		return errs.Wrap(err, errs.IE005)
	}

	_, err = multinetworks.Map(ctx, s.networks, func(ctx context.Context, id string, pair *NetworkPair) (struct{}, error) {
		state, ok := states[id]
		if !ok || state.skip {
			return struct{}{}, nil
		}
		mgr := &networkAllocations{network: pair.Network, operator: pair.Operator, collector: s.collector}
		return struct{}{}, reconcileNetworkAllocations(ctx, mgr, state.decisions, state.env)
	})
	if err != nil {
		return errs.Wrap(err, errs.IE005)
	}
	return nil
}

// gatherNetworkState assembles everything a tick needs from one network.
// A network whose eventuals have not produced a first value yet, or that
// is paused or unauthorized, comes back with skip set.
func (s *Service) gatherNetworkState(ctx context.Context, pair *NetworkPair, supportedChains map[string]bool) (*networkState, error) {
	n := pair.Network
	logger := log.WithField("protocolNetwork", n.Spec.NetworkIdentifier)
	state := &networkState{pair: pair}

	params, haveParams := n.Params.Latest()
	paused, havePaused := n.Paused.Latest()
	authorized, haveOperator := n.IsOperator.Latest()
	active, haveActive := n.ActiveAllocations.Latest()
	deployments, haveDeployments := n.Deployments.Latest()
	if !haveParams || !havePaused || !haveOperator || !haveActive || !haveDeployments {
		logger.Info("Network state not fully synced yet, skipping this tick")
		state.skip = true
		return state, nil
	}
	if paused {
		logger.Info("Network is paused, not reconciling")
		state.skip = true
		return state, nil
	}
	if !authorized {
		logger.WithFields(logrus.Fields{
			"operator": n.OperatorAddress.Hex(),
			"indexer":  n.IndexerAddress.Hex(),
		}).Error("Operator is not authorized for the indexer, not reconciling")
		state.skip = true
		return state, nil
	}

	merged, err := pair.Operator.IndexingRules(ctx, true)
	if err != nil {
		return nil, err
	}
	state.rules = s.rewriteRules(ctx, pair, merged, params.EpochLength)
	state.decisions = indexer.EvaluateDeployments(state.rules, deployments, supportedChains)

	approved, err := pair.Operator.Actions(ctx, indexer.ActionStatusApproved)
	if err != nil {
		return nil, err
	}

	state.env = &allocationEnv{
		protocolNetwork:           n.Spec.NetworkIdentifier,
		currentEpoch:              params.CurrentEpoch,
		maxAllocationEpochs:       params.MaxAllocationEpochs,
		managementMode:            n.Spec.IndexerOptions.AllocationManagementMode,
		pendingApprovedActions:    len(approved) > 0,
		networkSubgraphDeployment: n.NetworkSubgraphDeployment,
		allocateOnNetworkSubgraph: n.Spec.IndexerOptions.AllocateOnNetworkSubgraph,
		closingToL2:               map[indexer.SubgraphDeploymentID]bool{},
		transferredToL2:           map[indexer.SubgraphDeploymentID]bool{},
	}
	if n.Spec.IndexerOptions.AutoMigrationSupport {
		transfers, err := n.Subgraph.TransferredDeployments(ctx)
		if err != nil {
			logger.WithError(err).Warn("Could not query L2 transfer states")
		}
		for _, transfer := range transfers {
			if transfer.TransferredToL2 {
				state.env.transferredToL2[transfer.Deployment] = true
			} else if transfer.StartedTransferToL2 {
				state.env.closingToL2[transfer.Deployment] = true
			}
		}
	}

	eligible := newDeploymentSet(indexer.UniqueDeployments(active)...)
	if recentlyClosed, ok := n.RecentlyClosedAllocations.Latest(); ok {
		for _, id := range indexer.UniqueDeployments(recentlyClosed) {
			eligible.add(id)
		}
	}
	state.eligible = eligible.ids
	return state, nil
}

// rewriteRules resolves subgraph scoped rules to the deployments behind
// their latest versions. A version published within the grace window also
// keeps a duplicate rule for the previous deployment, so queries against
// the old version stay served through the rollover.
func (s *Service) rewriteRules(ctx context.Context, pair *NetworkPair, rules []*indexer.IndexingRule, epochLength int64) []*indexer.IndexingRule {
	var subgraphIDs []string
	for _, rule := range rules {
		if rule.IdentifierType == indexer.IdentifierTypeSubgraph {
			subgraphIDs = append(subgraphIDs, rule.Identifier)
		}
	}
	if len(subgraphIDs) == 0 {
		return rules
	}
	subgraphs, err := pair.Network.Subgraph.Subgraphs(ctx, subgraphIDs)
	if err != nil {
		log.WithError(err).WithField("protocolNetwork", pair.Network.Spec.NetworkIdentifier).Warn("Could not resolve subgraph versions, evaluating rules as stored")
		return rules
	}
	buffer := previousVersionBuffer(epochLength)
	return indexer.RewriteSubgraphRules(rules, subgraphs, buffer, time.Now())
}

// previousVersionBuffer is how long after a version rollover the previous
// deployment keeps its allocation: around a hundred epochs, assuming the
// chain's nominal fifteen second blocks.
func previousVersionBuffer(epochLength int64) time.Duration {
	if epochLength <= 0 {
		epochLength = 1
	}
	return time.Duration(epochLength*15*100) * time.Second
}

// supportedChains asks the graph node which chains it can index. When the
// node cannot answer, the chain check is disabled rather than rejecting
// every deployment.
func (s *Service) supportedChains(ctx context.Context) map[string]bool {
	networks, err := s.cfg.GraphNode.SupportedNetworks(ctx)
	if err != nil {
		log.WithError(err).Warn("Could not list the graph node's supported chains")
		return nil
	}
	supported := make(map[string]bool, len(networks))
	for _, id := range networks {
		supported[id] = true
	}
	return supported
}
