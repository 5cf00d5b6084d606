// Package agent contains the reconciliation engine: a periodic control
// loop that observes the operator's indexing rules, the on-chain protocol
// state and the local graph node, computes the deployments worth indexing
// and emits the minimal allocation changes that drive the observed state
// toward the target.
package agent

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/graphops/indexer-agent/async"
	"github.com/graphops/indexer-agent/collector"
	"github.com/graphops/indexer-agent/config"
	"github.com/graphops/indexer-agent/db/kv"
	"github.com/graphops/indexer-agent/disputes"
	"github.com/graphops/indexer-agent/graphnode"
	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/multinetworks"
	"github.com/graphops/indexer-agent/network"
)

var log = logrus.WithField("prefix", "agent")

// NetworkPair couples the read view and the mutation surface of one
// protocol network.
type NetworkPair struct {
	Network  *network.Network
	Operator *network.Operator
}

// Config wires the agent service.
type Config struct {
	Networks          *multinetworks.MultiNetworks[*NetworkPair]
	GraphNode         *graphnode.Client
	Store             *kv.Store
	OffchainSubgraphs []indexer.SubgraphDeploymentID
	// PollingInterval is the refresh base every schedule derives from.
	PollingInterval time.Duration
}

// Service runs the reconciliation loop. It implements shared.Service so
// the node can manage its lifecycle.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg       *Config
	networks  *multinetworks.MultiNetworks[*NetworkPair]
	collector *collector.Collector
	monitor   *disputes.Monitor

	// inFlight enforces at most one reconciliation at a time; a tick that
	// fires while the previous one still runs is skipped.
	inFlight atomic.Bool
	// started flips once registration and the global rule are in place on
	// every network; until then each tick retries that startup work.
	started atomic.Bool

	mu      sync.Mutex
	lastErr error
}

// NewService assembles the reconciliation service.
func NewService(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		networks:  cfg.Networks,
		collector: collector.New(cfg.Store),
		monitor:   disputes.NewMonitor(cfg.Store),
	}
}

// Start brings the networks up and begins the reconciliation schedule.
func (s *Service) Start() {
	base := s.cfg.PollingInterval

	if err := s.ensureStarted(s.ctx); err != nil {
		// Retried at the top of every tick until it succeeds.
		s.setError(err)
	}

	async.RunEvery(s.ctx, base, s.monitorBalances)
	s.runTick()
	async.RunEvery(s.ctx, 2*base, s.runTick)
	log.WithField("interval", 2*base).Info("Started reconciliation loop")
}

// ensureStarted registers the indexer and seeds the global indexing rule
// on every network. Registration is idempotent, so retrying after a
// partial failure redoes no on-chain work.
func (s *Service) ensureStarted(ctx context.Context) error {
	if s.started.Load() {
		return nil
	}
	_, err := multinetworks.Map(ctx, s.networks, func(ctx context.Context, id string, pair *NetworkPair) (struct{}, error) {
		if err := pair.Operator.EnsureGlobalIndexingRule(ctx); err != nil {
			return struct{}{}, errors.Wrap(err, "global indexing rule")
		}
		if pair.Network.Spec.IndexerOptions.ShouldRegister() {
			if err := pair.Network.Register(ctx); err != nil {
				return struct{}{}, errors.Wrap(err, "register indexer")
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}
	s.started.Store(true)
	return nil
}

// Stop terminates the reconciliation loop.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status surfaces the last reconciliation failure.
func (s *Service) Status() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Service) setError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// runTick runs one reconciliation, skipping if the previous one has not
// finished.
func (s *Service) runTick() {
	if !s.inFlight.CompareAndSwap(false, true) {
		log.Warn("Previous reconciliation still in progress, skipping this tick")
		reconciliationRuns.WithLabelValues("skipped").Inc()
		return
	}
	defer s.inFlight.Store(false)

	if err := s.ensureStarted(s.ctx); err != nil {
		if s.ctx.Err() == nil {
			log.WithError(err).Warn("Agent startup incomplete, will retry next tick")
		}
		s.setError(err)
		reconciliationRuns.WithLabelValues("failed").Inc()
		return
	}

	started := time.Now()
	err := s.reconcile(s.ctx)
	reconciliationDuration.Observe(time.Since(started).Seconds())
	s.setError(err)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		log.WithError(err).Warn("Reconciliation failed, will retry next tick")
		reconciliationRuns.WithLabelValues("failed").Inc()
		return
	}
	reconciliationRuns.WithLabelValues("ok").Inc()
}

// monitorBalances tracks the operator wallets so an underfunded operator
// is caught before transactions start failing.
func (s *Service) monitorBalances() {
	_, _ = multinetworks.Map(s.ctx, s.networks, func(ctx context.Context, id string, pair *NetworkPair) (struct{}, error) {
		balance, err := pair.Network.OperatorBalance(ctx)
		if err != nil {
			return struct{}{}, err
		}
		eth, _ := new(big.Float).Quo(new(big.Float).SetInt(balance), big.NewFloat(params.Ether)).Float64()
		operatorBalance.WithLabelValues(id).Set(eth)
		if eth < 0.05 {
			log.WithFields(logrus.Fields{
				"protocolNetwork": id,
				"balance":         eth,
				"operator":        pair.Network.OperatorAddress.Hex(),
			}).Warn("Operator wallet is running low on ETH")
		}
		return struct{}{}, nil
	})
}

// networkAllocations adapts a network pair to the allocation reconciler
// and reports lifecycle events to the receipt collector.
type networkAllocations struct {
	network   *network.Network
	operator  *network.Operator
	collector *collector.Collector
}

func (m *networkAllocations) FreshActiveAllocations(ctx context.Context) ([]*indexer.Allocation, error) {
	return m.network.FreshActiveAllocations(ctx)
}

func (m *networkAllocations) OpenAllocation(ctx context.Context, deployment indexer.SubgraphDeploymentID, amount *big.Int, activeIDs []common.Address, epoch int64) (common.Address, error) {
	id, err := m.operator.OpenAllocation(ctx, deployment, amount, activeIDs, epoch)
	if err != nil {
		return common.Address{}, err
	}
	m.collector.RememberAllocations(ctx, []*indexer.Allocation{{
		ID:                 id,
		Indexer:            m.network.IndexerAddress,
		SubgraphDeployment: deployment,
		AllocatedTokens:    amount,
		CreatedAtEpoch:     epoch,
		ProtocolNetwork:    m.network.Spec.NetworkIdentifier,
	}})
	return id, nil
}

func (m *networkAllocations) CloseAllocation(ctx context.Context, allocationID common.Address, poi common.Hash) error {
	if err := m.operator.CloseAllocation(ctx, allocationID, poi); err != nil {
		return err
	}
	epoch, err := m.network.CurrentEpoch(ctx)
	if err == nil {
		m.collector.AllocationClosed(ctx, m.network.Spec.NetworkIdentifier, allocationID.Hex(), epoch)
	}
	return nil
}

func (m *networkAllocations) ClosedOnChain(ctx context.Context, allocationID common.Address) (bool, error) {
	record, err := m.network.Contracts.Staking.GetAllocation(ctx, allocationID)
	if err != nil {
		return false, err
	}
	return record.ClosedAtEpoch.Sign() != 0, nil
}

func (m *networkAllocations) PendingActions(ctx context.Context) ([]*indexer.Action, error) {
	return m.operator.Actions(ctx, indexer.ActionStatusQueued, indexer.ActionStatusApproved, indexer.ActionStatusPending)
}

func (m *networkAllocations) QueueIntent(ctx context.Context, action *indexer.Action) {
	m.operator.RecordIntent(ctx, action)
}

func (m *networkAllocations) POI(ctx context.Context, deployment indexer.SubgraphDeploymentID, epoch int64) common.Hash {
	block, err := m.network.EpochStartBlock(ctx, epoch)
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"protocolNetwork": m.network.Spec.NetworkIdentifier,
			"epoch":           epoch,
		}).Warn("Could not resolve epoch start block for POI")
		return common.Hash{}
	}
	poi, err := m.network.GraphNode.ProofOfIndexing(ctx, deployment, *block, m.network.IndexerAddress)
	if err != nil || poi == nil {
		return common.Hash{}
	}
	return *poi
}

// claimRebateRewards claims the allocations whose rebate pools have
// finalized, once the batch is worth the gas.
func (s *Service) claimRebateRewards(ctx context.Context, pair *NetworkPair) {
	opts := pair.Network.Spec.IndexerOptions
	claimable, ok := pair.Network.ClaimableAllocations.Latest()
	if !ok || len(claimable) == 0 {
		return
	}
	logger := log.WithField("protocolNetwork", pair.Network.Spec.NetworkIdentifier)

	threshold := config.GRT(opts.RebateClaimThreshold)
	batchThreshold := config.GRT(opts.RebateClaimBatchThreshold)

	total := new(big.Int)
	var ids []common.Address
	for _, allocation := range claimable {
		fees := allocation.QueryFeesCollected
		if fees == nil {
			fees = new(big.Int)
		}
		if fees.Cmp(threshold) < 0 {
			logger.WithFields(logrus.Fields{
				"allocation": allocation.ID.Hex(),
				"queryFees":  humanize.Comma(new(big.Int).Div(fees, big.NewInt(params.Ether)).Int64()),
			}).Info("Allocation rebate below claim threshold, leaving unclaimed")
			continue
		}
		if len(ids) >= opts.RebateClaimMaxBatchSize {
			break
		}
		ids = append(ids, allocation.ID)
		total.Add(total, fees)
	}
	if len(ids) == 0 || total.Cmp(batchThreshold) < 0 {
		return
	}
	if err := pair.Operator.ClaimMany(ctx, ids, opts.RestakesRewards()); err != nil {
		logger.WithError(err).Error("Could not claim rebate rewards")
		return
	}
	rewardsClaimed.WithLabelValues(pair.Network.Spec.NetworkIdentifier).Inc()
}
