package network

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/graphops/indexer-agent/config"
	"github.com/graphops/indexer-agent/db/kv"
	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/keys"
	"github.com/graphops/indexer-agent/shared/errs"
)

// Operator is the mutation surface of one protocol network: it owns the
// local rule and action stores for the network and executes allocation
// transactions through the network's wallet.
type Operator struct {
	network *Network
	store   *kv.Store
	logger  *logrus.Entry
}

// NewOperator pairs a network with the local store.
func NewOperator(n *Network, store *kv.Store) *Operator {
	return &Operator{
		network: n,
		store:   store,
		logger:  log.WithField("protocolNetwork", n.Spec.NetworkIdentifier),
	}
}

// Network returns the network this operator acts on.
func (o *Operator) Network() *Network {
	return o.network
}

// EnsureGlobalIndexingRule inserts the fallback rule of the network if no
// global rule exists yet. Safe to call on every start.
func (o *Operator) EnsureGlobalIndexingRule(ctx context.Context) error {
	amount := config.GRT(o.network.Spec.IndexerOptions.DefaultAllocationAmount)
	return o.store.EnsureGlobalRule(ctx, o.network.Spec.NetworkIdentifier, amount)
}

// IndexingRules returns the operator's rules for this network. With
// merged set, deployment and subgraph scoped rules inherit unset fields
// from the global rule.
func (o *Operator) IndexingRules(ctx context.Context, merged bool) ([]*indexer.IndexingRule, error) {
	if merged {
		return o.store.MergedIndexingRules(ctx, o.network.Spec.NetworkIdentifier)
	}
	return o.store.IndexingRules(ctx, o.network.Spec.NetworkIdentifier)
}

// Actions returns the queued operator-management actions of this network
// in the given statuses.
func (o *Operator) Actions(ctx context.Context, statuses ...indexer.ActionStatus) ([]*indexer.Action, error) {
	return o.store.Actions(ctx, o.network.Spec.NetworkIdentifier, statuses...)
}

// RecordIntent queues an action row describing a change the reconciler
// performed, so operators can audit agent activity alongside their own
// queued actions.
func (o *Operator) RecordIntent(ctx context.Context, action *indexer.Action) {
	if _, err := o.store.QueueAction(ctx, action); err != nil {
		o.logger.WithError(err).Warn("Could not record reconciler action")
	}
}

// OpenAllocation opens a new allocation of the given size against a
// deployment. The ephemeral allocation key is derived from the mnemonic
// and discarded after signing the proof; its address becomes the
// allocation id. activeIDs must list every live allocation id of the
// indexer so the derived id is unique.
func (o *Operator) OpenAllocation(ctx context.Context, deployment indexer.SubgraphDeploymentID, amount *big.Int, activeIDs []common.Address, epoch int64) (common.Address, error) {
	if amount == nil || amount.Sign() <= 0 {
		return common.Address{}, errs.New(errs.IE024)
	}

	capacity, err := o.network.Contracts.Staking.IndexerCapacity(ctx, o.network.IndexerAddress)
	if err != nil {
		return common.Address{}, errs.Wrap(err, errs.IE006)
	}
	if capacity.Cmp(amount) < 0 {
		return common.Address{}, errs.Wrap(errors.Errorf("allocation of %s exceeds free capacity %s", amount, capacity), errs.IE013)
	}

	allocationID, allocationKey, err := o.deriveFreeAllocationID(ctx, epoch, deployment, activeIDs)
	if err != nil {
		return common.Address{}, err
	}
	proof, err := keys.AllocationProof(allocationKey, o.network.IndexerAddress, allocationID)
	if err != nil {
		return common.Address{}, errs.Wrap(err, errs.IE036)
	}
	proofBytes, err := hexutil.Decode(proof)
	if err != nil {
		return common.Address{}, errs.Wrap(err, errs.IE036)
	}

	logger := o.logger.WithFields(logrus.Fields{
		"deployment": deployment.IPFSHash(),
		"allocation": allocationID.Hex(),
		"amount":     amount.String(),
		"epoch":      epoch,
	})
	logger.Info("Opening allocation")

	_, err = o.network.Transactor.Execute(ctx, "allocate", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return o.network.Contracts.Staking.Allocate(opts, o.network.IndexerAddress, deployment, amount, allocationID, proofBytes)
	})
	if err != nil {
		return common.Address{}, err
	}

	state, err := o.network.Contracts.Staking.AllocationState(ctx, allocationID)
	if err == nil && state != indexer.AllocationActive {
		return common.Address{}, errs.Wrap(errors.Errorf("allocation %s in state %s after opening", allocationID.Hex(), state), errs.IE014)
	}
	logger.Info("Opened allocation")
	return allocationID, nil
}

// deriveFreeAllocationID walks the deterministic key derivation until it
// finds an id the contracts have never seen.
func (o *Operator) deriveFreeAllocationID(ctx context.Context, epoch int64, deployment indexer.SubgraphDeploymentID, activeIDs []common.Address) (common.Address, *ecdsa.PrivateKey, error) {
	used := append([]common.Address{}, activeIDs...)
	for attempt := 0; attempt < 10; attempt++ {
		id, key, err := keys.UniqueAllocationID(o.network.Spec.IndexerOptions.Mnemonic, epoch, deployment, used)
		if err != nil {
			return common.Address{}, nil, errs.Wrap(err, errs.IE036)
		}
		state, err := o.network.Contracts.Staking.AllocationState(ctx, id)
		if err != nil {
			return common.Address{}, nil, errs.Wrap(err, errs.IE006)
		}
		if state == indexer.AllocationNull {
			return id, key, nil
		}
		// The contracts already know this id from an earlier lifecycle;
		// exclude it and derive again.
		used = append(used, id)
	}
	return common.Address{}, nil, errs.Wrap(errors.Errorf("could not derive an unused allocation id for %s at epoch %d", deployment.IPFSHash(), epoch), errs.IE036)
}

// CloseAllocation closes an active allocation with the given proof of
// indexing. Allocations that are no longer active on chain are skipped.
func (o *Operator) CloseAllocation(ctx context.Context, allocationID common.Address, poi common.Hash) error {
	state, err := o.network.Contracts.Staking.AllocationState(ctx, allocationID)
	if err != nil {
		return errs.Wrap(err, errs.IE006)
	}
	logger := o.logger.WithFields(logrus.Fields{
		"allocation": allocationID.Hex(),
		"poi":        poi.Hex(),
	})
	if state != indexer.AllocationActive {
		logger.WithField("state", state.String()).Info("Allocation is not active on chain, skipping close")
		return nil
	}
	logger.Info("Closing allocation")
	_, err = o.network.Transactor.Execute(ctx, "closeAllocation", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return o.network.Contracts.Staking.CloseAllocation(opts, allocationID, poi)
	})
	if err != nil {
		return errs.Wrap(err, errs.IE015)
	}
	logger.Info("Closed allocation")
	return nil
}

// ClaimMany claims the rebate rewards of a batch of finalized allocations.
func (o *Operator) ClaimMany(ctx context.Context, allocationIDs []common.Address, restake bool) error {
	if len(allocationIDs) == 0 {
		return nil
	}
	o.logger.WithFields(logrus.Fields{
		"allocations": len(allocationIDs),
		"restake":     restake,
	}).Info("Claiming rebate rewards")
	_, err := o.network.Transactor.Execute(ctx, "claimMany", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return o.network.Contracts.Staking.ClaimMany(opts, allocationIDs, restake)
	})
	if err != nil {
		return errs.Wrap(err, errs.IE016)
	}
	return nil
}
