// Package network holds the per protocol network surface of the agent:
// the Network read projection over the network subgraph, the epoch oracle
// and the protocol contracts, and the Operator mutation surface that
// executes allocation changes through the transaction manager and keeps the
// local rule and action stores.
package network

import (
	"context"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/graphops/indexer-agent/config"
	"github.com/graphops/indexer-agent/contracts"
	"github.com/graphops/indexer-agent/graphnode"
	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/keys"
	"github.com/graphops/indexer-agent/shared/errs"
	"github.com/graphops/indexer-agent/shared/eventual"
	"github.com/graphops/indexer-agent/subgraph"
)

var log = logrus.WithField("prefix", "network")

// channelDisputeEpochs is how many epochs a closed allocation stays in the
// rebate dispute window before its rewards become claimable.
const channelDisputeEpochs = 7

// Provider is the Ethereum client surface the network view needs:
// contract access plus wallet balance reads.
type Provider interface {
	contracts.Backend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Network is the read-only projection of one protocol network. Every
// accessor is an eventual refreshed on its own schedule, so a flapping
// upstream never erases the last known good view.
type Network struct {
	Spec       *config.NetworkSpecification
	Subgraph   *subgraph.NetworkClient
	Epoch      *subgraph.EpochClient
	GraphNode  *graphnode.Client
	Contracts  *contracts.Contracts
	Transactor *contracts.Transactor
	provider   Provider

	// epochBlocks caches resolved epoch start blocks. The oracle answer for
	// a begun epoch never changes, so a TTL only bounds memory.
	epochBlocks *gocache.Cache

	IndexerAddress  common.Address
	OperatorAddress common.Address

	// NetworkSubgraphDeployment is set when the network subgraph is
	// resolved through the local graph node rather than a gateway URL. It
	// is always part of the indexing target set.
	NetworkSubgraphDeployment *indexer.SubgraphDeploymentID

	Params                    *eventual.Eventual[*subgraph.NetworkParams]
	Paused                    *eventual.Eventual[bool]
	IsOperator                *eventual.Eventual[bool]
	ActiveAllocations         *eventual.Eventual[[]*indexer.Allocation]
	RecentlyClosedAllocations *eventual.Eventual[[]*indexer.Allocation]
	ClaimableAllocations      *eventual.Eventual[[]*indexer.Allocation]
	Deployments               *eventual.Eventual[[]*indexer.SubgraphDeployment]
}

// New connects the per network clients and starts the refresh loops. The
// passed context bounds every background poller; canceling it stops the
// network view.
func New(ctx context.Context, spec *config.NetworkSpecification, provider Provider, chainID *big.Int, graphNode *graphnode.Client, base time.Duration) (*Network, error) {
	operatorKey, operatorAddress, err := keys.OperatorWallet(spec.IndexerOptions.Mnemonic)
	if err != nil {
		return nil, err
	}
	indexerAddress := common.HexToAddress(spec.IndexerOptions.Address)

	book, err := contracts.ResolveAddressBook(spec)
	if err != nil {
		return nil, errs.Wrap(err, errs.IE043)
	}
	bound, err := contracts.New(provider, book)
	if err != nil {
		return nil, err
	}

	n := &Network{
		Spec:            spec,
		provider:        provider,
		Epoch:           subgraph.NewEpochClient(spec.Subgraphs.EpochSubgraph.URL),
		GraphNode:       graphNode,
		Contracts:       bound,
		IndexerAddress:  indexerAddress,
		OperatorAddress: operatorAddress,
		epochBlocks:     gocache.New(time.Hour, 2*time.Hour),
	}

	networkSubgraphURL := spec.Subgraphs.NetworkSubgraph.URL
	if spec.Subgraphs.NetworkSubgraph.Deployment != "" {
		deployment, err := indexer.NewSubgraphDeploymentID(spec.Subgraphs.NetworkSubgraph.Deployment)
		if err != nil {
			return nil, errs.Wrap(err, errs.IE043)
		}
		n.NetworkSubgraphDeployment = &deployment
		networkSubgraphURL = graphNode.QueryEndpoint(deployment)
	}
	n.Subgraph = subgraph.NewNetworkClient(networkSubgraphURL, spec.NetworkIdentifier)

	n.startPollers(ctx, base)
	n.Transactor = contracts.NewTransactor(provider, operatorKey, chainID, spec.TransactionMonitoring, spec.NetworkIdentifier, n.Paused, n.IsOperator)

	log.WithFields(logrus.Fields{
		"protocolNetwork": spec.NetworkIdentifier,
		"indexer":         indexerAddress.Hex(),
		"operator":        operatorAddress.Hex(),
	}).Info("Connected to network")
	return n, nil
}

// startPollers wires the eventuals of the network view. Refresh intervals
// all derive from the polling base: protocol params change rarely, the
// pause and operator flags gate writes and are checked often, everything
// else sits in between.
func (n *Network) startPollers(ctx context.Context, base time.Duration) {
	id := n.Spec.NetworkIdentifier

	n.Params = eventual.Poll(ctx, id+" network params", 5*base, n.Subgraph.NetworkParams)

	n.Paused = eventual.New[bool]()
	if paused, err := n.Contracts.Controller.Paused(ctx); err == nil {
		n.Paused.Set(paused)
	} else {
		log.WithError(err).WithField("protocolNetwork", id).Warn("Could not read initial pause state from controller")
	}
	eventual.PollInto(ctx, n.Paused, id+" network pause", base/2, n.Subgraph.IsPaused)

	if n.OperatorAddress == n.IndexerAddress {
		n.IsOperator = eventual.Resolved(true)
	} else {
		n.IsOperator = eventual.Poll(ctx, id+" operator status", base/2, func(ctx context.Context) (bool, error) {
			authorized, err := n.Contracts.Staking.IsOperator(ctx, n.OperatorAddress, n.IndexerAddress)
			if err != nil {
				return false, errs.Wrap(err, errs.IE008)
			}
			return authorized, nil
		})
	}

	n.ActiveAllocations = eventual.Poll(ctx, id+" active allocations", base, func(ctx context.Context) ([]*indexer.Allocation, error) {
		return n.Subgraph.ActiveAllocations(ctx, n.IndexerAddress)
	})
	n.RecentlyClosedAllocations = eventual.Poll(ctx, id+" recently closed allocations", base, func(ctx context.Context) ([]*indexer.Allocation, error) {
		epoch, err := n.CurrentEpoch(ctx)
		if err != nil {
			return nil, err
		}
		return n.Subgraph.RecentlyClosedAllocations(ctx, n.IndexerAddress, epoch-1)
	})
	n.ClaimableAllocations = eventual.Poll(ctx, id+" claimable allocations", base, func(ctx context.Context) ([]*indexer.Allocation, error) {
		epoch, err := n.CurrentEpoch(ctx)
		if err != nil {
			return nil, err
		}
		return n.Subgraph.ClaimableAllocations(ctx, n.IndexerAddress, epoch-channelDisputeEpochs)
	})
	n.Deployments = eventual.Poll(ctx, id+" network deployments", 2*base, n.Subgraph.Deployments)
}

// CurrentEpoch returns the protocol epoch from the cached network params.
func (n *Network) CurrentEpoch(ctx context.Context) (int64, error) {
	params, err := n.Params.Value(ctx)
	if err != nil {
		return 0, errs.Wrap(err, errs.IE023)
	}
	return params.CurrentEpoch, nil
}

// MaxAllocationEpochs returns the protocol's allocation lifetime bound.
func (n *Network) MaxAllocationEpochs(ctx context.Context) (int64, error) {
	params, err := n.Params.Value(ctx)
	if err != nil {
		return 0, errs.Wrap(err, errs.IE023)
	}
	return params.MaxAllocationEpochs, nil
}

// EpochStartBlock resolves the start block of an epoch to a number and
// hash pair. The number comes from the epoch oracle, the hash from the
// chain head the local graph node tracks.
func (n *Network) EpochStartBlock(ctx context.Context, epoch int64) (*indexer.BlockPointer, error) {
	key := strconv.FormatInt(epoch, 10)
	if cached, ok := n.epochBlocks.Get(key); ok {
		return cached.(*indexer.BlockPointer), nil
	}
	number, err := n.Epoch.EpochStartBlockNumber(ctx, n.Spec.NetworkIdentifier, epoch)
	if err != nil {
		return nil, err
	}
	chain := indexer.ResolveChainAlias(n.Spec.NetworkIdentifier)
	hash, err := n.GraphNode.BlockHashFromNumber(ctx, chain, number)
	if err != nil {
		return nil, err
	}
	block := &indexer.BlockPointer{Number: number, Hash: hash}
	n.epochBlocks.SetDefault(key, block)
	return block, nil
}

// FreshActiveAllocations bypasses the cached eventual and re-reads the
// active allocations from the network subgraph. The allocation reconciler
// calls this right before acting to close the race window between the
// cache and chain truth.
func (n *Network) FreshActiveAllocations(ctx context.Context) ([]*indexer.Allocation, error) {
	return n.Subgraph.ActiveAllocations(ctx, n.IndexerAddress)
}

// DisputableAllocations lists closed allocations with a nonzero POI across
// the given deployments since minClosedEpoch.
func (n *Network) DisputableAllocations(ctx context.Context, deployments []indexer.SubgraphDeploymentID, minClosedEpoch int64) ([]*indexer.Allocation, error) {
	return n.Subgraph.DisputableAllocations(ctx, deployments, minClosedEpoch)
}

// Register makes sure the indexer's query endpoint is registered with the
// protocol service registry.
func (n *Network) Register(ctx context.Context) error {
	registered, err := n.Contracts.ServiceRegistry.IsRegistered(ctx, n.IndexerAddress)
	if err != nil {
		return errs.Wrap(err, errs.IE012)
	}
	logger := log.WithFields(logrus.Fields{
		"protocolNetwork": n.Spec.NetworkIdentifier,
		"indexer":         n.IndexerAddress.Hex(),
	})
	if registered {
		logger.Debug("Indexer already registered")
		return nil
	}
	geohash, err := keys.Geohash(n.Spec.IndexerOptions.GeoCoordinates)
	if err != nil {
		return errs.Wrap(err, errs.IE012)
	}
	_, err = n.Transactor.Execute(ctx, "register", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return n.Contracts.ServiceRegistry.Register(opts, n.Spec.IndexerOptions.URL, geohash)
	})
	if err != nil {
		return errs.Wrap(err, errs.IE012)
	}
	logger.WithField("url", n.Spec.IndexerOptions.URL).Info("Registered indexer")
	return nil
}

// OperatorBalance reads the operator wallet's ETH balance.
func (n *Network) OperatorBalance(ctx context.Context) (*big.Int, error) {
	balance, err := n.provider.BalanceAt(ctx, n.OperatorAddress, nil)
	if err != nil {
		return nil, errs.Wrap(err, errs.IE041)
	}
	return balance, nil
}

// Ready blocks until every eventual the reconciler depends on has produced
// at least one value.
func (n *Network) Ready(ctx context.Context) error {
	if _, err := n.Params.Value(ctx); err != nil {
		return errors.Wrap(err, "network params")
	}
	if _, err := n.Paused.Value(ctx); err != nil {
		return errors.Wrap(err, "pause state")
	}
	if _, err := n.IsOperator.Value(ctx); err != nil {
		return errors.Wrap(err, "operator status")
	}
	if _, err := n.ActiveAllocations.Value(ctx); err != nil {
		return errors.Wrap(err, "active allocations")
	}
	if _, err := n.Deployments.Value(ctx); err != nil {
		return errors.Wrap(err, "network deployments")
	}
	return nil
}
