// Package contracts is the agent's typed surface over the protocol
// contracts: staking, epoch manager, service registry, rewards manager
// and the pause controller, plus the gas-bumping transaction manager that
// serializes the operator wallet. Bindings are hand-rolled over
// bind.BoundContract with minimal ABI fragments.
package contracts

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/graphops/indexer-agent/config"
	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/shared/retry"
)

// AddressBook holds the deployed contract addresses of one protocol
// network.
type AddressBook struct {
	Staking         common.Address
	EpochManager    common.Address
	ServiceRegistry common.Address
	RewardsManager  common.Address
	Controller      common.Address
}

// defaultAddressBooks covers the networks the protocol is deployed on.
// Other networks must supply a full address book in their spec.
var defaultAddressBooks = map[string]AddressBook{
	"eip155:1": {
		Staking:         common.HexToAddress("0xF55041E37E12cD407ad00CE2910B8269B01263b9"),
		EpochManager:    common.HexToAddress("0x64F990Bf16552A693dCB043BB7bf3866c5E05DdB"),
		ServiceRegistry: common.HexToAddress("0xaD0C9DaCf1e515615b0581c8D7E295E296Ec26E6"),
		RewardsManager:  common.HexToAddress("0x9Ac758AB77733b4150A901ebd659cbF8cB93ED66"),
		Controller:      common.HexToAddress("0x24CCD4D3Ac8529fF08c58F74ff6755036E616117"),
	},
	"eip155:42161": {
		Staking:         common.HexToAddress("0x00669A4CF01450B64E8A2A20E9b1FCB71E61eF03"),
		EpochManager:    common.HexToAddress("0x5A843145c43d328B9bB7a4401d94918f131bB281"),
		ServiceRegistry: common.HexToAddress("0x072884c745c0A23144753335776c99BE22588f8A"),
		RewardsManager:  common.HexToAddress("0x971B9d3d0Ae3ECa029CAB5eA1fB0F72c85e6a525"),
		Controller:      common.HexToAddress("0x0a8491544221dd212964fbb96487467291b2C97e"),
	},
}

// ResolveAddressBook returns the contract addresses for a network spec,
// starting from the built-in book and applying spec overrides. Every
// contract must end up with an address.
func ResolveAddressBook(spec *config.NetworkSpecification) (AddressBook, error) {
	book := defaultAddressBooks[spec.NetworkIdentifier]
	overrides := []struct {
		name   string
		value  string
		target *common.Address
	}{
		{"staking", spec.AddressBook.Staking, &book.Staking},
		{"epochManager", spec.AddressBook.EpochManager, &book.EpochManager},
		{"serviceRegistry", spec.AddressBook.ServiceRegistry, &book.ServiceRegistry},
		{"rewardsManager", spec.AddressBook.RewardsManager, &book.RewardsManager},
		{"controller", spec.AddressBook.Controller, &book.Controller},
	}
	for _, o := range overrides {
		if o.value != "" {
			*o.target = common.HexToAddress(o.value)
		}
	}
	for _, o := range overrides {
		if *o.target == (common.Address{}) {
			return AddressBook{}, errors.Errorf("no %s contract address known for network %s", o.name, spec.NetworkIdentifier)
		}
	}
	return book, nil
}

// Contracts bundles the bound protocol contracts of one network.
type Contracts struct {
	Staking         *Staking
	EpochManager    *EpochManager
	ServiceRegistry *ServiceRegistry
	RewardsManager  *RewardsManager
	Controller      *Controller
}

// New binds the protocol contracts against a backend.
func New(backend bind.ContractBackend, book AddressBook) (*Contracts, error) {
	staking, err := bindContract(stakingABI, book.Staking, backend)
	if err != nil {
		return nil, err
	}
	epochManager, err := bindContract(epochManagerABI, book.EpochManager, backend)
	if err != nil {
		return nil, err
	}
	serviceRegistry, err := bindContract(serviceRegistryABI, book.ServiceRegistry, backend)
	if err != nil {
		return nil, err
	}
	rewardsManager, err := bindContract(rewardsManagerABI, book.RewardsManager, backend)
	if err != nil {
		return nil, err
	}
	controller, err := bindContract(controllerABI, book.Controller, backend)
	if err != nil {
		return nil, err
	}
	return &Contracts{
		Staking:         &Staking{staking},
		EpochManager:    &EpochManager{epochManager},
		ServiceRegistry: &ServiceRegistry{serviceRegistry},
		RewardsManager:  &RewardsManager{rewardsManager},
		Controller:      &Controller{controller},
	}, nil
}

type boundContract struct {
	contract *bind.BoundContract
	address  common.Address
}

func bindContract(rawABI string, address common.Address, backend bind.ContractBackend) (boundContract, error) {
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		return boundContract{}, err
	}
	return boundContract{
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		address:  address,
	}, nil
}

// Address returns the deployed address the binding points at.
func (b *boundContract) Address() common.Address {
	return b.address
}

// call runs a read-only contract method inside the standard retry
// envelope.
func (b *boundContract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	return retry.DoWithResult(ctx, method, func() ([]interface{}, error) {
		var out []interface{}
		err := b.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...)
		return out, err
	})
}

// Staking wraps the protocol staking contract.
type Staking struct {
	boundContract
}

// OnChainAllocation is the staking contract's allocation record.
type OnChainAllocation struct {
	Indexer                     common.Address
	SubgraphDeploymentID        [32]byte
	Tokens                      *big.Int
	CreatedAtEpoch              *big.Int
	ClosedAtEpoch               *big.Int
	CollectedFees               *big.Int
	EffectiveAllocation         *big.Int
	AccRewardsPerAllocatedToken *big.Int
}

// AllocationState returns the contract's lifecycle state for an
// allocation id. Unknown ids report AllocationNull.
func (s *Staking) AllocationState(ctx context.Context, allocationID common.Address) (indexer.AllocationState, error) {
	out, err := s.call(ctx, "getAllocationState", allocationID)
	if err != nil {
		return indexer.AllocationNull, err
	}
	state := *abi.ConvertType(out[0], new(uint8)).(*uint8)
	return indexer.AllocationState(state), nil
}

// GetAllocation returns the full on-chain allocation record.
func (s *Staking) GetAllocation(ctx context.Context, allocationID common.Address) (*OnChainAllocation, error) {
	out, err := s.call(ctx, "getAllocation", allocationID)
	if err != nil {
		return nil, err
	}
	record := *abi.ConvertType(out[0], new(OnChainAllocation)).(*OnChainAllocation)
	return &record, nil
}

// IndexerCapacity returns the stake still available for new allocations,
// including delegated capacity.
func (s *Staking) IndexerCapacity(ctx context.Context, indexerAddress common.Address) (*big.Int, error) {
	out, err := s.call(ctx, "getIndexerCapacity", indexerAddress)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// StakedTokens returns the indexer's own staked tokens.
func (s *Staking) StakedTokens(ctx context.Context, indexerAddress common.Address) (*big.Int, error) {
	out, err := s.call(ctx, "getIndexerStakedTokens", indexerAddress)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// IsOperator reports whether operator may transact on behalf of the
// indexer.
func (s *Staking) IsOperator(ctx context.Context, operator, indexerAddress common.Address) (bool, error) {
	out, err := s.call(ctx, "isOperator", operator, indexerAddress)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// Allocate builds an allocateFrom transaction. The metadata slot is
// always zero; the protocol does not use it.
func (s *Staking) Allocate(opts *bind.TransactOpts, indexerAddress common.Address, deployment indexer.SubgraphDeploymentID, tokens *big.Int, allocationID common.Address, proof []byte) (*types.Transaction, error) {
	return s.contract.Transact(opts, "allocateFrom", indexerAddress, deployment.Bytes32(), tokens, allocationID, [32]byte{}, proof)
}

// CloseAllocation builds a closeAllocation transaction.
func (s *Staking) CloseAllocation(opts *bind.TransactOpts, allocationID common.Address, poi common.Hash) (*types.Transaction, error) {
	return s.contract.Transact(opts, "closeAllocation", allocationID, [32]byte(poi))
}

// ClaimMany builds a claimMany transaction for a batch of rebate claims.
func (s *Staking) ClaimMany(opts *bind.TransactOpts, allocationIDs []common.Address, restake bool) (*types.Transaction, error) {
	return s.contract.Transact(opts, "claimMany", allocationIDs, restake)
}

// EpochManager wraps the protocol epoch manager.
type EpochManager struct {
	boundContract
}

// CurrentEpoch returns the epoch manager's current epoch number.
func (e *EpochManager) CurrentEpoch(ctx context.Context) (int64, error) {
	out, err := e.call(ctx, "currentEpoch")
	if err != nil {
		return 0, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int).Int64(), nil
}

// CurrentEpochBlock returns the block the current epoch started at.
func (e *EpochManager) CurrentEpochBlock(ctx context.Context) (uint64, error) {
	out, err := e.call(ctx, "currentEpochBlock")
	if err != nil {
		return 0, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int).Uint64(), nil
}

// ServiceRegistry wraps the protocol service registry.
type ServiceRegistry struct {
	boundContract
}

// IsRegistered reports whether the indexer has registered its service
// endpoint.
func (r *ServiceRegistry) IsRegistered(ctx context.Context, indexerAddress common.Address) (bool, error) {
	out, err := r.call(ctx, "isRegistered", indexerAddress)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// Register builds a register transaction for the indexer's query
// endpoint and location.
func (r *ServiceRegistry) Register(opts *bind.TransactOpts, url, geohash string) (*types.Transaction, error) {
	return r.contract.Transact(opts, "register", url, geohash)
}

// RewardsManager wraps the protocol rewards manager.
type RewardsManager struct {
	boundContract
}

// GetRewards returns the indexing rewards an allocation would earn if
// closed now.
func (r *RewardsManager) GetRewards(ctx context.Context, allocationID common.Address) (*big.Int, error) {
	out, err := r.call(ctx, "getRewards", allocationID)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// Controller wraps the protocol controller, the source of the protocol
// pause flag.
type Controller struct {
	boundContract
}

// Paused reports whether the protocol is paused on chain.
func (c *Controller) Paused(ctx context.Context) (bool, error) {
	out, err := c.call(ctx, "paused")
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}
