// Package config defines the per-network specification the agent runs on,
// its YAML loading and validation, and the parsing of network-tagged
// option values used to configure several networks from one flag set.
package config

import (
	"math/big"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/shared/errs"
)

var log = logrus.WithField("prefix", "config")

var validate = validator.New()

var errorNetworkSubgraphUnset = errors.New("one of networkSubgraph.url or networkSubgraph.deployment must be set")

// Gateway addresses the query gateway of one protocol network.
type Gateway struct {
	URL string `yaml:"url" validate:"required,url"`
}

// IndexerOptions carries the indexer's identity and allocation policy for
// one network.
type IndexerOptions struct {
	Address                   string                           `yaml:"address" validate:"required,eth_addr"`
	Mnemonic                  string                           `yaml:"mnemonic" validate:"required"`
	URL                       string                           `yaml:"url" validate:"required,url"`
	GeoCoordinates            string                           `yaml:"geoCoordinates"`
	Register                  *bool                            `yaml:"register"`
	RestakeRewards            *bool                            `yaml:"restakeRewards"`
	RebateClaimThreshold      float64                          `yaml:"rebateClaimThreshold"`
	RebateClaimBatchThreshold float64                          `yaml:"rebateClaimBatchThreshold"`
	RebateClaimMaxBatchSize   int                              `yaml:"rebateClaimMaxBatchSize"`
	PoiDisputeMonitoring      bool                             `yaml:"poiDisputeMonitoring"`
	PoiDisputableEpochs       int64                            `yaml:"poiDisputableEpochs"`
	DefaultAllocationAmount   float64                          `yaml:"defaultAllocationAmount"`
	AllocationManagementMode  indexer.AllocationManagementMode `yaml:"allocationManagementMode" validate:"omitempty,oneof=auto manual oversight"`
	AllocateOnNetworkSubgraph bool                             `yaml:"allocateOnNetworkSubgraph"`
	AutoMigrationSupport      bool                             `yaml:"autoMigrationSupport"`
}

// ShouldRegister reports whether the agent registers the indexer at start.
// Defaults to true when unset.
func (o *IndexerOptions) ShouldRegister() bool {
	return o.Register == nil || *o.Register
}

// RestakesRewards reports whether claimed rewards are restaked rather than
// withdrawn. Defaults to true when unset.
func (o *IndexerOptions) RestakesRewards() bool {
	return o.RestakeRewards == nil || *o.RestakeRewards
}

// TransactionMonitoring tunes the gas-bumping transaction manager.
type TransactionMonitoring struct {
	// GasIncreaseTimeout is how long to wait for a transaction to confirm
	// before re-sending it with a higher gas price, in seconds.
	GasIncreaseTimeout int64 `yaml:"gasIncreaseTimeout"`
	// GasIncreaseFactor multiplies the gas price on each re-send.
	GasIncreaseFactor float64 `yaml:"gasIncreaseFactor"`
	// GasPriceMax is the hard gas price ceiling in gwei.
	GasPriceMax int64 `yaml:"gasPriceMax"`
	// MaxTransactionAttempts bounds re-sends; zero means unbounded.
	MaxTransactionAttempts int `yaml:"maxTransactionAttempts"`
}

// SubgraphEndpoint locates a subgraph either by gateway URL or by the
// deployment to resolve on the local graph node. At least one of the two
// must be set for the network subgraph; when both are set the deployment
// is preferred.
type SubgraphEndpoint struct {
	URL        string `yaml:"url" validate:"omitempty,url"`
	Deployment string `yaml:"deployment"`
}

// Subgraphs groups the protocol subgraphs the agent observes.
type Subgraphs struct {
	NetworkSubgraph SubgraphEndpoint `yaml:"networkSubgraph"`
	EpochSubgraph   SubgraphEndpoint `yaml:"epochSubgraph"`
}

// NetworkProvider addresses the Ethereum JSON-RPC provider of the network.
type NetworkProvider struct {
	URL string `yaml:"url" validate:"required,url"`
	// PollingInterval overrides the agent-wide polling base, in
	// milliseconds. Zero keeps the agent default.
	PollingInterval int64 `yaml:"pollingInterval"`
}

// AddressBook overrides the built-in contract addresses of a network.
// Networks the agent does not know must set every address.
type AddressBook struct {
	Staking         string `yaml:"staking" validate:"omitempty,eth_addr"`
	EpochManager    string `yaml:"epochManager" validate:"omitempty,eth_addr"`
	ServiceRegistry string `yaml:"serviceRegistry" validate:"omitempty,eth_addr"`
	RewardsManager  string `yaml:"rewardsManager" validate:"omitempty,eth_addr"`
	Controller      string `yaml:"controller" validate:"omitempty,eth_addr"`
}

// NetworkSpecification is the complete configuration of one protocol
// network. The agent runs over an ordered list of these.
type NetworkSpecification struct {
	NetworkIdentifier     string                `yaml:"networkIdentifier" validate:"required"`
	Gateway               Gateway               `yaml:"gateway"`
	IndexerOptions        IndexerOptions        `yaml:"indexerOptions"`
	TransactionMonitoring TransactionMonitoring `yaml:"transactionMonitoring"`
	Subgraphs             Subgraphs             `yaml:"subgraphs"`
	NetworkProvider       NetworkProvider       `yaml:"networkProvider"`
	AddressBook           AddressBook           `yaml:"addressBook"`
}

// Default knobs, applied by Normalize when the YAML leaves them unset.
const (
	DefaultGeoCoordinates            = "31.780715 -41.179504"
	DefaultRebateClaimThreshold      = 200
	DefaultRebateClaimBatchThreshold = 2000
	DefaultRebateClaimMaxBatchSize   = 100
	DefaultPoiDisputableEpochs       = 1
	DefaultAllocationAmount          = 0.01
	DefaultGasIncreaseTimeout        = 240
	DefaultGasIncreaseFactor         = 1.2
	DefaultGasPriceMaxGwei           = 100
)

// Normalize resolves the network identifier to CAIP-2 form and fills
// defaulted knobs. It must run before Validate.
func (s *NetworkSpecification) Normalize() error {
	id, err := indexer.ResolveChainID(s.NetworkIdentifier)
	if err != nil {
		return errs.Wrap(err, errs.IE043)
	}
	s.NetworkIdentifier = id

	if s.IndexerOptions.GeoCoordinates == "" {
		s.IndexerOptions.GeoCoordinates = DefaultGeoCoordinates
	}
	if s.IndexerOptions.RebateClaimThreshold == 0 {
		s.IndexerOptions.RebateClaimThreshold = DefaultRebateClaimThreshold
	}
	if s.IndexerOptions.RebateClaimBatchThreshold == 0 {
		s.IndexerOptions.RebateClaimBatchThreshold = DefaultRebateClaimBatchThreshold
	}
	if s.IndexerOptions.RebateClaimMaxBatchSize == 0 {
		s.IndexerOptions.RebateClaimMaxBatchSize = DefaultRebateClaimMaxBatchSize
	}
	if s.IndexerOptions.PoiDisputableEpochs == 0 {
		s.IndexerOptions.PoiDisputableEpochs = DefaultPoiDisputableEpochs
	}
	if s.IndexerOptions.DefaultAllocationAmount == 0 {
		s.IndexerOptions.DefaultAllocationAmount = DefaultAllocationAmount
	}
	if s.IndexerOptions.AllocationManagementMode == "" {
		s.IndexerOptions.AllocationManagementMode = indexer.ManagementAuto
	}
	if s.TransactionMonitoring.GasIncreaseTimeout == 0 {
		s.TransactionMonitoring.GasIncreaseTimeout = DefaultGasIncreaseTimeout
	}
	if s.TransactionMonitoring.GasIncreaseFactor == 0 {
		s.TransactionMonitoring.GasIncreaseFactor = DefaultGasIncreaseFactor
	}
	if s.TransactionMonitoring.GasPriceMax == 0 {
		s.TransactionMonitoring.GasPriceMax = DefaultGasPriceMaxGwei
	}
	return nil
}

// Validate checks the specification against its schema.
func (s *NetworkSpecification) Validate() error {
	if err := validate.Struct(s); err != nil {
		return errs.Wrap(err, errs.IE043)
	}
	if s.Subgraphs.NetworkSubgraph.URL == "" && s.Subgraphs.NetworkSubgraph.Deployment == "" {
		return errs.Wrap(errorNetworkSubgraphUnset, errs.IE043)
	}
	if s.Subgraphs.NetworkSubgraph.Deployment != "" {
		if _, err := indexer.NewSubgraphDeploymentID(s.Subgraphs.NetworkSubgraph.Deployment); err != nil {
			return errs.Wrap(err, errs.IE043)
		}
	}
	return nil
}

// GRT converts a whole-token amount into its 18 decimal wei representation,
// rounded to the nearest wei.
func GRT(amount float64) *big.Int {
	wei := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(1e18))
	wei.Add(wei, big.NewFloat(0.5))
	out, _ := wei.Int(nil)
	return out
}
