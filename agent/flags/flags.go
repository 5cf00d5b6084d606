// Package flags defines the domain command line flags of the indexer
// agent: the indexer identity, the graph node endpoints and the protocol
// network endpoints used when the agent is configured from one flag set
// rather than network specification files.
package flags

import (
	"github.com/urfave/cli/v2"

	"github.com/graphops/indexer-agent/config"
)

var (
	// EthereumProviderFlag defines the Ethereum JSON-RPC endpoints, one
	// per protocol network, optionally prefixed with a network tag.
	EthereumProviderFlag = &cli.StringSliceFlag{
		Name:    "ethereum",
		Aliases: []string{"network-provider"},
		Usage:   "Ethereum node or provider URL, optionally tagged as <network>:<url>",
		EnvVars: []string{"INDEXER_AGENT_ETHEREUM"},
	}
	// MnemonicFlag is the operator mnemonic.
	MnemonicFlag = &cli.StringFlag{
		Name:    "mnemonic",
		Usage:   "Mnemonic for the operator wallet",
		EnvVars: []string{"INDEXER_AGENT_MNEMONIC"},
	}
	// IndexerAddressFlag is the on-chain indexer account.
	IndexerAddressFlag = &cli.StringFlag{
		Name:    "indexer-address",
		Usage:   "Ethereum address of the indexer",
		EnvVars: []string{"INDEXER_AGENT_INDEXER_ADDRESS"},
	}
	// GraphNodeQueryEndpointFlag locates the graph node query API.
	GraphNodeQueryEndpointFlag = &cli.StringFlag{
		Name:    "graph-node-query-endpoint",
		Usage:   "Graph node endpoint for querying subgraphs",
		EnvVars: []string{"INDEXER_AGENT_GRAPH_NODE_QUERY_ENDPOINT"},
	}
	// GraphNodeStatusEndpointFlag locates the indexing status API.
	GraphNodeStatusEndpointFlag = &cli.StringFlag{
		Name:    "graph-node-status-endpoint",
		Usage:   "Graph node endpoint for indexing statuses",
		EnvVars: []string{"INDEXER_AGENT_GRAPH_NODE_STATUS_ENDPOINT"},
	}
	// GraphNodeAdminEndpointFlag locates the deployment admin API.
	GraphNodeAdminEndpointFlag = &cli.StringFlag{
		Name:    "graph-node-admin-endpoint",
		Usage:   "Graph node endpoint for managing deployments",
		EnvVars: []string{"INDEXER_AGENT_GRAPH_NODE_ADMIN_ENDPOINT"},
	}
	// GatewayEndpointFlag locates the query gateway of the network.
	GatewayEndpointFlag = &cli.StringFlag{
		Name:    "gateway-endpoint",
		Usage:   "Gateway endpoint of the protocol network",
		EnvVars: []string{"INDEXER_AGENT_GATEWAY_ENDPOINT"},
	}
	// PublicIndexerURLFlag is the query endpoint registered on chain.
	PublicIndexerURLFlag = &cli.StringFlag{
		Name:    "public-indexer-url",
		Usage:   "Public URL of the indexer's query endpoint",
		EnvVars: []string{"INDEXER_AGENT_PUBLIC_INDEXER_URL"},
	}
	// IndexNodeIDsFlag names the index nodes deployments are assigned to.
	IndexNodeIDsFlag = &cli.StringSliceFlag{
		Name:    "index-node-ids",
		Usage:   "Node IDs of the graph nodes to assign deployments to",
		EnvVars: []string{"INDEXER_AGENT_INDEX_NODE_IDS"},
	}
	// NetworkSubgraphEndpointFlag queries the network subgraph by URL.
	NetworkSubgraphEndpointFlag = &cli.StringSliceFlag{
		Name:    "network-subgraph-endpoint",
		Usage:   "Network subgraph endpoint, optionally tagged as <network>:<url>",
		EnvVars: []string{"INDEXER_AGENT_NETWORK_SUBGRAPH_ENDPOINT"},
	}
	// NetworkSubgraphDeploymentFlag resolves the network subgraph on the
	// local graph node instead.
	NetworkSubgraphDeploymentFlag = &cli.StringSliceFlag{
		Name:    "network-subgraph-deployment",
		Usage:   "Deployment of the network subgraph to index locally, optionally tagged as <network>:<deployment>",
		EnvVars: []string{"INDEXER_AGENT_NETWORK_SUBGRAPH_DEPLOYMENT"},
	}
	// EpochSubgraphEndpointFlag queries the epoch block oracle.
	EpochSubgraphEndpointFlag = &cli.StringSliceFlag{
		Name:    "epoch-subgraph-endpoint",
		Usage:   "Epoch block oracle subgraph endpoint, optionally tagged as <network>:<url>",
		EnvVars: []string{"INDEXER_AGENT_EPOCH_SUBGRAPH_ENDPOINT"},
	}
	// DefaultProtocolNetworkFlag selects the network untagged management
	// commands act on.
	DefaultProtocolNetworkFlag = &cli.StringFlag{
		Name:    "default-protocol-network",
		Usage:   "Protocol network untagged option values belong to",
		EnvVars: []string{"INDEXER_AGENT_DEFAULT_PROTOCOL_NETWORK"},
	}
	// DefaultAllocationAmountFlag sizes allocations with no explicit rule
	// amount, in GRT.
	DefaultAllocationAmountFlag = &cli.Float64Flag{
		Name:    "default-allocation-amount",
		Usage:   "Default amount of GRT per allocation",
		Value:   config.DefaultAllocationAmount,
		EnvVars: []string{"INDEXER_AGENT_DEFAULT_ALLOCATION_AMOUNT"},
	}
	// IndexerGeoCoordinatesFlag locates the indexer for the registry.
	IndexerGeoCoordinatesFlag = &cli.StringFlag{
		Name:    "indexer-geo-coordinates",
		Usage:   "Coordinates of the indexer, as \"<latitude> <longitude>\"",
		Value:   config.DefaultGeoCoordinates,
		EnvVars: []string{"INDEXER_AGENT_INDEXER_GEO_COORDINATES"},
	}
	// RegisterFlag controls service registry registration at start.
	RegisterFlag = &cli.BoolFlag{
		Name:    "register",
		Usage:   "Register the indexer on chain at startup",
		Value:   true,
		EnvVars: []string{"INDEXER_AGENT_REGISTER"},
	}
	// RestakeRewardsFlag keeps claimed rewards staked.
	RestakeRewardsFlag = &cli.BoolFlag{
		Name:    "restake-rewards",
		Usage:   "Restake claimed indexer rewards instead of withdrawing them",
		Value:   true,
		EnvVars: []string{"INDEXER_AGENT_RESTAKE_REWARDS"},
	}
	// RebateClaimThresholdFlag is the per-allocation claim floor in GRT.
	RebateClaimThresholdFlag = &cli.Float64Flag{
		Name:    "rebate-claim-threshold",
		Usage:   "Minimum query fees of an allocation before its rebate is worth claiming, in GRT",
		Value:   config.DefaultRebateClaimThreshold,
		EnvVars: []string{"INDEXER_AGENT_REBATE_CLAIM_THRESHOLD"},
	}
	// RebateClaimBatchThresholdFlag is the batch claim floor in GRT.
	RebateClaimBatchThresholdFlag = &cli.Float64Flag{
		Name:    "rebate-claim-batch-threshold",
		Usage:   "Minimum total query fees before a batch claim is submitted, in GRT",
		Value:   config.DefaultRebateClaimBatchThreshold,
		EnvVars: []string{"INDEXER_AGENT_REBATE_CLAIM_BATCH_THRESHOLD"},
	}
	// RebateClaimMaxBatchSizeFlag bounds a claim batch.
	RebateClaimMaxBatchSizeFlag = &cli.IntFlag{
		Name:    "rebate-claim-max-batch-size",
		Usage:   "Maximum number of rebates claimed in one transaction",
		Value:   config.DefaultRebateClaimMaxBatchSize,
		EnvVars: []string{"INDEXER_AGENT_REBATE_CLAIM_MAX_BATCH_SIZE"},
	}
	// PoiDisputeMonitoringFlag enables the POI dispute monitor.
	PoiDisputeMonitoringFlag = &cli.BoolFlag{
		Name:    "poi-dispute-monitoring",
		Usage:   "Monitor the POIs of closed allocations and store potential disputes",
		EnvVars: []string{"INDEXER_AGENT_POI_DISPUTE_MONITORING"},
	}
	// PoiDisputableEpochsFlag is the dispute look-back window.
	PoiDisputableEpochsFlag = &cli.Int64Flag{
		Name:    "poi-disputable-epochs",
		Usage:   "Past epochs to check for disputable POIs",
		Value:   config.DefaultPoiDisputableEpochs,
		EnvVars: []string{"INDEXER_AGENT_POI_DISPUTABLE_EPOCHS"},
	}
	// OffchainSubgraphsFlag lists deployments indexed without allocating.
	OffchainSubgraphsFlag = &cli.StringSliceFlag{
		Name:    "offchain-subgraphs",
		Usage:   "Subgraph deployments to index regardless of allocation decisions",
		EnvVars: []string{"INDEXER_AGENT_OFFCHAIN_SUBGRAPHS"},
	}
	// AllocationManagementFlag selects auto, manual or oversight mode.
	AllocationManagementFlag = &cli.StringFlag{
		Name:    "allocation-management",
		Usage:   "Allocation management mode (auto, manual, oversight)",
		Value:   "auto",
		EnvVars: []string{"INDEXER_AGENT_ALLOCATION_MANAGEMENT"},
	}
	// AllocateOnNetworkSubgraphFlag allows allocating to the network
	// subgraph itself.
	AllocateOnNetworkSubgraphFlag = &cli.BoolFlag{
		Name:    "allocate-on-network-subgraph",
		Usage:   "Allocate towards the network subgraph deployment",
		EnvVars: []string{"INDEXER_AGENT_ALLOCATE_ON_NETWORK_SUBGRAPH"},
	}
	// AutoMigrationSupportFlag closes L1 allocations of transferring
	// subgraphs automatically.
	AutoMigrationSupportFlag = &cli.BoolFlag{
		Name:    "enable-auto-migration-support",
		Usage:   "Close L1 allocations of subgraphs that started transferring to L2",
		EnvVars: []string{"INDEXER_AGENT_ENABLE_AUTO_MIGRATION_SUPPORT"},
	}
	// PollingIntervalFlag is the refresh base in milliseconds.
	PollingIntervalFlag = &cli.Int64Flag{
		Name:    "polling-interval",
		Usage:   "Polling base interval for network state, in milliseconds",
		Value:   120000,
		EnvVars: []string{"INDEXER_AGENT_POLLING_INTERVAL"},
	}
	// GasIncreaseTimeoutFlag re-prices unconfirmed transactions.
	GasIncreaseTimeoutFlag = &cli.Int64Flag{
		Name:    "gas-increase-timeout",
		Usage:   "Seconds to wait for a transaction before re-sending with more gas",
		Value:   config.DefaultGasIncreaseTimeout,
		EnvVars: []string{"INDEXER_AGENT_GAS_INCREASE_TIMEOUT"},
	}
	// GasIncreaseFactorFlag scales the gas price on each re-send.
	GasIncreaseFactorFlag = &cli.Float64Flag{
		Name:    "gas-increase-factor",
		Usage:   "Factor the gas price is multiplied by on each re-send",
		Value:   config.DefaultGasIncreaseFactor,
		EnvVars: []string{"INDEXER_AGENT_GAS_INCREASE_FACTOR"},
	}
	// GasPriceMaxFlag is the hard ceiling in gwei.
	GasPriceMaxFlag = &cli.Int64Flag{
		Name:    "gas-price-max",
		Usage:   "Never pay more than this gas price, in gwei",
		Value:   config.DefaultGasPriceMaxGwei,
		EnvVars: []string{"INDEXER_AGENT_GAS_PRICE_MAX"},
	}
	// MaxTransactionAttemptsFlag bounds re-sends, zero is unbounded.
	MaxTransactionAttemptsFlag = &cli.IntFlag{
		Name:    "max-transaction-attempts",
		Usage:   "Maximum re-sends of an unconfirmed transaction, 0 for unlimited",
		EnvVars: []string{"INDEXER_AGENT_MAX_TRANSACTION_ATTEMPTS"},
	}
)
