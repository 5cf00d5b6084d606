package flags

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/graphops/indexer-agent/config"
	"github.com/graphops/indexer-agent/indexer"
)

// BuildSpecifications assembles network specifications from the single
// command line flag set. Tagged option values (<network>:<value>) yield one
// specification per network; untagged values yield a single specification
// on the default protocol network. Every specification shares the indexer
// identity and policy flags.
func BuildSpecifications(cliCtx *cli.Context) ([]*config.NetworkSpecification, error) {
	endpoints, err := config.ResolveNetworkOptions(config.NetworkOptions{
		Providers:          cliCtx.StringSlice(EthereumProviderFlag.Name),
		EpochSubgraphs:     cliCtx.StringSlice(EpochSubgraphEndpointFlag.Name),
		NetworkSubgraphs:   cliCtx.StringSlice(NetworkSubgraphEndpointFlag.Name),
		NetworkDeployments: cliCtx.StringSlice(NetworkSubgraphDeploymentFlag.Name),
	})
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return nil, errors.New("no network provider configured, set --ethereum")
	}

	register := cliCtx.Bool(RegisterFlag.Name)
	restake := cliCtx.Bool(RestakeRewardsFlag.Name)

	tags := make([]string, 0, len(endpoints))
	for tag := range endpoints {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	specs := make([]*config.NetworkSpecification, 0, len(endpoints))
	for _, tag := range tags {
		ep := endpoints[tag]
		id := ep.NetworkID
		if id == "" {
			id = cliCtx.String(DefaultProtocolNetworkFlag.Name)
		}
		if id == "" {
			return nil, errors.New("untagged network options require --default-protocol-network")
		}
		if ep.Provider == nil {
			return nil, errors.Errorf("no Ethereum provider configured for network %q", id)
		}

		spec := &config.NetworkSpecification{
			NetworkIdentifier: id,
			Gateway: config.Gateway{
				URL: cliCtx.String(GatewayEndpointFlag.Name),
			},
			IndexerOptions: config.IndexerOptions{
				Address:                   cliCtx.String(IndexerAddressFlag.Name),
				Mnemonic:                  cliCtx.String(MnemonicFlag.Name),
				URL:                       cliCtx.String(PublicIndexerURLFlag.Name),
				GeoCoordinates:            cliCtx.String(IndexerGeoCoordinatesFlag.Name),
				Register:                  &register,
				RestakeRewards:            &restake,
				RebateClaimThreshold:      cliCtx.Float64(RebateClaimThresholdFlag.Name),
				RebateClaimBatchThreshold: cliCtx.Float64(RebateClaimBatchThresholdFlag.Name),
				RebateClaimMaxBatchSize:   cliCtx.Int(RebateClaimMaxBatchSizeFlag.Name),
				PoiDisputeMonitoring:      cliCtx.Bool(PoiDisputeMonitoringFlag.Name),
				PoiDisputableEpochs:       cliCtx.Int64(PoiDisputableEpochsFlag.Name),
				DefaultAllocationAmount:   cliCtx.Float64(DefaultAllocationAmountFlag.Name),
				AllocationManagementMode:  indexer.AllocationManagementMode(cliCtx.String(AllocationManagementFlag.Name)),
				AllocateOnNetworkSubgraph: cliCtx.Bool(AllocateOnNetworkSubgraphFlag.Name),
				AutoMigrationSupport:      cliCtx.Bool(AutoMigrationSupportFlag.Name),
			},
			TransactionMonitoring: config.TransactionMonitoring{
				GasIncreaseTimeout:     cliCtx.Int64(GasIncreaseTimeoutFlag.Name),
				GasIncreaseFactor:      cliCtx.Float64(GasIncreaseFactorFlag.Name),
				GasPriceMax:            cliCtx.Int64(GasPriceMaxFlag.Name),
				MaxTransactionAttempts: cliCtx.Int(MaxTransactionAttemptsFlag.Name),
			},
			NetworkProvider: config.NetworkProvider{
				URL: ep.Provider.String(),
			},
		}
		if ep.EpochSubgraph != nil {
			spec.Subgraphs.EpochSubgraph.URL = ep.EpochSubgraph.String()
		}
		if ep.NetworkSubgraph != nil {
			spec.Subgraphs.NetworkSubgraph.URL = ep.NetworkSubgraph.String()
		}
		if ep.NetworkDeployment != nil {
			spec.Subgraphs.NetworkSubgraph.Deployment = ep.NetworkDeployment.IPFSHash()
		}

		if err := spec.Normalize(); err != nil {
			return nil, err
		}
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	// A default network that matches none of the configured networks would
	// silently scope rules and queries to a network the agent never serves.
	if def := cliCtx.String(DefaultProtocolNetworkFlag.Name); def != "" {
		id, err := indexer.ResolveChainID(def)
		if err != nil {
			return nil, errors.Wrap(err, "invalid --default-protocol-network")
		}
		found := false
		for _, spec := range specs {
			if spec.NetworkIdentifier == id {
				found = true
				break
			}
		}
		if !found {
			return nil, errors.Errorf("default protocol network %q matches no configured network", def)
		}
	}
	return specs, nil
}
