package flags

import (
	"flag"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/graphops/indexer-agent/config"
	"github.com/graphops/indexer-agent/shared/testutil/assert"
	"github.com/graphops/indexer-agent/shared/testutil/require"
)

const testMnemonic = "myth like bonus scare over problem client lizard pioneer submit female collect"

func newContext(t *testing.T, configure func(set *flag.FlagSet)) *cli.Context {
	t.Helper()
	app := cli.App{}
	set := flag.NewFlagSet("test", 0)
	set.String(MnemonicFlag.Name, testMnemonic, "test")
	set.String(IndexerAddressFlag.Name, "0xc61127cdfb5380df4214b0200b9a07c7c49d34f9", "test")
	set.String(GatewayEndpointFlag.Name, "https://gateway.example", "test")
	set.String(PublicIndexerURLFlag.Name, "https://indexer.example", "test")
	configure(set)
	return cli.NewContext(&app, set, nil)
}

func TestBuildSpecifications_Tagged(t *testing.T) {
	cliCtx := newContext(t, func(set *flag.FlagSet) {
		set.Var(cli.NewStringSlice(
			"mainnet:https://eth.example/rpc",
			"arbitrum-one:https://arb.example/rpc",
		), EthereumProviderFlag.Name, "test")
		set.Var(cli.NewStringSlice(
			"mainnet:https://gateway.example/network-mainnet",
			"arbitrum-one:https://gateway.example/network-arbitrum",
		), NetworkSubgraphEndpointFlag.Name, "test")
		set.Var(cli.NewStringSlice(
			"mainnet:https://gateway.example/epoch-mainnet",
			"arbitrum-one:https://gateway.example/epoch-arbitrum",
		), EpochSubgraphEndpointFlag.Name, "test")
	})

	specs, err := BuildSpecifications(cliCtx)
	require.NoError(t, err)
	require.Equal(t, 2, len(specs))

	byID := make(map[string]*config.NetworkSpecification)
	for _, spec := range specs {
		byID[spec.NetworkIdentifier] = spec
	}
	mainnet := byID["eip155:1"]
	require.NotNil(t, mainnet)
	assert.Equal(t, "https://eth.example/rpc", mainnet.NetworkProvider.URL)
	assert.Equal(t, "https://gateway.example/network-mainnet", mainnet.Subgraphs.NetworkSubgraph.URL)
	assert.Equal(t, "https://gateway.example/epoch-mainnet", mainnet.Subgraphs.EpochSubgraph.URL)
	assert.Equal(t, testMnemonic, mainnet.IndexerOptions.Mnemonic)

	// Defaults fill in for knobs the flag set left unset.
	assert.Equal(t, float64(config.DefaultRebateClaimThreshold), mainnet.IndexerOptions.RebateClaimThreshold)
	assert.Equal(t, int64(config.DefaultGasIncreaseTimeout), mainnet.TransactionMonitoring.GasIncreaseTimeout)

	arbitrum := byID["eip155:42161"]
	require.NotNil(t, arbitrum)
	assert.Equal(t, "https://arb.example/rpc", arbitrum.NetworkProvider.URL)
}

func TestBuildSpecifications_UntaggedUsesDefaultNetwork(t *testing.T) {
	cliCtx := newContext(t, func(set *flag.FlagSet) {
		set.Var(cli.NewStringSlice("https://eth.example/rpc"), EthereumProviderFlag.Name, "test")
		set.Var(cli.NewStringSlice("https://gateway.example/network"), NetworkSubgraphEndpointFlag.Name, "test")
		set.Var(cli.NewStringSlice("https://gateway.example/epoch"), EpochSubgraphEndpointFlag.Name, "test")
		set.String(DefaultProtocolNetworkFlag.Name, "arbitrum-one", "test")
	})

	specs, err := BuildSpecifications(cliCtx)
	require.NoError(t, err)
	require.Equal(t, 1, len(specs))
	assert.Equal(t, "eip155:42161", specs[0].NetworkIdentifier)
}

func TestBuildSpecifications_UntaggedWithoutDefaultNetworkFails(t *testing.T) {
	cliCtx := newContext(t, func(set *flag.FlagSet) {
		set.Var(cli.NewStringSlice("https://eth.example/rpc"), EthereumProviderFlag.Name, "test")
		set.Var(cli.NewStringSlice("https://gateway.example/network"), NetworkSubgraphEndpointFlag.Name, "test")
	})

	_, err := BuildSpecifications(cliCtx)
	require.ErrorContains(t, "default-protocol-network", err)
}

func TestBuildSpecifications_DefaultNetworkMustBeConfigured(t *testing.T) {
	cliCtx := newContext(t, func(set *flag.FlagSet) {
		set.Var(cli.NewStringSlice("mainnet:https://eth.example/rpc"), EthereumProviderFlag.Name, "test")
		set.Var(cli.NewStringSlice("mainnet:https://gateway.example/network"), NetworkSubgraphEndpointFlag.Name, "test")
		set.Var(cli.NewStringSlice("mainnet:https://gateway.example/epoch"), EpochSubgraphEndpointFlag.Name, "test")
		set.String(DefaultProtocolNetworkFlag.Name, "arbitrum-one", "test")
	})

	_, err := BuildSpecifications(cliCtx)
	require.ErrorContains(t, "matches no configured network", err)
}

func TestBuildSpecifications_NoProviderFails(t *testing.T) {
	cliCtx := newContext(t, func(*flag.FlagSet) {})
	_, err := BuildSpecifications(cliCtx)
	require.NotNil(t, err)
}

func TestBuildSpecifications_NetworkSubgraphByDeployment(t *testing.T) {
	deployment := "QmWmyoMoctfbAaiEs2G46gpeUmhqFRDW6KWo64y5r581Vz"
	cliCtx := newContext(t, func(set *flag.FlagSet) {
		set.Var(cli.NewStringSlice("mainnet:https://eth.example/rpc"), EthereumProviderFlag.Name, "test")
		set.Var(cli.NewStringSlice("mainnet:"+deployment), NetworkSubgraphDeploymentFlag.Name, "test")
		set.Var(cli.NewStringSlice("mainnet:https://gateway.example/epoch"), EpochSubgraphEndpointFlag.Name, "test")
	})

	specs, err := BuildSpecifications(cliCtx)
	require.NoError(t, err)
	require.Equal(t, 1, len(specs))
	assert.Equal(t, deployment, specs[0].Subgraphs.NetworkSubgraph.Deployment)
	assert.Equal(t, "", specs[0].Subgraphs.NetworkSubgraph.URL)
}
