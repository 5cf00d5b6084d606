// Package main defines the indexer agent entrypoint. The agent reconciles
// the indexer's deployments and allocations on one or more protocol
// networks against the operator's indexing rules.
package main

import (
	"fmt"
	"os"
	"runtime"

	joonix "github.com/joonix/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/graphops/indexer-agent/agent/flags"
	"github.com/graphops/indexer-agent/agent/node"
	"github.com/graphops/indexer-agent/shared/cmd"
	"github.com/graphops/indexer-agent/shared/logutil"
	"github.com/graphops/indexer-agent/shared/version"
)

var log = logrus.WithField("prefix", "main")

// sharedFlags apply to both start commands.
var sharedFlags = []cli.Flag{
	cmd.VerbosityFlag,
	cmd.DataDirFlag,
	cmd.MonitoringHostFlag,
	cmd.MonitoringPortFlag,
	cmd.DisableMonitoringFlag,
	cmd.LogFileName,
	cmd.LogFormat,
	cmd.ClearDB,
	cmd.ForceClearDB,
	cmd.ConfigFileFlag,
	flags.GraphNodeQueryEndpointFlag,
	flags.GraphNodeStatusEndpointFlag,
	flags.GraphNodeAdminEndpointFlag,
	flags.IndexNodeIDsFlag,
	flags.OffchainSubgraphsFlag,
	flags.PollingIntervalFlag,
}

// startFlags configure a single protocol network from the command line.
var startFlags = append([]cli.Flag{
	flags.EthereumProviderFlag,
	flags.MnemonicFlag,
	flags.IndexerAddressFlag,
	flags.GatewayEndpointFlag,
	flags.PublicIndexerURLFlag,
	flags.NetworkSubgraphEndpointFlag,
	flags.NetworkSubgraphDeploymentFlag,
	flags.EpochSubgraphEndpointFlag,
	flags.DefaultProtocolNetworkFlag,
	flags.DefaultAllocationAmountFlag,
	flags.IndexerGeoCoordinatesFlag,
	flags.RegisterFlag,
	flags.RestakeRewardsFlag,
	flags.RebateClaimThresholdFlag,
	flags.RebateClaimBatchThresholdFlag,
	flags.RebateClaimMaxBatchSizeFlag,
	flags.PoiDisputeMonitoringFlag,
	flags.PoiDisputableEpochsFlag,
	flags.AllocationManagementFlag,
	flags.AllocateOnNetworkSubgraphFlag,
	flags.AutoMigrationSupportFlag,
	flags.GasIncreaseTimeoutFlag,
	flags.GasIncreaseFactorFlag,
	flags.GasPriceMaxFlag,
	flags.MaxTransactionAttemptsFlag,
}, sharedFlags...)

// startMultipleFlags configure the agent from a directory of network
// specification files instead.
var startMultipleFlags = append([]cli.Flag{
	cmd.MultinetworkModeFlag,
	cmd.NetworkSpecificationsDirectoryFlag,
}, sharedFlags...)

func startAgent(cliCtx *cli.Context) error {
	verbosity := cliCtx.String(cmd.VerbosityFlag.Name)
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	agentNode, err := node.New(cliCtx)
	if err != nil {
		return err
	}
	agentNode.Start()
	return nil
}

func startMultiple(cliCtx *cli.Context) error {
	if err := cliCtx.Set(cmd.MultinetworkModeFlag.Name, "true"); err != nil {
		return err
	}
	return startAgent(cliCtx)
}

// before returns the setup hook of a start command: it loads flag values
// from the yaml file named by --config-file, if any, then configures
// logging from the resulting flag set.
func before(commandFlags []cli.Flag) cli.BeforeFunc {
	return func(ctx *cli.Context) error {
		// Load any flags from file, if specified.
		if ctx.IsSet(cmd.ConfigFileFlag.Name) {
			if err := altsrc.InitInputSourceWithContext(
				commandFlags,
				altsrc.NewYamlSourceFromFlagFunc(
					cmd.ConfigFileFlag.Name))(ctx); err != nil {
				return err
			}
		}

		format := ctx.String(cmd.LogFormat.Name)
		switch format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			// If persistent log files are written - we disable the log messages coloring because
			// the colors are ANSI codes and seen as Gibberish in the log files.
			formatter.DisableColors = ctx.String(cmd.LogFileName.Name) != ""
			logrus.SetFormatter(formatter)
		case "fluentd":
			logrus.SetFormatter(joonix.NewFormatter())
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %s", format)
		}

		logFileName := ctx.String(cmd.LogFileName.Name)
		if logFileName != "" {
			if err := logutil.ConfigurePersistentLogging(logFileName, format); err != nil {
				log.WithError(err).Error("Failed to configuring logging to disk.")
			}
		}

		runtime.GOMAXPROCS(runtime.NumCPU())
		return nil
	}
}

func main() {
	app := cli.App{}
	app.Name = "indexer agent"
	app.Usage = "reconciles subgraph deployments and allocations on the protocol networks against the indexing rules"
	app.Version = version.GetVersion()
	wrappedStart := cmd.WrapFlags(startFlags)
	wrappedStartMultiple := cmd.WrapFlags(startMultipleFlags)
	app.Commands = []*cli.Command{
		{
			Name:   "start",
			Usage:  "run the agent against one protocol network configured from flags",
			Flags:  wrappedStart,
			Before: before(wrappedStart),
			Action: startAgent,
		},
		{
			Name:   "start-multiple",
			Usage:  "run the agent against every network in the specifications directory",
			Flags:  wrappedStartMultiple,
			Before: before(wrappedStartMultiple),
			Action: startMultiple,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
