// Package cmd defines the command line flags shared by every entrypoint
// of the indexer agent.
package cmd

import (
	"github.com/urfave/cli/v2"
)

var (
	// VerbosityFlag defines the logrus configuration.
	VerbosityFlag = &cli.StringFlag{
		Name:    "verbosity",
		Usage:   "Logging verbosity (trace, debug, info=default, warn, error, fatal, panic)",
		Value:   "info",
		EnvVars: []string{"INDEXER_AGENT_VERBOSITY"},
	}
	// DataDirFlag defines a path on disk where the agent databases live.
	DataDirFlag = &cli.StringFlag{
		Name:    "datadir",
		Usage:   "Data directory for the indexing rules, actions and dispute databases",
		Value:   DefaultDataDir(),
		EnvVars: []string{"INDEXER_AGENT_DATADIR"},
	}
	// ClearDB prompts user to see if they want to remove any previously
	// stored data at the data directory.
	ClearDB = &cli.BoolFlag{
		Name:    "clear-db",
		Usage:   "Prompt for confirmation, then clear any indexer data stored in the data directory",
		EnvVars: []string{"INDEXER_AGENT_CLEAR_DB"},
	}
	// ForceClearDB removes any previously stored data at the data directory
	// without asking.
	ForceClearDB = &cli.BoolFlag{
		Name:    "force-clear-db",
		Usage:   "Clear any indexer data stored in the data directory without confirming",
		EnvVars: []string{"INDEXER_AGENT_FORCE_CLEAR_DB"},
	}
	// ConfigFileFlag specifies the filepath to load flag values.
	ConfigFileFlag = &cli.StringFlag{
		Name:    "config-file",
		Usage:   "The filepath to a yaml file with flag values",
		EnvVars: []string{"INDEXER_AGENT_CONFIG_FILE"},
	}
	// LogFormat specifies the log output format.
	LogFormat = &cli.StringFlag{
		Name:    "log-format",
		Usage:   "Specify log formatting. Supports: text, json, fluentd",
		Value:   "text",
		EnvVars: []string{"INDEXER_AGENT_LOG_FORMAT"},
	}
	// LogFileName specifies the log output file name.
	LogFileName = &cli.StringFlag{
		Name:    "log-file",
		Usage:   "Specify log file name, relative or absolute",
		EnvVars: []string{"INDEXER_AGENT_LOG_FILE"},
	}
	// MonitoringHostFlag defines the host used to serve prometheus metrics.
	MonitoringHostFlag = &cli.StringFlag{
		Name:    "monitoring-host",
		Usage:   "Host used for listening and responding metrics for prometheus",
		Value:   "127.0.0.1",
		EnvVars: []string{"INDEXER_AGENT_MONITORING_HOST"},
	}
	// MonitoringPortFlag defines the port used to serve prometheus metrics.
	MonitoringPortFlag = &cli.IntFlag{
		Name:    "monitoring-port",
		Usage:   "Port used to listening and respond metrics for prometheus",
		Value:   7300,
		EnvVars: []string{"INDEXER_AGENT_MONITORING_PORT"},
	}
	// DisableMonitoringFlag defines a flag to disable the metrics collection.
	DisableMonitoringFlag = &cli.BoolFlag{
		Name:    "disable-monitoring",
		Usage:   "Disable monitoring service.",
		EnvVars: []string{"INDEXER_AGENT_DISABLE_MONITORING"},
	}
	// MultinetworkModeFlag allocates across several protocol networks from a
	// directory of network specification files. The INDEXER_AGENT_MULTINETWORK_MODE
	// environment variable is read separately: any value other than "false"
	// (case insensitive) enables the mode.
	MultinetworkModeFlag = &cli.BoolFlag{
		Name:  "multinetwork-mode",
		Usage: "Operate against all protocol networks described in the network specifications directory",
	}
	// NetworkSpecificationsDirectoryFlag points at a directory of per-network
	// yaml specification files, used in multinetwork mode.
	NetworkSpecificationsDirectoryFlag = &cli.StringFlag{
		Name:    "network-specifications-directory",
		Usage:   "Path to a directory with yaml network specification files, one file per protocol network",
		EnvVars: []string{"INDEXER_AGENT_NETWORK_SPECIFICATIONS_DIRECTORY"},
	}
)
