package cmd

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var log = logrus.WithField("prefix", "cmd")

// Flags represents the process-wide flag configuration shared by every
// component of the agent.
type Flags struct {
	// MultinetworkMode causes the agent to reconcile every protocol network
	// found in the network specifications directory.
	MultinetworkMode bool
	// NetworkSpecificationsDirectory is the directory scanned for per-network
	// yaml specification files when operating in multinetwork mode.
	NetworkSpecificationsDirectory string
}

var sharedConfig *Flags

// Get retrieves the shared flag configuration.
func Get() *Flags {
	if sharedConfig == nil {
		return &Flags{}
	}
	return sharedConfig
}

// Init sets the global config equal to the config that is passed in.
func Init(c *Flags) {
	sharedConfig = c
}

// InitWithReset sets the global config and returns a function that is used to
// reset the configuration back to its previous state, for tests.
func InitWithReset(c *Flags) func() {
	prevConfig := sharedConfig
	Init(c)
	return func() {
		Init(prevConfig)
	}
}

// ConfigureAgent reads the process-wide flags from the cli context. The
// INDEXER_AGENT_MULTINETWORK_MODE environment variable enables multinetwork
// mode for any value other than a case-insensitive "false".
func ConfigureAgent(cliCtx *cli.Context) {
	cfg := Get()
	multinetwork := cliCtx.Bool(MultinetworkModeFlag.Name)
	if raw, ok := os.LookupEnv("INDEXER_AGENT_MULTINETWORK_MODE"); ok {
		multinetwork = !strings.EqualFold(raw, "false")
	}
	if multinetwork {
		log.Info("Operating in multinetwork mode")
		cfg.MultinetworkMode = true
		cfg.NetworkSpecificationsDirectory = cliCtx.String(NetworkSpecificationsDirectoryFlag.Name)
	}
	Init(cfg)
}
