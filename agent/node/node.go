// Package node assembles the indexer agent: it loads the network
// specifications, opens the database, connects the per-network clients and
// registers the agent services, then manages their lifecycle.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/graphops/indexer-agent/agent"
	"github.com/graphops/indexer-agent/agent/flags"
	"github.com/graphops/indexer-agent/config"
	"github.com/graphops/indexer-agent/db/kv"
	"github.com/graphops/indexer-agent/graphnode"
	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/multinetworks"
	"github.com/graphops/indexer-agent/network"
	"github.com/graphops/indexer-agent/shared"
	"github.com/graphops/indexer-agent/shared/cmd"
	"github.com/graphops/indexer-agent/shared/prometheus"
	"github.com/graphops/indexer-agent/shared/promptutil"
)

var log = logrus.WithField("prefix", "node")

// AgentNode handles the lifecycle of the whole agent and registers its
// services to a service registry.
type AgentNode struct {
	cliCtx   *cli.Context
	ctx      context.Context
	cancel   context.CancelFunc
	lock     sync.RWMutex
	services *shared.ServiceRegistry
	stop     chan struct{} // Channel to wait for termination notifications.
	db       *kv.Store
}

// New creates a node instance from the cli context: it loads the network
// specifications, opens the store and registers every required service.
func New(cliCtx *cli.Context) (*AgentNode, error) {
	cmd.ConfigureAgent(cliCtx)

	specs, err := loadSpecifications(cliCtx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &AgentNode{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		services: shared.NewServiceRegistry(),
		stop:     make(chan struct{}),
	}

	if err := n.startDB(cliCtx, specs[0].NetworkIdentifier); err != nil {
		cancel()
		return nil, err
	}

	graphNode, err := graphnode.NewClient(graphnode.Config{
		AdminURL:     cliCtx.String(flags.GraphNodeAdminEndpointFlag.Name),
		StatusURL:    cliCtx.String(flags.GraphNodeStatusEndpointFlag.Name),
		QueryURL:     cliCtx.String(flags.GraphNodeQueryEndpointFlag.Name),
		IndexNodeIDs: cliCtx.StringSlice(flags.IndexNodeIDsFlag.Name),
	})
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "could not create graph node client")
	}

	base := time.Duration(cliCtx.Int64(flags.PollingIntervalFlag.Name)) * time.Millisecond
	pairs, err := n.connectNetworks(ctx, specs, graphNode, base)
	if err != nil {
		cancel()
		return nil, err
	}
	networks, err := multinetworks.New(pairs, func(p *agent.NetworkPair) string {
		return p.Network.Spec.NetworkIdentifier
	})
	if err != nil {
		cancel()
		return nil, err
	}

	offchain, err := parseOffchainSubgraphs(cliCtx.StringSlice(flags.OffchainSubgraphsFlag.Name))
	if err != nil {
		cancel()
		return nil, err
	}

	if err := n.registerPrometheusService(cliCtx); err != nil {
		cancel()
		return nil, err
	}
	if err := n.services.RegisterService(agent.NewService(ctx, &agent.Config{
		Networks:          networks,
		GraphNode:         graphNode,
		Store:             n.db,
		OffchainSubgraphs: offchain,
		PollingInterval:   base,
	})); err != nil {
		cancel()
		return nil, err
	}
	return n, nil
}

// loadSpecifications resolves the network specifications either from the
// specifications directory (multinetwork mode) or from the flag set.
func loadSpecifications(cliCtx *cli.Context) ([]*config.NetworkSpecification, error) {
	if cmd.Get().MultinetworkMode {
		dir := cmd.Get().NetworkSpecificationsDirectory
		if dir == "" {
			return nil, errors.New("multinetwork mode requires --network-specifications-directory")
		}
		specs, err := config.LoadSpecifications(dir)
		if err != nil {
			return nil, err
		}
		if len(specs) == 0 {
			return nil, errors.Errorf("no network specification files found in %s", dir)
		}
		return specs, nil
	}
	return flags.BuildSpecifications(cliCtx)
}

// startDB opens the agent store, clearing it first when requested.
func (n *AgentNode) startDB(cliCtx *cli.Context, defaultNetwork string) error {
	dataDir := cliCtx.String(cmd.DataDirFlag.Name)
	clearDB := cliCtx.Bool(cmd.ClearDB.Name)
	forceClearDB := cliCtx.Bool(cmd.ForceClearDB.Name)

	store, err := kv.NewKVStore(dataDir, &kv.Config{DefaultNetwork: defaultNetwork})
	if err != nil {
		return err
	}
	clearDBConfirmed := forceClearDB
	if clearDB && !forceClearDB {
		actionText := "This will delete the indexing rules, actions and dispute records stored at " +
			store.DatabasePath() + ". Do you want to proceed? (Y/N)"
		deniedText := "Database will not be deleted. No changes have been made."
		answer, err := promptutil.ValidatePrompt(os.Stdin, actionText, promptutil.ValidateYesOrNo)
		if err != nil {
			return errors.Wrap(err, "could not confirm database clearing")
		}
		if strings.EqualFold(answer, "y") {
			clearDBConfirmed = true
		} else {
			log.Info(deniedText)
		}
	}
	if clearDBConfirmed {
		if err := store.Close(); err != nil {
			return err
		}
		log.Warning("Removing database")
		if err := store.ClearDB(); err != nil {
			return err
		}
		store, err = kv.NewKVStore(dataDir, &kv.Config{DefaultNetwork: defaultNetwork})
		if err != nil {
			return err
		}
	}
	n.db = store
	return nil
}

// connectNetworks dials the provider of every specification and brings up
// the network view and operator for each.
func (n *AgentNode) connectNetworks(
	ctx context.Context,
	specs []*config.NetworkSpecification,
	graphNode *graphnode.Client,
	base time.Duration,
) ([]*agent.NetworkPair, error) {
	pairs := make([]*agent.NetworkPair, 0, len(specs))
	for _, spec := range specs {
		provider, err := ethclient.DialContext(ctx, spec.NetworkProvider.URL)
		if err != nil {
			return nil, errors.Wrapf(err, "could not dial provider for network %s", spec.NetworkIdentifier)
		}
		chainID, err := provider.ChainID(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "could not fetch chain id for network %s", spec.NetworkIdentifier)
		}
		networkBase := base
		if spec.NetworkProvider.PollingInterval > 0 {
			networkBase = time.Duration(spec.NetworkProvider.PollingInterval) * time.Millisecond
		}
		net, err := network.New(ctx, spec, provider, chainID, graphNode, networkBase)
		if err != nil {
			return nil, errors.Wrapf(err, "could not connect to network %s", spec.NetworkIdentifier)
		}
		pairs = append(pairs, &agent.NetworkPair{
			Network:  net,
			Operator: network.NewOperator(net, n.db),
		})
	}
	return pairs, nil
}

func parseOffchainSubgraphs(raw []string) ([]indexer.SubgraphDeploymentID, error) {
	out := make([]indexer.SubgraphDeploymentID, 0, len(raw))
	for _, s := range raw {
		id, err := indexer.NewSubgraphDeploymentID(s)
		if err != nil {
			return nil, errors.Wrap(err, "invalid offchain subgraph")
		}
		out = append(out, id)
	}
	return out, nil
}

func (n *AgentNode) registerPrometheusService(cliCtx *cli.Context) error {
	if cliCtx.Bool(cmd.DisableMonitoringFlag.Name) {
		return nil
	}
	service := prometheus.NewService(
		fmt.Sprintf("%s:%d", cliCtx.String(cmd.MonitoringHostFlag.Name), cliCtx.Int(cmd.MonitoringPortFlag.Name)),
		n.services,
	)
	return n.services.RegisterService(service)
}

// Start the agent and kick off every registered service.
func (n *AgentNode) Start() {
	n.lock.Lock()
	n.services.StartAll()
	n.lock.Unlock()

	stop := n.stop
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the indexer agent")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (n *AgentNode) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	log.Info("Stopping indexer agent")
	n.services.StopAll()
	n.cancel()
	if err := n.db.Close(); err != nil {
		log.Errorf("Failed to close database: %v", err)
	}
	close(n.stop)
}
