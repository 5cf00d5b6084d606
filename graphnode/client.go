// Package graphnode drives a local graph node: the admin JSON-RPC API for
// deploying and reassigning subgraphs and the indexing status API for
// deployment state, proofs of indexing and chain block lookups.
package graphnode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/machinebox/graphql"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/shared/errs"
	"github.com/graphops/indexer-agent/shared/retry"
)

var log = logrus.WithField("prefix", "graphnode")

// removedNode is the graph node assignment that parks a deployment
// without deleting its data.
const removedNode = "removed"

// namePrefix namespaces the subgraph names this agent manages.
const namePrefix = "indexer-agent/"

const cacheSize = 256

// Config locates a graph node and names the index nodes deployments may
// be assigned to.
type Config struct {
	AdminURL     string
	StatusURL    string
	QueryURL     string
	IndexNodeIDs []string
}

// Client talks to one graph node.
type Client struct {
	cfg    Config
	http   *http.Client
	status *graphql.Client
	nextID uint64

	poiCache       *lru.Cache
	blockHashCache *lru.Cache
}

// NewClient returns a graph node client. With no index nodes configured,
// deployments are assigned to the "default" node.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.IndexNodeIDs) == 0 {
		cfg.IndexNodeIDs = []string{"default"}
	}
	poiCache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	blockHashCache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:            cfg,
		http:           &http.Client{Timeout: 30 * time.Second},
		status:         graphql.NewClient(cfg.StatusURL),
		poiCache:       poiCache,
		blockHashCache: blockHashCache,
	}, nil
}

// QueryEndpoint returns the graph node's query URL for a deployment
// indexed locally.
func (c *Client) QueryEndpoint(deployment indexer.SubgraphDeploymentID) string {
	return strings.TrimSuffix(c.cfg.QueryURL, "/") + "/subgraphs/id/" + deployment.IPFSHash()
}

// DeploymentName returns the subgraph name under which the agent indexes
// a deployment: the shared prefix plus the tail of the ipfs hash.
func DeploymentName(id indexer.SubgraphDeploymentID) string {
	hash := id.IPFSHash()
	return namePrefix + hash[len(hash)-10:]
}

// EnsureIndexing makes sure the graph node is indexing the deployment,
// creating and deploying it when missing and resuming it when it was
// previously removed. Already indexed deployments are left untouched.
func (c *Client) EnsureIndexing(ctx context.Context, deployment indexer.SubgraphDeploymentID) error {
	statuses, err := c.IndexingStatuses(ctx)
	if err != nil {
		return errs.Wrap(err, errs.IE020)
	}
	node := c.chooseNode(statuses)
	lg := log.WithFields(logrus.Fields{
		"deployment": deployment.IPFSHash(),
		"node":       node,
	})

	for _, status := range statuses {
		if status.Deployment != deployment {
			continue
		}
		if status.Node != "" && status.Node != removedNode {
			return nil
		}
		lg.Info("Resuming removed subgraph deployment")
		if err := c.reassign(ctx, deployment, node); err != nil {
			return errs.Wrap(err, errs.IE020)
		}
		return nil
	}

	name := DeploymentName(deployment)
	lg = lg.WithField("name", name)
	lg.Info("Deploying subgraph to graph node")
	if err := c.adminCall(ctx, "subgraph_create", map[string]interface{}{
		"name": name,
	}); err != nil && !strings.Contains(err.Error(), "already exists") {
		return errs.Wrap(err, errs.IE020)
	}
	if err := c.adminCall(ctx, "subgraph_deploy", map[string]interface{}{
		"name":      name,
		"ipfs_hash": deployment.IPFSHash(),
		"node_id":   node,
	}); err != nil {
		return errs.Wrap(err, errs.IE020)
	}
	return nil
}

// ReassignDeployment moves a deployment to another index node.
func (c *Client) ReassignDeployment(ctx context.Context, deployment indexer.SubgraphDeploymentID, node string) error {
	if err := c.reassign(ctx, deployment, node); err != nil {
		return errs.Wrap(err, errs.IE021)
	}
	return nil
}

// RemoveDeployment parks a deployment on the removed node, which stops
// indexing it while keeping its data for a potential resume.
func (c *Client) RemoveDeployment(ctx context.Context, deployment indexer.SubgraphDeploymentID) error {
	log.WithField("deployment", deployment.IPFSHash()).Info("Removing subgraph deployment from graph node")
	if err := c.reassign(ctx, deployment, removedNode); err != nil {
		return errs.Wrap(err, errs.IE022)
	}
	return nil
}

func (c *Client) reassign(ctx context.Context, deployment indexer.SubgraphDeploymentID, node string) error {
	return c.adminCall(ctx, "subgraph_reassign", map[string]interface{}{
		"ipfs_hash": deployment.IPFSHash(),
		"node_id":   node,
	})
}

// chooseNode picks the index node for a new assignment: the first
// configured node with nothing assigned, or the one indexing the fewest
// deployments.
func (c *Client) chooseNode(statuses []*IndexingStatus) string {
	counts := make(map[string]int, len(c.cfg.IndexNodeIDs))
	for _, node := range c.cfg.IndexNodeIDs {
		counts[node] = 0
	}
	for _, status := range statuses {
		if _, tracked := counts[status.Node]; tracked {
			counts[status.Node]++
		}
	}
	best := c.cfg.IndexNodeIDs[0]
	for _, node := range c.cfg.IndexNodeIDs {
		if counts[node] == 0 {
			return node
		}
		if counts[node] < counts[best] {
			best = node
		}
	}
	return best
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      uint64      `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Error *rpcError `json:"error"`
}

// adminCall posts one JSON-RPC request to the graph node admin endpoint.
// The admin API takes named parameters, so the request carries a params
// object rather than the positional array most Ethereum tooling sends.
// Errors returned by the node are permanent; only transport failures are
// retried.
func (c *Client) adminCall(ctx context.Context, method string, params map[string]interface{}) error {
	payload, err := json.Marshal(&rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      atomic.AddUint64(&c.nextID, 1),
	})
	if err != nil {
		return err
	}
	return retry.Do(ctx, method, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AdminURL, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				log.WithError(err).Debug("Could not close admin response body")
			}
		}()
		if resp.StatusCode != http.StatusOK {
			return errors.Errorf("graph node admin returned status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		var decoded rpcResponse
		if err := json.Unmarshal(body, &decoded); err != nil {
			return errors.Wrap(err, "invalid admin response")
		}
		if decoded.Error != nil {
			return retry.Permanent(fmt.Errorf("graph node admin: %s (code %d)", decoded.Error.Message, decoded.Error.Code))
		}
		return nil
	})
}
