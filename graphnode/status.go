package graphnode

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/machinebox/graphql"
	"github.com/pkg/errors"

	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/shared/errs"
	"github.com/graphops/indexer-agent/shared/retry"
)

// ChainStatus is the indexing progress of a deployment on one chain.
type ChainStatus struct {
	Network        string
	LatestBlock    *indexer.BlockPointer
	ChainHeadBlock *indexer.BlockPointer
}

// IndexingStatus is the graph node's view of one deployment.
type IndexingStatus struct {
	Deployment indexer.SubgraphDeploymentID
	Node       string
	Synced     bool
	Health     string
	FatalError string
	Chains     []ChainStatus
}

// Assigned reports whether the deployment is being indexed by a live
// index node.
func (s *IndexingStatus) Assigned() bool {
	return s.Node != "" && s.Node != removedNode
}

const statusFields = `
		subgraphDeployment: subgraph
		node
		synced
		health
		fatalError {
			message
		}
		chains {
			network
			latestBlock {
				number
				hash
			}
			chainHeadBlock {
				number
				hash
			}
		}`

type blockRecord struct {
	Number string `json:"number"`
	Hash   string `json:"hash"`
}

type chainRecord struct {
	Network        string       `json:"network"`
	LatestBlock    *blockRecord `json:"latestBlock"`
	ChainHeadBlock *blockRecord `json:"chainHeadBlock"`
}

type statusRecord struct {
	Deployment string `json:"subgraphDeployment"`
	Node       string `json:"node"`
	Synced     bool   `json:"synced"`
	Health     string `json:"health"`
	FatalError *struct {
		Message string `json:"message"`
	} `json:"fatalError"`
	Chains []chainRecord `json:"chains"`
}

// IndexingStatuses returns the status of every deployment on the graph
// node, or of just the given deployments when any are named.
func (c *Client) IndexingStatuses(ctx context.Context, deployments ...indexer.SubgraphDeploymentID) ([]*IndexingStatus, error) {
	var req *graphql.Request
	if len(deployments) == 0 {
		req = graphql.NewRequest(fmt.Sprintf(`
			query {
				indexingStatuses {%s
				}
			}`, statusFields))
	} else {
		req = graphql.NewRequest(fmt.Sprintf(`
			query ($subgraphs: [String!]!) {
				indexingStatuses(subgraphs: $subgraphs) {%s
				}
			}`, statusFields))
		hashes := make([]string, 0, len(deployments))
		for _, deployment := range deployments {
			hashes = append(hashes, deployment.IPFSHash())
		}
		req.Var("subgraphs", hashes)
	}

	var resp struct {
		IndexingStatuses []statusRecord `json:"indexingStatuses"`
	}
	if err := c.runStatus(ctx, "indexingStatuses", req, &resp); err != nil {
		return nil, errs.Wrap(err, errs.IE018)
	}
	statuses := make([]*IndexingStatus, 0, len(resp.IndexingStatuses))
	for _, record := range resp.IndexingStatuses {
		status, err := toIndexingStatus(record)
		if err != nil {
			return nil, errs.Wrap(err, errs.IE018)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// AssignedDeployments returns the deployments currently assigned to a
// live index node.
func (c *Client) AssignedDeployments(ctx context.Context) ([]indexer.SubgraphDeploymentID, error) {
	statuses, err := c.IndexingStatuses(ctx)
	if err != nil {
		return nil, err
	}
	assigned := make([]indexer.SubgraphDeploymentID, 0, len(statuses))
	for _, status := range statuses {
		if status.Assigned() {
			assigned = append(assigned, status.Deployment)
		}
	}
	return assigned, nil
}

// SupportedNetworks returns the distinct chains the graph node is
// indexing deployments on, normalized to CAIP-2 where the chain name is
// a known alias.
func (c *Client) SupportedNetworks(ctx context.Context) ([]string, error) {
	statuses, err := c.IndexingStatuses(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, status := range statuses {
		for _, chain := range status.Chains {
			seen[chain.Network] = true
		}
	}
	networks := make([]string, 0, len(seen))
	for network := range seen {
		networks = append(networks, network)
	}
	sort.Strings(networks)
	return networks, nil
}

// ProofOfIndexing returns the POI an indexer would produce for a
// deployment at a block, or nil when the graph node cannot compute one.
// POIs at past blocks never change, so non-nil results are cached.
func (c *Client) ProofOfIndexing(ctx context.Context, deployment indexer.SubgraphDeploymentID, block indexer.BlockPointer, indexerAddress common.Address) (*common.Hash, error) {
	cacheKey := fmt.Sprintf("%s|%d|%s|%s", deployment.Hex(), block.Number, block.Hash.Hex(), strings.ToLower(indexerAddress.Hex()))
	if cached, ok := c.poiCache.Get(cacheKey); ok {
		poi := cached.(common.Hash)
		return &poi, nil
	}

	req := graphql.NewRequest(`
		query ($subgraph: String!, $blockNumber: Int!, $blockHash: String!, $indexer: String!) {
			proofOfIndexing(
				subgraph: $subgraph
				blockNumber: $blockNumber
				blockHash: $blockHash
				indexer: $indexer
			)
		}`)
	req.Var("subgraph", deployment.IPFSHash())
	req.Var("blockNumber", block.Number)
	req.Var("blockHash", block.Hash.Hex())
	req.Var("indexer", strings.ToLower(indexerAddress.Hex()))

	var resp struct {
		ProofOfIndexing *string `json:"proofOfIndexing"`
	}
	if err := c.runStatus(ctx, "proofOfIndexing", req, &resp); err != nil {
		return nil, errs.Wrap(err, errs.IE019)
	}
	if resp.ProofOfIndexing == nil {
		return nil, nil
	}
	poi := common.HexToHash(*resp.ProofOfIndexing)
	c.poiCache.Add(cacheKey, poi)
	return &poi, nil
}

// BlockHashFromNumber resolves a block number to its hash on the given
// chain through the graph node. Results are cached.
func (c *Client) BlockHashFromNumber(ctx context.Context, network string, number uint64) (common.Hash, error) {
	cacheKey := fmt.Sprintf("%s|%d", network, number)
	if cached, ok := c.blockHashCache.Get(cacheKey); ok {
		return cached.(common.Hash), nil
	}

	req := graphql.NewRequest(`
		query ($network: String!, $blockNumber: Int!) {
			blockHashFromNumber(network: $network, blockNumber: $blockNumber)
		}`)
	req.Var("network", network)
	req.Var("blockNumber", number)

	var resp struct {
		BlockHashFromNumber string `json:"blockHashFromNumber"`
	}
	if err := c.runStatus(ctx, "blockHashFromNumber", req, &resp); err != nil {
		return common.Hash{}, errs.Wrap(err, errs.IE035)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(resp.BlockHashFromNumber, "0x"))
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, errs.Wrap(errors.Errorf("graph node returned no hash for block %d on %s", number, network), errs.IE035)
	}
	hash := common.BytesToHash(raw)
	c.blockHashCache.Add(cacheKey, hash)
	return hash, nil
}

func (c *Client) runStatus(ctx context.Context, name string, req *graphql.Request, resp interface{}) error {
	return retry.Do(ctx, name, func() error {
		return c.status.Run(ctx, req, resp)
	})
}

func toIndexingStatus(record statusRecord) (*IndexingStatus, error) {
	deployment, err := indexer.NewSubgraphDeploymentID(record.Deployment)
	if err != nil {
		return nil, err
	}
	status := &IndexingStatus{
		Deployment: deployment,
		Node:       record.Node,
		Synced:     record.Synced,
		Health:     record.Health,
		Chains:     make([]ChainStatus, 0, len(record.Chains)),
	}
	if record.FatalError != nil {
		status.FatalError = record.FatalError.Message
	}
	for _, chain := range record.Chains {
		converted := ChainStatus{Network: indexer.NormalizeChainID(chain.Network)}
		if converted.LatestBlock, err = toBlockPointer(chain.LatestBlock); err != nil {
			return nil, err
		}
		if converted.ChainHeadBlock, err = toBlockPointer(chain.ChainHeadBlock); err != nil {
			return nil, err
		}
		status.Chains = append(status.Chains, converted)
	}
	return status, nil
}

func toBlockPointer(record *blockRecord) (*indexer.BlockPointer, error) {
	if record == nil {
		return nil, nil
	}
	number, err := strconv.ParseUint(record.Number, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid block number %q", record.Number)
	}
	return &indexer.BlockPointer{Number: number, Hash: common.HexToHash(record.Hash)}, nil
}
