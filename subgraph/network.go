package subgraph

import (
	"context"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/machinebox/graphql"
	"github.com/pkg/errors"

	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/shared/errs"
)

// NetworkClient reads protocol state from a network subgraph endpoint.
type NetworkClient struct {
	*Client
	protocolNetwork string
}

// NewNetworkClient returns a network subgraph client whose results are
// stamped with the given protocol network.
func NewNetworkClient(url, protocolNetwork string) *NetworkClient {
	return &NetworkClient{Client: NewClient(url), protocolNetwork: protocolNetwork}
}

// NetworkParams carries the protocol-wide constants of a network.
type NetworkParams struct {
	CurrentEpoch        int64
	EpochLength         int64
	MaxAllocationEpochs int64
	IsPaused            bool
}

// NetworkParams fetches the current epoch and allocation lifetime bounds.
func (c *NetworkClient) NetworkParams(ctx context.Context) (*NetworkParams, error) {
	req := graphql.NewRequest(`
		query {
			graphNetworks(first: 1) {
				currentEpoch
				epochLength
				maxAllocationEpochs
				isPaused
			}
		}`)
	var resp struct {
		GraphNetworks []struct {
			CurrentEpoch        int64 `json:"currentEpoch"`
			EpochLength         int64 `json:"epochLength"`
			MaxAllocationEpochs int64 `json:"maxAllocationEpochs"`
			IsPaused            bool  `json:"isPaused"`
		} `json:"graphNetworks"`
	}
	if err := c.run(ctx, "network params", req, &resp); err != nil {
		return nil, errs.Wrap(err, errs.IE023)
	}
	if len(resp.GraphNetworks) == 0 {
		return nil, errs.Wrap(errors.New("network subgraph has no graphNetworks entity"), errs.IE023)
	}
	n := resp.GraphNetworks[0]
	return &NetworkParams{
		CurrentEpoch:        n.CurrentEpoch,
		EpochLength:         n.EpochLength,
		MaxAllocationEpochs: n.MaxAllocationEpochs,
		IsPaused:            n.IsPaused,
	}, nil
}

// IsPaused reads the protocol pause flag.
func (c *NetworkClient) IsPaused(ctx context.Context) (bool, error) {
	req := graphql.NewRequest(`
		query {
			graphNetworks(first: 1) {
				isPaused
			}
		}`)
	var resp struct {
		GraphNetworks []struct {
			IsPaused bool `json:"isPaused"`
		} `json:"graphNetworks"`
	}
	if err := c.run(ctx, "network pause", req, &resp); err != nil {
		return false, errs.Wrap(err, errs.IE007)
	}
	if len(resp.GraphNetworks) == 0 {
		return false, errs.Wrap(errors.New("network subgraph has no graphNetworks entity"), errs.IE007)
	}
	return resp.GraphNetworks[0].IsPaused, nil
}

type deploymentRecord struct {
	ID                    string `json:"id"`
	DeniedAt              int    `json:"deniedAt"`
	StakedTokens          string `json:"stakedTokens"`
	SignalledTokens       string `json:"signalledTokens"`
	QueryFeesAmount       string `json:"queryFeesAmount"`
	ActiveAllocationCount int    `json:"activeAllocationCount"`
	Manifest              struct {
		Network string `json:"network"`
	} `json:"manifest"`
}

// Deployments returns every published subgraph deployment with the
// economic signals rule evaluation needs, paged by ascending id.
func (c *NetworkClient) Deployments(ctx context.Context) ([]*indexer.SubgraphDeployment, error) {
	var deployments []*indexer.SubgraphDeployment
	cursor := ""
	for {
		req := graphql.NewRequest(`
			query ($first: Int!, $cursor: String!) {
				subgraphDeployments(
					where: { id_gt: $cursor }
					orderBy: id
					orderDirection: asc
					first: $first
				) {
					id
					deniedAt
					stakedTokens
					signalledTokens
					queryFeesAmount
					activeAllocationCount
					manifest {
						network
					}
				}
			}`)
		req.Var("first", pageSize)
		req.Var("cursor", cursor)
		var resp struct {
			SubgraphDeployments []deploymentRecord `json:"subgraphDeployments"`
		}
		if err := c.run(ctx, "network deployments", req, &resp); err != nil {
			return nil, errs.Wrap(err, errs.IE009)
		}
		for _, rec := range resp.SubgraphDeployments {
			id, err := indexer.NewSubgraphDeploymentID(rec.ID)
			if err != nil {
				return nil, errs.Wrap(err, errs.IE009)
			}
			deployments = append(deployments, &indexer.SubgraphDeployment{
				ID:              id,
				ProtocolNetwork: c.protocolNetwork,
				DeniedAt:        rec.DeniedAt,
				StakedTokens:    parseBigInt(rec.StakedTokens),
				SignalledTokens: parseBigInt(rec.SignalledTokens),
				QueryFeesAmount: parseBigInt(rec.QueryFeesAmount),
				AllocationCount: rec.ActiveAllocationCount,
				ChainID:         indexer.NormalizeChainID(rec.Manifest.Network),
			})
		}
		if len(resp.SubgraphDeployments) < pageSize {
			return deployments, nil
		}
		cursor = resp.SubgraphDeployments[len(resp.SubgraphDeployments)-1].ID
	}
}

type allocationRecord struct {
	ID      string `json:"id"`
	Indexer struct {
		ID string `json:"id"`
	} `json:"indexer"`
	AllocatedTokens    string `json:"allocatedTokens"`
	CreatedAtEpoch     int64  `json:"createdAtEpoch"`
	CreatedAtBlockHash string `json:"createdAtBlockHash"`
	ClosedAtEpoch      int64  `json:"closedAtEpoch"`
	ClosedAtBlockHash  string `json:"closedAtBlockHash"`
	POI                string `json:"poi"`
	QueryFeesCollected string `json:"queryFeesCollected"`
	SubgraphDeployment struct {
		ID string `json:"id"`
	} `json:"subgraphDeployment"`
}

const allocationFields = `
	id
	indexer { id }
	allocatedTokens
	createdAtEpoch
	createdAtBlockHash
	closedAtEpoch
	closedAtBlockHash
	poi
	queryFeesCollected
	subgraphDeployment { id }`

func (c *NetworkClient) toAllocation(rec allocationRecord) (*indexer.Allocation, error) {
	deployment, err := indexer.NewSubgraphDeploymentID(rec.SubgraphDeployment.ID)
	if err != nil {
		return nil, err
	}
	allocation := &indexer.Allocation{
		ID:                 common.HexToAddress(rec.ID),
		Indexer:            common.HexToAddress(rec.Indexer.ID),
		SubgraphDeployment: deployment,
		AllocatedTokens:    parseBigInt(rec.AllocatedTokens),
		CreatedAtEpoch:     rec.CreatedAtEpoch,
		CreatedAtBlockHash: common.HexToHash(rec.CreatedAtBlockHash),
		ClosedAtEpoch:      rec.ClosedAtEpoch,
		ClosedAtBlockHash:  common.HexToHash(rec.ClosedAtBlockHash),
		QueryFeesCollected: parseBigInt(rec.QueryFeesCollected),
		ProtocolNetwork:    c.protocolNetwork,
	}
	if rec.POI != "" {
		poi := common.HexToHash(rec.POI)
		allocation.POI = &poi
	}
	return allocation, nil
}

// pagedAllocations runs an allocation query repeatedly with an ascending
// id cursor until a short page comes back.
func (c *NetworkClient) pagedAllocations(ctx context.Context, name, query string, vars map[string]interface{}) ([]*indexer.Allocation, error) {
	var allocations []*indexer.Allocation
	cursor := ""
	for {
		req := graphql.NewRequest(query)
		for k, v := range vars {
			req.Var(k, v)
		}
		req.Var("first", pageSize)
		req.Var("cursor", cursor)
		var resp struct {
			Allocations []allocationRecord `json:"allocations"`
		}
		if err := c.run(ctx, name, req, &resp); err != nil {
			return nil, err
		}
		for _, rec := range resp.Allocations {
			allocation, err := c.toAllocation(rec)
			if err != nil {
				return nil, err
			}
			allocations = append(allocations, allocation)
		}
		if len(resp.Allocations) < pageSize {
			return allocations, nil
		}
		cursor = resp.Allocations[len(resp.Allocations)-1].ID
	}
}

// ActiveAllocations returns the indexer's active allocations.
func (c *NetworkClient) ActiveAllocations(ctx context.Context, indexerAddress common.Address) ([]*indexer.Allocation, error) {
	allocations, err := c.pagedAllocations(ctx, "active allocations", `
		query ($indexer: String!, $first: Int!, $cursor: String!) {
			allocations(
				where: { indexer: $indexer, status: Active, id_gt: $cursor }
				orderBy: id
				orderDirection: asc
				first: $first
			) {`+allocationFields+`
			}
		}`, map[string]interface{}{
		"indexer": strings.ToLower(indexerAddress.Hex()),
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.IE010)
	}
	return allocations, nil
}

// RecentlyClosedAllocations returns the indexer's allocations closed at or
// after minClosedEpoch. Their deployments still serve queries and must not
// be removed from the graph node.
func (c *NetworkClient) RecentlyClosedAllocations(ctx context.Context, indexerAddress common.Address, minClosedEpoch int64) ([]*indexer.Allocation, error) {
	allocations, err := c.pagedAllocations(ctx, "recently closed allocations", `
		query ($indexer: String!, $minClosedEpoch: Int!, $first: Int!, $cursor: String!) {
			allocations(
				where: { indexer: $indexer, status: Closed, closedAtEpoch_gte: $minClosedEpoch, id_gt: $cursor }
				orderBy: id
				orderDirection: asc
				first: $first
			) {`+allocationFields+`
			}
		}`, map[string]interface{}{
		"indexer":        strings.ToLower(indexerAddress.Hex()),
		"minClosedEpoch": minClosedEpoch,
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.IE010)
	}
	return allocations, nil
}

// ClaimableAllocations returns the indexer's closed allocations whose
// dispute window ended at or before maxClosedEpoch, ready for rebate
// claiming.
func (c *NetworkClient) ClaimableAllocations(ctx context.Context, indexerAddress common.Address, maxClosedEpoch int64) ([]*indexer.Allocation, error) {
	allocations, err := c.pagedAllocations(ctx, "claimable allocations", `
		query ($indexer: String!, $maxClosedEpoch: Int!, $first: Int!, $cursor: String!) {
			allocations(
				where: { indexer: $indexer, status: Closed, closedAtEpoch_lte: $maxClosedEpoch, id_gt: $cursor }
				orderBy: id
				orderDirection: asc
				first: $first
			) {`+allocationFields+`
			}
		}`, map[string]interface{}{
		"indexer":        strings.ToLower(indexerAddress.Hex()),
		"maxClosedEpoch": maxClosedEpoch,
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.IE011)
	}
	return allocations, nil
}

// DisputableAllocations returns every indexer's allocations against the
// given deployments closed with a submitted POI at or after
// minClosedEpoch. The dispute monitor cross-checks their POIs; zero-POI
// closes carry nothing to dispute and are filtered out upstream.
func (c *NetworkClient) DisputableAllocations(ctx context.Context, deployments []indexer.SubgraphDeploymentID, minClosedEpoch int64) ([]*indexer.Allocation, error) {
	ids := make([]string, 0, len(deployments))
	for _, d := range deployments {
		ids = append(ids, d.Hex())
	}
	allocations, err := c.pagedAllocations(ctx, "disputable allocations", `
		query ($deployments: [String!]!, $minClosedEpoch: Int!, $first: Int!, $cursor: String!) {
			allocations(
				where: { subgraphDeployment_in: $deployments, status: Closed, closedAtEpoch_gte: $minClosedEpoch, poi_not: null, id_gt: $cursor }
				orderBy: id
				orderDirection: asc
				first: $first
			) {`+allocationFields+`
			}
		}`, map[string]interface{}{
		"deployments":    ids,
		"minClosedEpoch": minClosedEpoch,
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.IE010)
	}
	return allocations, nil
}

// Subgraphs resolves versioned subgraph records by id, for rewriting
// subgraph rules to deployment rules.
func (c *NetworkClient) Subgraphs(ctx context.Context, ids []string) (map[string]*indexer.Subgraph, error) {
	subgraphs := make(map[string]*indexer.Subgraph, len(ids))
	if len(ids) == 0 {
		return subgraphs, nil
	}
	cursor := ""
	for {
		req := graphql.NewRequest(`
			query ($ids: [String!]!, $first: Int!, $cursor: String!) {
				subgraphs(
					where: { id_in: $ids, id_gt: $cursor }
					orderBy: id
					orderDirection: asc
					first: $first
				) {
					id
					versionCount
					versions {
						version
						createdAt
						subgraphDeployment { ipfsHash }
					}
				}
			}`)
		req.Var("ids", ids)
		req.Var("first", pageSize)
		req.Var("cursor", cursor)
		var resp struct {
			Subgraphs []struct {
				ID           string `json:"id"`
				VersionCount string `json:"versionCount"`
				Versions     []struct {
					Version            int   `json:"version"`
					CreatedAt          int64 `json:"createdAt"`
					SubgraphDeployment struct {
						IPFSHash string `json:"ipfsHash"`
					} `json:"subgraphDeployment"`
				} `json:"versions"`
			} `json:"subgraphs"`
		}
		if err := c.run(ctx, "subgraphs", req, &resp); err != nil {
			return nil, errs.Wrap(err, errs.IE009)
		}
		for _, rec := range resp.Subgraphs {
			versionCount, err := strconv.Atoi(rec.VersionCount)
			if err != nil {
				return nil, errs.Wrap(errors.Wrapf(err, "subgraph %s version count", rec.ID), errs.IE009)
			}
			subgraph := &indexer.Subgraph{ID: rec.ID, VersionCount: versionCount}
			for _, v := range rec.Versions {
				deployment, err := indexer.NewSubgraphDeploymentID(v.SubgraphDeployment.IPFSHash)
				if err != nil {
					return nil, errs.Wrap(err, errs.IE009)
				}
				subgraph.Versions = append(subgraph.Versions, indexer.SubgraphVersion{
					Version:    v.Version,
					CreatedAt:  v.CreatedAt,
					Deployment: deployment,
				})
			}
			subgraphs[rec.ID] = subgraph
		}
		if len(resp.Subgraphs) < pageSize {
			return subgraphs, nil
		}
		cursor = resp.Subgraphs[len(resp.Subgraphs)-1].ID
	}
}

// L2TransferStatus marks a deployment whose subgraph is moving to L2.
type L2TransferStatus struct {
	Deployment          indexer.SubgraphDeploymentID
	StartedTransferToL2 bool
	TransferredToL2     bool
}

// TransferredDeployments returns the deployments of subgraphs that have
// started an L1 to L2 transfer.
func (c *NetworkClient) TransferredDeployments(ctx context.Context) ([]*L2TransferStatus, error) {
	var transfers []*L2TransferStatus
	seen := make(map[indexer.SubgraphDeploymentID]bool)
	cursor := ""
	for {
		req := graphql.NewRequest(`
			query ($first: Int!, $cursor: String!) {
				subgraphs(
					where: { startedTransferToL2: true, id_gt: $cursor }
					orderBy: id
					orderDirection: asc
					first: $first
				) {
					id
					startedTransferToL2
					transferredToL2
					versions {
						subgraphDeployment { ipfsHash }
					}
				}
			}`)
		req.Var("first", pageSize)
		req.Var("cursor", cursor)
		var resp struct {
			Subgraphs []struct {
				ID                  string `json:"id"`
				StartedTransferToL2 bool   `json:"startedTransferToL2"`
				TransferredToL2     bool   `json:"transferredToL2"`
				Versions            []struct {
					SubgraphDeployment struct {
						IPFSHash string `json:"ipfsHash"`
					} `json:"subgraphDeployment"`
				} `json:"versions"`
			} `json:"subgraphs"`
		}
		if err := c.run(ctx, "transferred deployments", req, &resp); err != nil {
			return nil, errs.Wrap(err, errs.IE009)
		}
		for _, rec := range resp.Subgraphs {
			for _, v := range rec.Versions {
				deployment, err := indexer.NewSubgraphDeploymentID(v.SubgraphDeployment.IPFSHash)
				if err != nil {
					return nil, errs.Wrap(err, errs.IE009)
				}
				if seen[deployment] {
					continue
				}
				seen[deployment] = true
				transfers = append(transfers, &L2TransferStatus{
					Deployment:          deployment,
					StartedTransferToL2: rec.StartedTransferToL2,
					TransferredToL2:     rec.TransferredToL2,
				})
			}
		}
		if len(resp.Subgraphs) < pageSize {
			return transfers, nil
		}
		cursor = resp.Subgraphs[len(resp.Subgraphs)-1].ID
	}
}
