// Package subgraph queries the protocol's GraphQL APIs: the network
// subgraph for deployments, allocations and network parameters, and the
// epoch block oracle subgraph for epoch start blocks.
package subgraph

import (
	"context"
	"math/big"

	"github.com/machinebox/graphql"

	"github.com/graphops/indexer-agent/shared/retry"
)

// pageSize is the maximum page the hosted service and graph nodes accept.
const pageSize = 1000

// Client executes GraphQL requests against a single endpoint with the
// standard retry envelope.
type Client struct {
	gql *graphql.Client
	url string
}

// NewClient returns a client for the given GraphQL endpoint.
func NewClient(url string) *Client {
	return &Client{gql: graphql.NewClient(url), url: url}
}

// URL returns the endpoint this client queries.
func (c *Client) URL() string {
	return c.url
}

func (c *Client) run(ctx context.Context, name string, req *graphql.Request, resp interface{}) error {
	return retry.Do(ctx, name, func() error {
		return c.gql.Run(ctx, req, resp)
	})
}

// parseBigInt reads a GraphQL BigInt, which arrives as a decimal string.
// Empty values map to nil.
func parseBigInt(s string) *big.Int {
	if s == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	return v
}
