package subgraph

import (
	"context"
	"strconv"

	"github.com/machinebox/graphql"
	"github.com/pkg/errors"

	"github.com/graphops/indexer-agent/shared/errs"
)

// EpochClient reads epoch start blocks from an epoch block oracle
// subgraph. The oracle records, per epoch and per chain, the block at
// which the epoch started; proofs of indexing are computed against these
// blocks.
type EpochClient struct {
	*Client
}

// NewEpochClient returns a client for an epoch block oracle endpoint.
func NewEpochClient(url string) *EpochClient {
	return &EpochClient{Client: NewClient(url)}
}

// EpochStartBlockNumber returns the start block number the oracle recorded
// for the network at the given epoch.
func (c *EpochClient) EpochStartBlockNumber(ctx context.Context, networkID string, epoch int64) (uint64, error) {
	req := graphql.NewRequest(`
		query ($epoch: Int!, $network: String!) {
			epoches(where: { epochNumber: $epoch }) {
				blockNumbers(where: { network: $network }) {
					blockNumber
				}
			}
		}`)
	req.Var("epoch", epoch)
	req.Var("network", networkID)
	var resp struct {
		Epoches []struct {
			BlockNumbers []struct {
				BlockNumber string `json:"blockNumber"`
			} `json:"blockNumbers"`
		} `json:"epoches"`
	}
	if err := c.run(ctx, "epoch start block", req, &resp); err != nil {
		return 0, errs.Wrap(err, errs.IE042)
	}
	if len(resp.Epoches) == 0 || len(resp.Epoches[0].BlockNumbers) == 0 {
		return 0, errs.Wrap(errors.Errorf("no start block for network %s at epoch %d", networkID, epoch), errs.IE042)
	}
	number, err := strconv.ParseUint(resp.Epoches[0].BlockNumbers[0].BlockNumber, 10, 64)
	if err != nil {
		return 0, errs.Wrap(errors.Wrapf(err, "start block of epoch %d", epoch), errs.IE042)
	}
	return number, nil
}
