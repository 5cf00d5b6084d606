package subgraph

import (
	"context"
	"testing"

	"github.com/graphops/indexer-agent/shared/errs"
	"github.com/graphops/indexer-agent/shared/testutil/assert"
	"github.com/graphops/indexer-agent/shared/testutil/require"
)

func TestEpochStartBlockNumber(t *testing.T) {
	var captured gqlRequest
	srv := newGraphQLServer(t, func(req gqlRequest) string {
		captured = req
		return gqlData(t, map[string]interface{}{
			"epoches": []map[string]interface{}{{
				"blockNumbers": []map[string]interface{}{{"blockNumber": "17120000"}},
			}},
		})
	})

	number, err := NewEpochClient(srv.URL).EpochStartBlockNumber(context.Background(), "eip155:1", 110)
	require.NoError(t, err)
	assert.Equal(t, uint64(17120000), number)
	assert.Equal(t, float64(110), captured.Variables["epoch"])
	assert.Equal(t, "eip155:1", captured.Variables["network"])
}

func TestEpochStartBlockNumber_UnknownEpoch(t *testing.T) {
	srv := newGraphQLServer(t, func(req gqlRequest) string {
		return gqlData(t, map[string]interface{}{"epoches": []interface{}{}})
	})

	_, err := NewEpochClient(srv.URL).EpochStartBlockNumber(context.Background(), "eip155:1", 9999)
	require.NotNil(t, err)
	assert.Equal(t, true, errs.IsCode(err, errs.IE042))
	assert.ErrorContains(t, "no start block for network eip155:1 at epoch 9999", err)
}

func TestEpochStartBlockNumber_NetworkMissingFromEpoch(t *testing.T) {
	srv := newGraphQLServer(t, func(req gqlRequest) string {
		return gqlData(t, map[string]interface{}{
			"epoches": []map[string]interface{}{{
				"blockNumbers": []interface{}{},
			}},
		})
	})

	_, err := NewEpochClient(srv.URL).EpochStartBlockNumber(context.Background(), "eip155:100", 110)
	require.NotNil(t, err)
	assert.Equal(t, true, errs.IsCode(err, errs.IE042))
}
