package graphnode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/shared/errs"
	"github.com/graphops/indexer-agent/shared/testutil/assert"
	"github.com/graphops/indexer-agent/shared/testutil/require"
)

func mustDeploymentID(t *testing.T, s string) indexer.SubgraphDeploymentID {
	t.Helper()
	id, err := indexer.NewSubgraphDeploymentID(s)
	require.NoError(t, err)
	return id
}

func testDeploymentID(t *testing.T, fill string) indexer.SubgraphDeploymentID {
	t.Helper()
	return mustDeploymentID(t, "0x"+strings.Repeat(fill, 32))
}

type adminCall struct {
	Method string
	Params map[string]interface{}
}

// newAdminServer records every admin JSON-RPC call. The respond func may
// return a full response body, or "" for a plain success.
func newAdminServer(t *testing.T, respond func(call adminCall) string) (*httptest.Server, *[]adminCall) {
	t.Helper()
	calls := &[]adminCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			require.NoError(t, r.Body.Close())
		}()
		var req struct {
			Method string                 `json:"method"`
			Params map[string]interface{} `json:"params"`
			ID     uint64                 `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		call := adminCall{Method: req.Method, Params: req.Params}
		*calls = append(*calls, call)
		body := respond(call)
		if body == "" {
			body = fmt.Sprintf(`{"jsonrpc":"2.0","result":true,"id":%d}`, req.ID)
		}
		w.Header().Set("Content-Type", "application/json")
		_, err := io.WriteString(w, body)
		require.NoError(t, err)
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

type gqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

func newStatusServer(t *testing.T, handler func(req gqlRequest) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			require.NoError(t, r.Body.Close())
		}()
		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, err := io.WriteString(w, handler(req))
		require.NoError(t, err)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func gqlData(t *testing.T, payload interface{}) string {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{"data": payload})
	require.NoError(t, err)
	return string(b)
}

func newTestClient(t *testing.T, adminURL, statusURL string, nodes ...string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		AdminURL:     adminURL,
		StatusURL:    statusURL,
		IndexNodeIDs: nodes,
	})
	require.NoError(t, err)
	return client
}

func statusesBody(t *testing.T, records ...map[string]interface{}) string {
	t.Helper()
	return gqlData(t, map[string]interface{}{"indexingStatuses": records})
}

func assignedRecord(deployment indexer.SubgraphDeploymentID, node string) map[string]interface{} {
	return map[string]interface{}{
		"subgraphDeployment": deployment.IPFSHash(),
		"node":               node,
		"synced":             true,
		"health":             "healthy",
		"fatalError":         nil,
		"chains":             []interface{}{},
	}
}

func TestDeploymentName(t *testing.T) {
	deployment := testDeploymentID(t, "ab")
	hash := deployment.IPFSHash()
	assert.Equal(t, "indexer-agent/"+hash[len(hash)-10:], DeploymentName(deployment))
}

func TestEnsureIndexing_DeploysToUnusedNode(t *testing.T) {
	occupied := testDeploymentID(t, "11")
	deployment := testDeploymentID(t, "ab")
	statusSrv := newStatusServer(t, func(req gqlRequest) string {
		return statusesBody(t, assignedRecord(occupied, "node-1"))
	})
	adminSrv, calls := newAdminServer(t, func(call adminCall) string {
		return ""
	})

	client := newTestClient(t, adminSrv.URL, statusSrv.URL, "node-1", "node-2")
	require.NoError(t, client.EnsureIndexing(context.Background(), deployment))

	require.Equal(t, 2, len(*calls))
	create := (*calls)[0]
	assert.Equal(t, "subgraph_create", create.Method)
	assert.Equal(t, DeploymentName(deployment), create.Params["name"])
	deploy := (*calls)[1]
	assert.Equal(t, "subgraph_deploy", deploy.Method)
	assert.Equal(t, DeploymentName(deployment), deploy.Params["name"])
	assert.Equal(t, deployment.IPFSHash(), deploy.Params["ipfs_hash"])
	assert.Equal(t, "node-2", deploy.Params["node_id"])
}

func TestEnsureIndexing_AlreadyIndexed(t *testing.T) {
	deployment := testDeploymentID(t, "ab")
	statusSrv := newStatusServer(t, func(req gqlRequest) string {
		return statusesBody(t, assignedRecord(deployment, "node-1"))
	})
	adminSrv, calls := newAdminServer(t, func(call adminCall) string {
		return ""
	})

	client := newTestClient(t, adminSrv.URL, statusSrv.URL, "node-1")
	require.NoError(t, client.EnsureIndexing(context.Background(), deployment))
	assert.Equal(t, 0, len(*calls))
}

func TestEnsureIndexing_ResumesRemovedDeployment(t *testing.T) {
	deployment := testDeploymentID(t, "ab")
	statusSrv := newStatusServer(t, func(req gqlRequest) string {
		return statusesBody(t, assignedRecord(deployment, "removed"))
	})
	adminSrv, calls := newAdminServer(t, func(call adminCall) string {
		return ""
	})

	client := newTestClient(t, adminSrv.URL, statusSrv.URL, "node-1")
	require.NoError(t, client.EnsureIndexing(context.Background(), deployment))

	require.Equal(t, 1, len(*calls))
	reassign := (*calls)[0]
	assert.Equal(t, "subgraph_reassign", reassign.Method)
	assert.Equal(t, deployment.IPFSHash(), reassign.Params["ipfs_hash"])
	assert.Equal(t, "node-1", reassign.Params["node_id"])
}

func TestEnsureIndexing_ToleratesExistingName(t *testing.T) {
	deployment := testDeploymentID(t, "ab")
	statusSrv := newStatusServer(t, func(req gqlRequest) string {
		return statusesBody(t)
	})
	adminSrv, calls := newAdminServer(t, func(call adminCall) string {
		if call.Method == "subgraph_create" {
			return `{"jsonrpc":"2.0","error":{"code":0,"message":"subgraph already exists"},"id":1}`
		}
		return ""
	})

	client := newTestClient(t, adminSrv.URL, statusSrv.URL, "node-1")
	require.NoError(t, client.EnsureIndexing(context.Background(), deployment))
	require.Equal(t, 2, len(*calls))
	assert.Equal(t, "subgraph_deploy", (*calls)[1].Method)
}

func TestEnsureIndexing_PicksLeastLoadedNode(t *testing.T) {
	deployment := testDeploymentID(t, "ab")
	statusSrv := newStatusServer(t, func(req gqlRequest) string {
		return statusesBody(t,
			assignedRecord(testDeploymentID(t, "11"), "node-1"),
			assignedRecord(testDeploymentID(t, "22"), "node-1"),
			assignedRecord(testDeploymentID(t, "33"), "node-2"),
		)
	})
	adminSrv, calls := newAdminServer(t, func(call adminCall) string {
		return ""
	})

	client := newTestClient(t, adminSrv.URL, statusSrv.URL, "node-1", "node-2")
	require.NoError(t, client.EnsureIndexing(context.Background(), deployment))

	require.Equal(t, 2, len(*calls))
	assert.Equal(t, "node-2", (*calls)[1].Params["node_id"])
}

func TestRemoveDeployment(t *testing.T) {
	deployment := testDeploymentID(t, "ab")
	adminSrv, calls := newAdminServer(t, func(call adminCall) string {
		return ""
	})

	client := newTestClient(t, adminSrv.URL, "http://unused.invalid")
	require.NoError(t, client.RemoveDeployment(context.Background(), deployment))

	require.Equal(t, 1, len(*calls))
	assert.Equal(t, "subgraph_reassign", (*calls)[0].Method)
	assert.Equal(t, "removed", (*calls)[0].Params["node_id"])
}

func TestReassignDeployment_AdminErrorIsNotRetried(t *testing.T) {
	deployment := testDeploymentID(t, "ab")
	adminSrv, calls := newAdminServer(t, func(call adminCall) string {
		return `{"jsonrpc":"2.0","error":{"code":-32000,"message":"no such deployment"},"id":1}`
	})

	client := newTestClient(t, adminSrv.URL, "http://unused.invalid")
	err := client.ReassignDeployment(context.Background(), deployment, "node-2")
	assert.Equal(t, errs.IE021, errs.CodeOf(err))
	assert.ErrorContains(t, "no such deployment", err)
	assert.Equal(t, 1, len(*calls))
}

func TestAdminCall_RetriesTransportFailures(t *testing.T) {
	deployment := testDeploymentID(t, "ab")
	attempts := 0
	adminSrv, _ := newAdminServer(t, func(call adminCall) string {
		attempts++
		if attempts == 1 {
			return `not json`
		}
		return ""
	})

	client := newTestClient(t, adminSrv.URL, "http://unused.invalid")
	require.NoError(t, client.ReassignDeployment(context.Background(), deployment, "node-2"))
	assert.Equal(t, 2, attempts)
}
