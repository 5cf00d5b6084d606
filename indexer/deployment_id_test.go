package indexer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/mr-tron/base58"

	"github.com/graphops/indexer-agent/shared/testutil/assert"
	"github.com/graphops/indexer-agent/shared/testutil/require"
)

func TestSubgraphDeploymentID_BothEncodings(t *testing.T) {
	hexForm := "0x" + strings.Repeat("c9d1", 16)
	fromHex, err := NewSubgraphDeploymentID(hexForm)
	require.NoError(t, err)
	assert.Equal(t, hexForm, fromHex.Hex())

	ipfsHash := fromHex.IPFSHash()
	assert.Equal(t, true, strings.HasPrefix(ipfsHash, "Qm"), "CIDv0 encodings always start with Qm")

	fromHash, err := NewSubgraphDeploymentID(ipfsHash)
	require.NoError(t, err)
	assert.Equal(t, fromHex, fromHash)
	assert.Equal(t, ipfsHash, fromHash.String())
	assert.Equal(t, fromHex.Hash(), fromHash.Hash())
}

func TestSubgraphDeploymentID_InvalidInputs(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "truncated hex", input: "0x1234"},
		{name: "oversized hex", input: "0x" + strings.Repeat("ab", 33)},
		{name: "not base58", input: "QmInvalid0OIl"},
		{name: "wrong multihash code", input: base58.Encode(append([]byte{0x12, 0x21}, make([]byte, 32)...))},
		{name: "short digest", input: base58.Encode(append([]byte{0x12, 0x20}, make([]byte, 16)...))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSubgraphDeploymentID(tt.input)
			assert.ErrorContains(t, "invalid deployment id", err)
		})
	}
}

func TestSubgraphDeploymentID_TextMarshal(t *testing.T) {
	id, err := NewSubgraphDeploymentID("0x" + strings.Repeat("01", 32))
	require.NoError(t, err)

	encoded, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"`+id.IPFSHash()+`"`, string(encoded))

	var decoded SubgraphDeploymentID
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, id, decoded)
}

func TestSubgraphDeploymentID_IsZero(t *testing.T) {
	var id SubgraphDeploymentID
	assert.Equal(t, true, id.IsZero())
	id[31] = 1
	assert.Equal(t, false, id.IsZero())
}
