package indexer

import (
	"testing"

	"github.com/graphops/indexer-agent/shared/testutil/assert"
	"github.com/graphops/indexer-agent/shared/testutil/require"
)

func TestResolveChainID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "alias", input: "mainnet", want: "eip155:1"},
		{name: "l2 alias", input: "arbitrum-one", want: "eip155:42161"},
		{name: "testnet alias", input: "sepolia", want: "eip155:11155111"},
		{name: "caip2 passthrough", input: "eip155:100", want: "eip155:100"},
		{name: "bare chain id", input: "5", want: "eip155:5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveChainID(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveChainID_Unknown(t *testing.T) {
	for _, input := range []string{"eip155:0", "0", "moonnet", ""} {
		_, err := ResolveChainID(input)
		assert.ErrorContains(t, "failed to resolve CAIP-2 ID", err)
	}
}

func TestResolveChainAlias(t *testing.T) {
	assert.Equal(t, "mainnet", ResolveChainAlias("eip155:1"))
	assert.Equal(t, "arbitrum-sepolia", ResolveChainAlias("eip155:421614"))
	// Ids without a registered alias come back unchanged.
	assert.Equal(t, "eip155:31337", ResolveChainAlias("eip155:31337"))
}
