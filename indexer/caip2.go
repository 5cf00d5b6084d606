package indexer

import (
	"github.com/pkg/errors"
)

// networkAliases maps human friendly network names to CAIP-2 ids.
var networkAliases = map[string]string{
	"mainnet":          "eip155:1",
	"goerli":           "eip155:5",
	"gnosis":           "eip155:100",
	"hardhat":          "eip155:1337",
	"arbitrum-one":     "eip155:42161",
	"arbitrum-goerli":  "eip155:421613",
	"sepolia":          "eip155:11155111",
	"arbitrum-sepolia": "eip155:421614",
}

var knownChainIDs = func() map[string]bool {
	known := make(map[string]bool, len(networkAliases))
	for _, id := range networkAliases {
		known[id] = true
	}
	return known
}()

// ResolveChainID resolves a network alias, a CAIP-2 id or a bare EVM chain
// id to canonical CAIP-2 form. Unknown networks are rejected so that typos
// in configuration fail at startup instead of producing a silent no-op
// network.
func ResolveChainID(key string) (string, error) {
	if id, ok := networkAliases[key]; ok {
		return id, nil
	}
	if knownChainIDs[key] {
		return key, nil
	}
	if id := "eip155:" + key; knownChainIDs[id] {
		return id, nil
	}
	return "", errors.Errorf("failed to resolve CAIP-2 ID from the provided network alias: %s", key)
}

// HasNetworkAlias reports whether name is a registered network alias.
func HasNetworkAlias(name string) bool {
	_, ok := networkAliases[name]
	return ok
}

// ResolveChainAlias returns the human friendly alias for a CAIP-2 id. Ids
// without a registered alias are returned unchanged; the result is only
// used for log readability.
func ResolveChainAlias(caip2 string) string {
	for alias, id := range networkAliases {
		if id == caip2 {
			return alias
		}
	}
	return caip2
}

// NormalizeChainID maps a chain name to CAIP-2 form when the chain is
// known and returns it unchanged otherwise. Subgraph manifests and graph
// nodes name chains by alias; normalizing both sides makes the supported
// chain comparison spelling-insensitive.
func NormalizeChainID(key string) string {
	if key == "" {
		return ""
	}
	if id, err := ResolveChainID(key); err == nil {
		return id
	}
	return key
}
