// Package indexer defines the core protocol types shared across the
// agent: subgraph deployment identifiers, indexing rules, allocations,
// POI dispute records and the pure rule evaluation logic that turns
// observed state into allocation decisions.
package indexer

import (
	"bytes"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// SubgraphDeploymentID is the content address of a subgraph deployment.
// It has two interchangeable encodings: a 32 byte value used on chain and
// in the network subgraph, and a base58 IPFS CIDv0 used by graph nodes.
// Equality is over the 32 byte form.
type SubgraphDeploymentID [32]byte

// multihashPrefix marks a CIDv0: sha2-256 digest of 32 bytes.
var multihashPrefix = []byte{0x12, 0x20}

// NewSubgraphDeploymentID parses either encoding of a deployment id: the
// 0x-prefixed 32 byte hex form or the base58 IPFS hash form.
func NewSubgraphDeploymentID(s string) (SubgraphDeploymentID, error) {
	if strings.HasPrefix(s, "0x") {
		return SubgraphDeploymentIDFromBytes32(s)
	}
	return SubgraphDeploymentIDFromIPFSHash(s)
}

// SubgraphDeploymentIDFromBytes32 parses the 0x-prefixed hex encoding.
func SubgraphDeploymentIDFromBytes32(s string) (SubgraphDeploymentID, error) {
	var id SubgraphDeploymentID
	raw, err := hexutil.Decode(s)
	if err != nil {
		return id, errors.Wrapf(err, "invalid deployment id %q", s)
	}
	if len(raw) != 32 {
		return id, errors.Errorf("invalid deployment id %q: expected 32 bytes, got %d", s, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// SubgraphDeploymentIDFromIPFSHash parses the base58 CIDv0 encoding.
func SubgraphDeploymentIDFromIPFSHash(s string) (SubgraphDeploymentID, error) {
	var id SubgraphDeploymentID
	raw, err := base58.Decode(s)
	if err != nil {
		return id, errors.Wrapf(err, "invalid deployment id %q", s)
	}
	if len(raw) != 34 || !bytes.Equal(raw[:2], multihashPrefix) {
		return id, errors.Errorf("invalid deployment id %q: not a sha2-256 CIDv0", s)
	}
	copy(id[:], raw[2:])
	return id, nil
}

// Bytes32 returns the raw 32 byte form.
func (id SubgraphDeploymentID) Bytes32() [32]byte {
	return id
}

// Hash returns the 32 byte form as a common.Hash for contract calls.
func (id SubgraphDeploymentID) Hash() common.Hash {
	return common.Hash(id)
}

// Hex returns the 0x-prefixed hex encoding.
func (id SubgraphDeploymentID) Hex() string {
	return hexutil.Encode(id[:])
}

// IPFSHash returns the base58 CIDv0 encoding.
func (id SubgraphDeploymentID) IPFSHash() string {
	return base58.Encode(append(append([]byte{}, multihashPrefix...), id[:]...))
}

// String renders the IPFS hash form, which is what operators recognize.
func (id SubgraphDeploymentID) String() string {
	return id.IPFSHash()
}

// IsZero reports whether the id is entirely zero bytes.
func (id SubgraphDeploymentID) IsZero() bool {
	return id == SubgraphDeploymentID{}
}

// MarshalText implements encoding.TextMarshaler using the IPFS hash form.
func (id SubgraphDeploymentID) MarshalText() ([]byte, error) {
	return []byte(id.IPFSHash()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and accepts either form.
func (id *SubgraphDeploymentID) UnmarshalText(text []byte) error {
	parsed, err := NewSubgraphDeploymentID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
