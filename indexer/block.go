package indexer

import (
	"github.com/ethereum/go-ethereum/common"
)

// BlockPointer identifies a chain block by number and hash. Proofs of
// indexing are always computed against a specific block, so the pair
// travels together.
type BlockPointer struct {
	Number uint64      `json:"number"`
	Hash   common.Hash `json:"hash"`
}
