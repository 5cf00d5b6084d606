// Package keys derives the agent's Ethereum keys from the indexer
// mnemonic: the operator wallet that signs protocol transactions and the
// per-allocation keys whose addresses double as allocation ids.
package keys

import (
	"crypto/ecdsa"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"

	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/shared/errs"
)

// saltLimit bounds the search for an unused allocation id. The contracts
// require ids to be unique forever, so a collision with a previous
// allocation of the same (epoch, deployment) pair is resolved by bumping
// the final path component.
const saltLimit = 100

// OperatorWallet derives the operator key at the standard Ethereum
// account path.
func OperatorWallet(mnemonic string) (*ecdsa.PrivateKey, common.Address, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, common.Address{}, errors.Wrap(err, "invalid mnemonic")
	}
	key, err := deriveKey(seed, accounts.DefaultBaseDerivationPath)
	if err != nil {
		return nil, common.Address{}, err
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}

// UniqueAllocationID derives an allocation key whose address is not in
// existing. The path encodes the epoch and the deployment so that
// concurrent allocations of one indexer never collide, and the salt
// component walks past ids already used in a previous epoch lifecycle.
func UniqueAllocationID(mnemonic string, epoch int64, deployment indexer.SubgraphDeploymentID, existing []common.Address) (common.Address, *ecdsa.PrivateKey, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return common.Address{}, nil, errs.Wrap(errors.Wrap(err, "invalid mnemonic"), errs.IE036)
	}
	used := make(map[common.Address]bool, len(existing))
	for _, id := range existing {
		used[id] = true
	}
	for salt := uint32(0); salt < saltLimit; salt++ {
		key, err := deriveKey(seed, allocationPath(epoch, deployment, salt))
		if err != nil {
			return common.Address{}, nil, errs.Wrap(err, errs.IE036)
		}
		id := crypto.PubkeyToAddress(key.PublicKey)
		if !used[id] {
			return id, key, nil
		}
	}
	return common.Address{}, nil, errs.Wrap(
		errors.Errorf("exhausted limit of %d parallel allocations for deployment %s", saltLimit, deployment),
		errs.IE036,
	)
}

// AllocationProof signs the (indexer, allocationID) pair with the
// allocation key. The staking contract recovers the allocation id from
// this proof when the allocation is created, which ties the id to a key
// only this indexer controls.
func AllocationProof(allocationKey *ecdsa.PrivateKey, indexerAddress, allocationID common.Address) (string, error) {
	packed := crypto.Keccak256(indexerAddress.Bytes(), allocationID.Bytes())
	sig, err := crypto.Sign(accounts.TextHash(packed), allocationKey)
	if err != nil {
		return "", err
	}
	// Contract-side recovery expects the legacy 27/28 recovery id.
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// allocationPath builds the derivation path of an allocation key: the
// epoch, then every byte of the deployment's ipfs hash, then the salt.
// All components are unhardened.
func allocationPath(epoch int64, deployment indexer.SubgraphDeploymentID, salt uint32) accounts.DerivationPath {
	ipfsHash := deployment.IPFSHash()
	path := make(accounts.DerivationPath, 0, len(ipfsHash)+2)
	path = append(path, uint32(epoch))
	for _, b := range []byte(ipfsHash) {
		path = append(path, uint32(b))
	}
	return append(path, salt)
}

func deriveKey(seed []byte, path accounts.DerivationPath) (*ecdsa.PrivateKey, error) {
	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	for _, n := range path {
		key, err = key.Derive(n)
		if err != nil {
			return nil, err
		}
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return priv.ToECDSA(), nil
}
