package keys

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/graphops/indexer-agent/indexer"
	"github.com/graphops/indexer-agent/shared/errs"
	"github.com/graphops/indexer-agent/shared/testutil/assert"
	"github.com/graphops/indexer-agent/shared/testutil/require"
)

// Development mnemonic with a well-known first account.
const testMnemonic = "myth like bonus scare over problem client lizard pioneer submit female collect"

func testDeployment(t *testing.T, fill string) indexer.SubgraphDeploymentID {
	t.Helper()
	id, err := indexer.NewSubgraphDeploymentID("0x" + strings.Repeat(fill, 32))
	require.NoError(t, err)
	return id
}

func TestOperatorWallet_KnownVector(t *testing.T) {
	_, address, err := OperatorWallet(testMnemonic)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"), address)
}

func TestOperatorWallet_InvalidMnemonic(t *testing.T) {
	_, _, err := OperatorWallet("definitely not twelve valid words")
	require.NotNil(t, err)
	assert.ErrorContains(t, "invalid mnemonic", err)
}

func TestUniqueAllocationID_Deterministic(t *testing.T) {
	deployment := testDeployment(t, "ab")

	first, _, err := UniqueAllocationID(testMnemonic, 100, deployment, nil)
	require.NoError(t, err)
	second, _, err := UniqueAllocationID(testMnemonic, 100, deployment, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	otherEpoch, _, err := UniqueAllocationID(testMnemonic, 101, deployment, nil)
	require.NoError(t, err)
	if otherEpoch == first {
		t.Error("Expected a different id for a different epoch")
	}

	otherDeployment, _, err := UniqueAllocationID(testMnemonic, 100, testDeployment(t, "cd"), nil)
	require.NoError(t, err)
	if otherDeployment == first {
		t.Error("Expected a different id for a different deployment")
	}
}

func TestUniqueAllocationID_SkipsExisting(t *testing.T) {
	deployment := testDeployment(t, "ab")

	first, _, err := UniqueAllocationID(testMnemonic, 100, deployment, nil)
	require.NoError(t, err)

	next, _, err := UniqueAllocationID(testMnemonic, 100, deployment, []common.Address{first})
	require.NoError(t, err)
	if next == first {
		t.Fatal("Expected the salt to walk past the used id")
	}

	// The walk is itself deterministic.
	again, _, err := UniqueAllocationID(testMnemonic, 100, deployment, []common.Address{first})
	require.NoError(t, err)
	assert.Equal(t, next, again)
}

func TestUniqueAllocationID_Exhausted(t *testing.T) {
	deployment := testDeployment(t, "ab")

	var existing []common.Address
	for i := 0; i < saltLimit; i++ {
		id, _, err := UniqueAllocationID(testMnemonic, 7, deployment, existing)
		require.NoError(t, err)
		existing = append(existing, id)
	}

	_, _, err := UniqueAllocationID(testMnemonic, 7, deployment, existing)
	require.NotNil(t, err)
	assert.Equal(t, true, errs.IsCode(err, errs.IE036))
	assert.ErrorContains(t, "exhausted limit of 100 parallel allocations", err)
}

func TestAllocationProof_RecoversAllocationID(t *testing.T) {
	deployment := testDeployment(t, "ab")
	indexerAddress := common.HexToAddress("0x2222222222222222222222222222222222222222")

	allocationID, key, err := UniqueAllocationID(testMnemonic, 100, deployment, nil)
	require.NoError(t, err)

	proof, err := AllocationProof(key, indexerAddress, allocationID)
	require.NoError(t, err)

	sig, err := hexutil.Decode(proof)
	require.NoError(t, err)
	require.Equal(t, crypto.SignatureLength, len(sig))
	if v := sig[crypto.RecoveryIDOffset]; v != 27 && v != 28 {
		t.Fatalf("Expected a legacy recovery id, got %d", v)
	}

	// Recover the signer the way the staking contract does.
	sig[crypto.RecoveryIDOffset] -= 27
	digest := accounts.TextHash(crypto.Keccak256(indexerAddress.Bytes(), allocationID.Bytes()))
	pub, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, allocationID, crypto.PubkeyToAddress(*pub))
}
