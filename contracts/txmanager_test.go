package contracts

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/sirupsen/logrus"

	"github.com/graphops/indexer-agent/config"
	"github.com/graphops/indexer-agent/shared/errs"
	"github.com/graphops/indexer-agent/shared/eventual"
	"github.com/graphops/indexer-agent/shared/testutil/assert"
	"github.com/graphops/indexer-agent/shared/testutil/require"
)

// fakeBackend satisfies Backend with canned values. Receipts are handed
// out by hash; transactions with no receipt stay pending.
type fakeBackend struct {
	mu       sync.Mutex
	nonce    uint64
	gasPrice *big.Int
	receipts map[common.Hash]*types.Receipt
	sent     []*types.Transaction
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		gasPrice: big.NewInt(2 * params.GWei),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (b *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{1}, nil
}

func (b *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}

func (b *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (b *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{1}, nil
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return b.nonce, nil
}

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.gasPrice), nil
}

func (b *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(params.GWei), nil
}

func (b *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100000, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (b *fakeBackend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, ethereum.NotFound
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if receipt, ok := b.receipts[hash]; ok {
		return receipt, nil
	}
	return nil, ethereum.NotFound
}

func newTestTransactor(t *testing.T, backend Backend, cfg config.TransactionMonitoring) *Transactor {
	t.Helper()
	key, err := crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	require.NoError(t, err)
	return NewTransactor(backend, key, big.NewInt(1), cfg, "eip155:1",
		eventual.Resolved(false), eventual.Resolved(true))
}

// buildRecorder fabricates transactions the way a contract binding would:
// the estimate pass reports the gas the call needs, the send pass submits
// with whatever limit the transactor set.
type buildRecorder struct {
	estimatedGas uint64
	sentLimits   []uint64
	sentPrices   []*big.Int
	backend      *fakeBackend
	confirm      func(tx *types.Transaction)
}

func (r *buildRecorder) build(opts *bind.TransactOpts) (*types.Transaction, error) {
	gas := opts.GasLimit
	if gas == 0 {
		gas = r.estimatedGas
	}
	tx := types.NewTransaction(opts.Nonce.Uint64(), common.Address{1}, big.NewInt(0), gas, opts.GasPrice, nil)
	if opts.NoSend {
		return tx, nil
	}
	r.sentLimits = append(r.sentLimits, gas)
	r.sentPrices = append(r.sentPrices, new(big.Int).Set(opts.GasPrice))
	if err := r.backend.SendTransaction(opts.Context, tx); err != nil {
		return nil, err
	}
	if r.confirm != nil {
		r.confirm(tx)
	}
	return tx, nil
}

func testMonitoring() config.TransactionMonitoring {
	return config.TransactionMonitoring{
		GasIncreaseTimeout:     0, // expire the wait immediately, the tests control receipts
		GasIncreaseFactor:      1.5,
		GasPriceMax:            100,
		MaxTransactionAttempts: 3,
	}
}

func TestTransactorGate(t *testing.T) {
	newGated := func(paused, operator *eventual.Eventual[bool]) *Transactor {
		key, err := crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
		require.NoError(t, err)
		return NewTransactor(nil, key, big.NewInt(1), testMonitoring(), "eip155:1", paused, operator)
	}

	err := newGated(eventual.New[bool](), eventual.Resolved(true)).gate()
	assert.Equal(t, true, errs.IsCode(err, errs.IE039), "unresolved pause state must not transact")

	err = newGated(eventual.Resolved(true), eventual.Resolved(true)).gate()
	assert.Equal(t, true, errs.IsCode(err, errs.IE039))

	err = newGated(eventual.Resolved(false), eventual.Resolved(false)).gate()
	assert.Equal(t, true, errs.IsCode(err, errs.IE040))

	assert.NoError(t, newGated(eventual.Resolved(false), eventual.Resolved(true)).gate())
}

func TestExecute_RefusesWhilePaused(t *testing.T) {
	key, err := crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	require.NoError(t, err)
	tr := NewTransactor(nil, key, big.NewInt(1), testMonitoring(), "eip155:1",
		eventual.Resolved(true), eventual.Resolved(true))

	_, err = tr.Execute(context.Background(), "register", func(*bind.TransactOpts) (*types.Transaction, error) {
		t.Fatal("build must not run while paused")
		return nil, nil
	})
	assert.Equal(t, true, errs.IsCode(err, errs.IE039))
}

func TestExecute_ConfirmsWithGasHeadroom(t *testing.T) {
	backend := newFakeBackend()
	backend.nonce = 7
	tr := newTestTransactor(t, backend, testMonitoring())

	recorder := &buildRecorder{
		estimatedGas: 100000,
		backend:      backend,
		confirm: func(tx *types.Transaction) {
			backend.receipts[tx.Hash()] = &types.Receipt{
				Status:      types.ReceiptStatusSuccessful,
				BlockNumber: big.NewInt(10),
			}
		},
	}

	receipt, err := tr.Execute(context.Background(), "allocate", recorder.build)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	require.Equal(t, 1, len(recorder.sentLimits))
	assert.Equal(t, uint64(150000), recorder.sentLimits[0], "estimate scaled by the headroom factor")
	assert.Equal(t, uint64(7), backend.sent[0].Nonce())
}

func TestExecute_RevertedReceiptFails(t *testing.T) {
	backend := newFakeBackend()
	tr := newTestTransactor(t, backend, testMonitoring())

	recorder := &buildRecorder{
		estimatedGas: 50000,
		backend:      backend,
		confirm: func(tx *types.Transaction) {
			backend.receipts[tx.Hash()] = &types.Receipt{
				Status:      types.ReceiptStatusFailed,
				BlockNumber: big.NewInt(10),
			}
		},
	}

	_, err := tr.Execute(context.Background(), "closeAllocation", recorder.build)
	assert.Equal(t, true, errs.IsCode(err, errs.IE037))
}

func TestExecute_BumpsGasPriceUntilAttemptsExhausted(t *testing.T) {
	backend := newFakeBackend()
	cfg := testMonitoring()
	cfg.MaxTransactionAttempts = 2
	tr := newTestTransactor(t, backend, cfg)

	// No receipts ever arrive, every wait times out.
	recorder := &buildRecorder{estimatedGas: 50000, backend: backend}

	_, err := tr.Execute(context.Background(), "claimMany", recorder.build)
	assert.Equal(t, true, errs.IsCode(err, errs.IE038))

	require.Equal(t, 2, len(recorder.sentPrices))
	assert.Equal(t, 1, recorder.sentPrices[1].Cmp(recorder.sentPrices[0]), "the re-send must pay more")
}

func TestCapGasPrice(t *testing.T) {
	tr := newTestTransactor(t, newFakeBackend(), testMonitoring())
	logger := logrus.WithField("prefix", "test")

	ceiling := new(big.Int).Mul(big.NewInt(100), big.NewInt(params.GWei))
	over := new(big.Int).Mul(big.NewInt(500), big.NewInt(params.GWei))
	assert.Equal(t, 0, tr.capGasPrice(over, logger).Cmp(ceiling))

	under := big.NewInt(5 * params.GWei)
	assert.Equal(t, 0, tr.capGasPrice(under, logger).Cmp(under))
}

func TestBumpGasPrice(t *testing.T) {
	assert.Equal(t, int64(150), bumpGasPrice(big.NewInt(100), 1.5).Int64())
	// A degenerate factor still moves the price by at least one wei so
	// the node accepts the replacement.
	assert.Equal(t, int64(2), bumpGasPrice(big.NewInt(1), 1.0).Int64())
}
