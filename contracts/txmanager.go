package contracts

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/graphops/indexer-agent/config"
	"github.com/graphops/indexer-agent/shared/errs"
	"github.com/graphops/indexer-agent/shared/eventual"
)

var log = logrus.WithField("prefix", "contracts")

// Backend is the Ethereum client surface the transaction manager needs:
// contract calls plus receipt lookups for confirmation.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// gasLimitHeadroom scales the estimated gas limit before sending, in
// percent.
const gasLimitHeadroom = 150

// Transactor owns the operator wallet of one protocol network. It holds
// the single nonce source, so every transaction of the network goes
// through its mutex, one at a time. Sends are gated on the network pause
// flag and the operator authorization, re-estimated before every attempt
// and re-priced on a bump ladder until the receipt arrives or the attempt
// budget runs out.
type Transactor struct {
	backend  Backend
	key      *ecdsa.PrivateKey
	sender   common.Address
	chainID  *big.Int
	cfg      config.TransactionMonitoring
	network  string
	paused   *eventual.Eventual[bool]
	operator *eventual.Eventual[bool]

	mu sync.Mutex
}

// NewTransactor wires a transaction manager for one network wallet.
func NewTransactor(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int, cfg config.TransactionMonitoring, network string, paused, operator *eventual.Eventual[bool]) *Transactor {
	return &Transactor{
		backend:  backend,
		key:      key,
		sender:   crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		cfg:      cfg,
		network:  network,
		paused:   paused,
		operator: operator,
	}
}

// Sender returns the operator address the transactor signs with.
func (t *Transactor) Sender() common.Address {
	return t.sender
}

// gate refuses to transact while the protocol is paused or the operator
// is not authorized for the indexer. Both states resolve themselves out
// of band, so callers treat the sentinel as a skip, not a failure.
func (t *Transactor) gate() error {
	if paused, ok := t.paused.Latest(); !ok || paused {
		return errs.New(errs.IE039)
	}
	if authorized, ok := t.operator.Latest(); !ok || !authorized {
		return errs.New(errs.IE040)
	}
	return nil
}

// Execute sends one transaction built by build and waits for its receipt.
// The build callback receives fully populated transact options; it must
// not send the transaction itself. Execute serializes against all other
// transactions of the same wallet.
func (t *Transactor) Execute(ctx context.Context, name string, build func(opts *bind.TransactOpts) (*types.Transaction, error)) (*types.Receipt, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.gate(); err != nil {
		return nil, err
	}

	logger := log.WithFields(logrus.Fields{
		"protocolNetwork": t.network,
		"transaction":     name,
	})

	nonce, err := t.backend.PendingNonceAt(ctx, t.sender)
	if err != nil {
		return nil, errs.Wrap(errors.Wrap(err, "nonce"), errs.IE038)
	}
	gasPrice, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errs.Wrap(errors.Wrap(err, "gas price"), errs.IE038)
	}

	maxAttempts := t.cfg.MaxTransactionAttempts
	for attempt := 0; ; attempt++ {
		gasPrice = t.capGasPrice(gasPrice, logger)

		tx, err := t.sendOnce(ctx, nonce, gasPrice, build)
		if err != nil {
			return nil, err
		}
		logger.WithFields(logrus.Fields{
			"hash":     tx.Hash().Hex(),
			"nonce":    nonce,
			"gasPrice": gasPrice.String(),
			"attempt":  attempt + 1,
		}).Info("Sent transaction")

		receipt, err := t.waitMined(ctx, tx)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return nil, errs.Wrap(errors.Errorf("transaction %s", tx.Hash().Hex()), errs.IE037)
			}
			logger.WithFields(logrus.Fields{
				"hash":  tx.Hash().Hex(),
				"block": receipt.BlockNumber.String(),
			}).Info("Transaction confirmed")
			return receipt, nil
		}
		if ctx.Err() != nil {
			return nil, errs.Wrap(ctx.Err(), errs.IE038)
		}
		if maxAttempts > 0 && attempt+1 >= maxAttempts {
			return nil, errs.Wrap(errors.Errorf("gave up on transaction %s after %d attempts", tx.Hash().Hex(), attempt+1), errs.IE038)
		}

		gasPrice = bumpGasPrice(gasPrice, t.cfg.GasIncreaseFactor)
		logger.WithFields(logrus.Fields{
			"hash":        tx.Hash().Hex(),
			"newGasPrice": gasPrice.String(),
		}).Warn("Transaction not confirmed in time, re-sending with higher gas price")
	}
}

// sendOnce estimates gas by building the transaction unsent, then sends
// it for real with the estimate scaled by the headroom factor.
func (t *Transactor) sendOnce(ctx context.Context, nonce uint64, gasPrice *big.Int, build func(opts *bind.TransactOpts) (*types.Transaction, error)) (*types.Transaction, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(t.key, t.chainID)
	if err != nil {
		return nil, errs.Wrap(err, errs.IE038)
	}
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(nonce)
	opts.GasPrice = gasPrice

	opts.NoSend = true
	unsent, err := build(opts)
	if err != nil {
		return nil, errs.Wrap(errors.Wrap(err, "estimate"), errs.IE038)
	}

	opts.NoSend = false
	opts.GasLimit = unsent.Gas() * gasLimitHeadroom / 100
	tx, err := build(opts)
	if err != nil {
		return nil, errs.Wrap(errors.Wrap(err, "send"), errs.IE038)
	}
	return tx, nil
}

// waitMined polls for the receipt until the gas increase timeout elapses.
func (t *Transactor) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	timeout := time.Duration(t.cfg.GasIncreaseTimeout) * time.Second
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return bind.WaitMined(waitCtx, t.backend, tx)
}

// capGasPrice clamps a gas price to the configured ceiling.
func (t *Transactor) capGasPrice(gasPrice *big.Int, logger *logrus.Entry) *big.Int {
	max := new(big.Int).Mul(big.NewInt(t.cfg.GasPriceMax), big.NewInt(params.GWei))
	if gasPrice.Cmp(max) > 0 {
		logger.WithFields(logrus.Fields{
			"gasPrice":    gasPrice.String(),
			"gasPriceMax": max.String(),
		}).Warn("Capping gas price at the configured ceiling")
		return max
	}
	return gasPrice
}

// bumpGasPrice raises the price for a re-send, always by at least one wei
// so the node accepts the replacement.
func bumpGasPrice(gasPrice *big.Int, factor float64) *big.Int {
	if factor <= 1 {
		factor = 1.1
	}
	bumped, _ := new(big.Float).Mul(new(big.Float).SetInt(gasPrice), big.NewFloat(factor)).Int(nil)
	if bumped.Cmp(gasPrice) <= 0 {
		bumped = new(big.Int).Add(gasPrice, big.NewInt(1))
	}
	return bumped
}
