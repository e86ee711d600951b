// Package tx drives the transaction lifecycle: submitting through the
// wallet provider and polling until the receipt settles.
package tx

import (
	"context"
	"time"

	"github.com/pinksters/polkagodot-plugin/abi"
	"github.com/pinksters/polkagodot-plugin/logger"
	"github.com/pinksters/polkagodot-plugin/metrics"
	"github.com/pinksters/polkagodot-plugin/provider"
	"github.com/pinksters/polkagodot-plugin/types"
)

// WalletSession is the slice of the wallet manager the controller needs.
type WalletSession interface {
	Connected() bool
	Address() string
	ActiveProvider() provider.Provider
}

// ChainEnsurer reconciles the wallet's network before a submission.
type ChainEnsurer interface {
	EnsureCorrectChain(ctx context.Context, chainConfigJSON []byte) (*types.SwitchResult, error)
}

// Controller submits transactions and waits for their receipts.
type Controller struct {
	wallets WalletSession
	chains  ChainEnsurer
	log     logger.Logger
	rec     metrics.Recorder

	pollInterval time.Duration
	maxAttempts  int
}

// ControllerDeps are the collaborators and tuning knobs for a Controller.
// Zero intervals and attempt counts fall back to defaults.
type ControllerDeps struct {
	Wallets      WalletSession
	Chains       ChainEnsurer
	Logger       logger.Logger
	Metrics      metrics.Recorder
	PollInterval time.Duration
	MaxAttempts  int
}

func NewController(deps ControllerDeps) *Controller {
	if deps.Logger == nil {
		deps.Logger = logger.NoopLogger{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopRecorder{}
	}
	if deps.PollInterval <= 0 {
		deps.PollInterval = types.DefaultPollInterval
	}
	if deps.MaxAttempts <= 0 {
		deps.MaxAttempts = types.DefaultPollAttempts
	}
	return &Controller{
		wallets:      deps.Wallets,
		chains:       deps.Chains,
		log:          deps.Logger,
		rec:          deps.Metrics,
		pollInterval: deps.PollInterval,
		maxAttempts:  deps.MaxAttempts,
	}
}

// WaitForTransaction polls for the receipt of txHash until it settles,
// fails, or maxAttempts polls are exhausted. maxAttempts <= 0 uses the
// controller default.
func (c *Controller) WaitForTransaction(ctx context.Context, p provider.Provider, txHash string, maxAttempts int) (*types.Receipt, error) {
	if maxAttempts <= 0 {
		maxAttempts = c.maxAttempts
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		raw, err := p.Request(ctx, provider.MethodTransactionReceipt, txHash)
		if err != nil {
			return nil, err
		}

		var receipt *types.Receipt
		if len(raw) > 0 && string(raw) != "null" {
			receipt = &types.Receipt{}
			if err := provider.DecodeObject(raw, receipt); err != nil {
				return nil, err
			}
		}
		if !receipt.Pending() {
			if receipt.Status.Succeeded() {
				c.log.Info("transaction confirmed", map[string]any{
					"txHash": txHash,
					"block":  receipt.BlockNumber,
				})
				return receipt, nil
			}
			c.rec.IncCounter("tx_reverted", nil)
			return nil, types.Errorf(types.ErrTxFailed, "Transaction failed")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	c.rec.IncCounter("tx_timeout", nil)
	return nil, types.Errorf(types.ErrTxTimeout, "Transaction timeout after %d attempts", maxAttempts)
}

// SubmitAndWait sends a transaction through the provider and blocks until
// its receipt settles.
func (c *Controller) SubmitAndWait(ctx context.Context, p provider.Provider, from, to, data string) (string, *types.Receipt, error) {
	raw, err := p.Request(ctx, provider.MethodSendTransaction, map[string]interface{}{
		"from": from,
		"to":   to,
		"data": data,
	})
	if err != nil {
		return "", nil, err
	}
	txHash, err := provider.DecodeString(raw)
	if err != nil {
		return "", nil, err
	}
	c.log.Info("transaction submitted", map[string]any{"txHash": txHash})
	receipt, err := c.WaitForTransaction(ctx, p, txHash, 0)
	return txHash, receipt, err
}

// EquipNFT switches to the configured chain and calls equipHat(tokenID) on
// the game manager contract.
func (c *Controller) EquipNFT(ctx context.Context, tokenID uint64, gameManager string, chainConfigJSON []byte) *types.TxResult {
	word, err := abi.EncodeUint256(tokenID)
	if err != nil {
		return &types.TxResult{TokenID: tokenID, Error: err.Error()}
	}
	data, err := abi.BuildCallData("equipHat", word)
	if err != nil {
		return &types.TxResult{TokenID: tokenID, Error: err.Error()}
	}
	res := c.submitCall(ctx, "equip", gameManager, data, chainConfigJSON)
	res.TokenID = tokenID
	return res
}

// UnequipNFT switches to the configured chain and calls unequipHat() on the
// game manager contract.
func (c *Controller) UnequipNFT(ctx context.Context, gameManager string, chainConfigJSON []byte) *types.TxResult {
	data, err := abi.BuildCallData("unequipHat")
	if err != nil {
		return &types.TxResult{Error: err.Error()}
	}
	return c.submitCall(ctx, "unequip", gameManager, data, chainConfigJSON)
}

func (c *Controller) submitCall(ctx context.Context, op, to, data string, chainConfigJSON []byte) *types.TxResult {
	started := time.Now()
	if !c.wallets.Connected() {
		c.log.Error("cannot submit transaction, no wallet connected", map[string]any{"op": op})
		return &types.TxResult{Error: "No wallet connected"}
	}
	if _, err := c.chains.EnsureCorrectChain(ctx, chainConfigJSON); err != nil {
		return &types.TxResult{Error: err.Error()}
	}
	p := c.wallets.ActiveProvider()
	if p == nil {
		return &types.TxResult{Error: "No wallet connected"}
	}

	txHash, _, err := c.SubmitAndWait(ctx, p, c.wallets.Address(), to, data)
	if err != nil {
		c.log.Error("transaction failed", map[string]any{
			"op":     op,
			"txHash": txHash,
			"error":  err.Error(),
		})
		c.rec.IncCounter("tx_failed", map[string]string{"operation": op})
		return &types.TxResult{TxHash: txHash, Error: err.Error()}
	}
	c.rec.IncCounter("tx_confirmed", map[string]string{"operation": op})
	c.rec.ObserveLatency("tx_confirm", time.Since(started), map[string]string{"operation": op})
	return &types.TxResult{Success: true, TxHash: txHash}
}
