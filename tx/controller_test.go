package tx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinksters/polkagodot-plugin/provider"
	"github.com/pinksters/polkagodot-plugin/types"
)

type providerCall struct {
	method string
	params []interface{}
}

// seqProvider replays queued responses per method, repeating the last one
// once the queue drains.
type seqProvider struct {
	queues map[string][]string
	errs   map[string]error
	calls  []providerCall
}

func newSeqProvider() *seqProvider {
	return &seqProvider{
		queues: make(map[string][]string),
		errs:   make(map[string]error),
	}
}

func (s *seqProvider) enqueue(method string, rawResponses ...string) *seqProvider {
	s.queues[method] = append(s.queues[method], rawResponses...)
	return s
}

func (s *seqProvider) fail(method string, err error) *seqProvider {
	s.errs[method] = err
	return s
}

func (s *seqProvider) Request(_ context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	s.calls = append(s.calls, providerCall{method: method, params: params})
	if err, ok := s.errs[method]; ok {
		return nil, err
	}
	q, ok := s.queues[method]
	if !ok || len(q) == 0 {
		return nil, fmt.Errorf("unexpected method %s", method)
	}
	head := q[0]
	if len(q) > 1 {
		s.queues[method] = q[1:]
	}
	return json.RawMessage(head), nil
}

func (s *seqProvider) callCount(method string) int {
	n := 0
	for _, c := range s.calls {
		if c.method == method {
			n++
		}
	}
	return n
}

type fakeWallet struct {
	connected bool
	address   string
	provider  provider.Provider
}

func (w *fakeWallet) Connected() bool                   { return w.connected }
func (w *fakeWallet) Address() string                   { return w.address }
func (w *fakeWallet) ActiveProvider() provider.Provider { return w.provider }

type fakeChains struct {
	err   error
	calls int
}

func (c *fakeChains) EnsureCorrectChain(context.Context, []byte) (*types.SwitchResult, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &types.SwitchResult{Success: true, Action: types.SwitchActionAlreadyCorrect}, nil
}

const (
	testTxHash      = `"0xf00d"`
	minedReceipt    = `{"blockNumber":"0x10","status":"0x1","transactionHash":"0xf00d"}`
	revertedReceipt = `{"blockNumber":"0x10","status":"0x0","transactionHash":"0xf00d"}`
	chainJSON       = `{"chainId":"0x14a34","chainName":"Base Sepolia"}`
)

func newTestController(p provider.Provider, connected bool) (*Controller, *fakeChains) {
	chains := &fakeChains{}
	c := NewController(ControllerDeps{
		Wallets:      &fakeWallet{connected: connected, address: "0xsender", provider: p},
		Chains:       chains,
		PollInterval: time.Millisecond,
		MaxAttempts:  5,
	})
	return c, chains
}

func TestWaitForTransactionResolvesAfterPending(t *testing.T) {
	p := newSeqProvider().enqueue(provider.MethodTransactionReceipt, "null", "null", minedReceipt)
	c, _ := newTestController(p, true)

	receipt, err := c.WaitForTransaction(context.Background(), p, "0xf00d", 0)
	require.NoError(t, err)
	assert.Equal(t, "0x10", receipt.BlockNumber)
	assert.True(t, receipt.Status.Succeeded())
	assert.Equal(t, 3, p.callCount(provider.MethodTransactionReceipt))
}

func TestWaitForTransactionTimeout(t *testing.T) {
	p := newSeqProvider().enqueue(provider.MethodTransactionReceipt, "null")
	c, _ := newTestController(p, true)

	_, err := c.WaitForTransaction(context.Background(), p, "0xf00d", 2)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrTxTimeout))
	assert.Contains(t, err.Error(), "Transaction timeout")
	assert.Equal(t, 2, p.callCount(provider.MethodTransactionReceipt))
}

func TestWaitForTransactionReverted(t *testing.T) {
	p := newSeqProvider().enqueue(provider.MethodTransactionReceipt, revertedReceipt)
	c, _ := newTestController(p, true)

	_, err := c.WaitForTransaction(context.Background(), p, "0xf00d", 0)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrTxFailed))
	assert.Equal(t, "Transaction failed", err.Error())
}

func TestWaitForTransactionNumericStatus(t *testing.T) {
	p := newSeqProvider().enqueue(provider.MethodTransactionReceipt,
		`{"blockNumber":"0x10","status":1,"transactionHash":"0xf00d"}`)
	c, _ := newTestController(p, true)

	receipt, err := c.WaitForTransaction(context.Background(), p, "0xf00d", 0)
	require.NoError(t, err)
	assert.True(t, receipt.Status.Succeeded())
}

func TestWaitForTransactionContextCancelled(t *testing.T) {
	p := newSeqProvider().enqueue(provider.MethodTransactionReceipt, "null")
	c, _ := newTestController(p, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.WaitForTransaction(ctx, p, "0xf00d", 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSubmitAndWait(t *testing.T) {
	p := newSeqProvider().
		enqueue(provider.MethodSendTransaction, testTxHash).
		enqueue(provider.MethodTransactionReceipt, "null", minedReceipt)
	c, _ := newTestController(p, true)

	hash, receipt, err := c.SubmitAndWait(context.Background(), p, "0xsender", "0xcontract", "0xdata")
	require.NoError(t, err)
	assert.Equal(t, "0xf00d", hash)
	assert.Equal(t, "0xf00d", receipt.TransactionHash)

	sent := p.calls[0]
	require.Equal(t, provider.MethodSendTransaction, sent.method)
	txObj := sent.params[0].(map[string]interface{})
	assert.Equal(t, "0xsender", txObj["from"])
	assert.Equal(t, "0xcontract", txObj["to"])
	assert.Equal(t, "0xdata", txObj["data"])
}

func TestEquipNFT(t *testing.T) {
	p := newSeqProvider().
		enqueue(provider.MethodSendTransaction, testTxHash).
		enqueue(provider.MethodTransactionReceipt, minedReceipt)
	c, chains := newTestController(p, true)

	res := c.EquipNFT(context.Background(), 7, "0xgame", []byte(chainJSON))
	assert.True(t, res.Success)
	assert.Equal(t, uint64(7), res.TokenID)
	assert.Equal(t, "0xf00d", res.TxHash)
	assert.Equal(t, 1, chains.calls)

	txObj := p.calls[0].params[0].(map[string]interface{})
	data := txObj["data"].(string)
	assert.True(t, strings.HasPrefix(data, "0x20210749"))
	assert.Len(t, data, 10+64)
	assert.True(t, strings.HasSuffix(data, "7"))
}

func TestEquipNFTNoWallet(t *testing.T) {
	c, chains := newTestController(newSeqProvider(), false)

	res := c.EquipNFT(context.Background(), 7, "0xgame", []byte(chainJSON))
	assert.False(t, res.Success)
	assert.Equal(t, "No wallet connected", res.Error)
	assert.Equal(t, uint64(7), res.TokenID)
	assert.Equal(t, 0, chains.calls)
}

func TestEquipNFTChainSwitchFails(t *testing.T) {
	p := newSeqProvider()
	c, chains := newTestController(p, true)
	chains.err = types.Errorf(types.ErrSwitchFailed, "Failed to switch to Base Sepolia: User rejected the request")

	res := c.EquipNFT(context.Background(), 7, "0xgame", []byte(chainJSON))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Failed to switch to Base Sepolia")
	assert.Empty(t, p.calls)
}

func TestEquipNFTRejected(t *testing.T) {
	p := newSeqProvider().fail(provider.MethodSendTransaction,
		&provider.RPCError{Code: provider.CodeUserRejected, Message: "User rejected the request"})
	c, _ := newTestController(p, true)

	res := c.EquipNFT(context.Background(), 7, "0xgame", []byte(chainJSON))
	assert.False(t, res.Success)
	assert.Equal(t, "User rejected the request", res.Error)
}

func TestUnequipNFT(t *testing.T) {
	p := newSeqProvider().
		enqueue(provider.MethodSendTransaction, testTxHash).
		enqueue(provider.MethodTransactionReceipt, minedReceipt)
	c, _ := newTestController(p, true)

	res := c.UnequipNFT(context.Background(), "0xgame", []byte(chainJSON))
	assert.True(t, res.Success)
	assert.Equal(t, uint64(0), res.TokenID)

	txObj := p.calls[0].params[0].(map[string]interface{})
	assert.Equal(t, "0x9871bf3c", txObj["data"])
}

func TestUnequipNFTNoWallet(t *testing.T) {
	c, _ := newTestController(newSeqProvider(), false)

	res := c.UnequipNFT(context.Background(), "0xgame", []byte(chainJSON))
	assert.False(t, res.Success)
	assert.Equal(t, "No wallet connected", res.Error)
}
