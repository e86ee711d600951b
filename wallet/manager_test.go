package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
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

// fakeProvider answers requests from canned per-method results.
type fakeProvider struct {
	mu      sync.Mutex
	results map[string]json.RawMessage
	errs    map[string]error
	calls   []providerCall
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		results: make(map[string]json.RawMessage),
		errs:    make(map[string]error),
	}
}

func (f *fakeProvider) stub(method string, result interface{}) *fakeProvider {
	raw, _ := json.Marshal(result)
	f.mu.Lock()
	f.results[method] = raw
	f.mu.Unlock()
	return f
}

func (f *fakeProvider) fail(method string, err error) *fakeProvider {
	f.mu.Lock()
	f.errs[method] = err
	f.mu.Unlock()
	return f
}

func (f *fakeProvider) Request(_ context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, providerCall{method: method, params: params})
	if err, ok := f.errs[method]; ok {
		return nil, err
	}
	if raw, ok := f.results[method]; ok {
		return raw, nil
	}
	return nil, fmt.Errorf("unexpected method %s", method)
}

func (f *fakeProvider) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.method == method {
			n++
		}
	}
	return n
}

func announce(bus *Bus, id string, p provider.Provider) {
	bus.Announce(Announcement{
		Info:     types.WalletInfo{ID: id, Name: id, Icon: "data:image/svg+xml;base64,"},
		Provider: p,
	})
}

func newTestManager(t *testing.T, legacy provider.Provider) (*Manager, *Bus) {
	t.Helper()
	bus := NewBus()
	m := NewManager(ManagerDeps{Bus: bus, Legacy: legacy, Grace: time.Hour})
	m.StartDiscovery()
	t.Cleanup(m.Stop)
	return m, bus
}

func TestDiscoveryOrderAndReplacement(t *testing.T) {
	m, bus := newTestManager(t, nil)

	first := newFakeProvider()
	second := newFakeProvider()
	announce(bus, "io.metamask", first)
	announce(bus, "com.coinbase.wallet", second)

	wallets := m.Wallets()
	require.Len(t, wallets, 2)
	assert.Equal(t, "io.metamask", wallets[0].Info.ID)
	assert.Equal(t, "com.coinbase.wallet", wallets[1].Info.ID)

	// A re-announcement replaces the entry without moving it.
	replacement := newFakeProvider()
	announce(bus, "io.metamask", replacement)
	wallets = m.Wallets()
	require.Len(t, wallets, 2)
	assert.Equal(t, "io.metamask", wallets[0].Info.ID)
	assert.Same(t, replacement, wallets[0].Provider)
}

func TestAnnouncementWithoutIDKeyedByName(t *testing.T) {
	m, bus := newTestManager(t, nil)
	p := newFakeProvider().stub(provider.MethodRequestAccounts, []string{"0x1"})
	bus.Announce(Announcement{
		Info:     types.WalletInfo{Name: "Fallback Wallet", Icon: "data:image/svg+xml;base64,"},
		Provider: p,
	})

	wallets := m.Wallets()
	require.Len(t, wallets, 1)
	assert.Equal(t, "Fallback Wallet", wallets[0].Info.ID)

	require.True(t, m.Connect(context.Background(), "Fallback Wallet"))
	info, ok := m.CurrentInfo()
	require.True(t, ok)
	assert.Equal(t, "Fallback Wallet", info.ID)
}

func TestAnnouncementWithoutIDOrNameDropped(t *testing.T) {
	m, bus := newTestManager(t, nil)
	bus.Announce(Announcement{Info: types.WalletInfo{}, Provider: newFakeProvider()})
	assert.Empty(t, m.Wallets())
}

func TestLegacyFallbackAfterGrace(t *testing.T) {
	legacy := newFakeProvider()
	bus := NewBus()
	m := NewManager(ManagerDeps{Bus: bus, Legacy: legacy, Grace: 5 * time.Millisecond})
	m.StartDiscovery()
	defer m.Stop()

	require.Eventually(t, func() bool {
		return len(m.Wallets()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, LegacyWalletID, m.Wallets()[0].Info.ID)
}

func TestLegacyNotAdoptedWhenWalletAnnounced(t *testing.T) {
	legacy := newFakeProvider()
	bus := NewBus()
	m := NewManager(ManagerDeps{Bus: bus, Legacy: legacy, Grace: 5 * time.Millisecond})
	m.StartDiscovery()
	defer m.Stop()

	announce(bus, "io.metamask", newFakeProvider())
	time.Sleep(20 * time.Millisecond)

	wallets := m.Wallets()
	require.Len(t, wallets, 1)
	assert.Equal(t, "io.metamask", wallets[0].Info.ID)
}

func TestConnectByID(t *testing.T) {
	m, bus := newTestManager(t, nil)
	p := newFakeProvider().stub(provider.MethodRequestAccounts, []string{"0xAbC", "0xDeF"})
	announce(bus, "io.metamask", p)

	require.True(t, m.Connect(context.Background(), "io.metamask"))
	assert.True(t, m.Connected())
	assert.Equal(t, "0xAbC", m.Address())
	assert.Equal(t, []string{"0xAbC", "0xDeF"}, m.Accounts())

	info, ok := m.CurrentInfo()
	require.True(t, ok)
	assert.Equal(t, "io.metamask", info.ID)
}

func TestConnectFirstDiscovered(t *testing.T) {
	m, bus := newTestManager(t, nil)
	first := newFakeProvider().stub(provider.MethodRequestAccounts, []string{"0x1"})
	announce(bus, "io.metamask", first)
	announce(bus, "com.coinbase.wallet", newFakeProvider())

	require.True(t, m.Connect(context.Background(), ""))
	assert.Equal(t, 1, first.callCount(provider.MethodRequestAccounts))
}

func TestConnectLegacyFallback(t *testing.T) {
	legacy := newFakeProvider().stub(provider.MethodRequestAccounts, []string{"0x1"})
	m, _ := newTestManager(t, legacy)

	require.True(t, m.Connect(context.Background(), ""))
	info, ok := m.CurrentInfo()
	require.True(t, ok)
	assert.Equal(t, LegacyWalletID, info.ID)
}

func TestConnectFailures(t *testing.T) {
	t.Run("unknown wallet id", func(t *testing.T) {
		m, bus := newTestManager(t, nil)
		announce(bus, "io.metamask", newFakeProvider())
		assert.False(t, m.Connect(context.Background(), "does-not-exist"))
	})

	t.Run("no providers at all", func(t *testing.T) {
		m, _ := newTestManager(t, nil)
		assert.False(t, m.Connect(context.Background(), ""))
	})

	t.Run("user rejection", func(t *testing.T) {
		m, bus := newTestManager(t, nil)
		p := newFakeProvider().fail(provider.MethodRequestAccounts, &provider.RPCError{
			Code: provider.CodeUserRejected, Message: "User rejected the request",
		})
		announce(bus, "io.metamask", p)
		assert.False(t, m.Connect(context.Background(), "io.metamask"))
		assert.False(t, m.Connected())
	})

	t.Run("empty account list", func(t *testing.T) {
		m, bus := newTestManager(t, nil)
		p := newFakeProvider().stub(provider.MethodRequestAccounts, []string{})
		announce(bus, "io.metamask", p)
		assert.False(t, m.Connect(context.Background(), "io.metamask"))
	})
}

func TestDisconnect(t *testing.T) {
	m, bus := newTestManager(t, nil)
	p := newFakeProvider().stub(provider.MethodRequestAccounts, []string{"0x1"})
	announce(bus, "io.metamask", p)
	require.True(t, m.Connect(context.Background(), ""))

	m.Disconnect()
	assert.False(t, m.Connected())
	assert.Equal(t, "", m.Address())
	assert.Empty(t, m.Accounts())
}

func TestSignMessage(t *testing.T) {
	m, bus := newTestManager(t, nil)
	p := newFakeProvider().
		stub(provider.MethodRequestAccounts, []string{"0xabc"}).
		stub(provider.MethodPersonalSign, "0xdeadbeef")
	announce(bus, "io.metamask", p)
	require.True(t, m.Connect(context.Background(), ""))

	assert.Equal(t, "0xdeadbeef", m.SignMessage(context.Background(), "hello"))

	p.mu.Lock()
	last := p.calls[len(p.calls)-1]
	p.mu.Unlock()
	assert.Equal(t, provider.MethodPersonalSign, last.method)
	assert.Equal(t, []interface{}{"hello", "0xabc"}, last.params)
}

func TestSignMessageWithoutSession(t *testing.T) {
	m, _ := newTestManager(t, nil)
	assert.Equal(t, "", m.SignMessage(context.Background(), "hello"))
}

func TestSignMessageRejected(t *testing.T) {
	m, bus := newTestManager(t, nil)
	p := newFakeProvider().
		stub(provider.MethodRequestAccounts, []string{"0xabc"}).
		fail(provider.MethodPersonalSign, &provider.RPCError{Code: provider.CodeUserRejected, Message: "User rejected the request"})
	announce(bus, "io.metamask", p)
	require.True(t, m.Connect(context.Background(), ""))

	assert.Equal(t, "", m.SignMessage(context.Background(), "hello"))
}

func TestSelectAccount(t *testing.T) {
	m, bus := newTestManager(t, nil)
	p := newFakeProvider().stub(provider.MethodRequestAccounts, []string{"0xAAA", "0xBBB"})
	announce(bus, "io.metamask", p)
	require.True(t, m.Connect(context.Background(), ""))

	assert.True(t, m.SelectAccount("0xBBB"))
	assert.Equal(t, "0xBBB", m.Address())

	// Case differences still match the granted set.
	assert.True(t, m.SelectAccount("0xaaa"))
	assert.Equal(t, "0xAAA", m.Address())

	assert.False(t, m.SelectAccount("0xCCC"))
	assert.Equal(t, "0xAAA", m.Address())
}

func TestSelectAccountWithoutSession(t *testing.T) {
	m, _ := newTestManager(t, nil)
	assert.False(t, m.SelectAccount("0x1"))
}

func TestRequestAccountSelection(t *testing.T) {
	m, bus := newTestManager(t, nil)
	p := newFakeProvider().
		stub(provider.MethodRequestAccounts, []string{"0x1", "0x2"}).
		stub(provider.MethodRequestPermissions, []interface{}{})
	announce(bus, "io.metamask", p)
	require.True(t, m.Connect(context.Background(), ""))

	accounts := m.RequestAccountSelection(context.Background())
	assert.Equal(t, []string{"0x1", "0x2"}, accounts)
	assert.Equal(t, 1, p.callCount(provider.MethodRequestPermissions))
}

func TestRequestAccountSelectionRejected(t *testing.T) {
	m, bus := newTestManager(t, nil)
	p := newFakeProvider().
		stub(provider.MethodRequestAccounts, []string{"0x1"}).
		fail(provider.MethodRequestPermissions, &provider.RPCError{Code: provider.CodeUserRejected, Message: "User rejected the request"})
	announce(bus, "io.metamask", p)
	require.True(t, m.Connect(context.Background(), ""))

	assert.Empty(t, m.RequestAccountSelection(context.Background()))
}

func TestRequestAccountSelectionNoProvider(t *testing.T) {
	m, _ := newTestManager(t, nil)
	assert.Empty(t, m.RequestAccountSelection(context.Background()))
}

func TestAccountsForWallet(t *testing.T) {
	m, bus := newTestManager(t, nil)
	p := newFakeProvider().stub(provider.MethodAccounts, []string{"0x1"})
	announce(bus, "io.metamask", p)

	accounts, err := m.AccountsForWallet(context.Background(), "io.metamask")
	require.NoError(t, err)
	assert.Equal(t, []string{"0x1"}, accounts)
}

func TestAccountsForWalletNotFound(t *testing.T) {
	m, _ := newTestManager(t, nil)
	_, err := m.AccountsForWallet(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrWalletNotFound))
	assert.Equal(t, "Wallet not found: ghost", err.Error())
}

func TestEthCallDirectRPC(t *testing.T) {
	var got struct {
		Method string        `json:"method"`
		Params []interface{} `json:"params"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":"0x2a"}`)
	}))
	defer srv.Close()

	m, _ := newTestManager(t, nil)
	result, err := m.EthCall(context.Background(), "abc123", "0x6352211e", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "0x2a", result)

	assert.Equal(t, "eth_call", got.Method)
	require.Len(t, got.Params, 2)
	callObj := got.Params[0].(map[string]interface{})
	assert.Equal(t, "0xabc123", callObj["to"])
	assert.Equal(t, "0x6352211e", callObj["data"])
	assert.Equal(t, "latest", got.Params[1])
}

func TestEthCallThroughProvider(t *testing.T) {
	m, bus := newTestManager(t, nil)
	p := newFakeProvider().
		stub(provider.MethodRequestAccounts, []string{"0x1"}).
		stub(provider.MethodCall, "0x2a")
	announce(bus, "io.metamask", p)
	require.True(t, m.Connect(context.Background(), ""))

	result, err := m.EthCall(context.Background(), "0xabc", "0xdata", "")
	require.NoError(t, err)
	assert.Equal(t, "0x2a", result)
}

func TestEthCallLegacyWithoutSession(t *testing.T) {
	legacy := newFakeProvider().stub(provider.MethodCall, "0x2a")
	m, _ := newTestManager(t, legacy)

	result, err := m.EthCall(context.Background(), "0xabc", "0xdata", "")
	require.NoError(t, err)
	assert.Equal(t, "0x2a", result)
}

func TestEthCallNoProvider(t *testing.T) {
	m, _ := newTestManager(t, nil)
	_, err := m.EthCall(context.Background(), "0xabc", "0xdata", "")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNoProvider))
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	var count int
	unsub := bus.Subscribe(func(Announcement) { count++ })

	announce(bus, "a", newFakeProvider())
	unsub()
	announce(bus, "b", newFakeProvider())

	assert.Equal(t, 1, count)
}

func TestBusRequestProviders(t *testing.T) {
	bus := NewBus()
	var asked int
	stop := bus.OnRequest(func() { asked++ })
	defer stop()

	bus.RequestProviders()
	bus.RequestProviders()
	assert.Equal(t, 2, asked)
}
