package wallet

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pinksters/polkagodot-plugin/logger"
	"github.com/pinksters/polkagodot-plugin/metrics"
	"github.com/pinksters/polkagodot-plugin/provider"
	"github.com/pinksters/polkagodot-plugin/types"
)

// LegacyWalletID identifies the provider adopted from the single-provider
// injection point when no wallet announces itself.
const LegacyWalletID = "legacy-ethereum"

// DiscoveredWallet pairs announced wallet metadata with its provider.
type DiscoveredWallet struct {
	Info     types.WalletInfo
	Provider provider.Provider
}

// Session is the state of a connected wallet. It is immutable once
// published; reconnecting or switching accounts installs a new Session.
type Session struct {
	WalletID string
	Address  string
	Accounts []string
	Provider provider.Provider
}

// Manager tracks discovered wallets and owns the active session.
type Manager struct {
	bus    *Bus
	legacy provider.Provider
	grace  time.Duration
	log    logger.Logger
	rec    metrics.Recorder

	// httpClient is reused for direct RPC calls bypassing the wallet.
	httpClient *http.Client

	mu         sync.RWMutex
	wallets    map[string]DiscoveredWallet
	order      []string
	session    *Session
	unsub      func()
	graceTimer *time.Timer
}

// ManagerDeps are the collaborators a Manager is built from. Nil fields
// fall back to inert defaults.
type ManagerDeps struct {
	Bus        *Bus
	Legacy     provider.Provider
	Grace      time.Duration
	Logger     logger.Logger
	Metrics    metrics.Recorder
	HTTPClient *http.Client
}

func NewManager(deps ManagerDeps) *Manager {
	if deps.Bus == nil {
		deps.Bus = NewBus()
	}
	if deps.Grace <= 0 {
		deps.Grace = types.DefaultLegacyGrace
	}
	if deps.Logger == nil {
		deps.Logger = logger.NoopLogger{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopRecorder{}
	}
	return &Manager{
		bus:        deps.Bus,
		legacy:     deps.Legacy,
		grace:      deps.Grace,
		log:        deps.Logger,
		rec:        deps.Metrics,
		httpClient: deps.HTTPClient,
		wallets:    make(map[string]DiscoveredWallet),
	}
}

// StartDiscovery subscribes to wallet announcements, asks wallets to
// announce, and arms the legacy fallback timer. Safe to call once.
func (m *Manager) StartDiscovery() {
	m.mu.Lock()
	if m.unsub != nil {
		m.mu.Unlock()
		return
	}
	m.unsub = m.bus.Subscribe(m.register)
	m.mu.Unlock()

	m.bus.RequestProviders()
	if m.legacy != nil {
		m.mu.Lock()
		m.graceTimer = time.AfterFunc(m.grace, m.adoptLegacy)
		m.mu.Unlock()
	}
}

// Stop unsubscribes from the bus and cancels the fallback timer. The
// current session, if any, stays connected.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
}

func (m *Manager) register(a Announcement) {
	if a.Provider == nil {
		return
	}
	info := a.Info
	if info.ID == "" {
		// Announcements without a unique id are keyed by display name.
		info.ID = info.Name
	}
	if info.ID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.wallets[info.ID]; !seen {
		m.order = append(m.order, info.ID)
	}
	// Re-announcements replace in place so discovery order is stable.
	m.wallets[info.ID] = DiscoveredWallet{Info: info, Provider: a.Provider}
	m.log.Debug("wallet announced", map[string]any{
		"wallet": info.ID,
		"name":   info.Name,
	})
	m.rec.IncCounter("wallet_announced", map[string]string{"wallet": info.ID})
}

// adoptLegacy publishes the single-provider injection point as a wallet
// when nothing announced itself within the grace period.
func (m *Manager) adoptLegacy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.order) > 0 || m.legacy == nil {
		return
	}
	m.order = append(m.order, LegacyWalletID)
	m.wallets[LegacyWalletID] = DiscoveredWallet{
		Info:     types.WalletInfo{ID: LegacyWalletID, Name: "Browser Wallet"},
		Provider: m.legacy,
	}
	m.log.Info("no wallets announced, using legacy provider", nil)
}

// Wallets returns the discovered wallets in announcement order.
func (m *Manager) Wallets() []DiscoveredWallet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DiscoveredWallet, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.wallets[id])
	}
	return out
}

// HasProvider reports whether any provider is reachable at all.
func (m *Manager) HasProvider() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order) > 0 || m.legacy != nil
}

// HasLegacyProvider reports whether a single-provider injection point was
// wired at construction.
func (m *Manager) HasLegacyProvider() bool {
	return m.legacy != nil
}

func (m *Manager) lookup(walletID string) (DiscoveredWallet, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if walletID != "" {
		w, ok := m.wallets[walletID]
		return w, ok
	}
	if len(m.order) > 0 {
		return m.wallets[m.order[0]], true
	}
	if m.legacy != nil {
		return DiscoveredWallet{
			Info:     types.WalletInfo{ID: LegacyWalletID, Name: "Browser Wallet"},
			Provider: m.legacy,
		}, true
	}
	return DiscoveredWallet{}, false
}

// Connect requests account access from the chosen wallet and installs a
// session on success. An empty walletID picks the first discovered wallet,
// falling back to the legacy provider.
func (m *Manager) Connect(ctx context.Context, walletID string) bool {
	started := time.Now()
	w, ok := m.lookup(walletID)
	if !ok {
		m.log.Error("no wallet provider available", map[string]any{"wallet": walletID})
		return false
	}
	raw, err := w.Provider.Request(ctx, provider.MethodRequestAccounts)
	if err != nil {
		m.log.Error("wallet connection rejected", map[string]any{
			"wallet": w.Info.ID,
			"error":  err.Error(),
		})
		m.rec.IncCounter("wallet_connect_failed", map[string]string{"wallet": w.Info.ID})
		return false
	}
	accounts, err := provider.DecodeStrings(raw)
	if err != nil || len(accounts) == 0 {
		m.log.Error("wallet returned no accounts", map[string]any{"wallet": w.Info.ID})
		return false
	}
	m.mu.Lock()
	m.session = &Session{
		WalletID: w.Info.ID,
		Address:  accounts[0],
		Accounts: accounts,
		Provider: w.Provider,
	}
	m.mu.Unlock()
	m.log.Info("wallet connected", map[string]any{
		"wallet":  w.Info.ID,
		"address": accounts[0],
	})
	m.rec.IncCounter("wallet_connected", map[string]string{"wallet": w.Info.ID})
	m.rec.ObserveLatency("wallet_connect", time.Since(started), map[string]string{"wallet": w.Info.ID})
	return true
}

// Disconnect drops the active session. The wallet keeps any permissions it
// granted; only the bridge's view is cleared.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	had := m.session != nil
	m.session = nil
	m.mu.Unlock()
	if had {
		m.log.Info("wallet disconnected", nil)
		m.rec.IncCounter("wallet_disconnected", nil)
	}
}

// Connected reports whether a session is active.
func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil
}

// Address returns the active account, or "" when disconnected.
func (m *Manager) Address() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.Address
}

// Accounts returns the accounts granted to the active session.
func (m *Manager) Accounts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return []string{}
	}
	out := make([]string, len(m.session.Accounts))
	copy(out, m.session.Accounts)
	return out
}

// CurrentInfo returns the connected wallet's metadata.
func (m *Manager) CurrentInfo() (types.WalletInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return types.WalletInfo{}, false
	}
	if w, ok := m.wallets[m.session.WalletID]; ok {
		return w.Info, true
	}
	return types.WalletInfo{ID: m.session.WalletID}, true
}

func (m *Manager) currentSession() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// ActiveProvider returns the provider calls should go through: the session
// provider when connected, otherwise the legacy injection point.
func (m *Manager) ActiveProvider() provider.Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session != nil {
		return m.session.Provider
	}
	return m.legacy
}

// SignMessage asks the connected wallet to sign a personal message with the
// active account. Returns "" when disconnected or on rejection.
func (m *Manager) SignMessage(ctx context.Context, message string) string {
	s := m.currentSession()
	if s == nil {
		m.log.Error("cannot sign message, no wallet connected", nil)
		return ""
	}
	raw, err := s.Provider.Request(ctx, provider.MethodPersonalSign, message, s.Address)
	if err != nil {
		m.log.Error("message signing failed", map[string]any{
			"address": s.Address,
			"error":   err.Error(),
		})
		m.rec.IncCounter("sign_failed", map[string]string{"wallet": s.WalletID})
		return ""
	}
	sig, err := provider.DecodeString(raw)
	if err != nil {
		m.log.Error("unexpected signature result", map[string]any{"error": err.Error()})
		return ""
	}
	m.rec.IncCounter("message_signed", map[string]string{"wallet": s.WalletID})
	return sig
}

// SelectAccount switches the active account to one already granted to the
// session.
func (m *Manager) SelectAccount(address string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		m.log.Error("cannot select account, no wallet connected", nil)
		return false
	}
	for _, acc := range m.session.Accounts {
		if strings.EqualFold(acc, address) {
			next := *m.session
			next.Address = acc
			m.session = &next
			m.log.Info("account selected", map[string]any{"address": acc})
			return true
		}
	}
	m.log.Warn("account not in granted set", map[string]any{"address": address})
	return false
}

// RequestAccountSelection re-prompts the wallet for account permissions and
// returns the refreshed account list. Empty on rejection or when no
// provider is reachable.
func (m *Manager) RequestAccountSelection(ctx context.Context) []string {
	p := m.ActiveProvider()
	if p == nil {
		m.log.Error("cannot request accounts, no provider available", nil)
		return []string{}
	}
	if _, err := p.Request(ctx, provider.MethodRequestPermissions, map[string]interface{}{
		"eth_accounts": map[string]interface{}{},
	}); err != nil {
		m.log.Warn("permission request rejected", map[string]any{"error": err.Error()})
		return []string{}
	}
	raw, err := p.Request(ctx, provider.MethodRequestAccounts)
	if err != nil {
		m.log.Error("account request failed", map[string]any{"error": err.Error()})
		return []string{}
	}
	accounts, err := provider.DecodeStrings(raw)
	if err != nil {
		m.log.Error("unexpected accounts result", map[string]any{"error": err.Error()})
		return []string{}
	}
	m.mu.Lock()
	if m.session != nil && len(accounts) > 0 {
		next := *m.session
		next.Accounts = accounts
		found := false
		for _, acc := range accounts {
			if strings.EqualFold(acc, next.Address) {
				found = true
				break
			}
		}
		if !found {
			next.Address = accounts[0]
		}
		m.session = &next
	}
	m.mu.Unlock()
	return accounts
}

// AccountsForWallet lists the accounts a specific discovered wallet has
// already exposed, without prompting the user.
func (m *Manager) AccountsForWallet(ctx context.Context, walletID string) ([]string, error) {
	m.mu.RLock()
	w, ok := m.wallets[walletID]
	m.mu.RUnlock()
	if !ok {
		return nil, types.Errorf(types.ErrWalletNotFound, "Wallet not found: %s", walletID)
	}
	raw, err := w.Provider.Request(ctx, provider.MethodAccounts)
	if err != nil {
		return nil, err
	}
	return provider.DecodeStrings(raw)
}

// EthCall executes a read-only contract call. With an rpcURL the call goes
// straight to that endpoint over HTTP; otherwise it rides the active
// provider.
func (m *Manager) EthCall(ctx context.Context, to, data, rpcURL string) (string, error) {
	if !strings.HasPrefix(to, "0x") {
		to = "0x" + to
	}
	callObj := map[string]interface{}{"to": to, "data": data}

	var p provider.Provider
	if rpcURL != "" {
		p = provider.NewHTTPClient(rpcURL, m.httpClient)
	} else if p = m.ActiveProvider(); p == nil {
		return "", types.Errorf(types.ErrNoProvider, "No provider available")
	}
	raw, err := p.Request(ctx, provider.MethodCall, callObj, "latest")
	if err != nil {
		return "", err
	}
	return provider.DecodeString(raw)
}
