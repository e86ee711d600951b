// Package polka is a browser-resident wallet bridge for game embedders:
// it discovers wallet providers, manages the active session, reconciles
// the wallet's network, submits contract transactions, and answers NFT
// ownership queries.
package polka

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pinksters/polkagodot-plugin/chain"
	"github.com/pinksters/polkagodot-plugin/logger"
	"github.com/pinksters/polkagodot-plugin/metrics"
	"github.com/pinksters/polkagodot-plugin/nft"
	"github.com/pinksters/polkagodot-plugin/provider"
	"github.com/pinksters/polkagodot-plugin/storage"
	"github.com/pinksters/polkagodot-plugin/tx"
	"github.com/pinksters/polkagodot-plugin/types"
	"github.com/pinksters/polkagodot-plugin/wallet"
)

// Bridge is the host-facing facade over the bridge subsystems. JSON
// variants of its methods exist for embedders that only pass strings
// across the host boundary.
type Bridge struct {
	cfg *types.BridgeConfig
	log logger.Logger
	rec metrics.Recorder

	bus        *wallet.Bus
	legacy     provider.Provider
	kv         storage.KV
	httpClient *http.Client

	wallets *wallet.Manager
	chains  *chain.Manager
	txs     *tx.Controller
	nfts    *nft.Engine
	creds   *storage.CredentialStore
}

// New builds a Bridge from a configuration document plus options and
// starts wallet discovery.
func New(cfg *types.BridgeConfig, opts ...Option) (*Bridge, error) {
	if cfg == nil {
		cfg = &types.BridgeConfig{}
	}
	cfg.Normalize()

	b := &Bridge{cfg: cfg}
	for _, opt := range opts {
		opt(b)
	}

	if b.log == nil {
		b.log = logger.NewZapLogger(cfg.LogLevel)
	}
	if b.rec == nil {
		if cfg.EnableMetrics {
			b.rec = metrics.NewPrometheusRecorder()
		} else {
			b.rec = metrics.NoopRecorder{}
		}
	}
	if b.bus == nil {
		b.bus = wallet.NewBus()
	}
	if b.kv == nil {
		b.kv = storage.NewMemory()
	}

	b.wallets = wallet.NewManager(wallet.ManagerDeps{
		Bus:        b.bus,
		Legacy:     b.legacy,
		Grace:      cfg.LegacyGrace,
		Logger:     b.log,
		Metrics:    b.rec,
		HTTPClient: b.httpClient,
	})
	b.chains = chain.NewManager(b.wallets, b.log, b.rec)
	b.txs = tx.NewController(tx.ControllerDeps{
		Wallets:      b.wallets,
		Chains:       b.chains,
		Logger:       b.log,
		Metrics:      b.rec,
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.MaxPollAttempts,
	})
	b.nfts = nft.NewEngine(nft.EngineDeps{
		Caller:          b.wallets,
		FallbackAddress: b.wallets.Address,
		HTTPClient:      b.httpClient,
		IPFSGateway:     cfg.IPFSGateway,
		Logger:          b.log,
		Metrics:         b.rec,
	})
	b.creds = storage.NewCredentialStore(b.kv, cfg.StoragePrefix, b.log)

	b.wallets.StartDiscovery()
	return b, nil
}

// NewWithDefaults builds a Bridge with default configuration.
func NewWithDefaults(opts ...Option) (*Bridge, error) {
	return New(nil, opts...)
}

// Bus exposes the discovery bus so wallet integrations can announce
// themselves.
func (b *Bridge) Bus() *wallet.Bus {
	return b.bus
}

// Close stops discovery, flushes the logger, and releases the storage
// backend when it owns an external connection.
func (b *Bridge) Close() error {
	b.wallets.Stop()
	if s, ok := b.log.(interface{ Sync() error }); ok {
		// Sync on stderr fails on some platforms; flushing is best effort.
		_ = s.Sync()
	}
	if closer, ok := b.kv.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// opCtx applies the configured default deadline when the caller's context
// carries none.
func (b *Bridge) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.cfg.DefaultTimeout)
}

// HasEthereumProvider reports whether any wallet provider is reachable.
func (b *Bridge) HasEthereumProvider() bool {
	return b.wallets.HasProvider()
}

// ConnectWallet connects to the wallet with the given id; an empty id
// picks the first discovered wallet.
func (b *Bridge) ConnectWallet(ctx context.Context, walletID string) bool {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	return b.wallets.Connect(ctx, walletID)
}

// DisconnectWallet drops the active session.
func (b *Bridge) DisconnectWallet() {
	b.wallets.Disconnect()
}

// IsWalletConnected reports whether a session is active.
func (b *Bridge) IsWalletConnected() bool {
	return b.wallets.Connected()
}

// CurrentWalletAddress returns the active account, "" when disconnected.
func (b *Bridge) CurrentWalletAddress() string {
	return b.wallets.Address()
}

// CurrentWalletInfoJSON returns the connected wallet's metadata as JSON,
// or an empty object when disconnected.
func (b *Bridge) CurrentWalletInfoJSON() ([]byte, error) {
	info, ok := b.wallets.CurrentInfo()
	if !ok {
		return []byte("{}"), nil
	}
	return json.Marshal(info)
}

// DiscoveredWalletsJSON returns the discovered wallets' metadata as a JSON
// array in announcement order.
func (b *Bridge) DiscoveredWalletsJSON() ([]byte, error) {
	wallets := b.wallets.Wallets()
	infos := make([]types.WalletInfo, 0, len(wallets))
	for _, w := range wallets {
		infos = append(infos, w.Info)
	}
	return json.Marshal(infos)
}

// AvailableAccountsJSON returns the active session's accounts as JSON.
func (b *Bridge) AvailableAccountsJSON() ([]byte, error) {
	return json.Marshal(b.wallets.Accounts())
}

// RequestAccountSelection re-prompts the wallet for accounts and returns
// the refreshed list as JSON.
func (b *Bridge) RequestAccountSelection(ctx context.Context) ([]byte, error) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	return json.Marshal(b.wallets.RequestAccountSelection(ctx))
}

// AccountsForWalletJSON lists a specific wallet's exposed accounts as JSON.
func (b *Bridge) AccountsForWalletJSON(ctx context.Context, walletID string) ([]byte, error) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	accounts, err := b.wallets.AccountsForWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(accounts)
}

// SelectAccount switches the active account within the granted set.
func (b *Bridge) SelectAccount(address string) bool {
	return b.wallets.SelectAccount(address)
}

// SignMessage signs a personal message with the active account. Returns ""
// when disconnected or on rejection.
func (b *Bridge) SignMessage(ctx context.Context, message string) string {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	return b.wallets.SignMessage(ctx, message)
}

// CurrentChainID returns the wallet's active chain id.
func (b *Bridge) CurrentChainID(ctx context.Context) (string, error) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	return b.chains.CurrentChainID(ctx)
}

// IsOnCorrectChain reports whether the wallet is on the expected chain.
func (b *Bridge) IsOnCorrectChain(ctx context.Context, expectedChainID string) bool {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	return b.chains.IsOnCorrectChain(ctx, expectedChainID)
}

// SwitchChainJSON switches the wallet to the configured chain and returns
// the outcome as JSON.
func (b *Bridge) SwitchChainJSON(ctx context.Context, chainConfigJSON []byte) ([]byte, error) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	res, err := b.chains.SwitchToCorrectChain(ctx, chainConfigJSON)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

// EnsureChainJSON verifies the wallet's chain, switching only when needed,
// and returns the outcome as JSON.
func (b *Bridge) EnsureChainJSON(ctx context.Context, chainConfigJSON []byte) ([]byte, error) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	res, err := b.chains.EnsureCorrectChain(ctx, chainConfigJSON)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

// CallContract executes a read-only contract call, directly against rpcURL
// when given, otherwise through the wallet provider.
func (b *Bridge) CallContract(ctx context.Context, to, data, rpcURL string) (string, error) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	return b.wallets.EthCall(ctx, to, data, rpcURL)
}

// EquipNFT equips the token on the game manager contract and returns the
// transaction outcome as JSON. Failures are reported inside the document.
func (b *Bridge) EquipNFT(ctx context.Context, tokenID uint64, gameManager string, chainConfigJSON []byte) ([]byte, error) {
	ctx, cancel := b.txCtx(ctx)
	defer cancel()
	return json.Marshal(b.txs.EquipNFT(ctx, tokenID, gameManager, chainConfigJSON))
}

// UnequipNFT clears the equipped token on the game manager contract and
// returns the transaction outcome as JSON.
func (b *Bridge) UnequipNFT(ctx context.Context, gameManager string, chainConfigJSON []byte) ([]byte, error) {
	ctx, cancel := b.txCtx(ctx)
	defer cancel()
	return json.Marshal(b.txs.UnequipNFT(ctx, gameManager, chainConfigJSON))
}

// txCtx sizes the deadline to the full confirmation poll window rather
// than the per-call default.
func (b *Bridge) txCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	window := b.cfg.PollInterval*time.Duration(b.cfg.MaxPollAttempts) + b.cfg.DefaultTimeout
	return context.WithTimeout(ctx, window)
}

// QueryNFTs scans the contract for tokens owned by the address in the
// options document and returns the aggregate result as JSON.
func (b *Bridge) QueryNFTs(ctx context.Context, contract string, optionsJSON []byte) ([]byte, error) {
	ctx, cancel := b.txCtx(ctx)
	defer cancel()
	return json.Marshal(b.nfts.Query(ctx, contract, optionsJSON))
}

// QueryEquippedNFT returns the token id equipped for the player, zero when
// nothing is equipped.
func (b *Bridge) QueryEquippedNFT(ctx context.Context, player, gameManager, rpcURL string) (uint64, error) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	return b.nfts.QueryEquipped(ctx, player, gameManager, rpcURL)
}

// StoreSignature persists a signature for the address.
func (b *Bridge) StoreSignature(ctx context.Context, address, signature string) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	b.creds.StoreSignature(ctx, address, signature)
}

// LoadSignature returns the stored, unexpired signature for the address,
// "" when absent.
func (b *Bridge) LoadSignature(ctx context.Context, address string) string {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	return b.creds.LoadSignature(ctx, address)
}

// StoreAuthKey persists an auth key for the address.
func (b *Bridge) StoreAuthKey(ctx context.Context, address, authKey string) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	b.creds.StoreAuthKey(ctx, address, authKey)
}

// LoadAuthKey returns the stored auth key for the address, "" when absent.
func (b *Bridge) LoadAuthKey(ctx context.Context, address string) string {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	return b.creds.LoadAuthKey(ctx, address)
}

// DeleteCredentials removes the stored signature and auth key for the
// address.
func (b *Bridge) DeleteCredentials(ctx context.Context, address string) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	b.creds.DeleteCredentials(ctx, address)
}
