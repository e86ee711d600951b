// Package chain verifies the wallet's active network and reconciles it
// with a required chain configuration.
package chain

import (
	"context"
	"strings"

	"github.com/pinksters/polkagodot-plugin/logger"
	"github.com/pinksters/polkagodot-plugin/metrics"
	"github.com/pinksters/polkagodot-plugin/provider"
	"github.com/pinksters/polkagodot-plugin/types"
)

// ProviderSource yields the provider network operations should run
// against. A nil result means no provider is reachable.
type ProviderSource interface {
	ActiveProvider() provider.Provider
}

// Manager performs chain verification and switching through whatever
// provider the source currently exposes.
type Manager struct {
	source ProviderSource
	log    logger.Logger
	rec    metrics.Recorder
}

func NewManager(source ProviderSource, log logger.Logger, rec metrics.Recorder) *Manager {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Manager{source: source, log: log, rec: rec}
}

// CurrentChainID returns the wallet's active chain id as reported by the
// provider, in whatever hex casing the wallet uses.
func (m *Manager) CurrentChainID(ctx context.Context) (string, error) {
	p := m.source.ActiveProvider()
	if p == nil {
		return "", types.Errorf(types.ErrNoProvider, "No wallet provider available")
	}
	raw, err := p.Request(ctx, provider.MethodChainID)
	if err != nil {
		return "", err
	}
	return provider.DecodeString(raw)
}

// IsOnCorrectChain reports whether the wallet is on expectedChainID.
// Comparison is case-insensitive since wallets disagree on hex casing.
// Any failure reads as "not on the correct chain".
func (m *Manager) IsOnCorrectChain(ctx context.Context, expectedChainID string) bool {
	current, err := m.CurrentChainID(ctx)
	if err != nil {
		m.log.Warn("chain verification failed", map[string]any{"error": err.Error()})
		return false
	}
	return strings.EqualFold(current, expectedChainID)
}

// SwitchToCorrectChain asks the wallet to switch to the configured chain,
// registering the chain first when the wallet does not know it.
func (m *Manager) SwitchToCorrectChain(ctx context.Context, chainConfigJSON []byte) (*types.SwitchResult, error) {
	cfg, err := types.ParseChainConfig(chainConfigJSON)
	if err != nil {
		return nil, err
	}
	p := m.source.ActiveProvider()
	if p == nil {
		return nil, types.Errorf(types.ErrNoProvider, "No wallet provider available")
	}

	_, err = p.Request(ctx, provider.MethodSwitchChain, map[string]interface{}{
		"chainId": cfg.ChainID,
	})
	if err == nil {
		m.log.Info("switched chain", map[string]any{"chainId": cfg.ChainID})
		m.rec.IncCounter("chain_switched", map[string]string{"chainId": cfg.ChainID})
		return &types.SwitchResult{Success: true, Action: types.SwitchActionSwitched}, nil
	}

	if provider.IsChainNotAdded(err) {
		if _, addErr := p.Request(ctx, provider.MethodAddChain, cfg); addErr != nil {
			return nil, m.switchFailure(cfg, addErr)
		}
		m.log.Info("added chain", map[string]any{"chainId": cfg.ChainID})
		m.rec.IncCounter("chain_added", map[string]string{"chainId": cfg.ChainID})
		return &types.SwitchResult{Success: true, Action: types.SwitchActionAdded}, nil
	}

	return nil, m.switchFailure(cfg, err)
}

// EnsureCorrectChain is the verify-then-switch composite: a no-op result
// when the wallet is already on the configured chain.
func (m *Manager) EnsureCorrectChain(ctx context.Context, chainConfigJSON []byte) (*types.SwitchResult, error) {
	cfg, err := types.ParseChainConfig(chainConfigJSON)
	if err != nil {
		return nil, err
	}
	if m.IsOnCorrectChain(ctx, cfg.ChainID) {
		return &types.SwitchResult{Success: true, Action: types.SwitchActionAlreadyCorrect}, nil
	}
	return m.SwitchToCorrectChain(ctx, chainConfigJSON)
}

func (m *Manager) switchFailure(cfg *types.ChainConfig, cause error) error {
	name := cfg.ChainName
	if name == "" {
		name = cfg.ChainID
	}
	m.log.Error("chain switch failed", map[string]any{
		"chainId": cfg.ChainID,
		"error":   cause.Error(),
	})
	m.rec.IncCounter("chain_switch_failed", map[string]string{"chainId": cfg.ChainID})
	return types.Errorf(types.ErrSwitchFailed, "Failed to switch to %s: %s", name, cause.Error())
}
