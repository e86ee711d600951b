package polka

import (
	"net/http"
	"time"

	"github.com/pinksters/polkagodot-plugin/logger"
	"github.com/pinksters/polkagodot-plugin/metrics"
	"github.com/pinksters/polkagodot-plugin/provider"
	"github.com/pinksters/polkagodot-plugin/storage"
	"github.com/pinksters/polkagodot-plugin/wallet"
)

// Option customizes a Bridge beyond its configuration document.
type Option func(*Bridge)

// WithLogger replaces the default zap logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// WithMetrics replaces the default metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(b *Bridge) {
		if r != nil {
			b.rec = r
		}
	}
}

// WithTimeout overrides the per-operation deadline applied when a caller
// passes a context without one.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.cfg.DefaultTimeout = d
		}
	}
}

// WithKV backs credential storage with an external key-value store instead
// of process memory.
func WithKV(kv storage.KV) Option {
	return func(b *Bridge) {
		if kv != nil {
			b.kv = kv
		}
	}
}

// WithHTTPClient sets the HTTP client used for direct RPC calls and
// metadata fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Bridge) {
		if c != nil {
			b.httpClient = c
		}
	}
}

// WithLegacyProvider wires the single-provider injection point used as a
// fallback when no wallet announces itself.
func WithLegacyProvider(p provider.Provider) Option {
	return func(b *Bridge) {
		b.legacy = p
	}
}

// WithBus attaches an externally owned discovery bus so wallet
// integrations and the bridge share one announcement channel.
func WithBus(bus *wallet.Bus) Option {
	return func(b *Bridge) {
		if bus != nil {
			b.bus = bus
		}
	}
}
