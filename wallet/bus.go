// Package wallet discovers browser wallet providers and manages the
// active wallet session.
package wallet

import (
	"sync"

	"github.com/google/uuid"

	"github.com/pinksters/polkagodot-plugin/provider"
	"github.com/pinksters/polkagodot-plugin/types"
)

// Announcement is one wallet making itself known on the discovery bus.
type Announcement struct {
	Info     types.WalletInfo
	Provider provider.Provider
}

// Bus carries the announce handshake between wallet providers and
// listeners. Wallets answer RequestProviders with Announce; listeners
// see every announcement made while subscribed.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]func(Announcement)
	requesters  map[string]func()
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]func(Announcement)),
		requesters:  make(map[string]func()),
	}
}

// Subscribe registers a listener for announcements and returns a
// function that removes it.
func (b *Bus) Subscribe(fn func(Announcement)) func() {
	id := uuid.NewString()
	b.mu.Lock()
	b.subscribers[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}

// Announce delivers a wallet announcement to every subscriber.
func (b *Bus) Announce(a Announcement) {
	b.mu.RLock()
	fns := make([]func(Announcement), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()
	for _, fn := range fns {
		fn(a)
	}
}

// OnRequest registers a handler invoked whenever a listener asks wallets
// to announce themselves. Wallet integrations use this to re-announce.
func (b *Bus) OnRequest(fn func()) func() {
	id := uuid.NewString()
	b.mu.Lock()
	b.requesters[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.requesters, id)
		b.mu.Unlock()
	}
}

// RequestProviders asks every registered wallet to announce itself.
func (b *Bus) RequestProviders() {
	b.mu.RLock()
	fns := make([]func(), 0, len(b.requesters))
	for _, fn := range b.requesters {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
