// Package provider defines the injected wallet provider capability and the
// direct JSON-RPC-over-HTTP transport used when a raw endpoint is supplied.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// Methods the bridge issues against a provider.
const (
	MethodRequestAccounts    = "eth_requestAccounts"
	MethodAccounts           = "eth_accounts"
	MethodChainID            = "eth_chainId"
	MethodPersonalSign       = "personal_sign"
	MethodCall               = "eth_call"
	MethodSendTransaction    = "eth_sendTransaction"
	MethodTransactionReceipt = "eth_getTransactionReceipt"
	MethodSwitchChain        = "wallet_switchEthereumChain"
	MethodAddChain           = "wallet_addEthereumChain"
	MethodRequestPermissions = "wallet_requestPermissions"
)

// Provider is the wallet-injected capability: a single request operation
// carrying a method name and positional params. The bridge never holds keys;
// everything sensitive happens on the other side of this interface.
type Provider interface {
	Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
}

// DecodeString decodes a JSON-RPC result expected to be a string.
func DecodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("unexpected rpc result %q: %w", string(raw), err)
	}
	return s, nil
}

// DecodeStrings decodes a JSON-RPC result expected to be a string array.
func DecodeStrings(raw json.RawMessage) ([]string, error) {
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unexpected rpc result %q: %w", string(raw), err)
	}
	return out, nil
}

// DecodeObject decodes a JSON-RPC result into the given struct pointer.
func DecodeObject(raw json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unexpected rpc result %q: %w", string(raw), err)
	}
	return nil
}
