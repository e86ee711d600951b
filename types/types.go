// Package types holds the shared data model of the wallet bridge.
package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// WalletInfo describes a discovered wallet provider as announced by the
// multi-provider discovery protocol.
type WalletInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
	RDNS string `json:"rdns,omitempty"`
}

// NativeCurrency is the currency descriptor inside a chain configuration.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// ChainConfig is a network-configuration document in the shape expected by
// wallet_addEthereumChain.
type ChainConfig struct {
	ChainID           string          `json:"chainId" validate:"required"`
	ChainName         string          `json:"chainName"`
	NativeCurrency    *NativeCurrency `json:"nativeCurrency,omitempty"`
	RPCURLs           []string        `json:"rpcUrls,omitempty"`
	BlockExplorerURLs []string        `json:"blockExplorerUrls,omitempty"`
}

// SwitchAction reports how the bridge reconciled the wallet's network with
// the required one.
type SwitchAction string

const (
	SwitchActionSwitched       SwitchAction = "switched"
	SwitchActionAdded          SwitchAction = "added"
	SwitchActionAlreadyCorrect SwitchAction = "already_correct"
)

// SwitchResult is the outcome of a chain switch/ensure operation.
type SwitchResult struct {
	Success bool         `json:"success"`
	Action  SwitchAction `json:"action"`
}

// ReceiptStatus is a transaction receipt status. Wallets report it either as
// a hex string ("0x1") or a bare number (1), so it unmarshals from both.
type ReceiptStatus string

func (s *ReceiptStatus) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*s = ReceiptStatus(t)
	case float64:
		*s = ReceiptStatus(strconv.FormatInt(int64(t), 10))
	case nil:
		*s = ""
	default:
		return fmt.Errorf("unexpected receipt status type %T", v)
	}
	return nil
}

// Succeeded reports whether the status denotes on-chain success.
func (s ReceiptStatus) Succeeded() bool {
	return s == "0x1" || s == "1"
}

// Receipt is the record returned once a submitted transaction is included in
// a block.
type Receipt struct {
	BlockNumber     string        `json:"blockNumber"`
	Status          ReceiptStatus `json:"status"`
	TransactionHash string        `json:"transactionHash"`
}

// Pending reports whether the receipt has not been mined yet.
func (r *Receipt) Pending() bool {
	return r == nil || r.BlockNumber == ""
}

// TxResult is the structured outcome of an equip/unequip transaction.
type TxResult struct {
	Success bool   `json:"success"`
	TokenID uint64 `json:"tokenId"`
	TxHash  string `json:"txHash,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TokenRecord pairs a token id with its resolved metadata document. On a
// metadata fetch failure the document is {"error": "<message>"}.
type TokenRecord struct {
	TokenID  uint64                 `json:"tokenId"`
	Metadata map[string]interface{} `json:"metadata"`
}

// NFTQueryResult is the aggregate outcome of an ownership query over a token
// range. Error is set only for precondition failures, never for individual
// token failures.
type NFTQueryResult struct {
	Error      *string       `json:"error"`
	Address    string        `json:"address"`
	TokenCount int           `json:"tokenCount"`
	Tokens     []TokenRecord `json:"tokens"`
}

// BridgeConfig contains global configuration for the bridge.
type BridgeConfig struct {
	DefaultTimeout  time.Duration `json:"defaultTimeout,omitempty"`
	PollInterval    time.Duration `json:"pollInterval,omitempty"`
	MaxPollAttempts int           `json:"maxPollAttempts,omitempty"`
	LegacyGrace     time.Duration `json:"legacyGrace,omitempty"`
	IPFSGateway     string        `json:"ipfsGateway,omitempty"`
	StoragePrefix   string        `json:"storagePrefix,omitempty"`
	LogLevel        string        `json:"logLevel,omitempty"`
	EnableMetrics   bool          `json:"enableMetrics,omitempty"`
}

// Defaults used when BridgeConfig fields are zero.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 1 * time.Second
	DefaultPollAttempts = 40
	DefaultLegacyGrace  = 100 * time.Millisecond
	DefaultIPFSGateway  = "https://ipfs.io/ipfs/"
	DefaultStorePrefix  = "polka_"
)

// Normalize fills zero fields with defaults.
func (c *BridgeConfig) Normalize() {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = DefaultPollAttempts
	}
	if c.LegacyGrace <= 0 {
		c.LegacyGrace = DefaultLegacyGrace
	}
	if c.IPFSGateway == "" {
		c.IPFSGateway = DefaultIPFSGateway
	}
	if c.StoragePrefix == "" {
		c.StoragePrefix = DefaultStorePrefix
	}
}
