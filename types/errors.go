package types

import (
	"errors"
	"fmt"
)

// BridgeError is the typed error carried across package boundaries.
type BridgeError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *BridgeError) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrEncoding        = "ENCODING_ERROR"
	ErrUnknownFunction = "UNKNOWN_FUNCTION"
	ErrNoProvider      = "NO_PROVIDER"
	ErrWalletNotFound  = "WALLET_NOT_FOUND"
	ErrSwitchFailed    = "SWITCH_FAILED"
	ErrTxFailed        = "TX_FAILED"
	ErrTxTimeout       = "TX_TIMEOUT"
	ErrRPC             = "RPC_ERROR"
	ErrInvalidConfig   = "INVALID_CONFIG"
)

// Errorf builds a BridgeError with a formatted message.
func Errorf(code, format string, args ...interface{}) *BridgeError {
	return &BridgeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsCode reports whether err is a BridgeError carrying the given code.
func IsCode(err error, code string) bool {
	var be *BridgeError
	return errors.As(err, &be) && be.Code == code
}
