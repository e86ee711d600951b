package provider

import (
	"errors"
	"fmt"
)

// Provider error codes defined by the wallet RPC conventions.
const (
	CodeUserRejected  = 4001
	CodeChainNotAdded = 4902
)

// RPCError is the error envelope surfaced by providers and remote JSON-RPC
// endpoints.
type RPCError struct {
	Code    int         `json:"code,omitempty"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("%s (data: %v)", e.Message, e.Data)
	}
	return e.Message
}

// AsRPCError unwraps err into an *RPCError if one is in its chain.
func AsRPCError(err error) (*RPCError, bool) {
	var rpcErr *RPCError
	ok := errors.As(err, &rpcErr)
	return rpcErr, ok
}

// IsChainNotAdded reports whether err is the provider's "network
// unrecognized" rejection, which callers resolve by adding the network.
func IsChainNotAdded(err error) bool {
	rpcErr, ok := AsRPCError(err)
	return ok && rpcErr.Code == CodeChainNotAdded
}
