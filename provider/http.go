package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

const defaultTimeout = 10 * time.Second

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      uint64        `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// HTTPClient speaks JSON-RPC 2.0 over POST to a fixed endpoint. It satisfies
// Provider so direct-RPC and wallet-proxied calls share one call path.
type HTTPClient struct {
	endpoint string
	client   *http.Client
	nextID   uint64
}

var _ Provider = (*HTTPClient)(nil)

// NewHTTPClient creates a JSON-RPC client for the given endpoint. A nil
// httpClient falls back to a default with a 10 second timeout.
func NewHTTPClient(endpoint string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPClient{
		endpoint: endpoint,
		client:   httpClient,
	}
}

// Request implements Provider.
func (c *HTTPClient) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      atomic.AddUint64(&c.nextID, 1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc request failed: %w", err)
	}
	defer resp.Body.Close()

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode rpc response: %w", err)
	}
	if envelope.Error != nil {
		return nil, envelope.Error
	}

	return envelope.Result, nil
}
