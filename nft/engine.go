// Package nft answers paginated token ownership queries against an ERC-721
// contract and resolves token metadata documents.
package nft

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pinksters/polkagodot-plugin/abi"
	"github.com/pinksters/polkagodot-plugin/logger"
	"github.com/pinksters/polkagodot-plugin/metrics"
	"github.com/pinksters/polkagodot-plugin/types"
)

// Token ids scanned when the query options leave the range unset.
const (
	defaultFromTokenID = 1
	defaultToTokenID   = 100
)

// ContractCaller executes read-only contract calls, optionally against a
// direct RPC endpoint.
type ContractCaller interface {
	EthCall(ctx context.Context, to, data, rpcURL string) (string, error)
}

// AddressSource supplies the session address used when query options omit
// user_address.
type AddressSource func() string

// QueryOptions is the options document accepted by Query.
type QueryOptions struct {
	UserAddress string `json:"user_address"`
	RPCURL      string `json:"rpc_url"`
	FromTokenID uint64 `json:"from_token_id"`
	ToTokenID   uint64 `json:"to_token_id"`
}

// Engine walks a token id range, keeps the tokens owned by the queried
// address, and fetches their metadata.
type Engine struct {
	caller     ContractCaller
	addr       AddressSource
	httpClient *http.Client
	gateway    string
	log        logger.Logger
	rec        metrics.Recorder
}

// EngineDeps are the collaborators an Engine is built from.
type EngineDeps struct {
	Caller          ContractCaller
	FallbackAddress AddressSource
	HTTPClient      *http.Client
	IPFSGateway     string
	Logger          logger.Logger
	Metrics         metrics.Recorder
}

func NewEngine(deps EngineDeps) *Engine {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if deps.IPFSGateway == "" {
		deps.IPFSGateway = types.DefaultIPFSGateway
	}
	if deps.Logger == nil {
		deps.Logger = logger.NoopLogger{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopRecorder{}
	}
	return &Engine{
		caller:     deps.Caller,
		addr:       deps.FallbackAddress,
		httpClient: deps.HTTPClient,
		gateway:    deps.IPFSGateway,
		log:        deps.Logger,
		rec:        deps.Metrics,
	}
}

// Query scans the configured token id range on the contract and returns the
// tokens owned by the queried address along with their metadata. Individual
// token failures are skipped; only missing preconditions produce an error
// result.
func (e *Engine) Query(ctx context.Context, contract string, optionsJSON []byte) *types.NFTQueryResult {
	if contract == "" {
		return errorResult("Contract address is required")
	}
	var opts QueryOptions
	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &opts); err != nil {
			return errorResult(fmt.Sprintf("invalid query options: %v", err))
		}
	}
	if opts.UserAddress == "" && e.addr != nil {
		opts.UserAddress = e.addr()
	}
	if opts.UserAddress == "" {
		return errorResult("User address is required in options or an active session")
	}
	from, to := opts.FromTokenID, opts.ToTokenID
	if from == 0 {
		from = defaultFromTokenID
	}
	if to == 0 {
		to = defaultToTokenID
	}

	started := time.Now()
	user := common.HexToAddress(opts.UserAddress)
	tokens := []types.TokenRecord{}

	for tokenID := from; tokenID <= to; tokenID++ {
		owner, err := e.ownerOf(ctx, contract, tokenID, opts.RPCURL)
		if err != nil {
			// Nonexistent tokens revert; the scan keeps going.
			e.log.Debug("owner lookup failed", map[string]any{
				"tokenId": tokenID,
				"error":   err.Error(),
			})
			continue
		}
		if common.HexToAddress(owner) != user {
			continue
		}
		tokens = append(tokens, types.TokenRecord{
			TokenID:  tokenID,
			Metadata: e.fetchMetadata(ctx, contract, tokenID, opts.RPCURL),
		})
	}

	e.rec.IncCounter("nft_queries", nil)
	e.rec.ObserveLatency("nft_query", time.Since(started), nil)
	return &types.NFTQueryResult{
		Error:      nil,
		Address:    contract,
		TokenCount: len(tokens),
		Tokens:     tokens,
	}
}

// QueryEquipped returns the token id the game manager reports as equipped
// for the player, zero when nothing is equipped.
func (e *Engine) QueryEquipped(ctx context.Context, player, gameManager, rpcURL string) (uint64, error) {
	data, err := abi.BuildCallData("getEquippedHat", abi.EncodeAddress(player))
	if err != nil {
		return 0, err
	}
	result, err := e.caller.EthCall(ctx, gameManager, data, rpcURL)
	if err != nil {
		return 0, err
	}
	return abi.DecodeUint256(result).Uint64(), nil
}

func (e *Engine) ownerOf(ctx context.Context, contract string, tokenID uint64, rpcURL string) (string, error) {
	word, err := abi.EncodeUint256(tokenID)
	if err != nil {
		return "", err
	}
	data, err := abi.BuildCallData("ownerOf", word)
	if err != nil {
		return "", err
	}
	result, err := e.caller.EthCall(ctx, contract, data, rpcURL)
	if err != nil {
		return "", err
	}
	owner := abi.DecodeAddress(result)
	if owner == "" {
		return "", fmt.Errorf("token %d has no owner", tokenID)
	}
	return owner, nil
}

func (e *Engine) fetchMetadata(ctx context.Context, contract string, tokenID uint64, rpcURL string) map[string]interface{} {
	uri, err := e.tokenURI(ctx, contract, tokenID, rpcURL)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	doc, err := e.fetchDocument(ctx, e.ResolveURI(uri))
	if err != nil {
		e.log.Warn("metadata fetch failed", map[string]any{
			"tokenId": tokenID,
			"uri":     uri,
			"error":   err.Error(),
		})
		return map[string]interface{}{"error": err.Error()}
	}
	return doc
}

func (e *Engine) tokenURI(ctx context.Context, contract string, tokenID uint64, rpcURL string) (string, error) {
	word, err := abi.EncodeUint256(tokenID)
	if err != nil {
		return "", err
	}
	data, err := abi.BuildCallData("tokenURI", word)
	if err != nil {
		return "", err
	}
	result, err := e.caller.EthCall(ctx, contract, data, rpcURL)
	if err != nil {
		return "", err
	}
	uri := abi.DecodeString(result)
	if uri == "" {
		return "", fmt.Errorf("token %d has no metadata uri", tokenID)
	}
	return uri, nil
}

// ResolveURI rewrites ipfs:// uris to the configured HTTP gateway and
// passes every other scheme through untouched.
func (e *Engine) ResolveURI(uri string) string {
	if rest, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		return e.gateway + rest
	}
	return uri
}

func (e *Engine) fetchDocument(ctx context.Context, url string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata request returned status %d", resp.StatusCode)
	}
	var doc map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid metadata document: %w", err)
	}
	return doc, nil
}

func errorResult(msg string) *types.NFTQueryResult {
	return &types.NFTQueryResult{
		Error:  &msg,
		Tokens: []types.TokenRecord{},
	}
}
