package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"zcash-near-intents/pkg/swaperr"
	"zcash-near-intents/pkg/types"
)

// DefaultNearRPCURL is the public mainnet RPC endpoint
const DefaultNearRPCURL = "https://rpc.mainnet.near.org"

const nearDecimals = 24

// NearRPC queries account and token balances over NEAR's JSON-RPC
type NearRPC struct {
	url      string
	client   *http.Client
	registry *types.Registry
}

// NewNearRPC creates a NEAR RPC client
func NewNearRPC(url string, timeout time.Duration, registry *types.Registry) *NearRPC {
	if url == "" {
		url = DefaultNearRPCURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NearRPC{
		url:      url,
		client:   &http.Client{Timeout: timeout},
		registry: registry,
	}
}

// NearRPCRequest represents a JSON-RPC request. NEAR's query method takes named params.
type NearRPCRequest struct {
	JSONRpc string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

// NearRPCResponse represents a JSON-RPC response
type NearRPCResponse struct {
	JSONRpc string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *NearRPCError   `json:"error,omitempty"`
}

// NearRPCError represents an error in the RPC response
type NearRPCError struct {
	Name    string `json:"name"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Cause   *struct {
		Name string `json:"name"`
	} `json:"cause,omitempty"`
}

func (e *NearRPCError) Error() string {
	if e.Cause != nil && e.Cause.Name != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Cause.Name)
	}
	return e.Message
}

func (e *NearRPCError) causeName() string {
	if e.Cause == nil {
		return ""
	}
	return e.Cause.Name
}

func (n *NearRPC) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	const op = "near.rpc"

	reqBody := NearRPCRequest{
		JSONRpc: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return swaperr.Wrap(swaperr.KindInvalidRequest, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return swaperr.Wrap(swaperr.KindInvalidRequest, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return swaperr.Wrap(swaperr.KindNetwork, op, errors.Wrap(err, "failed to send request"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return swaperr.Wrap(swaperr.KindNetwork, op, errors.Wrap(err, "failed to read response"))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return swaperr.Errorf(swaperr.KindNetwork, op, "RPC returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rpcResp NearRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return swaperr.Wrap(swaperr.KindNetwork, op, errors.Wrap(err, "failed to parse response"))
	}
	if rpcResp.Error != nil {
		switch rpcResp.Error.causeName() {
		case "UNKNOWN_ACCOUNT", "INVALID_ACCOUNT", "UNKNOWN_BLOCK":
			return swaperr.Wrap(swaperr.KindInvalidRequest, op, rpcResp.Error)
		default:
			return swaperr.Wrap(swaperr.KindNetwork, op, rpcResp.Error)
		}
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return swaperr.Wrap(swaperr.KindNetwork, op, errors.Wrap(err, "failed to parse result"))
	}
	return nil
}

// AccountBalance returns the account's native NEAR balance
func (n *NearRPC) AccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	params := map[string]string{
		"request_type": "view_account",
		"finality":     "final",
		"account_id":   accountID,
	}

	var result struct {
		Amount string `json:"amount"`
	}
	if err := n.call(ctx, "query", params, &result); err != nil {
		return decimal.Zero, err
	}

	yocto, err := decimal.NewFromString(result.Amount)
	if err != nil {
		return decimal.Zero, swaperr.Wrap(swaperr.KindNetwork, "near.view_account", errors.Wrapf(err, "invalid amount %q", result.Amount))
	}
	return yocto.Shift(-nearDecimals), nil
}

// TokenBalance returns the raw NEP-141 balance (in token units) of accountID on contract
func (n *NearRPC) TokenBalance(ctx context.Context, contract, accountID string) (string, error) {
	args, err := json.Marshal(map[string]string{"account_id": accountID})
	if err != nil {
		return "", swaperr.Wrap(swaperr.KindInvalidRequest, "near.ft_balance_of", err)
	}

	params := map[string]string{
		"request_type": "call_function",
		"finality":     "final",
		"account_id":   contract,
		"method_name":  "ft_balance_of",
		"args_base64":  base64.StdEncoding.EncodeToString(args),
	}

	// The view result is the returned JSON as a byte array
	var result struct {
		Result []int `json:"result"`
	}
	if err := n.call(ctx, "query", params, &result); err != nil {
		return "", err
	}

	raw := make([]byte, len(result.Result))
	for i, b := range result.Result {
		raw[i] = byte(b)
	}
	var units string
	if err := json.Unmarshal(raw, &units); err != nil {
		return "", swaperr.Wrap(swaperr.KindNetwork, "near.ft_balance_of", errors.Wrapf(err, "unexpected view result %q", raw))
	}
	return units, nil
}

// Balance implements the chain query for NEAR-side assets. NEAR has no shielded pool,
// so the shielded class always reads zero.
func (n *NearRPC) Balance(ctx context.Context, accountID string, asset types.Asset) (decimal.Decimal, error) {
	const op = "near.balance"

	if asset.Chain != types.ChainNEAR {
		return decimal.Zero, swaperr.Errorf(swaperr.KindInvalidRequest, op, "asset %s is not on NEAR", asset)
	}
	if asset.Privacy == types.Shielded {
		return decimal.Zero, nil
	}

	info, ok := n.registry.Lookup(asset.Symbol)
	if !ok {
		return decimal.Zero, swaperr.Errorf(swaperr.KindInvalidRequest, op, "unsupported asset %s", asset.Symbol)
	}
	if info.Symbol == "NEAR" {
		return n.AccountBalance(ctx, accountID)
	}

	contract := strings.TrimPrefix(info.AssetID, "nep141:")
	units, err := n.TokenBalance(ctx, contract, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	amount, err := n.registry.FromUnits(info.Symbol, units)
	if err != nil {
		return decimal.Zero, swaperr.Wrap(swaperr.KindNetwork, op, err)
	}
	return amount, nil
}
