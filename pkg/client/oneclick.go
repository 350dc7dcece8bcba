package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"zcash-near-intents/pkg/swaperr"
	"zcash-near-intents/pkg/types"
)

// OneClickClient wraps the 1Click SDK. It is used as a token catalog: asset ids,
// decimals and USD prices.
type OneClickClient struct {
	client   *oneclick.APIClient
	jwtToken string
}

// NewOneClickClient creates a new 1Click API client. An empty baseURL keeps the SDK default.
func NewOneClickClient(baseURL, jwtToken string) *OneClickClient {
	config := oneclick.NewConfiguration()
	if baseURL != "" {
		config.Servers = oneclick.ServerConfigurations{{URL: baseURL}}
	}

	return &OneClickClient{
		client:   oneclick.NewAPIClient(config),
		jwtToken: jwtToken,
	}
}

func (c *OneClickClient) authed(ctx context.Context) context.Context {
	if c.jwtToken == "" {
		return ctx
	}
	return context.WithValue(ctx, oneclick.ContextAccessToken, c.jwtToken)
}

// TokenInfo is a catalog entry
type TokenInfo struct {
	Symbol          string          `json:"symbol"`
	Blockchain      string          `json:"blockchain"`
	AssetID         string          `json:"asset_id"`
	ContractAddress string          `json:"contract_address,omitempty"`
	Decimals        int32           `json:"decimals"`
	PriceUSD        decimal.Decimal `json:"price_usd"`
}

// GetSupportedTokens retrieves all supported tokens
func (c *OneClickClient) GetSupportedTokens(ctx context.Context) ([]TokenInfo, error) {
	const op = "oneclick.tokens"

	resp, httpResp, err := c.client.OneClickAPI.GetTokens(c.authed(ctx)).Execute()
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindNetwork, op, errors.Wrap(err, "failed to get tokens"))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, swaperr.Errorf(swaperr.KindNetwork, op, "API returned status code %d", httpResp.StatusCode)
	}

	tokens := make([]TokenInfo, 0, len(resp))
	for _, t := range resp {
		tokens = append(tokens, TokenInfo{
			Symbol:          t.GetSymbol(),
			Blockchain:      t.GetBlockchain(),
			AssetID:         t.GetAssetId(),
			ContractAddress: t.GetContractAddress(),
			Decimals:        int32(t.GetDecimals()),
			PriceUSD:        decimal.NewFromFloat(float64(t.GetPrice())),
		})
	}
	return tokens, nil
}

// FindToken searches for a token by symbol, preferring an exact match
func FindToken(tokens []TokenInfo, symbol string) (*TokenInfo, error) {
	symbol = strings.ToUpper(symbol)

	for i := range tokens {
		if strings.ToUpper(tokens[i].Symbol) == symbol {
			return &tokens[i], nil
		}
	}
	for i := range tokens {
		if strings.Contains(strings.ToUpper(tokens[i].Symbol), symbol) {
			return &tokens[i], nil
		}
	}

	return nil, fmt.Errorf("token '%s' not found", symbol)
}

// FindTokenOnChain searches for a token by symbol on a specific chain
func FindTokenOnChain(tokens []TokenInfo, symbol, chain string) (*TokenInfo, error) {
	symbol = strings.ToUpper(symbol)
	chain = strings.ToLower(chain)

	for i := range tokens {
		if strings.ToUpper(tokens[i].Symbol) == symbol &&
			strings.ToLower(tokens[i].Blockchain) == chain {
			return &tokens[i], nil
		}
	}

	return nil, fmt.Errorf("token '%s' not found on chain '%s'", symbol, chain)
}

// Prices returns USD prices for every registry asset found in the catalog, keyed by symbol
func (c *OneClickClient) Prices(ctx context.Context, registry *types.Registry) (map[string]decimal.Decimal, error) {
	tokens, err := c.GetSupportedTokens(ctx)
	if err != nil {
		return nil, err
	}
	return PricesFor(tokens, registry), nil
}

// PricesFor matches catalog entries to registry assets by asset id
func PricesFor(tokens []TokenInfo, registry *types.Registry) map[string]decimal.Decimal {
	byID := make(map[string]TokenInfo, len(tokens))
	for _, t := range tokens {
		byID[t.AssetID] = t
	}

	prices := make(map[string]decimal.Decimal)
	for _, info := range registry.List() {
		if t, ok := byID[info.AssetID]; ok && t.PriceUSD.IsPositive() {
			prices[info.Symbol] = t.PriceUSD
		} else if info.PriceUSD > 0 {
			prices[info.Symbol] = decimal.NewFromFloat(info.PriceUSD)
		}
	}
	return prices
}

// SyncRegistry refreshes decimals and prices of registry assets from the catalog.
// It returns the number of assets that matched.
func (c *OneClickClient) SyncRegistry(ctx context.Context, registry *types.Registry) (int, error) {
	tokens, err := c.GetSupportedTokens(ctx)
	if err != nil {
		return 0, err
	}
	return SyncRegistry(tokens, registry)
}

// SyncRegistry applies catalog entries to registry assets with the same asset id
func SyncRegistry(tokens []TokenInfo, registry *types.Registry) (int, error) {
	byID := make(map[string]TokenInfo, len(tokens))
	for _, t := range tokens {
		byID[t.AssetID] = t
	}

	matched := 0
	for _, info := range registry.List() {
		t, ok := byID[info.AssetID]
		if !ok {
			continue
		}
		if t.Decimals > 0 {
			info.Decimals = t.Decimals
		}
		info.PriceUSD, _ = t.PriceUSD.Float64()
		if err := registry.Put(info); err != nil {
			return matched, err
		}
		matched++
	}
	return matched, nil
}
