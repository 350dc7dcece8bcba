package types

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Chain identifies the ledger an asset settles on
type Chain string

const (
	ChainNEAR Chain = "NEAR"
	ChainZEC  Chain = "ZEC"
)

// ParseChain normalizes a chain name ("near", "zcash", "zec")
func ParseChain(s string) (Chain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "near":
		return ChainNEAR, nil
	case "zec", "zcash":
		return ChainZEC, nil
	default:
		return "", fmt.Errorf("unsupported chain: %s", s)
	}
}

// SupportsShielded reports whether the chain has a shielded pool
func (c Chain) SupportsShielded() bool {
	return c == ChainZEC
}

// PrivacyClass is the visibility of a balance or transfer
type PrivacyClass string

const (
	Transparent PrivacyClass = "transparent"
	Shielded    PrivacyClass = "shielded"
)

// ParsePrivacy parses a privacy level. "default" and the empty string are rejected;
// callers substitute the configured default before parsing.
func ParsePrivacy(s string) (PrivacyClass, error) {
	switch PrivacyClass(strings.ToLower(strings.TrimSpace(s))) {
	case Transparent:
		return Transparent, nil
	case Shielded:
		return Shielded, nil
	default:
		return "", fmt.Errorf("privacy level must be 'transparent' or 'shielded', got %q", s)
	}
}

// Valid reports whether p is one of the recognized classes
func (p PrivacyClass) Valid() bool {
	return p == Transparent || p == Shielded
}

// Asset is an immutable (symbol, chain, privacy class) triple
type Asset struct {
	Symbol  string       `json:"symbol"`
	Chain   Chain        `json:"chain"`
	Privacy PrivacyClass `json:"privacy"`
}

func (a Asset) String() string {
	return fmt.Sprintf("%s/%s/%s", a.Symbol, a.Chain, a.Privacy)
}

// WithPrivacy returns a copy of a in the given privacy class
func (a Asset) WithPrivacy(p PrivacyClass) Asset {
	a.Privacy = p
	return a
}

// AssetInfo is the registry entry for a symbol
type AssetInfo struct {
	Symbol   string  `json:"symbol" mapstructure:"symbol"`
	Chain    Chain   `json:"chain" mapstructure:"chain"`
	AssetID  string  `json:"asset_id" mapstructure:"asset_id"`
	Decimals int32   `json:"decimals" mapstructure:"decimals"`
	PriceUSD float64 `json:"price_usd,omitempty" mapstructure:"price_usd"`
}

// DefaultAssets is the built-in asset map
func DefaultAssets() []AssetInfo {
	return []AssetInfo{
		{Symbol: "NEAR", Chain: ChainNEAR, AssetID: "nep141:wrap.near", Decimals: 24},
		{Symbol: "USDC", Chain: ChainNEAR, AssetID: "nep141:17208628f84f5d6ad33f0da3bbbeb27ffcb398eac501a31bd6ad2011e36133a1", Decimals: 6},
		{Symbol: "ZEC", Chain: ChainZEC, AssetID: "nep141:zec.omft.near", Decimals: 8},
	}
}

// Registry maps symbols to asset metadata. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	assets map[string]AssetInfo
}

// NewRegistry creates a registry from the given entries
func NewRegistry(entries []AssetInfo) (*Registry, error) {
	r := &Registry{assets: make(map[string]AssetInfo)}
	for _, e := range entries {
		if err := r.Put(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Put adds or replaces an entry
func (r *Registry) Put(info AssetInfo) error {
	info.Symbol = strings.ToUpper(strings.TrimSpace(info.Symbol))
	if info.Symbol == "" {
		return fmt.Errorf("asset symbol is required")
	}
	if info.Chain != ChainNEAR && info.Chain != ChainZEC {
		return fmt.Errorf("asset %s: unsupported chain %q", info.Symbol, info.Chain)
	}
	if info.AssetID == "" {
		return fmt.Errorf("asset %s: asset id is required", info.Symbol)
	}
	if info.Decimals < 0 || info.Decimals > 30 {
		return fmt.Errorf("asset %s: invalid decimals %d", info.Symbol, info.Decimals)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[info.Symbol] = info
	return nil
}

// Lookup returns the entry for symbol
func (r *Registry) Lookup(symbol string) (AssetInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.assets[strings.ToUpper(strings.TrimSpace(symbol))]
	return info, ok
}

// Asset builds an Asset value for symbol in the given privacy class
func (r *Registry) Asset(symbol string, privacy PrivacyClass) (Asset, error) {
	info, ok := r.Lookup(symbol)
	if !ok {
		return Asset{}, fmt.Errorf("unsupported asset: %s", symbol)
	}
	if !privacy.Valid() {
		return Asset{}, fmt.Errorf("invalid privacy class %q", privacy)
	}
	return Asset{Symbol: info.Symbol, Chain: info.Chain, Privacy: privacy}, nil
}

// Supports reports whether a is a registry asset in a class its chain can hold
func (r *Registry) Supports(a Asset) bool {
	info, ok := r.Lookup(a.Symbol)
	if !ok || info.Chain != a.Chain {
		return false
	}
	if a.Privacy == Shielded {
		return a.Chain.SupportsShielded()
	}
	return a.Privacy == Transparent
}

// List returns every entry sorted by symbol
func (r *Registry) List() []AssetInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AssetInfo, 0, len(r.assets))
	for _, info := range r.assets {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Pairs returns every (asset, class) pair worth tracking: the transparent class of each
// asset plus the shielded class where the chain supports it.
func (r *Registry) Pairs() []Asset {
	var pairs []Asset
	for _, info := range r.List() {
		pairs = append(pairs, Asset{Symbol: info.Symbol, Chain: info.Chain, Privacy: Transparent})
		if info.Chain.SupportsShielded() {
			pairs = append(pairs, Asset{Symbol: info.Symbol, Chain: info.Chain, Privacy: Shielded})
		}
	}
	return pairs
}

// ToUnits converts a human amount into on-chain integer units, truncating extra precision
func (r *Registry) ToUnits(symbol string, amount decimal.Decimal) (string, error) {
	info, ok := r.Lookup(symbol)
	if !ok {
		return "", fmt.Errorf("unsupported asset: %s", symbol)
	}
	return amount.Shift(info.Decimals).Truncate(0).String(), nil
}

// FromUnits converts on-chain integer units into a human amount
func (r *Registry) FromUnits(symbol string, units string) (decimal.Decimal, error) {
	info, ok := r.Lookup(symbol)
	if !ok {
		return decimal.Zero, fmt.Errorf("unsupported asset: %s", symbol)
	}
	raw, err := decimal.NewFromString(strings.TrimSpace(units))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", units, err)
	}
	return raw.Shift(-info.Decimals), nil
}

// Truncate cuts amount down to the precision the asset supports
func (r *Registry) Truncate(symbol string, amount decimal.Decimal) decimal.Decimal {
	info, ok := r.Lookup(symbol)
	if !ok {
		return amount
	}
	return amount.Truncate(info.Decimals)
}
