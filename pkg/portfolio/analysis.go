package portfolio

import (
	"sort"

	"github.com/shopspring/decimal"

	"zcash-near-intents/pkg/types"
)

// Holding is one asset's valuation across privacy classes
type Holding struct {
	Symbol      string          `json:"symbol"`
	Transparent decimal.Decimal `json:"transparent"`
	Shielded    decimal.Decimal `json:"shielded"`
	ValueUSD    decimal.Decimal `json:"value_usd"`
	Share       decimal.Decimal `json:"share"`
	Priced      bool            `json:"priced"`
}

// Analysis summarizes value distribution and privacy posture
type Analysis struct {
	TotalUSD     decimal.Decimal `json:"total_usd"`
	ShieldedUSD  decimal.Decimal `json:"shielded_usd"`
	PrivacyRatio decimal.Decimal `json:"privacy_ratio"`
	Holdings     []Holding       `json:"holdings"`
}

// Analyze values the snapshot with the given USD prices (keyed by symbol). Assets without
// a price contribute no value and are reported with Priced false.
func Analyze(snap *Snapshot, prices map[string]decimal.Decimal) Analysis {
	bySymbol := make(map[string]*Holding)
	for _, b := range snap.Sorted() {
		h, ok := bySymbol[b.Asset.Symbol]
		if !ok {
			h = &Holding{Symbol: b.Asset.Symbol}
			bySymbol[b.Asset.Symbol] = h
		}
		if b.Asset.Privacy == types.Shielded {
			h.Shielded = h.Shielded.Add(b.Amount)
		} else {
			h.Transparent = h.Transparent.Add(b.Amount)
		}
	}

	var a Analysis
	for symbol, h := range bySymbol {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		h.Priced = true
		h.ValueUSD = h.Transparent.Add(h.Shielded).Mul(price)
		a.TotalUSD = a.TotalUSD.Add(h.ValueUSD)
		a.ShieldedUSD = a.ShieldedUSD.Add(h.Shielded.Mul(price))
	}

	for _, h := range bySymbol {
		if a.TotalUSD.IsPositive() {
			h.Share = h.ValueUSD.Div(a.TotalUSD)
		}
		a.Holdings = append(a.Holdings, *h)
	}
	sort.Slice(a.Holdings, func(i, j int) bool {
		if !a.Holdings[i].ValueUSD.Equal(a.Holdings[j].ValueUSD) {
			return a.Holdings[i].ValueUSD.GreaterThan(a.Holdings[j].ValueUSD)
		}
		return a.Holdings[i].Symbol < a.Holdings[j].Symbol
	})

	if a.TotalUSD.IsPositive() {
		a.PrivacyRatio = a.ShieldedUSD.Div(a.TotalUSD)
	}
	return a
}
