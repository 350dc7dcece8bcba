package portfolio

import (
	"context"

	"github.com/shopspring/decimal"

	"zcash-near-intents/pkg/swaperr"
	"zcash-near-intents/pkg/types"
)

// BalanceQuerier reads one (account, asset, privacy class) balance from a chain
type BalanceQuerier interface {
	Balance(ctx context.Context, account string, asset types.Asset) (decimal.Decimal, error)
}

// ChainRouter dispatches balance queries to the querier registered for the asset's chain
type ChainRouter struct {
	routes map[types.Chain]BalanceQuerier
}

// NewChainRouter creates an empty router
func NewChainRouter() *ChainRouter {
	return &ChainRouter{routes: make(map[types.Chain]BalanceQuerier)}
}

// Route registers q for chain
func (r *ChainRouter) Route(chain types.Chain, q BalanceQuerier) *ChainRouter {
	r.routes[chain] = q
	return r
}

// Balance implements BalanceQuerier
func (r *ChainRouter) Balance(ctx context.Context, account string, asset types.Asset) (decimal.Decimal, error) {
	q, ok := r.routes[asset.Chain]
	if !ok {
		return decimal.Zero, swaperr.Errorf(swaperr.KindInvalidRequest, "portfolio.balance", "no balance source for chain %s", asset.Chain)
	}
	return q.Balance(ctx, account, asset)
}
