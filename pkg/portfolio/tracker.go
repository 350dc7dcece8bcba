package portfolio

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"zcash-near-intents/pkg/swaperr"
	"zcash-near-intents/pkg/types"
)

const maxWarnings = 20

// Balance is one tracked position
type Balance struct {
	Asset     types.Asset     `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	UpdatedAt time.Time       `json:"updated_at"`
	// Pending is set while an optimistic update waits for chain confirmation
	Pending bool   `json:"pending,omitempty"`
	Stale   bool   `json:"stale,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Warning is raised when the chain disagrees with an optimistic update for longer than
// the staleness bound
type Warning struct {
	Asset    types.Asset     `json:"asset"`
	SwapID   string          `json:"swap_id"`
	Expected decimal.Decimal `json:"expected"`
	Observed decimal.Decimal `json:"observed"`
	At       time.Time       `json:"at"`
}

// Err returns the warning as a ReconciliationWarning error
func (w Warning) Err() error {
	return swaperr.Errorf(swaperr.KindReconciliationWarning, "portfolio.reconcile",
		"%s after swap %s: expected %s, observed %s", w.Asset, w.SwapID, w.Expected, w.Observed)
}

// Snapshot is an immutable view of the portfolio. Readers never see a partially
// updated snapshot.
type Snapshot struct {
	Account  string                  `json:"account"`
	Balances map[types.Asset]Balance `json:"-"`
	TakenAt  time.Time               `json:"taken_at"`
	Warnings []Warning               `json:"warnings,omitempty"`
}

// Get returns the balance of asset, zero if untracked
func (s *Snapshot) Get(asset types.Asset) decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	return s.Balances[asset].Amount
}

// Sorted returns the balances ordered by symbol then privacy class
func (s *Snapshot) Sorted() []Balance {
	if s == nil {
		return nil
	}
	out := make([]Balance, 0, len(s.Balances))
	for _, b := range s.Balances {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Asset.Symbol != out[j].Asset.Symbol {
			return out[i].Asset.Symbol < out[j].Asset.Symbol
		}
		return out[i].Asset.Privacy > out[j].Asset.Privacy
	})
	return out
}

func (s *Snapshot) clone() *Snapshot {
	out := &Snapshot{
		Account:  s.Account,
		Balances: make(map[types.Asset]Balance, len(s.Balances)),
		TakenAt:  s.TakenAt,
		Warnings: append([]Warning(nil), s.Warnings...),
	}
	for k, v := range s.Balances {
		out.Balances[k] = v
	}
	return out
}

// Config holds tracker options
type Config struct {
	Account        string
	Pairs          []types.Asset
	Staleness      time.Duration
	Tolerance      decimal.Decimal
	RefreshDelay   time.Duration
	RefreshTimeout time.Duration
	Workers        int
	OnWarning      func(Warning)
}

type expectation struct {
	swapID   string
	expected decimal.Decimal
	deadline time.Time
}

// Tracker maintains the portfolio snapshot. Refreshes and optimistic updates run one at
// a time under mu, chain queries included; readers load the last published snapshot
// without locking.
type Tracker struct {
	cfg     Config
	querier BalanceQuerier
	log     *logrus.Logger
	pool    *workerpool.WorkerPool
	now     func() time.Time

	mu           sync.Mutex
	expectations map[types.Asset]expectation
	snap         atomic.Pointer[Snapshot]

	timersMu sync.Mutex
	timers   []*time.Timer
	closed   bool
	stopped  atomic.Bool
	wg       sync.WaitGroup
}

// NewTracker creates a tracker over querier
func NewTracker(cfg Config, querier BalanceQuerier, log *logrus.Logger) *Tracker {
	if cfg.Staleness <= 0 {
		cfg.Staleness = 2 * time.Minute
	}
	if cfg.Tolerance.IsZero() {
		cfg.Tolerance = decimal.RequireFromString("0.01")
	}
	if cfg.RefreshDelay <= 0 {
		cfg.RefreshDelay = 5 * time.Second
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 10 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	t := &Tracker{
		cfg:          cfg,
		querier:      querier,
		log:          log,
		pool:         workerpool.New(cfg.Workers),
		now:          time.Now,
		expectations: make(map[types.Asset]expectation),
	}
	t.snap.Store(&Snapshot{Account: cfg.Account, Balances: make(map[types.Asset]Balance)})
	return t
}

// Snapshot returns the last published snapshot
func (t *Tracker) Snapshot() *Snapshot {
	return t.snap.Load()
}

type queryResult struct {
	asset  types.Asset
	amount decimal.Decimal
	err    error
}

// Refresh queries every tracked pair and publishes a new snapshot. Pairs whose query
// fails keep their previous value and are marked stale. The error reports the first
// failed query; the snapshot is still published.
func (t *Tracker) Refresh(ctx context.Context) (*Snapshot, error) {
	if t.stopped.Load() {
		return t.snap.Load(), swaperr.New(swaperr.KindCancelled, "portfolio.refresh", "tracker is closed")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refreshLocked(ctx)
}

// refreshLocked does the work of Refresh. Caller holds t.mu.
func (t *Tracker) refreshLocked(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.RefreshTimeout)
	defer cancel()

	results := make(chan queryResult, len(t.cfg.Pairs))
	for _, pair := range t.cfg.Pairs {
		pair := pair
		t.pool.Submit(func() {
			amount, err := t.querier.Balance(ctx, t.cfg.Account, pair)
			results <- queryResult{asset: pair, amount: amount, err: err}
		})
	}

	collected := make([]queryResult, 0, len(t.cfg.Pairs))
	for range t.cfg.Pairs {
		collected = append(collected, <-results)
	}

	now := t.now()
	next := t.snap.Load().clone()
	next.TakenAt = now

	var firstErr error
	for _, r := range collected {
		prev := next.Balances[r.asset]
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			prev.Asset = r.asset
			prev.Stale = true
			prev.Error = r.err.Error()
			next.Balances[r.asset] = prev
			t.log.WithFields(logrus.Fields{"asset": r.asset.String(), "error": r.err}).Warn("Balance query failed")
			continue
		}
		next.Balances[r.asset] = Balance{Asset: r.asset, Amount: r.amount, UpdatedAt: now}
	}

	t.reconcile(next, now)
	t.snap.Store(next)
	return next, firstErr
}

// reconcile compares observed balances against outstanding optimistic expectations.
// Caller holds t.mu.
func (t *Tracker) reconcile(next *Snapshot, now time.Time) {
	for asset, exp := range t.expectations {
		observed, ok := next.Balances[asset]
		if ok && !observed.Stale && t.within(observed.Amount, exp.expected) {
			delete(t.expectations, asset)
			continue
		}
		if now.Before(exp.deadline) {
			// keep showing the optimistic value until the chain catches up
			next.Balances[asset] = Balance{Asset: asset, Amount: exp.expected, UpdatedAt: now, Pending: true}
			continue
		}

		delete(t.expectations, asset)
		w := Warning{Asset: asset, SwapID: exp.swapID, Expected: exp.expected, Observed: observed.Amount, At: now}
		next.Warnings = append(next.Warnings, w)
		if len(next.Warnings) > maxWarnings {
			next.Warnings = next.Warnings[len(next.Warnings)-maxWarnings:]
		}
		t.log.WithFields(logrus.Fields{
			"asset":    asset.String(),
			"swap_id":  exp.swapID,
			"expected": exp.expected.String(),
			"observed": observed.Amount.String(),
		}).Warn(w.Err().Error())
		if t.cfg.OnWarning != nil {
			t.cfg.OnWarning(w)
		}
	}
}

func (t *Tracker) within(observed, expected decimal.Decimal) bool {
	diff := observed.Sub(expected).Abs()
	bound := expected.Abs().Mul(t.cfg.Tolerance)
	if expected.IsZero() {
		bound = t.cfg.Tolerance
	}
	return diff.LessThanOrEqual(bound)
}

// ApplySwapResult applies a settled swap optimistically, schedules a confirming refresh
// and arms a reconciling refresh at the staleness bound. Pairs never observed on chain
// have no baseline to adjust, so they are left to the confirming refresh. Non-settled
// results are ignored.
func (t *Tracker) ApplySwapResult(ctx context.Context, result *types.SwapResult) {
	if result == nil || result.Status != types.StatusSettled {
		return
	}

	t.mu.Lock()
	now := t.now()
	next := t.snap.Load().clone()
	deadline := now.Add(t.cfg.Staleness)
	expecting := false

	adjust := func(asset types.Asset, delta decimal.Decimal) {
		if delta.IsZero() {
			return
		}
		b, ok := next.Balances[asset]
		if !ok || b.UpdatedAt.IsZero() {
			t.log.WithFields(logrus.Fields{"swap_id": result.ID, "asset": asset.String()}).Debug("No observed balance to adjust")
			return
		}
		b.Asset = asset
		b.Amount = b.Amount.Add(delta)
		b.UpdatedAt = now
		b.Pending = true
		next.Balances[asset] = b
		t.expectations[asset] = expectation{swapID: result.ID, expected: b.Amount, deadline: deadline}
		expecting = true
	}

	dest := result.Request.Dest.WithPrivacy(result.AppliedPrivacy)
	adjust(result.Request.Source, result.SourceAmount.Neg())
	adjust(dest, result.RealizedOut)

	if s := result.Shielding; s != nil && s.Status == types.ShieldingSucceeded {
		adjust(dest.WithPrivacy(types.Transparent), s.Amount.Neg())
		adjust(dest.WithPrivacy(types.Shielded), s.Amount)
	}

	t.snap.Store(next)
	t.mu.Unlock()

	t.log.WithFields(logrus.Fields{"swap_id": result.ID, "asset": dest.String()}).Debug("Applied optimistic portfolio update")
	t.scheduleRefresh(t.cfg.RefreshDelay)
	if expecting {
		t.scheduleRefresh(t.cfg.Staleness)
	}
}

// Confirm waits out the refresh delay, then refreshes. Callers about to Close use it in
// place of the scheduled refresh, which Close cancels.
func (t *Tracker) Confirm(ctx context.Context) (*Snapshot, error) {
	timer := time.NewTimer(t.cfg.RefreshDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return t.snap.Load(), swaperr.Wrap(swaperr.KindCancelled, "portfolio.confirm", ctx.Err())
	case <-timer.C:
	}
	return t.Refresh(ctx)
}

// Pending lists the assets whose optimistic value still waits for the chain
func (t *Tracker) Pending() []types.Asset {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.Asset, 0, len(t.expectations))
	for asset := range t.expectations {
		out = append(out, asset)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (t *Tracker) scheduleRefresh(after time.Duration) {
	t.timersMu.Lock()
	defer t.timersMu.Unlock()
	if t.closed {
		return
	}

	t.wg.Add(1)
	timer := time.AfterFunc(after, func() {
		defer t.wg.Done()
		if _, err := t.Refresh(context.Background()); err != nil {
			t.log.WithError(err).Warn("Scheduled portfolio refresh failed")
		}
	})
	t.timers = append(t.timers, timer)
}

// Close cancels scheduled refreshes, waits for running ones and stops the worker pool
func (t *Tracker) Close() {
	t.timersMu.Lock()
	t.closed = true
	for _, timer := range t.timers {
		if timer.Stop() {
			t.wg.Done()
		}
	}
	t.timers = nil
	t.timersMu.Unlock()

	t.wg.Wait()
	t.stopped.Store(true)
	t.pool.StopWait()
}
