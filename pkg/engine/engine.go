package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"zcash-near-intents/pkg/client"
	"zcash-near-intents/pkg/intent"
	"zcash-near-intents/pkg/swaperr"
	"zcash-near-intents/pkg/types"
)

var (
	// ErrNotCancellable is returned by Cancel once the intent has been handed to the relay
	ErrNotCancellable = errors.New("swap has been submitted and can no longer be cancelled")
	// ErrNotFound is returned for an unknown swap id
	ErrNotFound = errors.New("swap not found")
	// ErrClosed is returned when the engine no longer accepts swaps
	ErrClosed = errors.New("engine is closed")
)

// Relay is the solver relay the engine quotes, publishes and polls through
type Relay interface {
	GetQuote(ctx context.Context, source, dest types.Asset, amount decimal.Decimal) (types.Quote, error)
	Publish(ctx context.Context, signed *types.SignedIntent) (string, error)
	Status(ctx context.Context, intentHash string) (*client.IntentStatus, error)
}

// Signer gives scoped access to the account's signing key
type Signer interface {
	AccountID() string
	Use(fn func(key solana.PrivateKey) error) error
}

// Shielder moves transparent destination funds into the shielded pool
type Shielder interface {
	ShieldResidual(ctx context.Context, memo string) (decimal.Decimal, string, error)
}

// PortfolioSink receives terminal swap results
type PortfolioSink interface {
	ApplySwapResult(ctx context.Context, result *types.SwapResult)
}

// Recorder persists swap results as they change
type Recorder interface {
	Save(result *types.SwapResult) error
}

// Config holds engine timing and retry options
type Config struct {
	QuoteTimeout         time.Duration
	SettlementTimeout    time.Duration
	PollInterval         time.Duration
	MaxQuoteRetries      int
	MaxSubmitRetries     int
	ShieldRetries        int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	WaitForSettlement    bool
	AutoShield           bool
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		QuoteTimeout:         5 * time.Second,
		SettlementTimeout:    15 * time.Second,
		PollInterval:         2 * time.Second,
		MaxQuoteRetries:      2,
		MaxSubmitRetries:     3,
		ShieldRetries:        2,
		RetryInitialInterval: 500 * time.Millisecond,
		RetryMaxInterval:     5 * time.Second,
		WaitForSettlement:    true,
		AutoShield:           true,
	}
}

// Deps are the collaborators the engine drives. Shielder, Portfolio and Recorder are optional.
type Deps struct {
	Registry  *types.Registry
	Builder   *intent.Builder
	Relay     Relay
	Signer    Signer
	Nonces    intent.NonceAllocator
	Shielder  Shielder
	Portfolio PortfolioSink
	Recorder  Recorder
}

type swap struct {
	mu         sync.Mutex
	result     *types.SwapResult
	cancelled  atomic.Bool
	submitting bool
	abort      context.CancelFunc
	done       chan struct{}
}

// Engine runs swaps. Each swap gets its own goroutine and state machine; swaps share only
// the quote ledger, the nonce allocator and the portfolio.
type Engine struct {
	cfg  Config
	deps Deps
	log  *logrus.Logger
	now  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	mu     sync.RWMutex
	swaps  map[string]*swap
	quotes *quoteLedger

	refused atomic.Int64
}

// New creates an engine
func New(cfg Config, deps Deps, log *logrus.Logger) (*Engine, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("asset registry is required")
	case deps.Builder == nil:
		return nil, errors.New("intent builder is required")
	case deps.Relay == nil:
		return nil, errors.New("relay client is required")
	case deps.Signer == nil:
		return nil, errors.New("signer is required")
	case deps.Nonces == nil:
		return nil, errors.New("nonce allocator is required")
	}

	def := DefaultConfig()
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = def.QuoteTimeout
	}
	if cfg.SettlementTimeout <= 0 {
		cfg.SettlementTimeout = def.SettlementTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxQuoteRetries < 0 {
		cfg.MaxQuoteRetries = 0
	}
	if cfg.MaxSubmitRetries < 0 {
		cfg.MaxSubmitRetries = 0
	}
	if cfg.ShieldRetries < 0 {
		cfg.ShieldRetries = 0
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = def.RetryInitialInterval
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = def.RetryMaxInterval
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:    cfg,
		deps:   deps,
		log:    log,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		swaps:  make(map[string]*swap),
		quotes: newQuoteLedger(),
	}, nil
}

// normalize resolves the request's assets against the registry and rejects requests that
// can never succeed
func (e *Engine) normalize(req types.SwapRequest) (types.SwapRequest, error) {
	const op = "engine.submit"

	if err := req.Validate(); err != nil {
		return req, swaperr.Wrap(swaperr.KindInvalidRequest, op, err)
	}

	src, err := e.deps.Registry.Asset(req.Source.Symbol, req.Source.Privacy)
	if err != nil {
		return req, swaperr.Wrap(swaperr.KindInvalidRequest, op, err)
	}
	if !e.deps.Registry.Supports(src) {
		return req, swaperr.Errorf(swaperr.KindInvalidRequest, op, "unsupported source asset %s", src)
	}

	dst, err := e.deps.Registry.Asset(req.Dest.Symbol, req.Privacy)
	if err != nil {
		return req, swaperr.Wrap(swaperr.KindInvalidRequest, op, err)
	}
	if !e.deps.Registry.Supports(dst) {
		return req, swaperr.Errorf(swaperr.KindInvalidRequest, op,
			"privacy level %s is not supported for %s on %s", req.Privacy, dst.Symbol, dst.Chain)
	}

	req.Source, req.Dest = src, dst
	req.Amount = e.deps.Registry.Truncate(src.Symbol, req.Amount)
	if !req.Amount.IsPositive() {
		return req, swaperr.Errorf(swaperr.KindInvalidRequest, op, "amount is below the precision of %s", src.Symbol)
	}
	return req, nil
}

// SubmitSwap starts a swap. Invalid requests fail immediately with an InvalidRequest error
// and no swap is created. Otherwise the swap runs in the background; with
// WaitForSettlement the call blocks until the swap is terminal or ctx is done.
func (e *Engine) SubmitSwap(ctx context.Context, req types.SwapRequest) (*types.SwapResult, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	req, err := e.normalize(req)
	if err != nil {
		return nil, err
	}

	now := e.now()
	res := &types.SwapResult{
		ID:             uuid.NewString(),
		Status:         types.StatusPending,
		State:          types.StateCreated,
		Request:        req,
		SourceAmount:   req.Amount,
		AppliedPrivacy: req.Privacy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	swapCtx, abort := context.WithCancel(e.ctx)
	s := &swap{result: res, abort: abort, done: make(chan struct{})}

	e.mu.Lock()
	e.swaps[res.ID] = s
	e.mu.Unlock()

	e.record(res.Clone())
	e.log.WithFields(logrus.Fields{
		"swap_id": res.ID,
		"source":  req.Source.String(),
		"dest":    req.Dest.String(),
		"amount":  req.Amount.String(),
	}).Info("Swap created")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(s.done)
		defer abort()
		e.run(swapCtx, s)
	}()

	if !e.cfg.WaitForSettlement {
		return s.snapshot(), nil
	}
	return e.wait(ctx, s)
}

// Get returns a copy of the swap's current result
func (e *Engine) Get(id string) (*types.SwapResult, error) {
	s, ok := e.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	return s.snapshot(), nil
}

// List returns copies of every swap known to the engine, newest first
func (e *Engine) List() []*types.SwapResult {
	e.mu.RLock()
	out := make([]*types.SwapResult, 0, len(e.swaps))
	for _, s := range e.swaps {
		out = append(out, s.snapshot())
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Wait blocks until the swap is terminal (including any shielding follow-up) or ctx is done
func (e *Engine) Wait(ctx context.Context, id string) (*types.SwapResult, error) {
	s, ok := e.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	return e.wait(ctx, s)
}

func (e *Engine) wait(ctx context.Context, s *swap) (*types.SwapResult, error) {
	select {
	case <-s.done:
		return s.snapshot(), nil
	case <-ctx.Done():
		return s.snapshot(), ctx.Err()
	}
}

// Cancel requests cancellation of a swap that has not been submitted yet. The swap ends
// Failed with reason "cancelled" at its next suspension point.
func (e *Engine) Cancel(id string) error {
	s, ok := e.lookup(id)
	if !ok {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting || !cancellable(s.result.State) {
		return ErrNotCancellable
	}
	s.cancelled.Store(true)
	s.abort()
	e.log.WithField("swap_id", id).Info("Swap cancellation requested")
	return nil
}

// RefusedTransitions counts state moves the state machine rejected since the engine started
func (e *Engine) RefusedTransitions() int64 {
	return e.refused.Load()
}

// Close stops accepting swaps, aborts running ones and waits for their goroutines
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) lookup(id string) (*swap, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.swaps[id]
	return s, ok
}

func (s *swap) snapshot() *types.SwapResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result.Clone()
}

func (e *Engine) record(res *types.SwapResult) {
	if e.deps.Recorder == nil {
		return
	}
	if err := e.deps.Recorder.Save(res); err != nil {
		e.log.WithFields(logrus.Fields{"swap_id": res.ID, "error": err}).Warn("Failed to persist swap")
	}
}
