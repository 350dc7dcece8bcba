package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zcash-near-intents/pkg/account"
	"zcash-near-intents/pkg/client"
	"zcash-near-intents/pkg/intent"
	"zcash-near-intents/pkg/portfolio"
	"zcash-near-intents/pkg/swaperr"
	"zcash-near-intents/pkg/types"
)

type fakeRelay struct {
	mu        sync.Mutex
	quoteFn   func(ctx context.Context, call int, src, dst types.Asset, amount decimal.Decimal) (types.Quote, error)
	publishFn func(call int, signed *types.SignedIntent) (string, error)
	statusFn  func(call int, hash string) (*client.IntentStatus, error)

	quoteCalls   int
	publishCalls int
	statusCalls  int
	published    []*types.SignedIntent
}

func (f *fakeRelay) GetQuote(ctx context.Context, src, dst types.Asset, amount decimal.Decimal) (types.Quote, error) {
	f.mu.Lock()
	f.quoteCalls++
	call := f.quoteCalls
	f.mu.Unlock()
	return f.quoteFn(ctx, call, src, dst, amount)
}

func (f *fakeRelay) Publish(_ context.Context, signed *types.SignedIntent) (string, error) {
	f.mu.Lock()
	f.publishCalls++
	call := f.publishCalls
	f.published = append(f.published, signed)
	f.mu.Unlock()
	return f.publishFn(call, signed)
}

func (f *fakeRelay) Status(_ context.Context, hash string) (*client.IntentStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	call := f.statusCalls
	f.mu.Unlock()
	return f.statusFn(call, hash)
}

func (f *fakeRelay) counts() (quotes, publishes, statuses int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quoteCalls, f.publishCalls, f.statusCalls
}

// quoteFor returns a quote of out units of the destination per request, with a unique id
func quoteFor(out string) func(context.Context, int, types.Asset, types.Asset, decimal.Decimal) (types.Quote, error) {
	return func(_ context.Context, call int, src, dst types.Asset, amount decimal.Decimal) (types.Quote, error) {
		return types.Quote{
			ID:           fmt.Sprintf("quote-%d", call),
			SolverID:     "solver-1",
			Source:       src,
			Dest:         dst,
			SourceAmount: amount,
			DestAmount:   decimal.RequireFromString(out),
			Expiry:       time.Now().Add(time.Minute),
		}, nil
	}
}

func publishOK(call int, signed *types.SignedIntent) (string, error) {
	return fmt.Sprintf("intent-%d", signed.Intent.Nonce), nil
}

func settleAfter(pending int) func(int, string) (*client.IntentStatus, error) {
	return func(call int, hash string) (*client.IntentStatus, error) {
		if call <= pending {
			return &client.IntentStatus{IntentHash: hash, Status: client.RelayPending}, nil
		}
		return &client.IntentStatus{IntentHash: hash, Status: client.RelaySettled, TxHash: "tx-" + hash}, nil
	}
}

type fakeShielder struct {
	mu     sync.Mutex
	calls  int
	amount decimal.Decimal
	err    error
}

func (f *fakeShielder) ShieldResidual(context.Context, string) (decimal.Decimal, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return decimal.Zero, "", f.err
	}
	if f.amount.IsPositive() {
		return f.amount, "opid-1", nil
	}
	return decimal.Zero, "", nil
}

type memRecorder struct {
	mu    sync.Mutex
	saved map[string]*types.SwapResult
	saves int
}

func (m *memRecorder) Save(r *types.SwapResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[string]*types.SwapResult)
	}
	m.saved[r.ID] = r
	m.saves++
	return nil
}

type harness struct {
	engine   *Engine
	relay    *fakeRelay
	registry *types.Registry
	keys     *account.KeyStore
	recorder *memRecorder
	// refused is the number of rejected state moves the test expects
	refused  int64
}

type options struct {
	window    time.Duration
	wait      bool
	shielder  Shielder
	portfolio PortfolioSink
}

func newHarness(t *testing.T, relay *fakeRelay, opts options) *harness {
	t.Helper()

	reg, err := types.NewRegistry(types.DefaultAssets())
	require.NoError(t, err)

	if opts.window == 0 {
		opts.window = 2 * time.Second
	}
	builder, err := intent.NewBuilder(reg, intent.BuilderConfig{
		Slippage:         decimal.RequireFromString("0.02"),
		SettlementWindow: opts.window,
		IncludeMemo:      true,
	})
	require.NoError(t, err)

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	keys, err := account.New("alice.near", key.String())
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	rec := &memRecorder{}
	cfg := Config{
		QuoteTimeout:         time.Second,
		SettlementTimeout:    time.Second,
		PollInterval:         5 * time.Millisecond,
		MaxQuoteRetries:      2,
		MaxSubmitRetries:     3,
		ShieldRetries:        1,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     5 * time.Millisecond,
		WaitForSettlement:    opts.wait,
		AutoShield:           true,
	}
	e, err := New(cfg, Deps{
		Registry:  reg,
		Builder:   builder,
		Relay:     relay,
		Signer:    keys,
		Nonces:    intent.NewMemoryNonces(),
		Shielder:  opts.shielder,
		Portfolio: opts.portfolio,
		Recorder:  rec,
	}, log)
	require.NoError(t, err)
	t.Cleanup(e.Close)

	h := &harness{engine: e, relay: relay, registry: reg, keys: keys, recorder: rec}
	t.Cleanup(func() {
		assert.Equal(t, h.refused, e.RefusedTransitions(), "unexpected refused state transitions")
	})
	return h
}

func (h *harness) request(t *testing.T, src, dst string, amount string, privacy types.PrivacyClass) types.SwapRequest {
	t.Helper()
	s, err := h.registry.Asset(src, types.Transparent)
	require.NoError(t, err)
	d, err := h.registry.Asset(dst, privacy)
	require.NoError(t, err)
	return types.SwapRequest{Source: s, Dest: d, Amount: decimal.RequireFromString(amount), Privacy: privacy}
}

func terminalCount(r *types.SwapResult) int {
	n := 0
	for _, tr := range r.Transitions {
		if tr.To.Terminal() {
			n++
		}
	}
	return n
}

type zeroChain struct{}

func (zeroChain) Balance(context.Context, string, types.Asset) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func TestShieldedSwapSettles(t *testing.T) {
	relay := &fakeRelay{quoteFn: quoteFor("0.05"), publishFn: publishOK, statusFn: settleAfter(2)}

	log := logrus.New()
	log.SetOutput(io.Discard)
	zecS := types.Asset{Symbol: "ZEC", Chain: types.ChainZEC, Privacy: types.Shielded}
	tracker := portfolio.NewTracker(portfolio.Config{
		Account:      "alice.near",
		Pairs:        []types.Asset{zecS},
		RefreshDelay: time.Hour,
	}, zeroChain{}, log)
	t.Cleanup(tracker.Close)

	shielder := &fakeShielder{}
	h := newHarness(t, relay, options{wait: true, shielder: shielder, portfolio: tracker})

	res, err := h.engine.SubmitSwap(context.Background(), h.request(t, "NEAR", "ZEC", "1.0", types.Shielded))
	require.NoError(t, err)

	assert.Equal(t, types.StatusSettled, res.Status)
	assert.Equal(t, types.StateSettled, res.State)
	assert.Equal(t, types.Shielded, res.AppliedPrivacy)
	assert.True(t, res.MinOut.Equal(decimal.RequireFromString("0.049")), "min out %s", res.MinOut)
	assert.True(t, res.RealizedOut.Equal(decimal.RequireFromString("0.05")))
	assert.NotEmpty(t, res.IntentHash)
	assert.Equal(t, "tx-"+res.IntentHash, res.SettlementTx)
	assert.Equal(t, 1, terminalCount(res))

	require.NotNil(t, res.Shielding)
	assert.Equal(t, types.ShieldingSkipped, res.Shielding.Status)
	assert.Equal(t, 1, shielder.calls)

	states := []types.SwapState{}
	for _, tr := range res.Transitions {
		states = append(states, tr.To)
	}
	assert.Equal(t, []types.SwapState{
		types.StateQuoteObtained, types.StateIntentSigned, types.StateSubmitted, types.StateSettled,
	}, states)

	require.Len(t, relay.published, 1)
	signed := relay.published[0]
	require.NotNil(t, signed.Intent.Shield)
	assert.True(t, signed.Intent.Shield.Shielded)
	require.NoError(t, intent.Verify(signed))

	assert.True(t, tracker.Snapshot().Get(zecS).Equal(decimal.RequireFromString("0.05")))

	h.recorder.mu.Lock()
	assert.Equal(t, types.StateSettled, h.recorder.saved[res.ID].State)
	h.recorder.mu.Unlock()
}

func TestNoSolverFails(t *testing.T) {
	relay := &fakeRelay{
		quoteFn: func(context.Context, int, types.Asset, types.Asset, decimal.Decimal) (types.Quote, error) {
			return types.Quote{}, swaperr.New(swaperr.KindQuoteUnavailable, "relay.quote", "no solver quote")
		},
		publishFn: publishOK,
		statusFn:  settleAfter(0),
	}
	h := newHarness(t, relay, options{wait: true})

	res, err := h.engine.SubmitSwap(context.Background(), h.request(t, "USDC", "ZEC", "100", types.Transparent))
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Equal(t, string(swaperr.KindQuoteUnavailable), res.ErrorKind)
	assert.NotEmpty(t, res.Reason)
	assert.Zero(t, res.Nonce, "no intent was built")
	assert.Empty(t, res.QuoteID)

	quotes, publishes, _ := relay.counts()
	assert.Equal(t, 3, quotes, "initial attempt plus two retries")
	assert.Zero(t, publishes)
}

func TestUnconfirmedSwapExpires(t *testing.T) {
	relay := &fakeRelay{
		quoteFn:   quoteFor("0.05"),
		publishFn: publishOK,
		statusFn: func(_ int, hash string) (*client.IntentStatus, error) {
			return &client.IntentStatus{IntentHash: hash, Status: client.RelayPending}, nil
		},
	}
	h := newHarness(t, relay, options{wait: true, window: 150 * time.Millisecond})

	start := time.Now()
	res, err := h.engine.SubmitSwap(context.Background(), h.request(t, "NEAR", "ZEC", "1", types.Transparent))
	require.NoError(t, err)

	assert.Equal(t, types.StatusExpired, res.Status)
	assert.Equal(t, string(swaperr.KindExpired), res.ErrorKind)
	require.NotNil(t, res.Deadline)
	assert.False(t, time.Now().Before(*res.Deadline))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, terminalCount(res))
}

func TestDeadlineMissedBeforePublishFails(t *testing.T) {
	relay := &fakeRelay{
		quoteFn: quoteFor("0.05"),
		publishFn: func(call int, signed *types.SignedIntent) (string, error) {
			time.Sleep(80 * time.Millisecond)
			return "", swaperr.New(swaperr.KindNetwork, "relay.publish_intent", "connection reset")
		},
		statusFn: settleAfter(0),
	}
	h := newHarness(t, relay, options{wait: true, window: 50 * time.Millisecond})

	res, err := h.engine.SubmitSwap(context.Background(), h.request(t, "NEAR", "ZEC", "1", types.Transparent))
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Equal(t, types.StateFailed, res.State)
	assert.Equal(t, string(swaperr.KindExpired), res.ErrorKind)
	assert.Empty(t, res.IntentHash)
	assert.Equal(t, 1, terminalCount(res))
}

func TestConcurrentSwaps(t *testing.T) {
	relay := &fakeRelay{quoteFn: quoteFor("0.05"), publishFn: publishOK, statusFn: settleAfter(3)}
	h := newHarness(t, relay, options{wait: false})

	req := h.request(t, "NEAR", "ZEC", "1", types.Shielded)
	var (
		wg  sync.WaitGroup
		ids = make([]string, 2)
	)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.engine.SubmitSwap(context.Background(), req)
			if assert.NoError(t, err) {
				assert.Equal(t, types.StatusPending, res.Status)
				ids[i] = res.ID
			}
		}(i)
	}
	wg.Wait()
	require.NotEmpty(t, ids[0])
	require.NotEmpty(t, ids[1])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	nonces := map[uint64]bool{}
	for _, id := range ids {
		res, err := h.engine.Wait(ctx, id)
		require.NoError(t, err)
		assert.True(t, res.Status.Terminal())
		assert.Equal(t, 1, terminalCount(res))
		nonces[res.Nonce] = true
	}
	assert.Len(t, nonces, 2, "each swap signs with its own nonce")
	assert.NotEqual(t, ids[0], ids[1])
	assert.Len(t, h.engine.List(), 2)
}

func TestSubmitRetriesResendSameIntent(t *testing.T) {
	relay := &fakeRelay{
		quoteFn: quoteFor("0.05"),
		publishFn: func(call int, signed *types.SignedIntent) (string, error) {
			if call <= 2 {
				return "", swaperr.New(swaperr.KindNetwork, "relay.publish_intent", "connection reset")
			}
			return "intent-ok", nil
		},
		statusFn: settleAfter(0),
	}
	h := newHarness(t, relay, options{wait: true})

	res, err := h.engine.SubmitSwap(context.Background(), h.request(t, "NEAR", "ZEC", "1", types.Transparent))
	require.NoError(t, err)
	assert.Equal(t, types.StatusSettled, res.Status)

	require.Len(t, relay.published, 3)
	for _, p := range relay.published[1:] {
		assert.Equal(t, relay.published[0].Intent.Payload, p.Intent.Payload)
		assert.Equal(t, relay.published[0].Signature, p.Signature)
	}
}

func TestSubmitRetriesExhausted(t *testing.T) {
	relay := &fakeRelay{
		quoteFn: quoteFor("0.05"),
		publishFn: func(int, *types.SignedIntent) (string, error) {
			return "", swaperr.New(swaperr.KindNetwork, "relay.publish_intent", "connection refused")
		},
		statusFn: settleAfter(0),
	}
	h := newHarness(t, relay, options{wait: true})

	res, err := h.engine.SubmitSwap(context.Background(), h.request(t, "NEAR", "ZEC", "1", types.Transparent))
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Equal(t, string(swaperr.KindNetwork), res.ErrorKind)

	_, publishes, statuses := relay.counts()
	assert.Equal(t, 4, publishes)
	assert.Zero(t, statuses)
}

func TestSubmissionRejected(t *testing.T) {
	relay := &fakeRelay{
		quoteFn: quoteFor("0.05"),
		publishFn: func(int, *types.SignedIntent) (string, error) {
			return "", swaperr.New(swaperr.KindSubmissionRejected, "relay.publish_intent", "invalid signature")
		},
		statusFn: settleAfter(0),
	}
	h := newHarness(t, relay, options{wait: true})

	res, err := h.engine.SubmitSwap(context.Background(), h.request(t, "NEAR", "ZEC", "1", types.Transparent))
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Equal(t, string(swaperr.KindSubmissionRejected), res.ErrorKind)
	assert.Contains(t, res.Reason, "invalid signature")

	_, publishes, _ := relay.counts()
	assert.Equal(t, 1, publishes)
}

func TestRelayReportsNotFound(t *testing.T) {
	relay := &fakeRelay{
		quoteFn:   quoteFor("0.05"),
		publishFn: publishOK,
		statusFn: func(_ int, hash string) (*client.IntentStatus, error) {
			return &client.IntentStatus{IntentHash: hash, Status: client.RelayNotFound}, nil
		},
	}
	h := newHarness(t, relay, options{wait: true})

	res, err := h.engine.SubmitSwap(context.Background(), h.request(t, "NEAR", "ZEC", "1", types.Transparent))
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Equal(t, string(swaperr.KindSubmissionRejected), res.ErrorKind)
}

func TestInvalidRequestRejectedUpFront(t *testing.T) {
	relay := &fakeRelay{quoteFn: quoteFor("1"), publishFn: publishOK, statusFn: settleAfter(0)}
	h := newHarness(t, relay, options{wait: true})

	res, err := h.engine.SubmitSwap(context.Background(), h.request(t, "ZEC", "USDC", "1", types.Shielded))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, swaperr.Is(err, swaperr.KindInvalidRequest))

	req := h.request(t, "NEAR", "ZEC", "1", types.Transparent)
	req.Amount = decimal.Zero
	_, err = h.engine.SubmitSwap(context.Background(), req)
	assert.True(t, swaperr.Is(err, swaperr.KindInvalidRequest))

	quotes, _, _ := relay.counts()
	assert.Zero(t, quotes)
	assert.Empty(t, h.engine.List())
}

func TestQuoteIsSingleUse(t *testing.T) {
	relay := &fakeRelay{
		quoteFn: func(_ context.Context, _ int, src, dst types.Asset, amount decimal.Decimal) (types.Quote, error) {
			return types.Quote{
				ID: "same-quote", Source: src, Dest: dst, SourceAmount: amount,
				DestAmount: decimal.RequireFromString("0.05"), Expiry: time.Now().Add(time.Minute),
			}, nil
		},
		publishFn: publishOK,
		statusFn:  settleAfter(0),
	}
	h := newHarness(t, relay, options{wait: true})

	first, err := h.engine.SubmitSwap(context.Background(), h.request(t, "NEAR", "ZEC", "1", types.Transparent))
	require.NoError(t, err)
	assert.Equal(t, types.StatusSettled, first.Status)

	second, err := h.engine.SubmitSwap(context.Background(), h.request(t, "NEAR", "ZEC", "1", types.Transparent))
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, second.Status)
	assert.Equal(t, string(swaperr.KindInvalidRequest), second.ErrorKind)
}

func TestCancelBeforeSubmission(t *testing.T) {
	entered := make(chan struct{})
	relay := &fakeRelay{
		quoteFn: func(ctx context.Context, _ int, _, _ types.Asset, _ decimal.Decimal) (types.Quote, error) {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return types.Quote{}, swaperr.Wrap(swaperr.KindNetwork, "relay.quote", ctx.Err())
		},
		publishFn: publishOK,
		statusFn:  settleAfter(0),
	}
	h := newHarness(t, relay, options{wait: false})

	res, err := h.engine.SubmitSwap(context.Background(), h.request(t, "NEAR", "ZEC", "1", types.Transparent))
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("quote was never requested")
	}
	require.NoError(t, h.engine.Cancel(res.ID))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := h.engine.Wait(ctx, res.ID)
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, final.Status)
	assert.Equal(t, "cancelled", final.Reason)
	assert.Equal(t, string(swaperr.KindCancelled), final.ErrorKind)

	_, publishes, _ := relay.counts()
	assert.Zero(t, publishes)
}

func TestCancelAfterSubmission(t *testing.T) {
	release := make(chan struct{})
	relay := &fakeRelay{
		quoteFn:   quoteFor("0.05"),
		publishFn: publishOK,
		statusFn: func(_ int, hash string) (*client.IntentStatus, error) {
			select {
			case <-release:
				return &client.IntentStatus{IntentHash: hash, Status: client.RelaySettled}, nil
			default:
				return &client.IntentStatus{IntentHash: hash, Status: client.RelayPending}, nil
			}
		},
	}
	h := newHarness(t, relay, options{wait: false})

	res, err := h.engine.SubmitSwap(context.Background(), h.request(t, "NEAR", "ZEC", "1", types.Transparent))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cur, err := h.engine.Get(res.ID)
		return err == nil && cur.State == types.StateSubmitted
	}, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, h.engine.Cancel(res.ID), ErrNotCancellable)
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := h.engine.Wait(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSettled, final.Status)
}

func TestShieldingFailureKeepsSettled(t *testing.T) {
	relay := &fakeRelay{quoteFn: quoteFor("0.05"), publishFn: publishOK, statusFn: settleAfter(0)}
	shielder := &fakeShielder{err: swaperr.New(swaperr.KindSubmissionRejected, "zcash.z_sendmany", "insufficient funds")}
	h := newHarness(t, relay, options{wait: true, shielder: shielder})

	res, err := h.engine.SubmitSwap(context.Background(), h.request(t, "NEAR", "ZEC", "1", types.Shielded))
	require.NoError(t, err)

	assert.Equal(t, types.StatusSettled, res.Status)
	require.NotNil(t, res.Shielding)
	assert.Equal(t, types.ShieldingFailed, res.Shielding.Status)
	assert.Contains(t, res.Shielding.Reason, "insufficient funds")
	assert.Equal(t, 1, res.Shielding.Attempts)
}

func TestShieldingSucceeded(t *testing.T) {
	relay := &fakeRelay{quoteFn: quoteFor("0.05"), publishFn: publishOK, statusFn: settleAfter(0)}
	shielder := &fakeShielder{amount: decimal.RequireFromString("0.2")}
	h := newHarness(t, relay, options{wait: true, shielder: shielder})

	res, err := h.engine.SubmitSwap(context.Background(), h.request(t, "NEAR", "ZEC", "1", types.Shielded))
	require.NoError(t, err)
	require.NotNil(t, res.Shielding)
	assert.Equal(t, types.ShieldingSucceeded, res.Shielding.Status)
	assert.Equal(t, "opid-1", res.Shielding.OperationID)

	transparent, err := h.engine.SubmitSwap(context.Background(), h.request(t, "NEAR", "ZEC", "1", types.Transparent))
	require.NoError(t, err)
	assert.Equal(t, types.ShieldingNotRequested, transparent.Shielding.Status)
}

func TestTerminalStateIsFinal(t *testing.T) {
	relay := &fakeRelay{quoteFn: quoteFor("0.05"), publishFn: publishOK, statusFn: settleAfter(0)}
	h := newHarness(t, relay, options{wait: true})

	res, err := h.engine.SubmitSwap(context.Background(), h.request(t, "NEAR", "ZEC", "1", types.Transparent))
	require.NoError(t, err)
	require.Equal(t, types.StatusSettled, res.Status)

	s, ok := h.engine.lookup(res.ID)
	require.True(t, ok)
	log := logrus.NewEntry(h.engine.log)

	err = h.engine.transition(s, log, types.StateFailed, "late failure", nil)
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, types.StateSettled, terr.From)

	assert.Error(t, h.engine.fail(s, log, swaperr.New(swaperr.KindNetwork, "late", "boom")))
	h.refused = 2

	after, err := h.engine.Get(res.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSettled, after.Status)
	assert.Equal(t, 1, terminalCount(after))
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, canTransition(types.StateCreated, types.StateQuoteObtained))
	assert.False(t, canTransition(types.StateCreated, types.StateSubmitted))
	assert.False(t, canTransition(types.StateQuoteObtained, types.StateExpired))
	assert.False(t, canTransition(types.StateIntentSigned, types.StateExpired))
	assert.True(t, canTransition(types.StateSubmitted, types.StateExpired))
	for _, terminal := range []types.SwapState{types.StateSettled, types.StateFailed, types.StateExpired} {
		for _, to := range []types.SwapState{types.StateCreated, types.StateSubmitted, types.StateSettled, types.StateFailed} {
			assert.False(t, canTransition(terminal, to))
		}
	}
}

func TestGetUnknownSwap(t *testing.T) {
	h := newHarness(t, &fakeRelay{}, options{})
	_, err := h.engine.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, h.engine.Cancel("missing"), ErrNotFound)
}

func TestClosedEngineRejectsSwaps(t *testing.T) {
	relay := &fakeRelay{quoteFn: quoteFor("0.05"), publishFn: publishOK, statusFn: settleAfter(0)}
	h := newHarness(t, relay, options{})
	h.engine.Close()

	_, err := h.engine.SubmitSwap(context.Background(), h.request(t, "NEAR", "ZEC", "1", types.Transparent))
	assert.ErrorIs(t, err, ErrClosed)
}
