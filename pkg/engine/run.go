package engine

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"zcash-near-intents/pkg/client"
	"zcash-near-intents/pkg/intent"
	"zcash-near-intents/pkg/swaperr"
	"zcash-near-intents/pkg/types"
)

const reasonCancelled = "cancelled"

// run drives one swap from Created to a terminal state
func (e *Engine) run(ctx context.Context, s *swap) {
	snap := s.snapshot()
	req := snap.Request
	log := e.log.WithField("swap_id", snap.ID)

	quote, err := e.obtainQuote(ctx, s, log, req)
	if err != nil {
		e.fail(s, log, err)
		return
	}
	if !e.quotes.consume(quote.ID, e.now()) {
		e.fail(s, log, swaperr.Errorf(swaperr.KindInvalidRequest, "engine.quote", "quote %s has already been used", quote.ID))
		return
	}
	if err := e.transition(s, log, types.StateQuoteObtained, "", func(r *types.SwapResult) {
		r.QuoteID = quote.ID
		r.SolverID = quote.SolverID
		r.QuotedOut = quote.DestAmount
	}); err != nil {
		return
	}
	if s.cancelled.Load() {
		e.fail(s, log, nil)
		return
	}

	signed, err := e.signIntent(ctx, req, quote)
	if err != nil {
		e.fail(s, log, err)
		return
	}
	deadline := signed.Intent.Deadline
	if err := e.transition(s, log, types.StateIntentSigned, "", func(r *types.SwapResult) {
		r.Nonce = signed.Intent.Nonce
		r.MinOut = signed.Intent.MinOut
		r.Deadline = &deadline
	}); err != nil {
		return
	}

	// From here on the intent may reach the relay, so cancellation is refused
	s.mu.Lock()
	if s.cancelled.Load() {
		s.mu.Unlock()
		e.fail(s, log, nil)
		return
	}
	s.submitting = true
	s.mu.Unlock()

	hash, err := e.publish(e.ctx, log, signed)
	if err != nil {
		e.fail(s, log, err)
		return
	}
	if err := e.transition(s, log, types.StateSubmitted, "", func(r *types.SwapResult) {
		r.IntentHash = hash
	}); err != nil {
		return
	}

	status, err := e.awaitSettlement(e.ctx, log, hash, deadline)
	if err != nil {
		e.fail(s, log, err)
		return
	}

	realized := quote.DestAmount
	if status.AmountOut != "" {
		if v, err := e.deps.Registry.FromUnits(req.Dest.Symbol, status.AmountOut); err == nil && v.IsPositive() {
			realized = v
		}
	}
	if err := e.transition(s, log, types.StateSettled, "settled", func(r *types.SwapResult) {
		r.SettlementTx = status.TxHash
		r.RealizedOut = realized
	}); err != nil {
		return
	}

	outcome := e.shieldFollowUp(e.ctx, log, req, signed.Intent.Memo)
	s.mu.Lock()
	s.result.Shielding = outcome
	s.result.UpdatedAt = e.now()
	final := s.result.Clone()
	s.mu.Unlock()
	e.record(final)

	if e.deps.Portfolio != nil {
		e.deps.Portfolio.ApplySwapResult(e.ctx, final)
	}
}

func (e *Engine) obtainQuote(ctx context.Context, s *swap, log *logrus.Entry, req types.SwapRequest) (types.Quote, error) {
	var quote types.Quote
	err := e.retry(ctx, log, "quote", e.cfg.MaxQuoteRetries, func() error {
		if s.cancelled.Load() {
			return swaperr.New(swaperr.KindCancelled, "engine.quote", reasonCancelled)
		}

		qctx, cancel := context.WithTimeout(ctx, e.cfg.QuoteTimeout)
		defer cancel()

		q, err := e.deps.Relay.GetQuote(qctx, req.Source, req.Dest, req.Amount)
		if err != nil {
			return err
		}
		if q.Expired(e.now()) {
			return swaperr.Errorf(swaperr.KindQuoteUnavailable, "engine.quote", "quote %s expired before acceptance", q.ID)
		}
		quote = q
		return nil
	})
	return quote, err
}

func (e *Engine) signIntent(ctx context.Context, req types.SwapRequest, quote types.Quote) (*types.SignedIntent, error) {
	signer := e.deps.Signer.AccountID()

	nonce, err := e.deps.Nonces.Next(ctx, signer)
	if err != nil {
		return nil, err
	}

	in, err := e.deps.Builder.Build(req, quote, signer, nonce, e.now())
	if err != nil {
		return nil, err
	}

	var signed *types.SignedIntent
	err = e.deps.Signer.Use(func(key solana.PrivateKey) error {
		var serr error
		signed, serr = intent.Sign(in, key)
		return serr
	})
	if err != nil {
		return nil, err
	}
	if err := intent.Verify(signed); err != nil {
		return nil, err
	}
	return signed, nil
}

// publish hands the signed intent to the relay. Retries resend the identical signed
// bytes, so the relay sees a duplicate rather than a second intent.
func (e *Engine) publish(ctx context.Context, log *logrus.Entry, signed *types.SignedIntent) (string, error) {
	var hash string
	err := e.retry(ctx, log, "publish", e.cfg.MaxSubmitRetries, func() error {
		if !e.now().Before(signed.Intent.Deadline) {
			return swaperr.New(swaperr.KindExpired, "engine.publish", "intent deadline passed before the relay accepted it")
		}

		pctx, cancel := context.WithTimeout(ctx, e.cfg.SettlementTimeout)
		defer cancel()

		h, err := e.deps.Relay.Publish(pctx, signed)
		if err != nil {
			return err
		}
		hash = h
		return nil
	})
	return hash, err
}

// awaitSettlement polls the relay until the intent settles, is rejected or its
// deadline passes
func (e *Engine) awaitSettlement(ctx context.Context, log *logrus.Entry, hash string, deadline time.Time) (*client.IntentStatus, error) {
	const op = "engine.settlement"

	dctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		pctx, pcancel := context.WithTimeout(dctx, e.cfg.SettlementTimeout)
		st, err := e.deps.Relay.Status(pctx, hash)
		pcancel()

		switch {
		case err != nil:
			if dctx.Err() == nil {
				log.WithError(err).Warn("Status poll failed")
			}
		case st.Status == client.RelaySettled:
			return st, nil
		case st.Status == client.RelayNotFound:
			return nil, swaperr.New(swaperr.KindSubmissionRejected, op, "relay reports the intent as not found or not valid")
		default:
			log.WithFields(logrus.Fields{"intent_hash": hash, "relay_status": st.Status}).Debug("Awaiting settlement")
		}

		select {
		case <-dctx.Done():
			if ctx.Err() != nil {
				return nil, swaperr.Wrap(swaperr.KindCancelled, op, errors.WithMessage(ctx.Err(), "engine closed before settlement was confirmed"))
			}
			return nil, swaperr.Errorf(swaperr.KindExpired, op, "no settlement confirmation before deadline %s",
				deadline.UTC().Format(time.RFC3339))
		case <-ticker.C:
		}
	}
}

// shieldFollowUp moves transparent residual of a shielded swap's destination into the
// shielded pool. Its outcome never changes the swap's terminal status.
func (e *Engine) shieldFollowUp(ctx context.Context, log *logrus.Entry, req types.SwapRequest, memo string) *types.ShieldingOutcome {
	if req.Privacy != types.Shielded || !req.Dest.Chain.SupportsShielded() || !e.cfg.AutoShield {
		return &types.ShieldingOutcome{Status: types.ShieldingNotRequested}
	}
	if e.deps.Shielder == nil {
		return &types.ShieldingOutcome{Status: types.ShieldingSkipped, Reason: "no zcash wallet configured"}
	}

	sctx, cancel := context.WithTimeout(ctx, e.deps.Builder.SettlementWindow())
	defer cancel()

	outcome := &types.ShieldingOutcome{}
	err := e.retry(sctx, log, "shield", e.cfg.ShieldRetries, func() error {
		outcome.Attempts++
		amount, opid, err := e.deps.Shielder.ShieldResidual(sctx, memo)
		outcome.Amount = amount
		outcome.OperationID = opid
		return err
	})

	switch {
	case err != nil:
		outcome.Status = types.ShieldingFailed
		outcome.Reason = err.Error()
		log.WithError(err).Warn("Shielding follow-up failed")
	case !outcome.Amount.IsPositive():
		outcome.Status = types.ShieldingSkipped
		outcome.Reason = "no transparent residual"
	default:
		outcome.Status = types.ShieldingSucceeded
		log.WithFields(logrus.Fields{"operation_id": outcome.OperationID, "amount": outcome.Amount.String()}).Info("Shielded transparent residual")
	}
	return outcome
}

// transition moves the swap to state to. Moves out of a terminal state, or moves the
// table does not allow, are refused.
func (e *Engine) transition(s *swap, log *logrus.Entry, to types.SwapState, reason string, mutate func(r *types.SwapResult)) error {
	s.mu.Lock()
	from := s.result.State
	if !canTransition(from, to) {
		s.mu.Unlock()
		err := &TransitionError{From: from, To: to}
		e.refused.Add(1)
		log.WithError(err).Error("Refused state transition")
		return err
	}

	now := e.now()
	if mutate != nil {
		mutate(s.result)
	}
	s.result.State = to
	s.result.Status = to.Status()
	s.result.UpdatedAt = now
	s.result.Transitions = append(s.result.Transitions, types.Transition{From: from, To: to, At: now, Reason: reason})
	if to.Terminal() {
		s.result.Reason = reason
	}
	snap := s.result.Clone()
	s.mu.Unlock()

	e.record(snap)
	log.WithFields(logrus.Fields{"from": from, "state": to}).Info("Swap state changed")
	return nil
}

// fail ends the swap. A nil err, or any error on a cancelled swap, ends it with reason
// "cancelled". Expired errors end it Expired where the state machine allows, otherwise
// Failed with the Expired kind. The returned error is the refused transition, if any.
func (e *Engine) fail(s *swap, log *logrus.Entry, err error) error {
	kind := swaperr.KindOf(err)
	reason := reasonCancelled
	if s.cancelled.Load() || err == nil {
		kind = swaperr.KindCancelled
	} else {
		reason = err.Error()
	}

	s.mu.Lock()
	from := s.result.State
	s.mu.Unlock()

	to := types.StateFailed
	if kind == swaperr.KindExpired && canTransition(from, types.StateExpired) {
		to = types.StateExpired
	}

	return e.transition(s, log, to, reason, func(r *types.SwapResult) {
		r.ErrorKind = string(kind)
	})
}
