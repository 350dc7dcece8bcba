package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"zcash-near-intents/pkg/swaperr"
	"zcash-near-intents/pkg/types"
)

// DefaultRelayURL is the public solver relay endpoint
const DefaultRelayURL = "https://solver-relay-v2.chaindefuser.com/rpc"

// RelayStatus is the relay's view of a published intent
type RelayStatus string

const (
	RelayPending     RelayStatus = "PENDING"
	RelayBroadcasted RelayStatus = "TX_BROADCASTED"
	RelaySettled     RelayStatus = "SETTLED"
	RelayNotFound    RelayStatus = "NOT_FOUND_OR_NOT_VALID"
)

const (
	publishOK          = "OK"
	defaultQuoteTTL    = 30 * time.Second
	defaultQuoteWindow = 2 * time.Minute
)

// IntentStatus is the result of a status poll
type IntentStatus struct {
	IntentHash string      `json:"intent_hash"`
	Status     RelayStatus `json:"status"`
	TxHash     string      `json:"tx_hash,omitempty"`
	AmountOut  string      `json:"amount_out,omitempty"`
}

// SolverBusConfig holds relay client options
type SolverBusConfig struct {
	URL          string
	QuoteTimeout time.Duration
	// MinDeadline is forwarded as min_deadline_ms so solvers only quote for intents
	// that can still settle in the engine's settlement window.
	MinDeadline time.Duration
	HTTPClient  *http.Client
}

// SolverBus talks to the solver relay over JSON-RPC
type SolverBus struct {
	rpc          *rpc.Client
	registry     *types.Registry
	quoteTimeout time.Duration
	minDeadline  time.Duration
	log          *logrus.Logger
	now          func() time.Time
}

// NewSolverBus dials the relay. HTTP dialing is lazy, so no request is made here.
func NewSolverBus(ctx context.Context, cfg SolverBusConfig, registry *types.Registry, log *logrus.Logger) (*SolverBus, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultRelayURL
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 5 * time.Second
	}
	if cfg.MinDeadline <= 0 {
		cfg.MinDeadline = defaultQuoteWindow
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	opts := []rpc.ClientOption{}
	if cfg.HTTPClient != nil {
		opts = append(opts, rpc.WithHTTPClient(cfg.HTTPClient))
	}
	c, err := rpc.DialOptions(ctx, cfg.URL, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial solver relay %s", cfg.URL)
	}

	return &SolverBus{
		rpc:          c,
		registry:     registry,
		quoteTimeout: cfg.QuoteTimeout,
		minDeadline:  cfg.MinDeadline,
		log:          log,
		now:          time.Now,
	}, nil
}

// Close releases the underlying connection
func (s *SolverBus) Close() {
	s.rpc.Close()
}

type quoteParams struct {
	AssetIn       string `json:"defuse_asset_identifier_in"`
	AssetOut      string `json:"defuse_asset_identifier_out"`
	ExactAmountIn string `json:"exact_amount_in"`
	MinDeadlineMs int64  `json:"min_deadline_ms"`
}

type solverQuote struct {
	QuoteHash      string `json:"quote_hash"`
	SolverID       string `json:"solver_id,omitempty"`
	AssetIn        string `json:"defuse_asset_identifier_in"`
	AssetOut       string `json:"defuse_asset_identifier_out"`
	AmountIn       string `json:"amount_in"`
	AmountOut      string `json:"amount_out"`
	ExpirationTime string `json:"expiration_time"`
}

// GetQuote asks the relay for solver quotes and returns the one with the largest output
func (s *SolverBus) GetQuote(ctx context.Context, source, dest types.Asset, amount decimal.Decimal) (types.Quote, error) {
	const op = "relay.quote"

	if !amount.IsPositive() {
		return types.Quote{}, swaperr.New(swaperr.KindInvalidRequest, op, "amount must be greater than 0")
	}
	if !s.registry.Supports(source) {
		return types.Quote{}, swaperr.Errorf(swaperr.KindInvalidRequest, op, "unsupported source asset %s", source)
	}
	srcInfo, _ := s.registry.Lookup(source.Symbol)
	dstInfo, ok := s.registry.Lookup(dest.Symbol)
	if !ok || dstInfo.Chain != dest.Chain {
		return types.Quote{}, swaperr.Errorf(swaperr.KindInvalidRequest, op, "unsupported destination asset %s", dest)
	}

	units, err := s.registry.ToUnits(srcInfo.Symbol, amount)
	if err != nil {
		return types.Quote{}, swaperr.Wrap(swaperr.KindInvalidRequest, op, err)
	}

	params := quoteParams{
		AssetIn:       srcInfo.AssetID,
		AssetOut:      dstInfo.AssetID,
		ExactAmountIn: units,
		MinDeadlineMs: s.minDeadline.Milliseconds(),
	}

	callCtx, cancel := context.WithTimeout(ctx, s.quoteTimeout)
	defer cancel()

	var quotes []solverQuote
	if err := s.rpc.CallContext(callCtx, &quotes, "quote", params); err != nil {
		return types.Quote{}, classify(op, err, swaperr.KindQuoteUnavailable)
	}

	now := s.now()
	var (
		best    *solverQuote
		bestOut decimal.Decimal
	)
	for i := range quotes {
		q := &quotes[i]
		out, err := decimal.NewFromString(q.AmountOut)
		if err != nil || !out.IsPositive() {
			s.log.WithField("quote_hash", q.QuoteHash).Debug("Skipping quote with invalid amount_out")
			continue
		}
		if exp, ok := parseExpiry(q.ExpirationTime); ok && !now.Before(exp) {
			continue
		}
		if best == nil || out.GreaterThan(bestOut) {
			best, bestOut = q, out
		}
	}
	if best == nil {
		return types.Quote{}, swaperr.Errorf(swaperr.KindQuoteUnavailable, op,
			"no solver quote for %s -> %s", srcInfo.Symbol, dstInfo.Symbol)
	}

	destAmount, err := s.registry.FromUnits(dstInfo.Symbol, best.AmountOut)
	if err != nil {
		return types.Quote{}, swaperr.Wrap(swaperr.KindQuoteUnavailable, op, err)
	}
	expiry, ok := parseExpiry(best.ExpirationTime)
	if !ok {
		expiry = now.Add(defaultQuoteTTL)
	}

	s.log.WithFields(logrus.Fields{
		"quote_hash": best.QuoteHash,
		"quotes":     len(quotes),
		"amount_out": destAmount.String(),
	}).Debug("Selected solver quote")

	return types.Quote{
		ID:           best.QuoteHash,
		SolverID:     best.SolverID,
		Source:       source,
		Dest:         dest,
		SourceAmount: amount,
		DestAmount:   destAmount,
		Expiry:       expiry,
	}, nil
}

type signedData struct {
	Standard  string `json:"standard"`
	Payload   string `json:"payload"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

type publishParams struct {
	QuoteHashes  []string            `json:"quote_hashes"`
	SignedData   signedData          `json:"signed_data"`
	ShieldParams *types.ShieldParams `json:"shield_params,omitempty"`
}

type publishResult struct {
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	IntentHash string `json:"intent_hash"`
}

// Publish submits a signed intent. Resending the same signed intent is idempotent on the
// relay side since the nonce is part of the signed payload.
func (s *SolverBus) Publish(ctx context.Context, signed *types.SignedIntent) (string, error) {
	const op = "relay.publish_intent"

	if signed == nil || len(signed.Intent.Payload) == 0 {
		return "", swaperr.New(swaperr.KindInvalidRequest, op, "signed intent is empty")
	}

	params := publishParams{
		QuoteHashes: []string{signed.Intent.QuoteID},
		SignedData: signedData{
			Standard:  signed.Standard,
			Payload:   string(signed.Intent.Payload),
			PublicKey: signed.PublicKey,
			Signature: signed.Signature,
		},
		ShieldParams: signed.Intent.Shield,
	}

	var res publishResult
	if err := s.rpc.CallContext(ctx, &res, "publish_intent", params); err != nil {
		return "", classify(op, err, swaperr.KindSubmissionRejected)
	}
	if res.Status != publishOK {
		reason := res.Reason
		if reason == "" {
			reason = "relay returned status " + res.Status
		}
		return "", swaperr.New(swaperr.KindSubmissionRejected, op, reason)
	}
	if res.IntentHash == "" {
		return "", swaperr.New(swaperr.KindSubmissionRejected, op, "relay accepted intent without an intent hash")
	}
	return res.IntentHash, nil
}

type statusParams struct {
	IntentHash string `json:"intent_hash"`
}

type statusResult struct {
	IntentHash string `json:"intent_hash"`
	Status     string `json:"status"`
	Data       *struct {
		Hash string `json:"hash"`
	} `json:"data,omitempty"`
	AmountOut string `json:"amount_out,omitempty"`
}

// Status polls the relay for the settlement state of an intent
func (s *SolverBus) Status(ctx context.Context, intentHash string) (*IntentStatus, error) {
	const op = "relay.get_status"

	var res statusResult
	if err := s.rpc.CallContext(ctx, &res, "get_status", statusParams{IntentHash: intentHash}); err != nil {
		return nil, classify(op, err, swaperr.KindSubmissionRejected)
	}

	st := &IntentStatus{
		IntentHash: intentHash,
		Status:     RelayStatus(strings.ToUpper(res.Status)),
		AmountOut:  res.AmountOut,
	}
	if res.Data != nil {
		st.TxHash = res.Data.Hash
	}
	return st, nil
}

// classify maps a transport or JSON-RPC failure onto an error kind. Errors reported by the
// relay itself get the supplied kind; everything else is a network failure.
func classify(op string, err error, relayKind swaperr.Kind) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return swaperr.Wrap(relayKind, op, errors.Wrapf(err, "relay error %d", rpcErr.ErrorCode()))
	}
	var jsonErr *json.UnmarshalTypeError
	if errors.As(err, &jsonErr) {
		return swaperr.Wrap(relayKind, op, errors.Wrap(err, "unexpected relay response"))
	}
	return swaperr.Wrap(swaperr.KindNetwork, op, err)
}

func parseExpiry(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
