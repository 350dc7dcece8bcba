package intent

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"zcash-near-intents/pkg/swaperr"
	"zcash-near-intents/pkg/types"
)

const (
	// VerifyingContract is the NEAR contract that executes signed intents
	VerifyingContract = "intents.near"

	// DefaultSlippage is used when the builder is constructed with a zero tolerance
	DefaultSlippage = "0.01"

	// DefaultSettlementWindow matches the relay's two minute minimum deadline
	DefaultSettlementWindow = 2 * time.Minute

	deadlineLayout = "2006-01-02T15:04:05.000Z"
)

// BuilderConfig holds the options fixed at construction
type BuilderConfig struct {
	Slippage         decimal.Decimal
	SettlementWindow time.Duration
	IncludeMemo      bool
	ViewingKey       string
}

// Builder turns a request and an accepted quote into a canonical intent.
// Build is a pure function of its arguments and the construction options.
type Builder struct {
	registry *types.Registry
	cfg      BuilderConfig
}

// NewBuilder validates the options and creates a builder
func NewBuilder(registry *types.Registry, cfg BuilderConfig) (*Builder, error) {
	if registry == nil {
		return nil, fmt.Errorf("asset registry is required")
	}
	if cfg.Slippage.IsZero() {
		cfg.Slippage = decimal.RequireFromString(DefaultSlippage)
	}
	if cfg.Slippage.IsNegative() || cfg.Slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("slippage tolerance must be in [0, 1), got %s", cfg.Slippage)
	}
	if cfg.SettlementWindow <= 0 {
		cfg.SettlementWindow = DefaultSettlementWindow
	}
	return &Builder{registry: registry, cfg: cfg}, nil
}

// Slippage returns the configured tolerance
func (b *Builder) Slippage() decimal.Decimal {
	return b.cfg.Slippage
}

// SettlementWindow returns the time between construction and deadline
func (b *Builder) SettlementWindow() time.Duration {
	return b.cfg.SettlementWindow
}

// MinOut applies the slippage tolerance to a quoted output, truncated to the asset's precision
func (b *Builder) MinOut(symbol string, quoted decimal.Decimal) decimal.Decimal {
	min := quoted.Mul(decimal.NewFromInt(1).Sub(b.cfg.Slippage))
	return b.registry.Truncate(symbol, min)
}

type tokenDiff struct {
	Intent string            `json:"intent"`
	Diff   map[string]string `json:"diff"`
	Memo   string            `json:"memo,omitempty"`
}

type payload struct {
	SignerID          string      `json:"signer_id"`
	VerifyingContract string      `json:"verifying_contract"`
	Deadline          string      `json:"deadline"`
	Nonce             string      `json:"nonce"`
	Intents           []tokenDiff `json:"intents"`
}

// Build constructs the intent for req against quote, signed by signer with nonce.
// The deadline is issuedAt plus the settlement window.
func (b *Builder) Build(req types.SwapRequest, quote types.Quote, signer string, nonce uint64, issuedAt time.Time) (types.Intent, error) {
	const op = "intent.build"

	if err := req.Validate(); err != nil {
		return types.Intent{}, swaperr.Wrap(swaperr.KindInvalidRequest, op, err)
	}
	if signer == "" {
		return types.Intent{}, swaperr.New(swaperr.KindInvalidRequest, op, "signer account is required")
	}

	srcInfo, ok := b.registry.Lookup(req.Source.Symbol)
	if !ok {
		return types.Intent{}, swaperr.Errorf(swaperr.KindInvalidRequest, op, "unsupported source asset %s", req.Source.Symbol)
	}
	dstInfo, ok := b.registry.Lookup(req.Dest.Symbol)
	if !ok {
		return types.Intent{}, swaperr.Errorf(swaperr.KindInvalidRequest, op, "unsupported destination asset %s", req.Dest.Symbol)
	}
	if req.Privacy == types.Shielded && !dstInfo.Chain.SupportsShielded() {
		return types.Intent{}, swaperr.Errorf(swaperr.KindInvalidRequest, op,
			"privacy level %s is not supported on %s", req.Privacy, dstInfo.Chain)
	}
	if quote.Source.Symbol != srcInfo.Symbol || quote.Dest.Symbol != dstInfo.Symbol {
		return types.Intent{}, swaperr.Errorf(swaperr.KindInvalidRequest, op,
			"quote %s is for %s -> %s, request is %s -> %s",
			quote.ID, quote.Source.Symbol, quote.Dest.Symbol, srcInfo.Symbol, dstInfo.Symbol)
	}
	if !quote.SourceAmount.Equal(req.Amount) {
		return types.Intent{}, swaperr.Errorf(swaperr.KindInvalidRequest, op,
			"quote %s covers %s %s, request is %s", quote.ID, quote.SourceAmount, srcInfo.Symbol, req.Amount)
	}

	minOut := b.MinOut(dstInfo.Symbol, quote.DestAmount)
	if !minOut.IsPositive() {
		return types.Intent{}, swaperr.Errorf(swaperr.KindInvalidRequest, op, "minimum output rounds to zero for quote %s", quote.ID)
	}

	inUnits, err := b.registry.ToUnits(srcInfo.Symbol, req.Amount)
	if err != nil {
		return types.Intent{}, swaperr.Wrap(swaperr.KindInvalidRequest, op, err)
	}
	outUnits, err := b.registry.ToUnits(dstInfo.Symbol, minOut)
	if err != nil {
		return types.Intent{}, swaperr.Wrap(swaperr.KindInvalidRequest, op, err)
	}

	memo := b.memo(req, srcInfo, dstInfo)
	deadline := issuedAt.Add(b.cfg.SettlementWindow)

	p := payload{
		SignerID:          signer,
		VerifyingContract: VerifyingContract,
		Deadline:          deadline.UTC().Format(deadlineLayout),
		Nonce:             EncodeNonce(signer, nonce),
		Intents: []tokenDiff{{
			Intent: "token_diff",
			Diff: map[string]string{
				srcInfo.AssetID: "-" + inUnits,
				dstInfo.AssetID: outUnits,
			},
			Memo: memo,
		}},
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return types.Intent{}, swaperr.Wrap(swaperr.KindInvalidRequest, op, err)
	}

	in := types.Intent{
		Signer:            signer,
		VerifyingContract: VerifyingContract,
		QuoteID:           quote.ID,
		InAsset:           types.Asset{Symbol: srcInfo.Symbol, Chain: srcInfo.Chain, Privacy: req.Source.Privacy},
		InAmount:          req.Amount,
		OutAsset:          types.Asset{Symbol: dstInfo.Symbol, Chain: dstInfo.Chain, Privacy: req.Privacy},
		MinOut:            minOut,
		IssuedAt:          issuedAt,
		Deadline:          deadline,
		Nonce:             nonce,
		Memo:              memo,
		Payload:           encoded,
	}

	if req.Privacy == types.Shielded {
		in.Shield = &types.ShieldParams{
			Shielded:   true,
			Memo:       memo,
			ViewingKey: b.cfg.ViewingKey,
		}
	}

	return in, nil
}

func (b *Builder) memo(req types.SwapRequest, src, dst types.AssetInfo) string {
	if !b.cfg.IncludeMemo {
		return ""
	}
	if req.Memo != "" {
		return req.Memo
	}
	if req.Privacy == types.Shielded && dst.Chain.SupportsShielded() {
		return fmt.Sprintf("Swap %s to %s", src.Symbol, dst.Symbol)
	}
	return ""
}

// EncodeNonce renders the 32-byte intent nonce: a 24-byte prefix derived from the signer
// followed by the big-endian counter.
func EncodeNonce(signer string, nonce uint64) string {
	sum := sha256.Sum256([]byte(signer))
	var buf [32]byte
	copy(buf[:24], sum[:24])
	binary.BigEndian.PutUint64(buf[24:], nonce)
	return base64.StdEncoding.EncodeToString(buf[:])
}
