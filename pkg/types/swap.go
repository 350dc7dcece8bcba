package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SwapRequest represents a caller's desired conversion
type SwapRequest struct {
	Source  Asset           `json:"source"`
	Dest    Asset           `json:"dest"`
	Amount  decimal.Decimal `json:"amount"`
	Privacy PrivacyClass    `json:"privacy"`
	Memo    string          `json:"memo,omitempty"`
}

// Validate checks the request's own invariants. Asset support is checked by the engine
// against its registry.
func (r *SwapRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return fmt.Errorf("amount must be greater than 0")
	}
	if !r.Privacy.Valid() {
		return fmt.Errorf("privacy level must be 'transparent' or 'shielded', got %q", r.Privacy)
	}
	if r.Source.Symbol == "" {
		return fmt.Errorf("source asset is required")
	}
	if r.Dest.Symbol == "" {
		return fmt.Errorf("destination asset is required")
	}
	if r.Source.Symbol == r.Dest.Symbol {
		return fmt.Errorf("source and destination assets must differ")
	}
	return nil
}

// Quote is a solver's offer for a swap. A quote is consumed by at most one swap.
type Quote struct {
	ID           string          `json:"id"`
	SolverID     string          `json:"solver_id"`
	Source       Asset           `json:"source"`
	Dest         Asset           `json:"dest"`
	SourceAmount decimal.Decimal `json:"source_amount"`
	DestAmount   decimal.Decimal `json:"dest_amount"`
	Expiry       time.Time       `json:"expiry"`
}

// Expired reports whether the quote can no longer be accepted at now
func (q *Quote) Expired(now time.Time) bool {
	return !now.Before(q.Expiry)
}

// ShieldParams asks the settlement side to deliver into a shielded balance
type ShieldParams struct {
	Shielded   bool   `json:"shielded"`
	Memo       string `json:"memo,omitempty"`
	ViewingKey string `json:"viewing_key,omitempty"`
}

// Intent is the canonical description of a requested state transition
type Intent struct {
	Signer            string          `json:"signer_id"`
	VerifyingContract string          `json:"verifying_contract"`
	QuoteID           string          `json:"quote_id"`
	InAsset           Asset           `json:"in_asset"`
	InAmount          decimal.Decimal `json:"in_amount"`
	OutAsset          Asset           `json:"out_asset"`
	MinOut            decimal.Decimal `json:"min_out"`
	IssuedAt          time.Time       `json:"issued_at"`
	Deadline          time.Time       `json:"deadline"`
	Nonce             uint64          `json:"nonce"`
	Memo              string          `json:"memo,omitempty"`
	Shield            *ShieldParams   `json:"shield,omitempty"`

	// Payload is the canonical byte encoding that gets signed
	Payload []byte `json:"payload"`
}

// SignedIntent is an intent plus its signature. Never mutated after submission.
type SignedIntent struct {
	Intent    Intent `json:"intent"`
	Standard  string `json:"standard"`
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
}

// SwapStatus is the caller-facing lifecycle of a swap
type SwapStatus string

const (
	StatusPending SwapStatus = "pending"
	StatusSettled SwapStatus = "settled"
	StatusFailed  SwapStatus = "failed"
	StatusExpired SwapStatus = "expired"
)

// Terminal reports whether the status is final
func (s SwapStatus) Terminal() bool {
	return s == StatusSettled || s == StatusFailed || s == StatusExpired
}

// SwapState is the engine's internal state machine position
type SwapState string

const (
	StateCreated       SwapState = "created"
	StateQuoteObtained SwapState = "quote_obtained"
	StateIntentSigned  SwapState = "intent_signed"
	StateSubmitted     SwapState = "submitted"
	StateSettled       SwapState = "settled"
	StateFailed        SwapState = "failed"
	StateExpired       SwapState = "expired"
)

// Terminal reports whether the state is final
func (s SwapState) Terminal() bool {
	return s == StateSettled || s == StateFailed || s == StateExpired
}

// Status maps the state onto the caller-facing status
func (s SwapState) Status() SwapStatus {
	switch s {
	case StateSettled:
		return StatusSettled
	case StateFailed:
		return StatusFailed
	case StateExpired:
		return StatusExpired
	default:
		return StatusPending
	}
}

// Transition records one state change
type Transition struct {
	From   SwapState `json:"from"`
	To     SwapState `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// ShieldingStatus is the outcome of the post-settlement shielding step
type ShieldingStatus string

const (
	ShieldingNotRequested ShieldingStatus = "not_requested"
	ShieldingSkipped      ShieldingStatus = "skipped"
	ShieldingSucceeded    ShieldingStatus = "succeeded"
	ShieldingFailed       ShieldingStatus = "failed"
)

// ShieldingOutcome reports the follow-up shielding operation. It never changes the
// parent swap's terminal status.
type ShieldingOutcome struct {
	Status      ShieldingStatus `json:"status"`
	OperationID string          `json:"operation_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Attempts    int             `json:"attempts"`
	Reason      string          `json:"reason,omitempty"`
}

// SwapResult is the caller-facing record of a swap
type SwapResult struct {
	ID             string            `json:"id"`
	Status         SwapStatus        `json:"status"`
	State          SwapState         `json:"state"`
	Request        SwapRequest       `json:"request"`
	QuoteID        string            `json:"quote_id,omitempty"`
	SolverID       string            `json:"solver_id,omitempty"`
	Nonce          uint64            `json:"nonce,omitempty"`
	IntentHash     string            `json:"intent_hash,omitempty"`
	Deadline       *time.Time        `json:"deadline,omitempty"`
	SourceAmount   decimal.Decimal   `json:"source_amount"`
	QuotedOut      decimal.Decimal   `json:"quoted_out"`
	MinOut         decimal.Decimal   `json:"min_out"`
	RealizedOut    decimal.Decimal   `json:"realized_out"`
	SettlementTx   string            `json:"settlement_tx,omitempty"`
	AppliedPrivacy PrivacyClass      `json:"applied_privacy"`
	Reason         string            `json:"reason,omitempty"`
	ErrorKind      string            `json:"error_kind,omitempty"`
	Shielding      *ShieldingOutcome `json:"shielding,omitempty"`
	Transitions    []Transition      `json:"transitions"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to callers
func (r *SwapResult) Clone() *SwapResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Transitions = append([]Transition(nil), r.Transitions...)
	if r.Shielding != nil {
		s := *r.Shielding
		out.Shielding = &s
	}
	if r.Deadline != nil {
		d := *r.Deadline
		out.Deadline = &d
	}
	return &out
}
