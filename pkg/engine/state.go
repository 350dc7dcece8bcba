package engine

import (
	"fmt"

	"zcash-near-intents/pkg/types"
)

// transitions lists the legal moves out of each non-terminal state
var transitions = map[types.SwapState][]types.SwapState{
	types.StateCreated:       {types.StateQuoteObtained, types.StateFailed},
	types.StateQuoteObtained: {types.StateIntentSigned, types.StateFailed},
	types.StateIntentSigned:  {types.StateSubmitted, types.StateFailed},
	types.StateSubmitted:     {types.StateSettled, types.StateFailed, types.StateExpired},
}

// canTransition reports whether from -> to is allowed
func canTransition(from, to types.SwapState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError is returned for a move the state machine does not allow
type TransitionError struct {
	From types.SwapState
	To   types.SwapState
}

func (e *TransitionError) Error() string {
	if e.From.Terminal() {
		return fmt.Sprintf("swap is already %s, cannot move to %s", e.From, e.To)
	}
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

// cancellable reports whether a swap in state s can still be cancelled
func cancellable(s types.SwapState) bool {
	return s == types.StateCreated || s == types.StateQuoteObtained || s == types.StateIntentSigned
}
