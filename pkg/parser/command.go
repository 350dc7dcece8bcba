package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"zcash-near-intents/pkg/types"
)

var swapPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s+([A-Z0-9.]+)\s+TO\s+([A-Z0-9.]+)$`)

// SwapCommand is a parsed "<amount> <SRC> to <DST>" command
type SwapCommand struct {
	Amount      decimal.Decimal
	SourceToken string
	DestToken   string
}

// ParseSwapCommand parses a swap command
// Examples:
//   - "swap 1 NEAR to ZEC"
//   - "0.5 ZEC to USDC"
//   - "100 usdc to zec"
func ParseSwapCommand(command string) (*SwapCommand, error) {
	command = strings.TrimSpace(strings.ToUpper(command))
	command = strings.TrimPrefix(command, "SWAP ")
	command = strings.Join(strings.Fields(command), " ")

	matches := swapPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: 'swap <amount> <token> to <token>' (e.g., 'swap 1 NEAR to ZEC')")
	}

	amount, err := decimal.NewFromString(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", matches[1], err)
	}

	cmd := &SwapCommand{
		Amount:      amount,
		SourceToken: NormalizeTokenSymbol(matches[2]),
		DestToken:   NormalizeTokenSymbol(matches[3]),
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Validate checks that the command has all required fields
func (c *SwapCommand) Validate() error {
	if !c.Amount.IsPositive() {
		return fmt.Errorf("amount must be greater than 0")
	}
	if c.SourceToken == "" {
		return fmt.Errorf("source token is required")
	}
	if c.DestToken == "" {
		return fmt.Errorf("destination token is required")
	}
	if c.SourceToken == c.DestToken {
		return fmt.Errorf("source and destination tokens must differ")
	}
	return nil
}

// Request resolves the command against the registry. The source is always spent from the
// transparent class; privacy selects the destination class.
func (c *SwapCommand) Request(registry *types.Registry, privacy types.PrivacyClass, memo string) (types.SwapRequest, error) {
	src, err := registry.Asset(c.SourceToken, types.Transparent)
	if err != nil {
		return types.SwapRequest{}, err
	}
	dst, err := registry.Asset(c.DestToken, privacy)
	if err != nil {
		return types.SwapRequest{}, err
	}
	return types.SwapRequest{
		Source:  src,
		Dest:    dst,
		Amount:  c.Amount,
		Privacy: privacy,
		Memo:    memo,
	}, nil
}

// NormalizeTokenSymbol normalizes token symbols to standard format
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	aliases := map[string]string{
		"WNEAR":     "NEAR",
		"WRAP.NEAR": "NEAR",
		"ZCASH":     "ZEC",
		"USDC.E":    "USDC",
	}

	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}
	return symbol
}
