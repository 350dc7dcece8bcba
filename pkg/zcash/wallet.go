package zcash

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"zcash-near-intents/pkg/swaperr"
	"zcash-near-intents/pkg/types"
)

// DefaultFee is the conventional ZIP-317 minimum for a single-output shielding transaction
var DefaultFee = decimal.RequireFromString("0.0001")

// Runner executes a wallet CLI command and returns its combined output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Config holds the zcash-cli settings
type Config struct {
	CLIPath         string
	CLIArgs         []string
	ShieldedAddress string
	Fee             decimal.Decimal
	PollInterval    time.Duration
}

// Wallet drives a local zcashd wallet through zcash-cli. It reads balances per privacy
// class and moves transparent funds into the shielded pool.
type Wallet struct {
	config Config
	run    Runner
	log    *logrus.Logger
}

// NewWallet creates a wallet backed by the zcash-cli binary
func NewWallet(cfg Config, log *logrus.Logger) *Wallet {
	return NewWalletWithRunner(cfg, execRunner{}, log)
}

// NewWalletWithRunner creates a wallet with a custom command runner
func NewWalletWithRunner(cfg Config, run Runner, log *logrus.Logger) *Wallet {
	if cfg.CLIPath == "" {
		cfg.CLIPath = "zcash-cli"
	}
	if cfg.Fee.IsZero() {
		cfg.Fee = DefaultFee
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Wallet{config: cfg, run: run, log: log}
}

// exec runs a zcash-cli method and returns its trimmed output
func (w *Wallet) exec(ctx context.Context, method string, params ...string) ([]byte, error) {
	args := append(append([]string{}, w.config.CLIArgs...), method)
	args = append(args, params...)

	output, err := w.run.Run(ctx, w.config.CLIPath, args...)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindNetwork, "zcash."+method,
			errors.Wrapf(err, "zcash-cli %s failed, output: %s", method, strings.TrimSpace(string(output))))
	}
	return []byte(strings.TrimSpace(string(output))), nil
}

// Validate checks that zcash-cli is available and the node answers
func (w *Wallet) Validate(ctx context.Context) error {
	output, err := w.exec(ctx, "getblockchaininfo")
	if err != nil {
		return err
	}

	var info map[string]interface{}
	if err := json.Unmarshal(output, &info); err != nil {
		return swaperr.Wrap(swaperr.KindNetwork, "zcash.getblockchaininfo", errors.Wrap(err, "invalid zcash-cli response"))
	}
	return nil
}

// Balances returns the wallet's transparent and shielded totals
func (w *Wallet) Balances(ctx context.Context) (transparent, shielded decimal.Decimal, err error) {
	output, err := w.exec(ctx, "z_gettotalbalance")
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	var totals struct {
		Transparent decimal.Decimal `json:"transparent"`
		Private     decimal.Decimal `json:"private"`
	}
	if err := json.Unmarshal(output, &totals); err != nil {
		return decimal.Zero, decimal.Zero, swaperr.Wrap(swaperr.KindNetwork, "zcash.z_gettotalbalance",
			errors.Wrap(err, "failed to parse balance"))
	}
	return totals.Transparent, totals.Private, nil
}

// Balance implements the chain query for ZEC. The wallet holds a single account's funds,
// so accountID is not used.
func (w *Wallet) Balance(ctx context.Context, accountID string, asset types.Asset) (decimal.Decimal, error) {
	if asset.Chain != types.ChainZEC {
		return decimal.Zero, swaperr.Errorf(swaperr.KindInvalidRequest, "zcash.balance", "asset %s is not on Zcash", asset)
	}

	transparent, shielded, err := w.Balances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if asset.Privacy == types.Shielded {
		return shielded, nil
	}
	return transparent, nil
}

type recipient struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
	Memo    string          `json:"memo,omitempty"`
}

// Shield starts moving amount from transparent funds to the configured shielded address.
// It returns the async operation id.
func (w *Wallet) Shield(ctx context.Context, amount decimal.Decimal, memo string) (string, error) {
	const op = "zcash.z_sendmany"

	if w.config.ShieldedAddress == "" {
		return "", swaperr.New(swaperr.KindInvalidRequest, op, "no shielded address configured")
	}
	if !amount.IsPositive() {
		return "", swaperr.New(swaperr.KindInvalidRequest, op, "amount must be greater than 0")
	}

	to := recipient{Address: w.config.ShieldedAddress, Amount: amount.Truncate(8)}
	if memo != "" {
		to.Memo = hex.EncodeToString([]byte(memo))
	}
	amounts, err := json.Marshal([]recipient{to})
	if err != nil {
		return "", swaperr.Wrap(swaperr.KindInvalidRequest, op, err)
	}

	output, err := w.exec(ctx, "z_sendmany", "ANY_TADDR", string(amounts), "1", w.config.Fee.String(), "AllowRevealedSenders")
	if err != nil {
		return "", err
	}

	opid := string(output)
	if !strings.HasPrefix(opid, "opid-") {
		return "", swaperr.Errorf(swaperr.KindSubmissionRejected, op, "unexpected operation id %q", opid)
	}
	w.log.WithFields(logrus.Fields{"operation_id": opid, "amount": to.Amount.String()}).Info("Shielding operation started")
	return opid, nil
}

type operationStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result *struct {
		TxID string `json:"txid"`
	} `json:"result,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// WaitOperation polls an async operation until it finishes or ctx is done.
// It returns the transaction id on success.
func (w *Wallet) WaitOperation(ctx context.Context, opid string) (string, error) {
	const op = "zcash.z_getoperationstatus"

	ids, _ := json.Marshal([]string{opid})
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		output, err := w.exec(ctx, "z_getoperationstatus", string(ids))
		if err != nil {
			return "", err
		}

		var statuses []operationStatus
		if err := json.Unmarshal(output, &statuses); err != nil {
			return "", swaperr.Wrap(swaperr.KindNetwork, op, errors.Wrap(err, "failed to parse operation status"))
		}
		if len(statuses) == 0 {
			return "", swaperr.Errorf(swaperr.KindSubmissionRejected, op, "operation %s not found", opid)
		}

		st := statuses[0]
		switch st.Status {
		case "success":
			if st.Result == nil {
				return "", nil
			}
			return st.Result.TxID, nil
		case "failed", "cancelled":
			msg := st.Status
			if st.Error != nil {
				msg = fmt.Sprintf("%s: %s", st.Status, st.Error.Message)
			}
			return "", swaperr.New(swaperr.KindSubmissionRejected, op, msg)
		}

		select {
		case <-ctx.Done():
			return "", swaperr.Wrap(swaperr.KindExpired, op, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ShieldResidual shields the wallet's entire transparent balance less the fee. That
// balance is not scoped to one swap: transparent funds from any other source are swept
// into the shielded address as well. A zero amount with a nil error means there was
// nothing to shield.
func (w *Wallet) ShieldResidual(ctx context.Context, memo string) (decimal.Decimal, string, error) {
	transparent, _, err := w.Balances(ctx)
	if err != nil {
		return decimal.Zero, "", err
	}

	amount := transparent.Sub(w.config.Fee)
	if !amount.IsPositive() {
		return decimal.Zero, "", nil
	}

	opid, err := w.Shield(ctx, amount, memo)
	if err != nil {
		return decimal.Zero, "", err
	}
	if _, err := w.WaitOperation(ctx, opid); err != nil {
		return amount, opid, err
	}
	return amount, opid, nil
}
