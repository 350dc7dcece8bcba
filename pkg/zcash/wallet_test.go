package zcash

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zcash-near-intents/pkg/swaperr"
	"zcash-near-intents/pkg/types"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   []call
	respond func(method string, args []string) (string, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name: name, args: args})
	f.mu.Unlock()

	// skip the base args to find the method
	method, rest := "", []string(nil)
	for i, a := range args {
		if !strings.HasPrefix(a, "-") {
			method, rest = a, args[i+1:]
			break
		}
	}
	out, err := f.respond(method, rest)
	return []byte(out), err
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestBalances(t *testing.T) {
	run := &fakeRunner{respond: func(method string, _ []string) (string, error) {
		require.Equal(t, "z_gettotalbalance", method)
		return `{"transparent": "1.25", "private": "0.5", "total": "1.75"}` + "\n", nil
	}}
	w := NewWalletWithRunner(Config{CLIArgs: []string{"-testnet"}}, run, quietLogger())

	tr, sh, err := w.Balances(context.Background())
	require.NoError(t, err)
	assert.True(t, tr.Equal(decimal.RequireFromString("1.25")))
	assert.True(t, sh.Equal(decimal.RequireFromString("0.5")))

	bal, err := w.Balance(context.Background(), "", types.Asset{Symbol: "ZEC", Chain: types.ChainZEC, Privacy: types.Shielded})
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("0.5")))

	require.NotEmpty(t, run.calls)
	assert.Equal(t, "zcash-cli", run.calls[0].name)
	assert.Equal(t, []string{"-testnet", "z_gettotalbalance"}, run.calls[0].args)
	for _, c := range run.calls {
		assert.Equal(t, "-testnet", c.args[0], "base args must lead every call")
	}

	_, err = w.Balance(context.Background(), "", types.Asset{Symbol: "NEAR", Chain: types.ChainNEAR, Privacy: types.Transparent})
	assert.True(t, swaperr.Is(err, swaperr.KindInvalidRequest))
}

func TestCLIFailureIsNetworkError(t *testing.T) {
	run := &fakeRunner{respond: func(string, []string) (string, error) {
		return "error: couldn't connect to server", fmt.Errorf("exit status 1")
	}}
	w := NewWalletWithRunner(Config{}, run, quietLogger())

	_, _, err := w.Balances(context.Background())
	require.Error(t, err)
	assert.True(t, swaperr.Is(err, swaperr.KindNetwork))
	assert.Contains(t, err.Error(), "couldn't connect")
}

func TestShieldResidual(t *testing.T) {
	var sent []recipient
	polls := 0
	run := &fakeRunner{respond: func(method string, args []string) (string, error) {
		switch method {
		case "z_gettotalbalance":
			return `{"transparent": "0.3", "private": "0.0"}`, nil
		case "z_sendmany":
			assert.Equal(t, "ANY_TADDR", args[0])
			require.NoError(t, json.Unmarshal([]byte(args[1]), &sent))
			assert.Equal(t, "AllowRevealedSenders", args[4])
			return "opid-1234", nil
		case "z_getoperationstatus":
			polls++
			if polls == 1 {
				return `[{"id": "opid-1234", "status": "executing"}]`, nil
			}
			return `[{"id": "opid-1234", "status": "success", "result": {"txid": "abcd"}}]`, nil
		}
		return "", fmt.Errorf("unexpected method %s", method)
	}}
	w := NewWalletWithRunner(Config{ShieldedAddress: "zs1test", PollInterval: time.Millisecond}, run, quietLogger())

	amount, opid, err := w.ShieldResidual(context.Background(), "Swap NEAR to ZEC")
	require.NoError(t, err)
	assert.Equal(t, "opid-1234", opid)
	assert.True(t, amount.Equal(decimal.RequireFromString("0.2999")), "got %s", amount)
	assert.Equal(t, 2, polls)

	require.Len(t, sent, 1)
	assert.Equal(t, "zs1test", sent[0].Address)
	assert.Equal(t, hex.EncodeToString([]byte("Swap NEAR to ZEC")), sent[0].Memo)
}

func TestShieldResidualNothingToShield(t *testing.T) {
	run := &fakeRunner{respond: func(method string, _ []string) (string, error) {
		require.Equal(t, "z_gettotalbalance", method)
		return `{"transparent": "0.00005", "private": "1.0"}`, nil
	}}
	w := NewWalletWithRunner(Config{ShieldedAddress: "zs1test"}, run, quietLogger())

	amount, opid, err := w.ShieldResidual(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, amount.IsZero())
	assert.Empty(t, opid)
}

func TestWaitOperationFailed(t *testing.T) {
	run := &fakeRunner{respond: func(string, []string) (string, error) {
		return `[{"id": "opid-1", "status": "failed", "error": {"code": -6, "message": "Insufficient funds"}}]`, nil
	}}
	w := NewWalletWithRunner(Config{}, run, quietLogger())

	_, err := w.WaitOperation(context.Background(), "opid-1")
	require.Error(t, err)
	assert.True(t, swaperr.Is(err, swaperr.KindSubmissionRejected))
	assert.Contains(t, err.Error(), "Insufficient funds")
}

func TestShieldRequiresAddress(t *testing.T) {
	w := NewWalletWithRunner(Config{}, &fakeRunner{}, quietLogger())
	_, err := w.Shield(context.Background(), decimal.NewFromInt(1), "")
	assert.True(t, swaperr.Is(err, swaperr.KindInvalidRequest))
}
