package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zcash-near-intents/pkg/swaperr"
	"zcash-near-intents/pkg/types"
)

func newNearServer(t *testing.T, handle func(params map[string]string) (interface{}, interface{})) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     string            `json:"id"`
			Method string            `json:"method"`
			Params map[string]string `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "query", req.Method)

		result, rpcErr := handle(req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func viewResult(value string) []int {
	raw, _ := json.Marshal(value)
	out := make([]int, len(raw))
	for i, b := range raw {
		out[i] = int(b)
	}
	return out
}

func TestNearBalances(t *testing.T) {
	var usdcContract string
	srv := newNearServer(t, func(p map[string]string) (interface{}, interface{}) {
		switch p["request_type"] {
		case "view_account":
			assert.Equal(t, "alice.near", p["account_id"])
			return map[string]string{"amount": "2500000000000000000000000"}, nil
		case "call_function":
			usdcContract = p["account_id"]
			args, err := base64.StdEncoding.DecodeString(p["args_base64"])
			require.NoError(t, err)
			assert.JSONEq(t, `{"account_id":"alice.near"}`, string(args))
			return map[string]interface{}{"result": viewResult("12500000")}, nil
		}
		return nil, map[string]string{"message": "unexpected"}
	})

	reg, err := types.NewRegistry(types.DefaultAssets())
	require.NoError(t, err)
	near := NewNearRPC(srv.URL, time.Second, reg)

	bal, err := near.Balance(context.Background(), "alice.near", types.Asset{Symbol: "NEAR", Chain: types.ChainNEAR, Privacy: types.Transparent})
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("2.5")), "got %s", bal)

	bal, err = near.Balance(context.Background(), "alice.near", types.Asset{Symbol: "USDC", Chain: types.ChainNEAR, Privacy: types.Transparent})
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("12.5")), "got %s", bal)
	assert.Equal(t, "17208628f84f5d6ad33f0da3bbbeb27ffcb398eac501a31bd6ad2011e36133a1", usdcContract)

	bal, err = near.Balance(context.Background(), "alice.near", types.Asset{Symbol: "USDC", Chain: types.ChainNEAR, Privacy: types.Shielded})
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestNearUnknownAccount(t *testing.T) {
	srv := newNearServer(t, func(map[string]string) (interface{}, interface{}) {
		return nil, map[string]interface{}{
			"name":    "HANDLER_ERROR",
			"message": "account does not exist",
			"cause":   map[string]string{"name": "UNKNOWN_ACCOUNT"},
		}
	})
	reg, err := types.NewRegistry(types.DefaultAssets())
	require.NoError(t, err)

	_, err = NewNearRPC(srv.URL, time.Second, reg).AccountBalance(context.Background(), "ghost.near")
	require.Error(t, err)
	assert.True(t, swaperr.Is(err, swaperr.KindInvalidRequest))
}

func TestNearServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	reg, err := types.NewRegistry(types.DefaultAssets())
	require.NoError(t, err)

	_, err = NewNearRPC(srv.URL, time.Second, reg).AccountBalance(context.Background(), "alice.near")
	assert.True(t, swaperr.Is(err, swaperr.KindNetwork))
}
