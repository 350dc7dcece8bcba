package account

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zcash-near-intents/pkg/swaperr"
)

func writeCredentials(t *testing.T, creds Credentials) string {
	t.Helper()
	data, err := json.Marshal(creds)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "alice.testnet.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestLoadFile(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	path := writeCredentials(t, Credentials{
		AccountID:  "alice.testnet",
		PublicKey:  EncodePublicKey(key.PublicKey()),
		PrivateKey: KeyPrefix + key.String(),
	})

	ks, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "alice.testnet", ks.AccountID())
	assert.Equal(t, EncodePublicKey(key.PublicKey()), ks.PublicKey())

	err = ks.Use(func(k solana.PrivateKey) error {
		assert.Equal(t, key.String(), k.String())
		return nil
	})
	require.NoError(t, err)
}

func TestLoadFileMismatchedPublicKey(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	other, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	path := writeCredentials(t, Credentials{
		AccountID:  "alice.testnet",
		PublicKey:  EncodePublicKey(other.PublicKey()),
		PrivateKey: KeyPrefix + key.String(),
	})

	_, err = LoadFile(path)
	require.Error(t, err)
	assert.True(t, swaperr.Is(err, swaperr.KindSigning))
}

func TestMalformedKey(t *testing.T) {
	_, err := New("alice.testnet", "ed25519:not-base58-0OIl")
	require.Error(t, err)
	assert.True(t, swaperr.Is(err, swaperr.KindSigning))

	_, err = New("alice.testnet", "")
	assert.True(t, swaperr.Is(err, swaperr.KindSigning))

	_, err = New("", "ed25519:abc")
	assert.True(t, swaperr.Is(err, swaperr.KindSigning))
}

func TestCloseZeroesKey(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	ks, err := New("alice.testnet", key.String())
	require.NoError(t, err)

	var held solana.PrivateKey
	require.NoError(t, ks.Use(func(k solana.PrivateKey) error {
		held = k
		return nil
	}))

	require.NoError(t, ks.Close())
	for _, b := range held {
		assert.Zero(t, b)
	}

	err = ks.Use(func(solana.PrivateKey) error { return nil })
	assert.True(t, swaperr.Is(err, swaperr.KindSigning))
}
