package account

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"zcash-near-intents/pkg/swaperr"
)

// KeyPrefix is the curve prefix NEAR uses for encoded ed25519 keys and signatures
const KeyPrefix = "ed25519:"

// Credentials mirrors the NEAR CLI credentials file layout
type Credentials struct {
	AccountID  string `json:"account_id"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// KeyStore holds one account's signing key for the lifetime of the process.
// The key is only reachable through Use and is zeroed by Close.
type KeyStore struct {
	mu        sync.RWMutex
	accountID string
	publicKey solana.PublicKey
	key       solana.PrivateKey
	closed    bool
}

// LoadFile reads a NEAR credentials JSON file
func LoadFile(path string) (*KeyStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindSigning, "account.load", errors.Wrap(err, "failed to read credentials file"))
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, swaperr.Wrap(swaperr.KindSigning, "account.load", errors.Wrap(err, "failed to parse credentials file"))
	}

	ks, err := New(creds.AccountID, creds.PrivateKey)
	if err != nil {
		return nil, err
	}

	if creds.PublicKey != "" {
		pub, err := ParsePublicKey(creds.PublicKey)
		if err != nil {
			ks.Close()
			return nil, err
		}
		if !pub.Equals(ks.publicKey) {
			ks.Close()
			return nil, swaperr.New(swaperr.KindSigning, "account.load", "public key does not match private key")
		}
	}

	return ks, nil
}

// New creates a key store from an account id and an encoded private key
func New(accountID, privateKey string) (*KeyStore, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, swaperr.New(swaperr.KindSigning, "account.load", "account id is required")
	}

	key, err := ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	return &KeyStore{
		accountID: accountID,
		publicKey: key.PublicKey(),
		key:       key,
	}, nil
}

// ParsePrivateKey decodes an "ed25519:<base58>" (or bare base58) 64-byte key
func ParsePrivateKey(s string) (solana.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), KeyPrefix)
	if s == "" {
		return nil, swaperr.New(swaperr.KindSigning, "account.parse_key", "private key is missing")
	}
	key, err := solana.PrivateKeyFromBase58(s)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindSigning, "account.parse_key", errors.Wrap(err, "malformed private key"))
	}
	return key, nil
}

// ParsePublicKey decodes an "ed25519:<base58>" (or bare base58) public key
func ParsePublicKey(s string) (solana.PublicKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), KeyPrefix)
	pub, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, swaperr.Wrap(swaperr.KindSigning, "account.parse_key", errors.Wrap(err, "malformed public key"))
	}
	return pub, nil
}

// EncodePublicKey renders a public key in NEAR's "ed25519:<base58>" form
func EncodePublicKey(pub solana.PublicKey) string {
	return KeyPrefix + pub.String()
}

// AccountID returns the NEAR account the key belongs to
func (k *KeyStore) AccountID() string {
	return k.accountID
}

// PublicKey returns the encoded public key
func (k *KeyStore) PublicKey() string {
	return EncodePublicKey(k.publicKey)
}

// Use runs fn with the private key. The key must not be retained past fn's return.
func (k *KeyStore) Use(fn func(key solana.PrivateKey) error) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed || len(k.key) == 0 {
		return swaperr.New(swaperr.KindSigning, "account.use", "key material has been released")
	}
	return fn(k.key)
}

// Close zeroes the key material. Subsequent Use calls fail with a SigningError.
func (k *KeyStore) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	for i := range k.key {
		k.key[i] = 0
	}
	k.key = nil
	k.closed = true
	return nil
}
