package intent

import (
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"zcash-near-intents/pkg/account"
	"zcash-near-intents/pkg/swaperr"
	"zcash-near-intents/pkg/types"
)

// StandardRawEd25519 is the signing standard the verifying contract expects for raw payloads
const StandardRawEd25519 = "raw_ed25519"

// Sign signs the intent's canonical payload. It performs no I/O.
func Sign(in types.Intent, key solana.PrivateKey) (*types.SignedIntent, error) {
	const op = "intent.sign"

	if len(in.Payload) == 0 {
		return nil, swaperr.New(swaperr.KindInvalidRequest, op, "intent has no canonical payload")
	}
	if len(key) == 0 {
		return nil, swaperr.New(swaperr.KindSigning, op, "key material is absent")
	}
	if err := key.Validate(); err != nil {
		return nil, swaperr.Wrap(swaperr.KindSigning, op, errors.Wrap(err, "malformed key material"))
	}

	sig, err := key.Sign(in.Payload)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindSigning, op, err)
	}

	return &types.SignedIntent{
		Intent:    in,
		Standard:  StandardRawEd25519,
		Signature: account.KeyPrefix + sig.String(),
		PublicKey: account.EncodePublicKey(key.PublicKey()),
	}, nil
}

// Verify checks the signature against the payload and the embedded public key
func Verify(s *types.SignedIntent) error {
	const op = "intent.verify"

	if s == nil {
		return swaperr.New(swaperr.KindSigning, op, "signed intent is nil")
	}
	pub, err := account.ParsePublicKey(s.PublicKey)
	if err != nil {
		return err
	}
	return VerifyWith(s, pub)
}

// VerifyWith checks the signature against an explicit public key
func VerifyWith(s *types.SignedIntent, pub solana.PublicKey) error {
	const op = "intent.verify"

	sig, err := solana.SignatureFromBase58(strings.TrimPrefix(s.Signature, account.KeyPrefix))
	if err != nil {
		return swaperr.Wrap(swaperr.KindSigning, op, errors.Wrap(err, "malformed signature"))
	}
	if !sig.Verify(pub, s.Intent.Payload) {
		return swaperr.New(swaperr.KindSigning, op, "signature does not match payload")
	}
	return nil
}
