package webauthn

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/compose-network/passkey-wallet/internal/smartaccount"
)

var (
	ErrChallengeMismatch  = errors.New("assertion is not bound to the expected challenge")
	ErrInvalidSignature   = errors.New("assertion signature verification failed")
	errMalformedSignature = errors.New("malformed assertion signature")

	p256HalfOrder = new(big.Int).Rsh(elliptic.P256().Params().N, 1)
)

// Assertion is an authenticator's signature over authenticatorData and the
// hash of clientDataJSON.
type Assertion struct {
	CredentialID      string
	AuthenticatorData []byte
	ClientDataJSON    []byte
	// Signature is ASN.1 DER as returned by browsers, or raw r || s.
	Signature  []byte
	UserHandle []byte
}

func (a *Assertion) ClientData() (*protocol.CollectedClientData, error) {
	var cd protocol.CollectedClientData
	if err := json.Unmarshal(a.ClientDataJSON, &cd); err != nil {
		return nil, fmt.Errorf("failed to parse clientDataJSON: %w", err)
	}
	return &cd, nil
}

// ChallengeIndex is the offset of the challenge member in clientDataJSON.
func (a *Assertion) ChallengeIndex() (int, error) {
	return indexOf(a.ClientDataJSON, `"challenge":"`)
}

// TypeIndex is the offset of the type member in clientDataJSON.
func (a *Assertion) TypeIndex() (int, error) {
	return indexOf(a.ClientDataJSON, `"type":"`+string(protocol.AssertCeremony)+`"`)
}

func indexOf(data []byte, needle string) (int, error) {
	i := bytes.Index(data, []byte(needle))
	if i < 0 {
		return 0, fmt.Errorf("clientDataJSON has no %s member", needle)
	}
	return i, nil
}

// RS returns the signature scalars with s normalized to the lower half of
// the curve order.
func (a *Assertion) RS() (*big.Int, *big.Int, error) {
	var r, s *big.Int
	if len(a.Signature) == 64 {
		r = new(big.Int).SetBytes(a.Signature[:32])
		s = new(big.Int).SetBytes(a.Signature[32:])
	} else {
		var sig struct{ R, S *big.Int }
		rest, err := asn1.Unmarshal(a.Signature, &sig)
		if err != nil || len(rest) != 0 {
			return nil, nil, errMalformedSignature
		}
		r, s = sig.R, sig.S
	}
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return nil, nil, errMalformedSignature
	}
	if s.Cmp(p256HalfOrder) > 0 {
		s = new(big.Int).Sub(elliptic.P256().Params().N, s)
	}
	return r, s, nil
}

// ValidatorSignature converts the assertion into the validator's payload.
func (a *Assertion) ValidatorSignature() (smartaccount.WebAuthnSignature, error) {
	typeIndex, err := a.TypeIndex()
	if err != nil {
		return smartaccount.WebAuthnSignature{}, err
	}
	r, s, err := a.RS()
	if err != nil {
		return smartaccount.WebAuthnSignature{}, err
	}
	return smartaccount.WebAuthnSignature{
		AuthenticatorData: a.AuthenticatorData,
		ClientDataJSON:    string(a.ClientDataJSON),
		TypeIndex:         big.NewInt(int64(typeIndex)),
		R:                 r,
		S:                 s,
	}, nil
}

// EncodeSignature returns the abi-encoded validator signature.
func (a *Assertion) EncodeSignature() ([]byte, error) {
	sig, err := a.ValidatorSignature()
	if err != nil {
		return nil, err
	}
	return smartaccount.EncodeWebAuthnSignature(sig)
}

// EncodeChallenge renders challenge bytes as they appear in clientDataJSON.
func EncodeChallenge(challenge []byte) string {
	return base64.RawURLEncoding.EncodeToString(challenge)
}

// SignedData is authenticatorData || sha256(clientDataJSON); the
// authenticator signs its sha256.
func SignedData(authData, clientDataJSON []byte) []byte {
	clientDataHash := sha256.Sum256(clientDataJSON)
	out := append([]byte{}, authData...)
	return append(out, clientDataHash[:]...)
}

// Verify checks that a is a get assertion bound to challenge and signed by
// pub.
func Verify(pub *ecdsa.PublicKey, a *Assertion, challenge []byte) error {
	cd, err := a.ClientData()
	if err != nil {
		return err
	}
	if cd.Type != protocol.AssertCeremony {
		return fmt.Errorf("unexpected ceremony type %q", cd.Type)
	}
	got, err := base64.RawURLEncoding.DecodeString(cd.Challenge)
	if err != nil {
		return fmt.Errorf("failed to decode challenge: %w", err)
	}
	if !bytes.Equal(got, challenge) {
		return ErrChallengeMismatch
	}

	r, s, err := a.RS()
	if err != nil {
		return err
	}
	h := sha256.Sum256(SignedData(a.AuthenticatorData, a.ClientDataJSON))
	if !ecdsa.Verify(pub, h[:], r, s) {
		return ErrInvalidSignature
	}
	return nil
}

// Signer produces assertions bound to arbitrary challenges with one
// credential.
type Signer struct {
	auth Authenticator
	rpID string
}

func NewSigner(auth Authenticator, rpID string) *Signer {
	return &Signer{auth: auth, rpID: rpID}
}

func (s *Signer) Sign(ctx context.Context, credentialID string, challenge []byte) (*Assertion, error) {
	a, err := s.auth.Get(ctx, GetOptions{
		RPID:             s.rpID,
		Challenge:        challenge,
		AllowCredentials: []string{credentialID},
	})
	if err != nil {
		return nil, err
	}
	cd, err := a.ClientData()
	if err != nil {
		return nil, err
	}
	if cd.Challenge != EncodeChallenge(challenge) {
		return nil, ErrChallengeMismatch
	}
	return a, nil
}

// SignEncoded signs challenge and returns the abi-encoded validator
// signature.
func (s *Signer) SignEncoded(ctx context.Context, credentialID string, challenge []byte) ([]byte, error) {
	a, err := s.Sign(ctx, credentialID, challenge)
	if err != nil {
		return nil, err
	}
	return a.EncodeSignature()
}
