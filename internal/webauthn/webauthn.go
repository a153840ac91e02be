// Package webauthn adapts WebAuthn authenticators to the wallet: credential
// creation, challenge-bound assertions and their conversion into the
// validator signature format.
package webauthn

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"github.com/compose-network/passkey-wallet/internal/smartaccount"
)

var (
	// ErrUserRejected is returned when the user dismissed or declined the
	// authenticator prompt.
	ErrUserRejected = errors.New("user rejected the request")
	// ErrNoCredentials is returned by a discovery assertion when the
	// authenticator holds no credential for the relying party.
	ErrNoCredentials = errors.New("no credentials available")
)

// Authenticator is a platform or roaming WebAuthn authenticator.
type Authenticator interface {
	Create(ctx context.Context, opts CreateOptions) (*Registration, error)
	Get(ctx context.Context, opts GetOptions) (*Assertion, error)
}

type CreateOptions struct {
	RPID      string
	RPName    string
	UserID    []byte
	UserName  string
	Challenge []byte
}

// GetOptions requests an assertion. An empty AllowCredentials list performs
// a discovery assertion over every credential of the relying party.
type GetOptions struct {
	RPID             string
	Challenge        []byte
	AllowCredentials []string
}

// Registration is a newly created credential.
type Registration struct {
	CredentialID string
	RawID        []byte
	// COSEKey is the credential public key in COSE_Key form.
	COSEKey []byte
}

func (r *Registration) PublicKey() (*ecdsa.PublicKey, error) {
	return DecodeCOSEKey(r.COSEKey)
}

// EncodeCredentialID renders a raw credential id the way browsers expose it.
func EncodeCredentialID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCOSEKey parses an ES256 COSE key.
func DecodeCOSEKey(b []byte) (*ecdsa.PublicKey, error) {
	var pk webauthncose.EC2PublicKeyData
	if err := webauthncbor.Unmarshal(b, &pk); err != nil {
		return nil, fmt.Errorf("failed to decode COSE key: %w", err)
	}
	if pk.KeyType != int64(webauthncose.EllipticKey) || pk.Curve != int64(webauthncose.P256) {
		return nil, fmt.Errorf("unsupported COSE key type %d curve %d", pk.KeyType, pk.Curve)
	}
	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(pk.XCoord),
		Y:     new(big.Int).SetBytes(pk.YCoord),
	}
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return nil, errors.New("COSE key is not on P-256")
	}
	return pub, nil
}

// EncodeCOSEKey renders pub as an ES256 COSE key.
func EncodeCOSEKey(pub *ecdsa.PublicKey) ([]byte, error) {
	var pk webauthncose.EC2PublicKeyData
	pk.KeyType = int64(webauthncose.EllipticKey)
	pk.Algorithm = int64(webauthncose.AlgES256)
	pk.Curve = int64(webauthncose.P256)
	pk.XCoord = pub.X.FillBytes(make([]byte, 32))
	pk.YCoord = pub.Y.FillBytes(make([]byte, 32))
	return webauthncbor.Marshal(pk)
}

// Coordinates converts pub to the validator's storage form.
func Coordinates(pub *ecdsa.PublicKey) smartaccount.PublicKey {
	return smartaccount.PublicKey{X: new(big.Int).Set(pub.X), Y: new(big.Int).Set(pub.Y)}
}

// MarshalPublicKey hex-encodes pub as an uncompressed SEC1 point.
func MarshalPublicKey(pub smartaccount.PublicKey) string {
	out := make([]byte, 65)
	out[0] = 0x04
	pub.X.FillBytes(out[1:33])
	pub.Y.FillBytes(out[33:])
	return hexutil.Encode(out)
}

// UnmarshalPublicKey parses the output of MarshalPublicKey.
func UnmarshalPublicKey(s string) (smartaccount.PublicKey, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return smartaccount.PublicKey{}, fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(b) != 65 || b[0] != 0x04 {
		return smartaccount.PublicKey{}, fmt.Errorf("invalid public key length %d", len(b))
	}
	pub := smartaccount.PublicKey{X: new(big.Int).SetBytes(b[1:33]), Y: new(big.Int).SetBytes(b[33:])}
	if !elliptic.P256().IsOnCurve(pub.X, pub.Y) {
		return smartaccount.PublicKey{}, errors.New("public key is not on P-256")
	}
	return pub, nil
}
