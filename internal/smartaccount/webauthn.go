package smartaccount

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/compose-network/passkey-wallet/internal/chain"
)

// PublicKey is an uncompressed P-256 point as stored by the validator.
type PublicKey struct {
	X *big.Int
	Y *big.Int
}

func (k PublicKey) IsZero() bool {
	return (k.X == nil || k.X.Sign() == 0) && (k.Y == nil || k.Y.Sign() == 0)
}

// WebAuthnSignature is the validator's signature payload.
type WebAuthnSignature struct {
	AuthenticatorData []byte
	ClientDataJSON    string
	TypeIndex         *big.Int
	R                 *big.Int
	S                 *big.Int
	UsePrecompiled    bool
}

var (
	pubKeyT = mustTupleType([]abi.ArgumentMarshaling{
		{Name: "pubKeyX", Type: "uint256"},
		{Name: "pubKeyY", Type: "uint256"},
	})

	validatorInitArgs = abi.Arguments{{Type: pubKeyT}, {Type: bytes32T}}
	signatureArgs     = abi.Arguments{
		{Type: bytesT}, {Type: stringT}, {Type: uint256T},
		{Type: uint256T}, {Type: uint256T}, {Type: boolT},
	}
)

func mustTupleType(components []abi.ArgumentMarshaling) abi.Type {
	t, err := abi.NewType("tuple", "", components)
	if err != nil {
		panic(err)
	}
	return t
}

// WebAuthnValidatorInitData encodes the validator install data: the public
// key and the keccak of the credential id.
func WebAuthnValidatorInitData(key PublicKey, credentialID string) ([]byte, error) {
	if key.IsZero() {
		return nil, fmt.Errorf("empty public key")
	}
	point := struct {
		PubKeyX *big.Int `abi:"pubKeyX"`
		PubKeyY *big.Int `abi:"pubKeyY"`
	}{key.X, key.Y}

	data, err := validatorInitArgs.Pack(point, crypto.Keccak256Hash([]byte(credentialID)))
	if err != nil {
		return nil, fmt.Errorf("failed to encode validator init data: %w", err)
	}
	return data, nil
}

func EncodeWebAuthnSignature(sig WebAuthnSignature) ([]byte, error) {
	out, err := signatureArgs.Pack(
		nonNil(sig.AuthenticatorData),
		sig.ClientDataJSON,
		orZero(sig.TypeIndex),
		orZero(sig.R),
		orZero(sig.S),
		sig.UsePrecompiled,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webauthn signature: %w", err)
	}
	return out, nil
}

// mockAuthenticatorData is a well-formed authenticator data blob with the
// user-present and user-verified flags set.
var mockAuthenticatorData = hexutil.MustDecode("0x49960de5880e8c687434170f6476605b8fe4aeb9a28632c7995cf3ba831d97630500000000")

const mockClientDataJSON = `{"type":"webauthn.get","challenge":"tbxXNFS9X_4Byr1cMwqKrIGB-_30a0QhZ6y7ucM_C1Q","origin":"http://localhost:8080","crossOrigin":false}`

// MockWebAuthnSignature is a structurally valid signature used for gas
// estimation, so the account's validation path runs without a user prompt.
func MockWebAuthnSignature() []byte {
	sig, err := EncodeWebAuthnSignature(WebAuthnSignature{
		AuthenticatorData: mockAuthenticatorData,
		ClientDataJSON:    mockClientDataJSON,
		TypeIndex:         big.NewInt(1),
		R:                 new(big.Int).SetBytes(hexutil.MustDecode("0x5a1b7a1e3d3a42cc1ec4f1c8a0bb3e2f0c9b7d7e0a9a54c2d1c3b6a77c0e5a01")),
		S:                 new(big.Int).SetBytes(hexutil.MustDecode("0x1b2f6e2c8f3a4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f708192a3b4c5d6")),
	})
	if err != nil {
		panic(err)
	}
	return sig
}

// ReadWebAuthnPublicKey returns the key the validator stores for account.
// An account without a registered key yields a zero PublicKey.
func ReadWebAuthnPublicKey(ctx context.Context, caller bind.ContractCaller, validator, account common.Address) (PublicKey, error) {
	contract := bind.NewBoundContract(validator, WebAuthnValidatorABI, caller, nil, nil)
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "webAuthnValidatorStorage", account); err != nil {
		return PublicKey{}, fmt.Errorf("failed to read validator storage: %w", chain.Classify(err))
	}
	if len(out) != 2 {
		return PublicKey{}, fmt.Errorf("unexpected validator storage result length %d", len(out))
	}
	x, okX := out[0].(*big.Int)
	y, okY := out[1].(*big.Int)
	if !okX || !okY {
		return PublicKey{}, fmt.Errorf("unexpected validator storage result types %T, %T", out[0], out[1])
	}
	return PublicKey{X: x, Y: y}, nil
}
