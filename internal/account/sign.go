package account

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// SignPersonalMessage signs the EIP-191 digest of message with the passkey
// and returns the encoded validator signature.
func (a *Account) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	return a.signDigest(ctx, accounts.TextHash(message))
}

// SignTypedData signs the EIP-712 digest of data.
func (a *Account) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return a.signDigest(ctx, digest)
}

func (a *Account) signDigest(ctx context.Context, digest []byte) ([]byte, error) {
	credentialID, err := a.credentialID()
	if err != nil {
		return nil, err
	}
	return a.signer.SignEncoded(ctx, credentialID, digest)
}
