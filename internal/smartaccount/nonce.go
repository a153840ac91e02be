package smartaccount

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/passkey-wallet/internal/chain"
)

// NonceKey builds the 192-bit Kernel nonce key that routes validation to
// validator: mode(1) || type(1) || validator(20) || key(2).
func NonceKey(validator common.Address, key uint16) *big.Int {
	var buf [24]byte
	buf[0] = 0x00 // default validation mode
	buf[1] = 0x01 // validator type
	copy(buf[2:22], validator.Bytes())
	buf[22] = byte(key >> 8)
	buf[23] = byte(key)
	return new(big.Int).SetBytes(buf[:])
}

// GetNonce reads the next nonce for sender under key from the entry point.
func GetNonce(ctx context.Context, caller bind.ContractCaller, entryPoint, sender common.Address, key *big.Int) (*big.Int, error) {
	contract := bind.NewBoundContract(entryPoint, EntryPointABI, caller, nil, nil)
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "getNonce", sender, key); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", chain.Classify(err))
	}
	nonce, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getNonce result %T", out[0])
	}
	return nonce, nil
}
