package smartaccount

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var ErrNoCalls = errors.New("at least one call is required")

// Call is a single action executed by the account.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// execution mirrors the ERC-7579 Execution struct for batch encoding.
type execution struct {
	Target   common.Address `abi:"target"`
	Value    *big.Int       `abi:"value"`
	CallData []byte         `abi:"callData"`
}

var executionsT = mustTupleSliceType()

func mustTupleSliceType() abi.Type {
	t, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "callData", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Execution modes, first byte of the 32-byte mode word.
const (
	callTypeSingle byte = 0x00
	callTypeBatch  byte = 0x01
)

// EncodeCalls builds the account's execute(mode, data) calldata. A single
// call is packed as target || value || data, more than one as an
// abi-encoded Execution[].
func EncodeCalls(calls []Call) ([]byte, error) {
	if len(calls) == 0 {
		return nil, ErrNoCalls
	}

	var (
		mode     [32]byte
		execData []byte
	)
	if len(calls) == 1 {
		mode[0] = callTypeSingle
		c := calls[0]
		execData = append(execData, c.To.Bytes()...)
		execData = append(execData, common.LeftPadBytes(orZero(c.Value).Bytes(), 32)...)
		execData = append(execData, c.Data...)
	} else {
		mode[0] = callTypeBatch
		execs := make([]execution, len(calls))
		for i, c := range calls {
			execs[i] = execution{Target: c.To, Value: orZero(c.Value), CallData: nonNil(c.Data)}
		}
		var err error
		execData, err = abi.Arguments{{Type: executionsT}}.Pack(execs)
		if err != nil {
			return nil, fmt.Errorf("failed to encode batch: %w", err)
		}
	}

	callData, err := AccountABI.Pack("execute", mode, execData)
	if err != nil {
		return nil, fmt.Errorf("failed to pack execute: %w", err)
	}
	return callData, nil
}
