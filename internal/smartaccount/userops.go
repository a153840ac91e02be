package smartaccount

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type EntryPointVersion string

const (
	EntryPointV06 EntryPointVersion = "0.6"
	EntryPointV07 EntryPointVersion = "0.7"
)

func (v EntryPointVersion) Validate() error {
	switch v {
	case EntryPointV06, EntryPointV07:
		return nil
	default:
		return fmt.Errorf("unsupported entry point version %q", string(v))
	}
}

// ErrGasOverflow is returned for gas and fee values that do not fit the
// 128-bit halves of the packed v0.7 fields.
var ErrGasOverflow = errors.New("gas value out of uint128 range")

// CheckUint128 rejects negative values and values wider than 128 bits. A nil
// value is accepted and packs as zero.
func CheckUint128(field string, v *big.Int) error {
	if v != nil && (v.Sign() < 0 || v.BitLen() > 128) {
		return fmt.Errorf("%w: %s %s", ErrGasOverflow, field, v)
	}
	return nil
}

// UserOperation is the unpacked form exchanged with bundlers. Factory and
// Paymaster are nil when the account is deployed and the operation is not
// sponsored.
type UserOperation struct {
	Sender                        common.Address
	Nonce                         *big.Int
	Factory                       *common.Address
	FactoryData                   []byte
	CallData                      []byte
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	MaxFeePerGas                  *big.Int
	MaxPriorityFeePerGas          *big.Int
	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
	Signature                     []byte
}

// PackedUserOperation is the v0.7 on-chain layout.
type PackedUserOperation struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

// InitCode is factory || factoryData, empty for deployed accounts.
func (op *UserOperation) InitCode() []byte {
	if op.Factory == nil {
		return []byte{}
	}
	out := append([]byte{}, op.Factory.Bytes()...)
	return append(out, op.FactoryData...)
}

// PaymasterAndData returns the paymaster field in the layout of the given
// entry point version. v0.7 inserts the two 16-byte paymaster gas limits
// between the address and the data.
func (op *UserOperation) PaymasterAndData(version EntryPointVersion) []byte {
	if op.Paymaster == nil {
		return []byte{}
	}
	out := append([]byte{}, op.Paymaster.Bytes()...)
	if version == EntryPointV07 {
		out = append(out, uint128Bytes(op.PaymasterVerificationGasLimit)...)
		out = append(out, uint128Bytes(op.PaymasterPostOpGasLimit)...)
	}
	return append(out, op.PaymasterData...)
}

// Pack expects gas fields that pass ValidateGas.
func (op *UserOperation) Pack() PackedUserOperation {
	return PackedUserOperation{
		Sender:             op.Sender,
		Nonce:              orZero(op.Nonce),
		InitCode:           op.InitCode(),
		CallData:           nonNil(op.CallData),
		AccountGasLimits:   PackAccountGasLimits(orZero(op.VerificationGasLimit), orZero(op.CallGasLimit)),
		PreVerificationGas: orZero(op.PreVerificationGas),
		GasFees:            PackGasFees(orZero(op.MaxPriorityFeePerGas), orZero(op.MaxFeePerGas)),
		PaymasterAndData:   op.PaymasterAndData(EntryPointV07),
		Signature:          nonNil(op.Signature),
	}
}

// ValidateGas checks every gas and fee field against the packed layout.
func (op *UserOperation) ValidateGas() error {
	return errors.Join(
		CheckUint128("callGasLimit", op.CallGasLimit),
		CheckUint128("verificationGasLimit", op.VerificationGasLimit),
		CheckUint128("preVerificationGas", op.PreVerificationGas),
		CheckUint128("maxFeePerGas", op.MaxFeePerGas),
		CheckUint128("maxPriorityFeePerGas", op.MaxPriorityFeePerGas),
		CheckUint128("paymasterVerificationGasLimit", op.PaymasterVerificationGasLimit),
		CheckUint128("paymasterPostOpGasLimit", op.PaymasterPostOpGasLimit),
	)
}

// TotalGas sums every gas limit of the operation.
func (op *UserOperation) TotalGas() *big.Int {
	total := new(big.Int)
	for _, g := range []*big.Int{
		op.PreVerificationGas,
		op.VerificationGasLimit,
		op.CallGasLimit,
		op.PaymasterVerificationGasLimit,
		op.PaymasterPostOpGasLimit,
	} {
		total.Add(total, orZero(g))
	}
	return total
}

func (op *UserOperation) Copy() *UserOperation {
	cpy := &UserOperation{
		Sender:                        op.Sender,
		Nonce:                         copyBig(op.Nonce),
		FactoryData:                   common.CopyBytes(op.FactoryData),
		CallData:                      common.CopyBytes(op.CallData),
		CallGasLimit:                  copyBig(op.CallGasLimit),
		VerificationGasLimit:          copyBig(op.VerificationGasLimit),
		PreVerificationGas:            copyBig(op.PreVerificationGas),
		MaxFeePerGas:                  copyBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas:          copyBig(op.MaxPriorityFeePerGas),
		PaymasterVerificationGasLimit: copyBig(op.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       copyBig(op.PaymasterPostOpGasLimit),
		PaymasterData:                 common.CopyBytes(op.PaymasterData),
		Signature:                     common.CopyBytes(op.Signature),
	}
	if op.Factory != nil {
		f := *op.Factory
		cpy.Factory = &f
	}
	if op.Paymaster != nil {
		p := *op.Paymaster
		cpy.Paymaster = &p
	}
	return cpy
}

var (
	addressT = mustType("address")
	uint256T = mustType("uint256")
	bytes32T = mustType("bytes32")
	bytesT   = mustType("bytes")
	stringT  = mustType("string")
	boolT    = mustType("bool")
)

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// Hash computes the operation hash the account validates: everything but the
// signature, bound to the entry point and chain id.
func (op *UserOperation) Hash(entryPoint common.Address, chainID *big.Int, version EntryPointVersion) (common.Hash, error) {
	var (
		packed []byte
		err    error
	)
	switch version {
	case EntryPointV07:
		if err := op.ValidateGas(); err != nil {
			return common.Hash{}, err
		}
		p := op.Pack()
		packed, err = abi.Arguments{
			{Type: addressT}, {Type: uint256T}, {Type: bytes32T}, {Type: bytes32T},
			{Type: bytes32T}, {Type: uint256T}, {Type: bytes32T}, {Type: bytes32T},
		}.Pack(
			p.Sender,
			p.Nonce,
			crypto.Keccak256Hash(p.InitCode),
			crypto.Keccak256Hash(p.CallData),
			p.AccountGasLimits,
			p.PreVerificationGas,
			p.GasFees,
			crypto.Keccak256Hash(p.PaymasterAndData),
		)
	case EntryPointV06:
		packed, err = abi.Arguments{
			{Type: addressT}, {Type: uint256T}, {Type: bytes32T}, {Type: bytes32T},
			{Type: uint256T}, {Type: uint256T}, {Type: uint256T}, {Type: uint256T},
			{Type: uint256T}, {Type: bytes32T},
		}.Pack(
			op.Sender,
			orZero(op.Nonce),
			crypto.Keccak256Hash(op.InitCode()),
			crypto.Keccak256Hash(nonNil(op.CallData)),
			orZero(op.CallGasLimit),
			orZero(op.VerificationGasLimit),
			orZero(op.PreVerificationGas),
			orZero(op.MaxFeePerGas),
			orZero(op.MaxPriorityFeePerGas),
			crypto.Keccak256Hash(op.PaymasterAndData(EntryPointV06)),
		)
	default:
		return common.Hash{}, version.Validate()
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user op: %w", err)
	}

	enc, err := abi.Arguments{{Type: bytes32T}, {Type: addressT}, {Type: uint256T}}.Pack(
		crypto.Keccak256Hash(packed),
		entryPoint,
		orZero(chainID),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user op hash envelope: %w", err)
	}
	return crypto.Keccak256Hash(enc), nil
}

func PackAccountGasLimits(verificationGasLimit, callGasLimit *big.Int) [32]byte {
	return packHighLow(verificationGasLimit, callGasLimit)
}

func PackGasFees(maxPriorityFeePerGas, maxFeePerGas *big.Int) [32]byte {
	return packHighLow(maxPriorityFeePerGas, maxFeePerGas)
}

// packed = (high << 128) | low
func packHighLow(high, low *big.Int) [32]byte {
	packed := new(big.Int).Lsh(high, 128)
	packed.Or(packed, low)

	var out [32]byte
	packed.FillBytes(out[:])
	return out
}

func uint128Bytes(v *big.Int) []byte {
	out := make([]byte, 16)
	orZero(v).FillBytes(out)
	return out
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
