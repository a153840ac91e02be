package bundler

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/compose-network/passkey-wallet/internal/smartaccount"
)

// userOpV07 is the unpacked JSON form bundlers accept for entry point v0.7.
type userOpV07 struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *hexutil.Big    `json:"nonce"`
	Factory                       *common.Address `json:"factory,omitempty"`
	FactoryData                   hexutil.Bytes   `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes   `json:"callData"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes   `json:"signature"`
}

type userOpV06 struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

func encodeUserOp(op *smartaccount.UserOperation, version smartaccount.EntryPointVersion) interface{} {
	if version == smartaccount.EntryPointV06 {
		return userOpV06{
			Sender:               op.Sender,
			Nonce:                hexBig(op.Nonce),
			InitCode:             op.InitCode(),
			CallData:             nonNil(op.CallData),
			CallGasLimit:         hexBig(op.CallGasLimit),
			VerificationGasLimit: hexBig(op.VerificationGasLimit),
			PreVerificationGas:   hexBig(op.PreVerificationGas),
			MaxFeePerGas:         hexBig(op.MaxFeePerGas),
			MaxPriorityFeePerGas: hexBig(op.MaxPriorityFeePerGas),
			PaymasterAndData:     op.PaymasterAndData(smartaccount.EntryPointV06),
			Signature:            nonNil(op.Signature),
		}
	}

	out := userOpV07{
		Sender:               op.Sender,
		Nonce:                hexBig(op.Nonce),
		CallData:             nonNil(op.CallData),
		CallGasLimit:         hexBig(op.CallGasLimit),
		VerificationGasLimit: hexBig(op.VerificationGasLimit),
		PreVerificationGas:   hexBig(op.PreVerificationGas),
		MaxFeePerGas:         hexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: hexBig(op.MaxPriorityFeePerGas),
		Signature:            nonNil(op.Signature),
	}
	if op.Factory != nil {
		out.Factory = op.Factory
		out.FactoryData = nonNil(op.FactoryData)
	}
	if op.Paymaster != nil {
		out.Paymaster = op.Paymaster
		out.PaymasterVerificationGasLimit = hexBig(op.PaymasterVerificationGasLimit)
		out.PaymasterPostOpGasLimit = hexBig(op.PaymasterPostOpGasLimit)
		out.PaymasterData = nonNil(op.PaymasterData)
	}
	return out
}

// GasEstimate holds the limits returned by eth_estimateUserOperationGas.
type GasEstimate struct {
	PreVerificationGas            *big.Int
	VerificationGasLimit          *big.Int
	CallGasLimit                  *big.Int
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
}

type gasEstimateJSON struct {
	PreVerificationGas            *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big `json:"callGasLimit"`
	PaymasterVerificationGasLimit *hexutil.Big `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big `json:"paymasterPostOpGasLimit,omitempty"`
}

func (g gasEstimateJSON) decode() (*GasEstimate, error) {
	est := &GasEstimate{
		PreVerificationGas:            fromHexBig(g.PreVerificationGas),
		VerificationGasLimit:          fromHexBig(g.VerificationGasLimit),
		CallGasLimit:                  fromHexBig(g.CallGasLimit),
		PaymasterVerificationGasLimit: fromHexBig(g.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       fromHexBig(g.PaymasterPostOpGasLimit),
	}
	err := errors.Join(
		smartaccount.CheckUint128("preVerificationGas", est.PreVerificationGas),
		smartaccount.CheckUint128("verificationGasLimit", est.VerificationGasLimit),
		smartaccount.CheckUint128("callGasLimit", est.CallGasLimit),
		smartaccount.CheckUint128("paymasterVerificationGasLimit", est.PaymasterVerificationGasLimit),
		smartaccount.CheckUint128("paymasterPostOpGasLimit", est.PaymasterPostOpGasLimit),
	)
	if err != nil {
		return nil, err
	}
	return est, nil
}

// Apply copies the estimate onto op. Paymaster limits are only overwritten
// when the bundler returned them.
func (g *GasEstimate) Apply(op *smartaccount.UserOperation) {
	op.PreVerificationGas = g.PreVerificationGas
	op.VerificationGasLimit = g.VerificationGasLimit
	op.CallGasLimit = g.CallGasLimit
	if g.PaymasterVerificationGasLimit != nil {
		op.PaymasterVerificationGasLimit = g.PaymasterVerificationGasLimit
	}
	if g.PaymasterPostOpGasLimit != nil {
		op.PaymasterPostOpGasLimit = g.PaymasterPostOpGasLimit
	}
}

// GasPrice is one fee tier.
type GasPrice struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

type gasPriceJSON struct {
	MaxFeePerGas         *hexutil.Big `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big `json:"maxPriorityFeePerGas"`
}

func (g gasPriceJSON) decode() (*GasPrice, error) {
	if g.MaxFeePerGas == nil || g.MaxPriorityFeePerGas == nil {
		return nil, errors.New("bundler returned no fast gas price tier")
	}
	price := &GasPrice{
		MaxFeePerGas:         g.MaxFeePerGas.ToInt(),
		MaxPriorityFeePerGas: g.MaxPriorityFeePerGas.ToInt(),
	}
	err := errors.Join(
		smartaccount.CheckUint128("maxFeePerGas", price.MaxFeePerGas),
		smartaccount.CheckUint128("maxPriorityFeePerGas", price.MaxPriorityFeePerGas),
	)
	if err != nil {
		return nil, err
	}
	return price, nil
}

type gasPriceTiersJSON struct {
	Slow     gasPriceJSON `json:"slow"`
	Standard gasPriceJSON `json:"standard"`
	Fast     gasPriceJSON `json:"fast"`
}

// Receipt is the bundler's view of an included user operation.
type Receipt struct {
	UserOpHash    common.Hash    `json:"userOpHash"`
	EntryPoint    common.Address `json:"entryPoint"`
	Sender        common.Address `json:"sender"`
	Nonce         *hexutil.Big   `json:"nonce"`
	ActualGasCost *hexutil.Big   `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big   `json:"actualGasUsed"`
	Success       bool           `json:"success"`
	Reason        string         `json:"reason,omitempty"`
	TxReceipt     TxReceipt      `json:"receipt"`
}

type TxReceipt struct {
	TransactionHash common.Hash  `json:"transactionHash"`
	BlockNumber     *hexutil.Big `json:"blockNumber"`
}

func hexBig(v *big.Int) *hexutil.Big {
	if v == nil {
		return (*hexutil.Big)(new(big.Int))
	}
	return (*hexutil.Big)(v)
}

func fromHexBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return nil
	}
	return v.ToInt()
}

func nonNil(b []byte) hexutil.Bytes {
	if b == nil {
		return hexutil.Bytes{}
	}
	return b
}
