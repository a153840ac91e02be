package bundler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/compose-network/passkey-wallet/internal/chain"
	"github.com/compose-network/passkey-wallet/internal/smartaccount"
)

const paymasterTimeout = 15 * time.Second

// Paymaster sponsors user operations following ERC-7677: stub data is
// requested before gas estimation, final data after.
type Paymaster interface {
	GetPaymasterStubData(ctx context.Context, op *smartaccount.UserOperation, chainID uint64) (*PaymasterData, error)
	GetPaymasterData(ctx context.Context, op *smartaccount.UserOperation, chainID uint64) (*PaymasterData, error)
}

type PaymasterData struct {
	Paymaster                     common.Address
	PaymasterData                 []byte
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	// IsFinal is set on stub responses whose data needs no second round.
	IsFinal bool
}

// Apply sets the paymaster fields of op. Gas limits are only overwritten
// when the paymaster supplied them.
func (p *PaymasterData) Apply(op *smartaccount.UserOperation) {
	pm := p.Paymaster
	op.Paymaster = &pm
	op.PaymasterData = common.CopyBytes(p.PaymasterData)
	if p.PaymasterVerificationGasLimit != nil {
		op.PaymasterVerificationGasLimit = p.PaymasterVerificationGasLimit
	}
	if p.PaymasterPostOpGasLimit != nil {
		op.PaymasterPostOpGasLimit = p.PaymasterPostOpGasLimit
	}
}

type paymasterResult struct {
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterAndData              hexutil.Bytes   `json:"paymasterAndData,omitempty"`
	IsFinal                       bool            `json:"isFinal,omitempty"`
}

func (r paymasterResult) decode() (*PaymasterData, error) {
	out := &PaymasterData{
		PaymasterVerificationGasLimit: fromHexBig(r.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       fromHexBig(r.PaymasterPostOpGasLimit),
		IsFinal:                       r.IsFinal,
	}
	err := errors.Join(
		smartaccount.CheckUint128("paymasterVerificationGasLimit", out.PaymasterVerificationGasLimit),
		smartaccount.CheckUint128("paymasterPostOpGasLimit", out.PaymasterPostOpGasLimit),
	)
	if err != nil {
		return nil, err
	}
	switch {
	case r.Paymaster != nil:
		out.Paymaster = *r.Paymaster
		out.PaymasterData = r.PaymasterData
	case len(r.PaymasterAndData) >= common.AddressLength:
		// v0.6 packs address || data
		out.Paymaster = common.BytesToAddress(r.PaymasterAndData[:common.AddressLength])
		out.PaymasterData = r.PaymasterAndData[common.AddressLength:]
	default:
		return nil, errors.New("paymaster response missing paymaster address")
	}
	return out, nil
}

type PaymasterClient struct {
	rpc        *rpc.Client
	entryPoint common.Address
	version    smartaccount.EntryPointVersion
}

var _ Paymaster = (*PaymasterClient)(nil)

func DialPaymaster(ctx context.Context, url string, entryPoint common.Address, version smartaccount.EntryPointVersion) (*PaymasterClient, error) {
	if err := version.Validate(); err != nil {
		return nil, err
	}
	c, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(&http.Client{Timeout: paymasterTimeout}))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to paymaster %s: %w", url, err)
	}
	return NewPaymasterClient(c, entryPoint, version), nil
}

func NewPaymasterClient(c *rpc.Client, entryPoint common.Address, version smartaccount.EntryPointVersion) *PaymasterClient {
	return &PaymasterClient{rpc: c, entryPoint: entryPoint, version: version}
}

func (p *PaymasterClient) Close() {
	p.rpc.Close()
}

func (p *PaymasterClient) GetPaymasterStubData(ctx context.Context, op *smartaccount.UserOperation, chainID uint64) (*PaymasterData, error) {
	return p.call(ctx, "pm_getPaymasterStubData", op, chainID)
}

func (p *PaymasterClient) GetPaymasterData(ctx context.Context, op *smartaccount.UserOperation, chainID uint64) (*PaymasterData, error) {
	return p.call(ctx, "pm_getPaymasterData", op, chainID)
}

// Params: [ userOp, entryPoint, chainId, context ]
func (p *PaymasterClient) call(ctx context.Context, method string, op *smartaccount.UserOperation, chainID uint64) (*PaymasterData, error) {
	var res paymasterResult
	err := p.rpc.CallContext(ctx, &res, method,
		encodeUserOp(op, p.version),
		p.entryPoint,
		hexutil.Uint64(chainID),
		map[string]interface{}{},
	)
	if err != nil {
		return nil, fmt.Errorf("paymaster %s failed: %w", method, chain.Classify(err))
	}
	data, err := res.decode()
	if err != nil {
		return nil, fmt.Errorf("paymaster %s: %w", method, err)
	}
	return data, nil
}
