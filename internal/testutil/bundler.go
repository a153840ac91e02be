package testutil

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/passkey-wallet/internal/bundler"
	"github.com/compose-network/passkey-wallet/internal/smartaccount"
)

// Bundler is an in-memory bundler. Sent operations are included on the next
// receipt poll unless Pending is set.
type Bundler struct {
	mu sync.Mutex

	Estimate   bundler.GasEstimate
	Price      bundler.GasPrice
	EstimateFn func(op *smartaccount.UserOperation) (*bundler.GasEstimate, error)
	SendErr    error
	Pending    bool
	Revert     string
	// OnSend observes every accepted operation.
	OnSend func(op *smartaccount.UserOperation)

	estimated []*smartaccount.UserOperation
	sent      []*smartaccount.UserOperation
	receipts  map[common.Hash]*bundler.Receipt
}

var _ bundler.Bundler = (*Bundler)(nil)

func NewBundler() *Bundler {
	return &Bundler{
		Estimate: bundler.GasEstimate{
			PreVerificationGas:   big.NewInt(50_000),
			VerificationGasLimit: big.NewInt(300_000),
			CallGasLimit:         big.NewInt(100_000),
		},
		Price: bundler.GasPrice{
			MaxFeePerGas:         big.NewInt(2_000_000_000),
			MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
		},
		receipts: make(map[common.Hash]*bundler.Receipt),
	}
}

func (b *Bundler) EstimateUserOperationGas(_ context.Context, op *smartaccount.UserOperation) (*bundler.GasEstimate, error) {
	b.mu.Lock()
	b.estimated = append(b.estimated, op.Copy())
	fn := b.EstimateFn
	est := b.Estimate
	b.mu.Unlock()

	if fn != nil {
		return fn(op)
	}
	return &est, nil
}

func (b *Bundler) SendUserOperation(_ context.Context, op *smartaccount.UserOperation) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SendErr != nil {
		return common.Hash{}, b.SendErr
	}
	if b.OnSend != nil {
		b.OnSend(op.Copy())
	}
	b.sent = append(b.sent, op.Copy())
	hash := common.BigToHash(big.NewInt(int64(len(b.sent))))
	b.receipts[hash] = &bundler.Receipt{
		UserOpHash: hash,
		Sender:     op.Sender,
		Success:    b.Revert == "",
		Reason:     b.Revert,
		TxReceipt:  bundler.TxReceipt{TransactionHash: common.BigToHash(big.NewInt(int64(1000 + len(b.sent))))},
	}
	return hash, nil
}

func (b *Bundler) GetUserOperationReceipt(_ context.Context, hash common.Hash) (*bundler.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Pending {
		return nil, nil
	}
	return b.receipts[hash], nil
}

func (b *Bundler) GetUserOperationGasPrice(context.Context) (*bundler.GasPrice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	price := b.Price
	return &price, nil
}

func (b *Bundler) SupportedEntryPoints(context.Context) ([]common.Address, error) {
	return []common.Address{common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")}, nil
}

func (b *Bundler) Sent() []*smartaccount.UserOperation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*smartaccount.UserOperation(nil), b.sent...)
}

func (b *Bundler) Estimated() []*smartaccount.UserOperation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*smartaccount.UserOperation(nil), b.estimated...)
}

// Paymaster records the ERC-7677 calls it receives.
type Paymaster struct {
	mu      sync.Mutex
	Address common.Address
	calls   []string
}

var _ bundler.Paymaster = (*Paymaster)(nil)

func NewPaymaster() *Paymaster {
	return &Paymaster{Address: common.HexToAddress("0x00000000000000fB866DaAA79352cC568a005D96")}
}

func (p *Paymaster) GetPaymasterStubData(context.Context, *smartaccount.UserOperation, uint64) (*bundler.PaymasterData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "stub")
	return &bundler.PaymasterData{
		Paymaster:                     p.Address,
		PaymasterData:                 []byte{0x00},
		PaymasterVerificationGasLimit: big.NewInt(40_000),
		PaymasterPostOpGasLimit:       big.NewInt(10_000),
	}, nil
}

func (p *Paymaster) GetPaymasterData(context.Context, *smartaccount.UserOperation, uint64) (*bundler.PaymasterData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "final")
	return &bundler.PaymasterData{Paymaster: p.Address, PaymasterData: []byte{0xc0, 0xff, 0xee}}, nil
}

func (p *Paymaster) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}
