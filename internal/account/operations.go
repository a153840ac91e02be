package account

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/passkey-wallet/internal/bundler"
	"github.com/compose-network/passkey-wallet/internal/clients"
	"github.com/compose-network/passkey-wallet/internal/smartaccount"
)

// operation is a fully gassed user operation that only lacks its signature.
type operation struct {
	op      *smartaccount.UserOperation
	handle  *smartaccount.Handle
	clients *clients.Clients
	chainID uint64
}

// prepare assembles, prices and gasses an operation for calls. The
// signature field holds the mock signature. final requests the paymaster's
// final data.
func (a *Account) prepare(ctx context.Context, calls []smartaccount.Call, paymasterURL string, final bool) (*operation, error) {
	h, err := a.ensureHandle(ctx)
	if err != nil {
		return nil, err
	}
	chainID := a.ChainID()
	cl, err := a.clients.Get(ctx, chainID)
	if err != nil {
		return nil, err
	}

	op, err := h.NewUserOperation(ctx, chainID, cl.Chain, calls)
	if err != nil {
		return nil, err
	}
	price, err := cl.Bundler.GetUserOperationGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	op.MaxFeePerGas = price.MaxFeePerGas
	op.MaxPriorityFeePerGas = price.MaxPriorityFeePerGas
	op.Signature = smartaccount.MockWebAuthnSignature()

	pm, err := a.paymaster(ctx, cl, paymasterURL)
	if err != nil {
		return nil, err
	}
	var stub *bundler.PaymasterData
	if pm != nil {
		if stub, err = pm.GetPaymasterStubData(ctx, op, chainID); err != nil {
			return nil, err
		}
		stub.Apply(op)
	}

	est, err := cl.Bundler.EstimateUserOperationGas(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate user operation gas: %w", err)
	}
	est.Apply(op)

	if pm != nil && final && !stub.IsFinal {
		data, err := pm.GetPaymasterData(ctx, op, chainID)
		if err != nil {
			return nil, err
		}
		data.Apply(op)
	}
	if err := op.ValidateGas(); err != nil {
		return nil, err
	}

	return &operation{op: op, handle: h, clients: cl, chainID: chainID}, nil
}

// paymaster picks the override URL first, then the chain's own paymaster
// when sponsorship is enabled.
func (a *Account) paymaster(ctx context.Context, cl *clients.Clients, url string) (bundler.Paymaster, error) {
	if url != "" {
		return a.clients.Paymaster(ctx, url)
	}
	if a.cfg.Sponsored {
		return cl.Paymaster, nil
	}
	return nil, nil
}

// submit signs the prepared operation with the passkey, sends it and waits
// for inclusion. It returns the hash of the bundle transaction.
func (a *Account) submit(ctx context.Context, o *operation) (common.Hash, error) {
	credentialID, err := a.credentialID()
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := o.handle.Hash(o.op, o.chainID)
	if err != nil {
		return common.Hash{}, err
	}
	sig, err := a.signer.SignEncoded(ctx, credentialID, hash[:])
	if err != nil {
		return common.Hash{}, err
	}
	o.op.Signature = sig

	log := a.log.WithField("chain", o.chainID)
	log.Debugf("sending user operation %s with nonce %s", hash.Hex(), o.op.Nonce)
	opHash, err := o.clients.Bundler.SendUserOperation(ctx, o.op)
	if err != nil {
		return common.Hash{}, err
	}
	receipt, err := bundler.WaitForReceipt(ctx, o.clients.Bundler, opHash, a.cfg.ReceiptTimeout, a.cfg.PollInterval)
	if err != nil {
		return common.Hash{}, err
	}
	log.Infof("user operation %s included in %s", opHash.Hex(), receipt.TxReceipt.TransactionHash.Hex())
	return receipt.TxReceipt.TransactionHash, nil
}

// Execute runs calls from the account in one user operation. paymasterURL,
// when set, sponsors this operation only.
func (a *Account) Execute(ctx context.Context, calls []smartaccount.Call, paymasterURL string) (common.Hash, error) {
	a.submitMu.Lock()
	defer a.submitMu.Unlock()

	o, err := a.prepare(ctx, calls, paymasterURL, true)
	if err != nil {
		return common.Hash{}, wrap(KindExecution, err)
	}
	txHash, err := a.submit(ctx, o)
	return txHash, wrap(KindExecution, err)
}

// EstimateGas returns the sum of every gas limit the bundler estimates for
// calls. Nothing is signed or sent.
func (a *Account) EstimateGas(ctx context.Context, calls []smartaccount.Call) (*big.Int, error) {
	o, err := a.prepare(ctx, calls, "", false)
	if err != nil {
		return nil, wrap(KindExecution, err)
	}
	total := o.op.TotalGas()
	a.log.Debugf("estimated %s gas for %d calls", total, len(calls))
	return total, nil
}
