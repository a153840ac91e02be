// Package bundler talks to ERC-4337 bundlers and ERC-7677 paymasters over
// JSON-RPC.
package bundler

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/compose-network/passkey-wallet/internal/chain"
	"github.com/compose-network/passkey-wallet/internal/smartaccount"
)

// Bundler is the subset of the bundler API the wallet relies on.
type Bundler interface {
	EstimateUserOperationGas(ctx context.Context, op *smartaccount.UserOperation) (*GasEstimate, error)
	SendUserOperation(ctx context.Context, op *smartaccount.UserOperation) (common.Hash, error)
	// GetUserOperationReceipt returns nil without error while the operation
	// is not yet included.
	GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
	GetUserOperationGasPrice(ctx context.Context) (*GasPrice, error)
	SupportedEntryPoints(ctx context.Context) ([]common.Address, error)
}

type Client struct {
	rpc        *rpc.Client
	entryPoint common.Address
	version    smartaccount.EntryPointVersion
}

var _ Bundler = (*Client)(nil)

func Dial(ctx context.Context, url string, entryPoint common.Address, version smartaccount.EntryPointVersion) (*Client, error) {
	if err := version.Validate(); err != nil {
		return nil, err
	}
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bundler %s: %w", url, err)
	}
	return NewClient(c, entryPoint, version), nil
}

func NewClient(c *rpc.Client, entryPoint common.Address, version smartaccount.EntryPointVersion) *Client {
	return &Client{rpc: c, entryPoint: entryPoint, version: version}
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) EntryPoint() common.Address {
	return c.entryPoint
}

func (c *Client) EstimateUserOperationGas(ctx context.Context, op *smartaccount.UserOperation) (*GasEstimate, error) {
	var res gasEstimateJSON
	if err := c.rpc.CallContext(ctx, &res, "eth_estimateUserOperationGas", encodeUserOp(op, c.version), c.entryPoint); err != nil {
		return nil, fmt.Errorf("failed to estimate user operation gas: %w", chain.Classify(err))
	}
	if res.PreVerificationGas == nil || res.VerificationGasLimit == nil || res.CallGasLimit == nil {
		return nil, errors.New("bundler returned an incomplete gas estimate")
	}
	est, err := res.decode()
	if err != nil {
		return nil, fmt.Errorf("bundler returned an invalid gas estimate: %w", err)
	}
	return est, nil
}

func (c *Client) SendUserOperation(ctx context.Context, op *smartaccount.UserOperation) (common.Hash, error) {
	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendUserOperation", encodeUserOp(op, c.version), c.entryPoint); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send user operation: %w", chain.Classify(err))
	}
	return hash, nil
}

func (c *Client) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var receipt *Receipt
	if err := c.rpc.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", hash); err != nil {
		return nil, fmt.Errorf("failed to get user operation receipt: %w", chain.Classify(err))
	}
	return receipt, nil
}

// GetUserOperationGasPrice returns the bundler's "fast" fee tier.
func (c *Client) GetUserOperationGasPrice(ctx context.Context) (*GasPrice, error) {
	var res gasPriceTiersJSON
	if err := c.rpc.CallContext(ctx, &res, "pimlico_getUserOperationGasPrice"); err != nil {
		return nil, fmt.Errorf("failed to get user operation gas price: %w", chain.Classify(err))
	}
	return res.Fast.decode()
}

func (c *Client) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var eps []common.Address
	if err := c.rpc.CallContext(ctx, &eps, "eth_supportedEntryPoints"); err != nil {
		return nil, fmt.Errorf("failed to get supported entry points: %w", chain.Classify(err))
	}
	return eps, nil
}
