package bundler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/strategy"
	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/passkey-wallet/internal/logger"
)

var (
	ErrReceiptTimeout = errors.New("timed out waiting for user operation receipt")
	ErrReverted       = errors.New("user operation reverted")

	errPending = errors.New("user operation pending")
)

// WaitForReceipt polls the bundler every interval until the operation is
// included or timeout elapses. An included operation that failed is returned
// together with an ErrReverted error.
func WaitForReceipt(ctx context.Context, b Bundler, hash common.Hash, timeout, interval time.Duration) (*Receipt, error) {
	if interval <= 0 {
		interval = time.Second
	}
	attempts := uint(timeout/interval) + 1
	log := logger.WithModule("bundler")

	var receipt *Receipt
	err := retry.Retry(func(attempt uint) error {
		r, err := b.GetUserOperationReceipt(ctx, hash)
		if err != nil {
			log.Debugf("receipt poll %d for %s failed: %v", attempt, hash.Hex(), err)
			return err
		}
		if r == nil {
			return errPending
		}
		receipt = r
		return nil
	},
		strategy.Limit(attempts),
		func(uint) bool { return ctx.Err() == nil },
		strategy.Wait(interval),
	)

	switch {
	case receipt != nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, errPending):
		return nil, fmt.Errorf("%w: %s after %s", ErrReceiptTimeout, hash.Hex(), timeout)
	default:
		return nil, fmt.Errorf("%w: %s: %w", ErrReceiptTimeout, hash.Hex(), err)
	}

	if !receipt.Success {
		reason := receipt.Reason
		if reason == "" {
			reason = "no reason given"
		}
		return receipt, fmt.Errorf("%w: %s (%s)", ErrReverted, hash.Hex(), reason)
	}
	log.Infof("user operation %s included in tx %s", hash.Hex(), receipt.TxReceipt.TransactionHash.Hex())
	return receipt, nil
}
