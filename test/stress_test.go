package test

import (
	"math"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/passkey-wallet/configs"
	"github.com/compose-network/passkey-wallet/internal/logger"
	"github.com/compose-network/passkey-wallet/internal/smartaccount"
)

const (
	// for single account and multiple operations tests
	numOfOps = 5
	// for concurrent estimation tests
	numOfEstimates = 10
	// general delay between operations
	delay = 100 * time.Millisecond
)

/*
TestStressSequentialOperations sends numOfOps operations from the same
account with delay. Every operation must read the nonce the previous one
consumed.
*/
func TestStressSequentialOperations(t *testing.T) {
	requireE2E(t)
	ctx := t.Context()

	w, err := newWallet(nil)
	require.NoError(t, err)
	addr, _ := signUp(t, w)

	cl, err := Cache.Get(ctx, configs.Values.Wallet.DefaultChainID)
	require.NoError(t, err)
	addrs := configs.Values.Addresses()
	key := smartaccount.NonceKey(addrs.WebAuthnValidator, 0)

	tx := map[string]string{"to": addr.Hex(), "value": "0x0"}
	for i := 0; i < numOfOps; i++ {
		hash, err := w.Provider.Call(ctx, "eth_sendTransaction", tx)
		require.NoError(t, err, "operation %d", i)
		logger.Info("operation %d included in %s", i, hash.(common.Hash).Hex())
		time.Sleep(delay)
	}

	nonce, err := smartaccount.GetNonce(ctx, cl.Chain, addrs.EntryPoint, addr, key)
	require.NoError(t, err)
	// The low 64 bits are the sequence within the validator key.
	seq := new(big.Int).And(nonce, new(big.Int).SetUint64(math.MaxUint64))
	require.EqualValues(t, numOfOps, seq.Uint64())
}

/*
TestStressConcurrentEstimates runs numOfEstimates gas estimations in
parallel from a restored session. They share one smart account handle and
never prompt.
*/
func TestStressConcurrentEstimates(t *testing.T) {
	requireE2E(t)
	ctx := t.Context()

	w, err := newWallet(nil)
	require.NoError(t, err)
	addr, _ := signUp(t, w)

	restored, err := newWallet(w.Store)
	require.NoError(t, err)
	prompts := Authenticator.Prompts()

	tx := map[string]string{"to": addr.Hex(), "value": "0x0"}
	var wg sync.WaitGroup
	results := make([]*hexutil.Big, numOfEstimates)
	errs := make([]error, numOfEstimates)
	for i := 0; i < numOfEstimates; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := restored.Provider.Call(ctx, "eth_estimateGas", tx)
			errs[i] = err
			if err == nil {
				results[i] = res.(*hexutil.Big)
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i], "estimate %d", i)
		require.Positive(t, results[i].ToInt().Sign())
	}
	require.Equal(t, prompts, Authenticator.Prompts())
}
