// Package clients builds and caches the per-chain network clients: a contract
// reader for the chain RPC, a bundler and, when configured, a paymaster.
package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/compose-network/passkey-wallet/internal/bundler"
	"github.com/compose-network/passkey-wallet/internal/chain"
	"github.com/compose-network/passkey-wallet/internal/lazy"
	"github.com/compose-network/passkey-wallet/internal/logger"
	"github.com/compose-network/passkey-wallet/internal/smartaccount"
)

var ErrChainNotConfigured = errors.New("chain not configured")

// Clients is the set of collaborators used for one chain. Paymaster is nil
// when the chain has no sponsorship endpoint.
type Clients struct {
	ChainID   uint64
	Chain     bind.ContractCaller
	Bundler   bundler.Bundler
	Paymaster bundler.Paymaster
}

// Factory builds the clients for one chain.
type Factory func(ctx context.Context, c chain.Chain) (*Clients, error)

// PaymasterFactory builds a paymaster client for an override URL.
type PaymasterFactory func(ctx context.Context, url string) (bundler.Paymaster, error)

// Cache hands out clients per chain id, building each at most once. Failed
// builds are retried on the next request.
type Cache struct {
	chains     chain.Set
	factory    Factory
	pmFactory  PaymasterFactory
	byChain    *lazy.Group[uint64, *Clients]
	paymasters *lazy.Group[string, bundler.Paymaster]
}

func NewCache(chains chain.Set, factory Factory, pmFactory PaymasterFactory) *Cache {
	return &Cache{
		chains:     chains,
		factory:    factory,
		pmFactory:  pmFactory,
		byChain:    lazy.NewGroup[uint64, *Clients](),
		paymasters: lazy.NewGroup[string, bundler.Paymaster](),
	}
}

func (c *Cache) Chains() chain.Set {
	return c.chains
}

func (c *Cache) Get(ctx context.Context, chainID uint64) (*Clients, error) {
	ch, ok := c.chains.Get(chainID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrChainNotConfigured, chainID)
	}
	return c.byChain.Do(ctx, chainID, func(ctx context.Context) (*Clients, error) {
		logger.Debug("Building clients for %s", ch)
		return c.factory(ctx, ch)
	})
}

// Paymaster returns the paymaster client for url, shared across chains.
func (c *Cache) Paymaster(ctx context.Context, url string) (bundler.Paymaster, error) {
	if url == "" {
		return nil, errors.New("paymaster url is empty")
	}
	if c.pmFactory == nil {
		return nil, errors.New("paymaster overrides are not supported")
	}
	return c.paymasters.Do(ctx, url, func(ctx context.Context) (bundler.Paymaster, error) {
		return c.pmFactory(ctx, url)
	})
}

func (c *Cache) State(chainID uint64) lazy.State {
	return c.byChain.State(chainID)
}

// DialFactory connects to the real chain RPC, bundler and paymaster.
func DialFactory(addrs smartaccount.Addresses) Factory {
	return func(ctx context.Context, c chain.Chain) (*Clients, error) {
		eth, err := ethclient.DialContext(ctx, c.RPCURL())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to RPC URL %s: %w", c.RPCURL(), chain.Classify(err))
		}
		b, err := bundler.Dial(ctx, c.BundlerURL(), addrs.EntryPoint, addrs.EntryPointVersion)
		if err != nil {
			eth.Close()
			return nil, err
		}
		out := &Clients{ChainID: c.ID(), Chain: eth, Bundler: b}
		if c.PaymasterURL() != "" {
			pm, err := bundler.DialPaymaster(ctx, c.PaymasterURL(), addrs.EntryPoint, addrs.EntryPointVersion)
			if err != nil {
				eth.Close()
				b.Close()
				return nil, err
			}
			out.Paymaster = pm
		}
		return out, nil
	}
}

func DialPaymasterFactory(addrs smartaccount.Addresses) PaymasterFactory {
	return func(ctx context.Context, url string) (bundler.Paymaster, error) {
		return bundler.DialPaymaster(ctx, url, addrs.EntryPoint, addrs.EntryPointVersion)
	}
}
