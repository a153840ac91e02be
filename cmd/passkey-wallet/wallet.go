package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/compose-network/passkey-wallet/configs"
	"github.com/compose-network/passkey-wallet/internal/account"
	"github.com/compose-network/passkey-wallet/internal/clients"
	"github.com/compose-network/passkey-wallet/internal/credentials"
	"github.com/compose-network/passkey-wallet/internal/events"
	"github.com/compose-network/passkey-wallet/internal/logger"
	"github.com/compose-network/passkey-wallet/internal/metrics"
	"github.com/compose-network/passkey-wallet/internal/provider"
	"github.com/compose-network/passkey-wallet/internal/registry"
	"github.com/compose-network/passkey-wallet/internal/webauthn"
)

type wallet struct {
	provider *provider.Provider
	store    *credentials.Store
}

func (w *wallet) Close() error {
	return w.store.Close()
}

// openWallet wires the dispatcher from the configuration. The software
// authenticator shares the wallet database, so sessions and passkeys
// survive restarts.
func openWallet(c *cli.Context) (*wallet, error) {
	cfg := &configs.Values
	if path := c.String("config"); path != "" {
		loaded, err := configs.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	level := cfg.LogLevel
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	logger.SetLogLevelFromString(level)

	store, err := openStore(c.String("store"), cfg.Wallet.StoragePath)
	if err != nil {
		return nil, err
	}
	w, err := newWallet(c.Context, cfg, store)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	return w, nil
}

func openStore(flag, configured string) (*credentials.Store, error) {
	path := configured
	if flag != "" {
		path = flag
	}
	if path == "" {
		logger.Warn("No storage path configured, the session is kept in memory only")
		return credentials.NewMemory(), nil
	}
	return credentials.Open(path)
}

func newWallet(ctx context.Context, cfg *configs.App, store *credentials.Store) (*wallet, error) {
	addrs := cfg.Addresses()
	cache := clients.NewCache(cfg.ChainSet(), clients.DialFactory(addrs), clients.DialPaymasterFactory(addrs))

	registryClients, err := cache.Get(ctx, cfg.Wallet.RegistryChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to registry chain: %w", err)
	}
	auth, err := webauthn.NewSoftwareAuthenticator(cfg.Wallet.Origin, store.DB())
	if err != nil {
		return nil, err
	}

	acct, err := account.New(cfg.AccountConfig(), account.Deps{
		Clients:       cache,
		Authenticator: auth,
		Registry:      registry.New(cfg.Registry.URL, cfg.Registry.Address, registryClients.Chain),
		Store:         store,
	})
	if err != nil {
		return nil, err
	}

	emitter := events.NewEmitter()
	for _, name := range []events.Name{events.Connect, events.Disconnect, events.AccountsChanged, events.ChainChanged} {
		name := name
		emitter.On(name, func(payload interface{}) {
			logger.Info("event %s: %s", name, toJSON(payload))
		})
	}

	p, err := provider.New(
		provider.Config{Chains: cfg.ChainSet(), DefaultChainID: cfg.Wallet.DefaultChainID},
		provider.Deps{Account: acct, Store: store},
		provider.WithEmitter(emitter),
		provider.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		return nil, err
	}
	return &wallet{provider: p, store: store}, nil
}

func request(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: request <method> [json-params]", 2)
	}
	method := c.Args().Get(0)
	params := json.RawMessage(c.Args().Get(1))
	if len(params) > 0 && !json.Valid(params) {
		return cli.Exit(fmt.Sprintf("params are not valid JSON: %s", params), 2)
	}
	return run(c, method, params)
}

func accounts(c *cli.Context) error {
	return run(c, "eth_accounts", nil)
}

func chainID(c *cli.Context) error {
	return run(c, "eth_chainId", nil)
}

func disconnect(c *cli.Context) error {
	return run(c, "wallet_disconnect", nil)
}

func run(c *cli.Context, method string, params json.RawMessage) error {
	w, err := openWallet(c)
	if err != nil {
		return err
	}
	defer w.Close()

	res, err := w.provider.Request(c.Context, method, params)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, toJSON(res))
	return nil
}

func toJSON(v interface{}) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(out)
}
