package test

import (
	"context"
	"os"

	"github.com/compose-network/passkey-wallet/configs"
	"github.com/compose-network/passkey-wallet/internal/account"
	"github.com/compose-network/passkey-wallet/internal/clients"
	"github.com/compose-network/passkey-wallet/internal/credentials"
	"github.com/compose-network/passkey-wallet/internal/events"
	"github.com/compose-network/passkey-wallet/internal/logger"
	"github.com/compose-network/passkey-wallet/internal/provider"
	"github.com/compose-network/passkey-wallet/internal/registry"
	"github.com/compose-network/passkey-wallet/internal/webauthn"
)

// e2eEnvVar enables the suite. It talks to the chains, bundlers and
// registry of the loaded configuration.
const e2eEnvVar = "PASSKEY_WALLET_E2E"

// Global test variables
var (
	Cache         *clients.Cache
	Registry      *registry.Client
	Authenticator *webauthn.SoftwareAuthenticator
)

func enabled() bool {
	return os.Getenv(e2eEnvVar) != ""
}

func setup() {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}
	logger.SetLogLevelFromString(logLevel)

	cfg := &configs.Values
	addrs := cfg.Addresses()
	Cache = clients.NewCache(cfg.ChainSet(), clients.DialFactory(addrs), clients.DialPaymasterFactory(addrs))

	registryClients, err := Cache.Get(context.Background(), cfg.Wallet.RegistryChainID)
	if err != nil {
		panic("Failed to connect to registry chain: " + err.Error())
	}
	Registry = registry.New(cfg.Registry.URL, cfg.Registry.Address, registryClients.Chain)

	Authenticator, err = webauthn.NewSoftwareAuthenticator(cfg.Wallet.Origin, nil)
	if err != nil {
		panic("Failed to create authenticator: " + err.Error())
	}
}

// Wallet is one dispatcher instance with the events it emitted.
type Wallet struct {
	Provider *provider.Provider
	Account  *account.Account
	Store    *credentials.Store
	Events   chan events.Event
}

// newWallet opens a dispatcher over store, sharing the suite's network
// clients and authenticator. A nil store starts from empty storage.
func newWallet(store *credentials.Store) (*Wallet, error) {
	if store == nil {
		store = credentials.NewMemory()
	}
	cfg := &configs.Values
	acct, err := account.New(cfg.AccountConfig(), account.Deps{
		Clients:       Cache,
		Authenticator: Authenticator,
		Registry:      Registry,
		Store:         store,
	})
	if err != nil {
		return nil, err
	}

	w := &Wallet{Account: acct, Store: store, Events: make(chan events.Event, 16)}
	emitter := events.NewEmitter()
	emitter.Subscribe(w.Events)
	w.Provider, err = provider.New(
		provider.Config{Chains: cfg.ChainSet(), DefaultChainID: cfg.Wallet.DefaultChainID},
		provider.Deps{Account: acct, Store: store},
		provider.WithEmitter(emitter),
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}
