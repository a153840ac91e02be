package configs

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/compose-network/passkey-wallet/internal/account"
	"github.com/compose-network/passkey-wallet/internal/chain"
	"github.com/compose-network/passkey-wallet/internal/logger"
	"github.com/compose-network/passkey-wallet/internal/smartaccount"
)

var (
	//go:embed config.yaml
	embeddedConfig []byte
	Values         App
)

const configPathEnvVar = "CONFIG_PATH"

type (
	App struct {
		LogLevel  string                 `yaml:"log-level"`
		Wallet    Wallet                 `yaml:"wallet"`
		Chains    map[string]ChainConfig `yaml:"chains"`
		Registry  RegistryConfig         `yaml:"registry"`
		Contracts ContractsConfig        `yaml:"contracts"`
	}
	Wallet struct {
		DefaultChainID  uint64        `yaml:"default-chain-id"`
		RPID            string        `yaml:"rp-id"`
		RPName          string        `yaml:"rp-name"`
		Origin          string        `yaml:"origin"`
		StoragePath     string        `yaml:"storage-path"`
		ReceiptTimeout  time.Duration `yaml:"receipt-timeout"`
		PollInterval    time.Duration `yaml:"poll-interval"`
		RegistryChainID uint64        `yaml:"registry-chain-id"`
		Sponsored       bool          `yaml:"sponsored"`
	}
	ChainConfig struct {
		ID           uint64 `yaml:"id"`
		RPCURL       string `yaml:"rpc-url"`
		BundlerURL   string `yaml:"bundler-url"`
		PaymasterURL string `yaml:"paymaster-url"`
	}
	RegistryConfig struct {
		URL     string         `yaml:"url"`
		Address common.Address `yaml:"address"`
	}
	ContractsConfig struct {
		EntryPoint        common.Address `yaml:"entry-point"`
		EntryPointVersion string         `yaml:"entry-point-version"`
		Factory           common.Address `yaml:"factory"`
		WebAuthnValidator common.Address `yaml:"webauthn-validator"`
		SmartSessions     common.Address `yaml:"smart-sessions"`
		Policies          PoliciesConfig `yaml:"policies"`
	}
	PoliciesConfig struct {
		OwnableValidator common.Address `yaml:"ownable-validator"`
		Sudo             common.Address `yaml:"sudo"`
		TimeFrame        common.Address `yaml:"time-frame"`
		ValueLimit       common.Address `yaml:"value-limit"`
	}
)

func init() {
	configPath, isSet := os.LookupEnv(configPathEnvVar)
	if !isSet {
		logger.Debug("%s was not set, will use configuration values from embedded config.yaml", configPathEnvVar)
		if err := loadConfig(embeddedConfig, &Values); err != nil {
			panic(err.Error())
		}
		return
	}

	logger.Info("%s environment variable set to: %s. Loading configuration", configPathEnvVar, configPath)
	app, err := Load(configPath)
	if err != nil {
		panic(err.Error())
	}
	Values = *app
}

// Load reads and validates the configuration at path.
func Load(path string) (*App, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var app App
	if err := loadConfig(data, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func loadConfig(data []byte, app *App) error {
	if err := yaml.Unmarshal(data, app); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	app.normalize()

	if err := app.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Debug("configuration loaded successfully. chains: %s, default chain: %d, rp id: %s, registry: %s",
		strings.Join(app.chainNames(), ","), app.Wallet.DefaultChainID, app.Wallet.RPID, app.Registry.URL)
	return nil
}

func (a *App) normalize() {
	a.LogLevel = strings.ToLower(strings.TrimSpace(a.LogLevel))
	a.Registry.URL = strings.TrimRight(a.Registry.URL, "/")
	if a.Wallet.RegistryChainID == 0 {
		a.Wallet.RegistryChainID = a.Wallet.DefaultChainID
	}
	if a.Wallet.RPName == "" {
		a.Wallet.RPName = a.Wallet.RPID
	}
}

func (a *App) validate() error {
	var err error

	if walletErr := a.validateWallet(); walletErr != nil {
		err = errors.Join(err, walletErr)
	}

	if chainErr := a.validateChains(); chainErr != nil {
		err = errors.Join(err, chainErr)
	}

	if registryErr := a.validateRegistry(); registryErr != nil {
		err = errors.Join(err, registryErr)
	}

	if contractsErr := a.Addresses().Validate(); contractsErr != nil {
		err = errors.Join(err, fmt.Errorf("contracts: %w", contractsErr))
	}

	return err
}

func (a *App) validateWallet() error {
	var err error
	if a.Wallet.RPID == "" {
		err = errors.Join(err, errors.New("field: 'wallet.rp-id', must be set"))
	}
	if a.Wallet.Origin == "" {
		err = errors.Join(err, errors.New("field: 'wallet.origin', must be set"))
	}
	if a.Wallet.ReceiptTimeout < 0 || a.Wallet.PollInterval < 0 {
		err = errors.Join(err, errors.New("fields: 'wallet.receipt-timeout', 'wallet.poll-interval', must not be negative"))
	}
	set := a.ChainSet()
	if !set.Has(a.Wallet.DefaultChainID) {
		err = errors.Join(err, fmt.Errorf("field: 'wallet.default-chain-id', chain %d is not configured", a.Wallet.DefaultChainID))
	}
	if !set.Has(a.Wallet.RegistryChainID) {
		err = errors.Join(err, fmt.Errorf("field: 'wallet.registry-chain-id', chain %d is not configured", a.Wallet.RegistryChainID))
	}
	return err
}

func (a *App) validateChains() error {
	var err error
	if len(a.Chains) == 0 {
		err = errors.Join(err, errors.New("at least one chain config must be provided"))
	}

	seen := make(map[uint64]string, len(a.Chains))
	for _, name := range a.chainNames() {
		cfg := a.Chains[name]
		if cfg.ID == 0 {
			err = errors.Join(err, fmt.Errorf("field: 'id', chain: '%s', must be set and non-zero", name))
		}
		if other, dup := seen[cfg.ID]; dup && cfg.ID != 0 {
			err = errors.Join(err, fmt.Errorf("field: 'id', chain: '%s', duplicates chain '%s'", name, other))
		}
		seen[cfg.ID] = name
		if cfg.RPCURL == "" {
			err = errors.Join(err, fmt.Errorf("field: 'rpc-url', chain: '%s', must be set", name))
		}
		if cfg.BundlerURL == "" {
			err = errors.Join(err, fmt.Errorf("field: 'bundler-url', chain: '%s', must be set", name))
		}
	}
	return err
}

func (a *App) validateRegistry() error {
	var err error
	if a.Registry.URL == "" {
		err = errors.Join(err, errors.New("field: 'registry.url', must be set"))
	}
	if a.Registry.Address == (common.Address{}) {
		err = errors.Join(err, errors.New("field: 'registry.address', must be set and non-zero"))
	}
	return err
}

func (a *App) chainNames() []string {
	names := lo.Keys(a.Chains)
	sort.Strings(names)
	return names
}

// ChainSet returns the configured chains.
func (a *App) ChainSet() chain.Set {
	return chain.NewSet(lo.Map(a.chainNames(), func(name string, _ int) chain.Chain {
		cfg := a.Chains[name]
		return chain.New(cfg.ID, name, cfg.RPCURL, cfg.BundlerURL, cfg.PaymasterURL)
	})...)
}

func (a *App) Addresses() smartaccount.Addresses {
	return smartaccount.Addresses{
		EntryPoint:        a.Contracts.EntryPoint,
		EntryPointVersion: smartaccount.EntryPointVersion(a.Contracts.EntryPointVersion),
		Factory:           a.Contracts.Factory,
		WebAuthnValidator: a.Contracts.WebAuthnValidator,
		SmartSessions:     a.Contracts.SmartSessions,
	}
}

func (a *App) Policies() account.Policies {
	return account.Policies{
		OwnableValidator: a.Contracts.Policies.OwnableValidator,
		Sudo:             a.Contracts.Policies.Sudo,
		TimeFrame:        a.Contracts.Policies.TimeFrame,
		ValueLimit:       a.Contracts.Policies.ValueLimit,
	}
}

// AccountConfig is the account configuration for this wallet.
func (a *App) AccountConfig() account.Config {
	return account.Config{
		RPID:           a.Wallet.RPID,
		RPName:         a.Wallet.RPName,
		ChainID:        a.Wallet.DefaultChainID,
		Contracts:      a.Addresses(),
		Policies:       a.Policies(),
		Sponsored:      a.Wallet.Sponsored,
		ReceiptTimeout: a.Wallet.ReceiptTimeout,
		PollInterval:   a.Wallet.PollInterval,
	}
}
