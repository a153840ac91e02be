// Package provider is the EIP-1193 request dispatcher of the wallet. It
// routes JSON-RPC style requests to the account, mirrors the chain id and
// account list, and emits the provider lifecycle events.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/sirupsen/logrus"

	"github.com/compose-network/passkey-wallet/internal/account"
	"github.com/compose-network/passkey-wallet/internal/chain"
	"github.com/compose-network/passkey-wallet/internal/credentials"
	"github.com/compose-network/passkey-wallet/internal/events"
	"github.com/compose-network/passkey-wallet/internal/logger"
	"github.com/compose-network/passkey-wallet/internal/metrics"
	"github.com/compose-network/passkey-wallet/internal/smartaccount"
)

// Account is what the dispatcher needs from the account implementation.
type Account interface {
	Address() (common.Address, bool)
	ChainID() uint64
	SetChain(chainID uint64)
	Restore(address common.Address, cred *credentials.Credential) error
	Forget()
	Create(ctx context.Context, label string) (common.Address, error)
	Load(ctx context.Context) (common.Address, bool, error)
	Execute(ctx context.Context, calls []smartaccount.Call, paymasterURL string) (common.Hash, error)
	EstimateGas(ctx context.Context, calls []smartaccount.Call) (*big.Int, error)
	GrantPermissions(ctx context.Context, req account.PermissionRequest) (*account.GrantResult, error)
	SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error)
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}

var _ Account = (*account.Account)(nil)

type Config struct {
	Chains         chain.Set
	DefaultChainID uint64
}

type Deps struct {
	Account Account
	Store   *credentials.Store
}

type Option func(*Provider)

// WithEmitter makes the provider emit on e. Listeners attached to e before
// New observe the events of session hydration.
func WithEmitter(e *events.Emitter) Option {
	return func(p *Provider) {
		p.emitter = e
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) {
		p.metrics = m
	}
}

type handlerFunc func(ctx context.Context, params []json.RawMessage) (interface{}, error)

type Provider struct {
	cfg      Config
	account  Account
	store    *credentials.Store
	emitter  *events.Emitter
	metrics  *metrics.Metrics
	log      *logrus.Entry
	handlers map[string]handlerFunc

	mu      sync.RWMutex
	chainID uint64

	// connectMu keeps concurrent eth_requestAccounts from creating or
	// loading two accounts.
	connectMu sync.Mutex
	// switchMu makes the current-chain check and the switch one step.
	switchMu sync.Mutex
}

// New builds the dispatcher and restores a remembered session from the
// store. Restoring never prompts the authenticator.
func New(cfg Config, deps Deps, opts ...Option) (*Provider, error) {
	var errs []error
	if cfg.Chains.Len() == 0 {
		errs = append(errs, errors.New("at least one chain is required"))
	}
	if !cfg.Chains.Has(cfg.DefaultChainID) {
		errs = append(errs, fmt.Errorf("default chain %d is not configured", cfg.DefaultChainID))
	}
	if deps.Account == nil {
		errs = append(errs, errors.New("account is required"))
	}
	if deps.Store == nil {
		errs = append(errs, errors.New("credential store is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid provider configuration: %w", err)
	}

	p := &Provider{
		cfg:     cfg,
		account: deps.Account,
		store:   deps.Store,
		log:     logger.WithModule("provider"),
		chainID: cfg.DefaultChainID,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.emitter == nil {
		p.emitter = events.NewEmitter()
	}
	p.handlers = p.dispatchTable()

	if err := p.hydrate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) Emitter() *events.Emitter {
	return p.emitter
}

func (p *Provider) ChainID() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.chainID
}

func (p *Provider) Chains() chain.Set {
	return p.cfg.Chains
}

// hydrate restores the persisted chain id and session. An address without a
// usable credential is purged.
func (p *Provider) hydrate() error {
	chainID, ok, err := p.store.ChainID()
	if err != nil {
		return err
	}
	if ok && p.cfg.Chains.Has(chainID) {
		p.setChain(chainID)
	} else {
		if ok {
			p.log.Warnf("persisted chain %d is not configured, using %d", chainID, p.cfg.DefaultChainID)
		}
		p.setChain(p.cfg.DefaultChainID)
	}

	addr, ok, err := p.store.Address()
	if err != nil || !ok {
		return err
	}
	cred, err := p.store.Load(addr)
	if err != nil {
		return err
	}
	if cred == nil {
		p.log.WithField("address", addr.Hex()).Info("no credential for remembered account, forgetting it")
		return p.store.ClearAddress()
	}
	if err := p.account.Restore(addr, cred); err != nil {
		p.log.WithError(err).Warn("discarding remembered session")
		return p.store.Reset()
	}

	p.log.WithFields(logrus.Fields{"address": addr.Hex(), "chain": p.ChainID()}).Info("restored session")
	p.announce(addr)
	return nil
}

func (p *Provider) setChain(chainID uint64) {
	p.mu.Lock()
	p.chainID = chainID
	p.mu.Unlock()
	p.account.SetChain(chainID)
}

// announce emits accountsChanged followed by connect.
func (p *Provider) announce(addr common.Address) {
	p.emitter.Emit(events.AccountsChanged, []common.Address{addr})
	p.emitter.Emit(events.Connect, events.ConnectInfo{ChainID: hexutil.Uint64(p.ChainID())})
}

// Request dispatches method with its JSON array of positional params. Every
// failure is an *RPCError.
func (p *Provider) Request(ctx context.Context, method string, rawParams json.RawMessage) (interface{}, error) {
	start := time.Now()
	log := p.log.WithField("method", method)

	result, err := p.dispatch(ctx, method, rawParams)
	code := metrics.CodeOK
	if err != nil {
		code = err.Code
		log.WithField("code", err.Code).Debugf("request failed: %s", err.Message)
	} else {
		log.Debug("request served")
	}
	p.metrics.Observe(method, code, time.Since(start))

	if err != nil {
		return nil, err
	}
	return result, nil
}

// Call is Request with params given as values.
func (p *Provider) Call(ctx context.Context, method string, params ...interface{}) (interface{}, error) {
	if params == nil {
		params = []interface{}{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, newError(CodeUnsupportedMethod, "invalid params: %v", err)
	}
	return p.Request(ctx, method, raw)
}

func (p *Provider) dispatch(ctx context.Context, method string, rawParams json.RawMessage) (interface{}, *RPCError) {
	handler, ok := p.handlers[method]
	if !ok {
		return nil, newError(CodeUnsupportedMethod, "Method %s not supported", method)
	}
	params, err := splitParams(rawParams)
	if err != nil {
		return nil, newError(CodeUnsupportedMethod, "invalid params for %s: %v", method, err)
	}
	result, err := handler(ctx, params)
	if err != nil {
		return nil, toRPCError(err, CodeUnauthorized)
	}
	return result, nil
}
