// Package connector adapts the provider to the connect / disconnect /
// switchChain surface of multi-wallet connection frameworks.
package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"

	"github.com/compose-network/passkey-wallet/internal/events"
	"github.com/compose-network/passkey-wallet/internal/logger"
	"github.com/compose-network/passkey-wallet/internal/provider"
)

const (
	ID   = "passkey"
	Name = "Passkey Wallet"

	authorizeAttempts = 3
)

var ErrNotConnected = errors.New("connector not connected")

// Provider is the part of the dispatcher the connector drives.
type Provider interface {
	Call(ctx context.Context, method string, params ...interface{}) (interface{}, error)
	Emitter() *events.Emitter
}

var _ Provider = (*provider.Provider)(nil)

// ConnectOptions carries the caller's intent into a connect call.
type ConnectOptions struct {
	// AuthType is provider.AuthSignIn or provider.AuthSignUp. Empty means
	// sign in.
	AuthType string
	// Label names the passkey on sign up.
	Label string
	// ChainID switches to that chain after connecting when not zero.
	ChainID uint64
	// IsReconnecting restores an existing session without prompting.
	IsReconnecting bool
}

// Change is a framework change notification. Only the fields that changed
// are set.
type Change struct {
	Accounts []common.Address
	ChainID  uint64
}

// Sink receives the notifications a connection framework expects from a
// connector.
type Sink interface {
	Change(Change)
	Connect(accounts []common.Address, chainID uint64)
	Disconnect()
}

type Connector struct {
	provider Provider
	emitter  *events.Emitter
	sink     Sink
	log      *logrus.Entry

	mu       sync.Mutex
	handles  map[events.Name]events.Handle
	accounts []common.Address
}

func New(p Provider, sink Sink) *Connector {
	return &Connector{
		provider: p,
		emitter:  p.Emitter(),
		sink:     sink,
		log:      logger.WithModule("connector"),
		handles:  make(map[events.Name]events.Handle),
	}
}

// Setup attaches the connect listener so a session restored by the provider
// reaches the framework. Calling it again has no effect.
func (c *Connector) Setup() {
	c.attach(events.Connect, c.onConnect)
	// accountsChanged precedes connect, the connect handler needs its payload.
	c.attach(events.AccountsChanged, c.onAccountsChanged)
}

func (c *Connector) Connect(ctx context.Context, opts ConnectOptions) ([]common.Address, uint64, error) {
	c.Setup()
	// The result of this call is the connection, not the connect event.
	c.detach(events.Connect)

	var accounts []common.Address
	var err error
	if opts.IsReconnecting {
		accounts, err = c.GetAccounts(ctx)
		if err == nil && len(accounts) == 0 {
			err = ErrNotConnected
		}
	} else {
		accounts, err = c.requestAccounts(ctx, opts)
	}
	if err != nil {
		c.Setup()
		return nil, 0, err
	}

	current, err := c.GetChainID(ctx)
	if err != nil {
		c.Setup()
		return nil, 0, err
	}
	if opts.ChainID != 0 && opts.ChainID != current {
		if err := c.SwitchChain(ctx, opts.ChainID); err != nil {
			c.log.WithError(err).Warnf("staying on chain %d", current)
		} else {
			current = opts.ChainID
		}
	}

	c.mu.Lock()
	c.accounts = accounts
	c.mu.Unlock()
	c.attach(events.AccountsChanged, c.onAccountsChanged)
	c.attach(events.ChainChanged, c.onChainChanged)
	c.attach(events.Disconnect, c.onDisconnect)
	c.log.WithFields(logrus.Fields{"accounts": len(accounts), "chain": current}).Info("connected")
	return accounts, current, nil
}

func (c *Connector) requestAccounts(ctx context.Context, opts ConnectOptions) ([]common.Address, error) {
	params := map[string]string{"authType": opts.AuthType}
	if opts.AuthType == "" {
		params["authType"] = provider.AuthSignIn
	}
	if opts.Label != "" {
		params["label"] = opts.Label
	}
	res, err := c.provider.Call(ctx, "eth_requestAccounts", params)
	if err != nil {
		return nil, err
	}
	return decode[[]common.Address](res)
}

// Disconnect ends the session and re-attaches the connect listener, so the
// same connector can connect again.
func (c *Connector) Disconnect(ctx context.Context) error {
	if _, err := c.provider.Call(ctx, "wallet_disconnect"); err != nil {
		return err
	}
	c.reset()
	return nil
}

func (c *Connector) SwitchChain(ctx context.Context, chainID uint64) error {
	_, err := c.provider.Call(ctx, "wallet_switchEthereumChain", map[string]hexutil.Uint64{"chainId": hexutil.Uint64(chainID)})
	return err
}

func (c *Connector) GetAccounts(ctx context.Context) ([]common.Address, error) {
	res, err := c.provider.Call(ctx, "eth_accounts")
	if err != nil {
		return nil, err
	}
	return decode[[]common.Address](res)
}

func (c *Connector) GetChainID(ctx context.Context) (uint64, error) {
	res, err := c.provider.Call(ctx, "eth_chainId")
	if err != nil {
		return 0, err
	}
	id, err := decode[hexutil.Uint64](res)
	return uint64(id), err
}

// IsAuthorized reports whether the provider has an account, retrying
// failed lookups with backoff.
func (c *Connector) IsAuthorized(ctx context.Context) bool {
	var accounts []common.Address
	err := retry.Retry(func(attempt uint) error {
		var err error
		accounts, err = c.GetAccounts(ctx)
		if err != nil {
			c.log.Debugf("account lookup attempt %d failed: %v", attempt, err)
		}
		return err
	},
		strategy.Limit(authorizeAttempts),
		func(uint) bool { return ctx.Err() == nil },
		strategy.Backoff(backoff.Linear(10*time.Millisecond)),
	)
	return err == nil && len(accounts) > 0
}

// Attached reports whether a listener for name is attached.
func (c *Connector) Attached(name events.Name) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handles[name]
	return ok
}

func (c *Connector) attach(name events.Name, fn events.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handles[name]; ok {
		return
	}
	c.handles[name] = c.emitter.On(name, fn)
}

func (c *Connector) detach(name events.Name) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.handles[name]; ok {
		c.emitter.Off(name, h)
		delete(c.handles, name)
	}
}

func (c *Connector) reset() {
	c.detach(events.ChainChanged)
	c.detach(events.Disconnect)
	c.mu.Lock()
	c.accounts = nil
	c.mu.Unlock()
	c.Setup()
}

func (c *Connector) onAccountsChanged(payload interface{}) {
	accounts, _ := payload.([]common.Address)
	c.mu.Lock()
	c.accounts = accounts
	_, connected := c.handles[events.Disconnect]
	c.mu.Unlock()

	switch {
	case len(accounts) == 0 && connected:
		c.onDisconnect(nil)
	case connected:
		c.sink.Change(Change{Accounts: accounts})
	}
}

func (c *Connector) onChainChanged(payload interface{}) {
	id, ok := payload.(hexutil.Uint64)
	if !ok {
		c.log.Warnf("unexpected chainChanged payload %T", payload)
		return
	}
	c.sink.Change(Change{ChainID: uint64(id)})
}

func (c *Connector) onConnect(payload interface{}) {
	info, ok := payload.(events.ConnectInfo)
	if !ok {
		c.log.Warnf("unexpected connect payload %T", payload)
		return
	}
	c.mu.Lock()
	accounts := append([]common.Address(nil), c.accounts...)
	c.mu.Unlock()

	c.detach(events.Connect)
	c.attach(events.ChainChanged, c.onChainChanged)
	c.attach(events.Disconnect, c.onDisconnect)
	c.sink.Connect(accounts, uint64(info.ChainID))
}

func (c *Connector) onDisconnect(interface{}) {
	c.reset()
	c.sink.Disconnect()
}

// decode converts a provider result into T. Results arrive typed from an
// in-process provider and as JSON values from a remote one.
func decode[T any](res interface{}) (T, error) {
	if v, ok := res.(T); ok {
		return v, nil
	}
	var out T
	raw, err := json.Marshal(res)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("unexpected provider result %s: %w", raw, err)
	}
	return out, nil
}
