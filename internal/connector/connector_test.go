package connector

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/passkey-wallet/internal/events"
)

var alice = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

// fakeProvider answers the dispatcher methods the connector uses and emits
// the events a real provider would.
type fakeProvider struct {
	emitter *events.Emitter

	mu           sync.Mutex
	accounts     []common.Address
	chainID      uint64
	calls        []string
	request      interface{}
	accountsErrs []error
	requestErr   error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{emitter: events.NewEmitter(), chainID: 84532}
}

func (f *fakeProvider) Emitter() *events.Emitter {
	return f.emitter
}

func (f *fakeProvider) Call(_ context.Context, method string, params ...interface{}) (interface{}, error) {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.mu.Unlock()

	switch method {
	case "eth_accounts":
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.accountsErrs) > 0 {
			err := f.accountsErrs[0]
			f.accountsErrs = f.accountsErrs[1:]
			return nil, err
		}
		return append([]common.Address{}, f.accounts...), nil
	case "eth_chainId":
		// Remote providers answer with JSON strings.
		return hexutil.EncodeUint64(f.chainID), nil
	case "eth_requestAccounts":
		if f.requestErr != nil {
			return nil, f.requestErr
		}
		f.request = params[0]
		f.accounts = []common.Address{alice}
		f.emitter.Emit(events.AccountsChanged, f.accounts)
		f.emitter.Emit(events.Connect, events.ConnectInfo{ChainID: hexutil.Uint64(f.chainID)})
		return f.accounts, nil
	case "wallet_switchEthereumChain":
		id := uint64(params[0].(map[string]hexutil.Uint64)["chainId"])
		if id == 1 {
			return nil, errors.New("chain 1 not configured")
		}
		f.chainID = id
		f.emitter.Emit(events.ChainChanged, hexutil.Uint64(id))
		return nil, nil
	case "wallet_disconnect":
		f.accounts = nil
		f.emitter.Emit(events.Disconnect, events.DisconnectInfo{Code: 4900, Message: "User disconnected"})
		return nil, nil
	}
	return nil, errors.New("unsupported")
}

type recordingSink struct {
	changes     []Change
	connects    [][]common.Address
	chains      []uint64
	disconnects int
}

func (s *recordingSink) Change(c Change) {
	s.changes = append(s.changes, c)
}

func (s *recordingSink) Connect(accounts []common.Address, chainID uint64) {
	s.connects = append(s.connects, accounts)
	s.chains = append(s.chains, chainID)
}

func (s *recordingSink) Disconnect() {
	s.disconnects++
}

func TestSetupIsIdempotent(t *testing.T) {
	p := newFakeProvider()
	c := New(p, &recordingSink{})

	c.Setup()
	c.Setup()
	require.Equal(t, 1, p.emitter.ListenerCount(events.Connect))
	require.Equal(t, 1, p.emitter.ListenerCount(events.AccountsChanged))
	require.True(t, c.Attached(events.Connect))
	require.False(t, c.Attached(events.Disconnect))
}

func TestRestoredSessionReachesSink(t *testing.T) {
	p := newFakeProvider()
	sink := &recordingSink{}
	c := New(p, sink)
	c.Setup()

	p.emitter.Emit(events.AccountsChanged, []common.Address{alice})
	p.emitter.Emit(events.Connect, events.ConnectInfo{ChainID: 84532})

	require.Equal(t, [][]common.Address{{alice}}, sink.connects)
	require.Equal(t, []uint64{84532}, sink.chains)
	require.False(t, c.Attached(events.Connect))
	require.True(t, c.Attached(events.Disconnect))
	require.True(t, c.Attached(events.ChainChanged))
}

func TestConnect(t *testing.T) {
	p := newFakeProvider()
	sink := &recordingSink{}
	c := New(p, sink)
	c.Setup()

	accounts, chainID, err := c.Connect(context.Background(), ConnectOptions{AuthType: "signup", Label: "Test User"})
	require.NoError(t, err)
	require.Equal(t, []common.Address{alice}, accounts)
	require.EqualValues(t, 84532, chainID)
	require.Equal(t, map[string]string{"authType": "signup", "label": "Test User"}, p.request)

	require.Empty(t, sink.connects, "connect result is the connection")
	require.Empty(t, sink.changes)
	for _, name := range []events.Name{events.AccountsChanged, events.ChainChanged, events.Disconnect} {
		require.Equal(t, 1, p.emitter.ListenerCount(name), name)
	}
	require.Zero(t, p.emitter.ListenerCount(events.Connect))
}

func TestConnectDefaultsToSignIn(t *testing.T) {
	p := newFakeProvider()
	c := New(p, &recordingSink{})

	_, _, err := c.Connect(context.Background(), ConnectOptions{})
	require.NoError(t, err)
	require.Contains(t, p.calls, "eth_requestAccounts")
}

func TestConnectSwitchesChain(t *testing.T) {
	p := newFakeProvider()
	c := New(p, &recordingSink{})

	_, chainID, err := c.Connect(context.Background(), ConnectOptions{ChainID: 11155111})
	require.NoError(t, err)
	require.EqualValues(t, 11155111, chainID)

	// An unconfigured chain keeps the current one.
	_, chainID, err = c.Connect(context.Background(), ConnectOptions{IsReconnecting: true, ChainID: 1})
	require.NoError(t, err)
	require.EqualValues(t, 11155111, chainID)
}

func TestConnectFailureRestoresConnectListener(t *testing.T) {
	p := newFakeProvider()
	p.requestErr = errors.New("user rejected")
	c := New(p, &recordingSink{})

	_, _, err := c.Connect(context.Background(), ConnectOptions{AuthType: "signin"})
	require.ErrorContains(t, err, "user rejected")
	require.True(t, c.Attached(events.Connect))

	_, _, err = c.Connect(context.Background(), ConnectOptions{IsReconnecting: true})
	require.ErrorIs(t, err, ErrNotConnected)
	require.True(t, c.Attached(events.Connect))
}

func TestDisconnectReattachesConnect(t *testing.T) {
	p := newFakeProvider()
	sink := &recordingSink{}
	c := New(p, sink)

	_, _, err := c.Connect(context.Background(), ConnectOptions{AuthType: "signup"})
	require.NoError(t, err)
	require.NoError(t, c.Disconnect(context.Background()))

	require.Equal(t, 1, sink.disconnects)
	require.Equal(t, 1, p.emitter.ListenerCount(events.Connect))
	require.Zero(t, p.emitter.ListenerCount(events.Disconnect))
	require.Zero(t, p.emitter.ListenerCount(events.ChainChanged))

	// The same connector connects again.
	_, _, err = c.Connect(context.Background(), ConnectOptions{AuthType: "signin"})
	require.NoError(t, err)
	require.Equal(t, 1, p.emitter.ListenerCount(events.Disconnect))
	require.Equal(t, 1, p.emitter.ListenerCount(events.AccountsChanged))
}

func TestChangeNotifications(t *testing.T) {
	p := newFakeProvider()
	sink := &recordingSink{}
	c := New(p, sink)
	_, _, err := c.Connect(context.Background(), ConnectOptions{})
	require.NoError(t, err)

	require.NoError(t, c.SwitchChain(context.Background(), 11155111))
	p.emitter.Emit(events.AccountsChanged, []common.Address{alice})
	require.Equal(t, []Change{{ChainID: 11155111}, {Accounts: []common.Address{alice}}}, sink.changes)

	require.Error(t, c.SwitchChain(context.Background(), 1))

	// An empty account list ends the session.
	p.emitter.Emit(events.AccountsChanged, []common.Address{})
	require.Equal(t, 1, sink.disconnects)
	require.True(t, c.Attached(events.Connect))
}

func TestGetters(t *testing.T) {
	p := newFakeProvider()
	c := New(p, &recordingSink{})

	accounts, err := c.GetAccounts(context.Background())
	require.NoError(t, err)
	require.Empty(t, accounts)
	chainID, err := c.GetChainID(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 84532, chainID)
}

func TestIsAuthorized(t *testing.T) {
	p := newFakeProvider()
	c := New(p, &recordingSink{})
	require.False(t, c.IsAuthorized(context.Background()))

	p.accounts = []common.Address{alice}
	p.accountsErrs = []error{errors.New("busy"), errors.New("busy")}
	require.True(t, c.IsAuthorized(context.Background()), "third attempt succeeds")

	p.accountsErrs = []error{errors.New("busy"), errors.New("busy"), errors.New("busy")}
	require.False(t, c.IsAuthorized(context.Background()))
}
