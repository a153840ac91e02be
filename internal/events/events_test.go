package events

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

func TestEmitOrder(t *testing.T) {
	e := NewEmitter()
	var got []string
	e.On(AccountsChanged, func(interface{}) { got = append(got, "accounts-1") })
	e.On(Connect, func(interface{}) { got = append(got, "connect") })
	e.On(AccountsChanged, func(interface{}) { got = append(got, "accounts-2") })

	e.Emit(AccountsChanged, []common.Address{{}})
	e.Emit(Connect, ConnectInfo{ChainID: 84532})
	require.Equal(t, []string{"accounts-1", "accounts-2", "connect"}, got)
}

func TestOff(t *testing.T) {
	e := NewEmitter()
	calls := 0
	h := e.On(Disconnect, func(interface{}) { calls++ })
	other := e.On(Disconnect, func(interface{}) {})
	require.Equal(t, 2, e.ListenerCount(Disconnect))

	require.True(t, e.Off(Disconnect, h))
	require.False(t, e.Off(Disconnect, h))
	require.False(t, e.Off(Connect, other))
	e.Emit(Disconnect, DisconnectInfo{Code: 4900})
	require.Zero(t, calls)
	require.Equal(t, 1, e.ListenerCount(Disconnect))
}

func TestSubscribe(t *testing.T) {
	e := NewEmitter()
	ch := make(chan Event, 2)
	sub := e.Subscribe(ch)
	defer sub.Unsubscribe()

	addr := common.HexToAddress("0x6aA6b7a4CC7b1e2d9C3D50a5F2E5e0cA5ABd93C1")
	e.Emit(AccountsChanged, []common.Address{addr})
	e.Emit(ChainChanged, hexutil.Uint64(1))

	ev := <-ch
	require.Equal(t, AccountsChanged, ev.Name)
	require.Equal(t, []common.Address{addr}, ev.Accounts())
	ev = <-ch
	require.Equal(t, ChainChanged, ev.Name)
	require.Nil(t, ev.Accounts())
}
