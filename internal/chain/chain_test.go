package chain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetLookup(t *testing.T) {
	base := New(84532, "base-sepolia", "https://rpc", "https://bundler", "")
	op := New(11155420, "op-sepolia", "https://rpc2", "https://bundler2", "https://pm2")
	set := NewSet(op, base)

	got, ok := set.Get(84532)
	require.True(t, ok)
	require.Equal(t, "base-sepolia", got.Name())
	require.Empty(t, got.PaymasterURL())
	require.Equal(t, "84532", got.BigID().String())

	require.True(t, set.Has(11155420))
	require.False(t, set.Has(1))
	require.Equal(t, []uint64{84532, 11155420}, set.IDs())
	require.Equal(t, "op-sepolia(11155420)", op.String())
}
