package main

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestOpenStore(t *testing.T) {
	mem, err := openStore("", "")
	require.NoError(t, err)
	require.NoError(t, mem.Close())

	dir := filepath.Join(t.TempDir(), "wallet")
	store, err := openStore(dir, "ignored")
	require.NoError(t, err)
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	require.NoError(t, store.SetAddress(addr))
	require.NoError(t, store.Close())

	reopened, err := openStore("", dir)
	require.NoError(t, err)
	defer reopened.Close()
	got, ok, err := reopened.Address()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, addr, got)
}

func TestToJSON(t *testing.T) {
	require.Equal(t, `[
  "0x1111111111111111111111111111111111111111"
]`, toJSON([]common.Address{common.HexToAddress("0x1111111111111111111111111111111111111111")}))
	require.Equal(t, "null", toJSON(nil))
}
