package registry_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/passkey-wallet/internal/registry"
	"github.com/compose-network/passkey-wallet/internal/testutil"
)

var (
	registryAddr = common.HexToAddress("0x8DF5FAe7543FEc5B0E46A13dA1329298C2c0f86C")
	account      = common.HexToAddress("0x6aA6b7a4CC7b1e2d9C3D50a5F2E5e0cA5ABd93C1")
)

func userID(label string) [32]byte {
	var id [32]byte
	copy(id[:], label)
	return id
}

func TestRegister(t *testing.T) {
	var got struct {
		UserID  string         `json:"userId"`
		Address common.Address `json:"address"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/register-user", r.URL.Path)
		require.NotEmpty(t, r.Header.Get("X-Request-Id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := registry.New(srv.URL+"/", registryAddr, testutil.NewContractReader())
	require.NoError(t, c.Register(context.Background(), userID("Test User"), account))
	require.Equal(t, account, got.Address)
	require.Equal(t, "0x5465737420557365720000000000000000000000000000000000000000000000", got.UserID)
}

func TestRegisterRequiresCreated(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusConflict, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"message":"nope"}`))
		}))
		c := registry.New(srv.URL, registryAddr, testutil.NewContractReader())
		err := c.Register(context.Background(), userID("x"), account)
		require.Error(t, err, "status %d", status)
		require.Contains(t, err.Error(), "nope")
		srv.Close()
	}
}

func TestLookup(t *testing.T) {
	reader := testutil.NewContractReader()
	known := userID("alice")
	reader.Handle(registryAddr, registry.AddressRegistryABI, "getAddress", func(args []interface{}) ([]interface{}, error) {
		if args[0].([32]byte) == known {
			return []interface{}{account}, nil
		}
		return []interface{}{common.Address{}}, nil
	})

	c := registry.New("http://unused", registryAddr, reader)
	got, err := c.Lookup(context.Background(), known)
	require.NoError(t, err)
	require.Equal(t, account, got)

	_, err = c.Lookup(context.Background(), userID("bob"))
	require.ErrorIs(t, err, registry.ErrNotFound)
}
