package configs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/passkey-wallet/internal/smartaccount"
)

// TestEmbeddedConfig verifies that init() loaded the embedded config.yaml.
func TestEmbeddedConfig(t *testing.T) {
	require.EqualValues(t, 84532, Values.Wallet.DefaultChainID)
	require.Equal(t, 2*time.Minute, Values.Wallet.ReceiptTimeout)
	require.Equal(t, time.Second, Values.Wallet.PollInterval)
	require.Equal(t, common.HexToAddress("0x8DF5FAe7543FEc5B0E46A13dA1329298C2c0f86C"), Values.Registry.Address)

	set := Values.ChainSet()
	require.Equal(t, 2, set.Len())
	base, ok := set.Get(84532)
	require.True(t, ok)
	require.Equal(t, "base-sepolia", base.Name())
	require.NotEmpty(t, base.PaymasterURL())

	addrs := Values.Addresses()
	require.NoError(t, addrs.Validate())
	require.Equal(t, smartaccount.EntryPointV07, addrs.EntryPointVersion)

	cfg := Values.AccountConfig()
	require.Equal(t, "localhost", cfg.RPID)
	require.Equal(t, "Passkey Wallet", cfg.RPName)
	require.True(t, cfg.Sponsored)
	require.NotEqual(t, common.Address{}, cfg.Policies.OwnableValidator)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadNormalizes(t *testing.T) {
	content := strings.NewReplacer(
		"log-level: info", "log-level: ' DEBUG '",
		"url: http://localhost:8080", "url: http://localhost:8080/",
		"  registry-chain-id: 84532\n", "",
		"  rp-name: Passkey Wallet\n", "",
	).Replace(string(embeddedConfig))

	app, err := Load(writeConfig(t, content))
	require.NoError(t, err)
	require.Equal(t, "debug", app.LogLevel)
	require.Equal(t, "http://localhost:8080", app.Registry.URL)
	require.EqualValues(t, 84532, app.Wallet.RegistryChainID, "defaults to the default chain")
	require.Equal(t, "localhost", app.Wallet.RPName, "defaults to the rp id")
}

func TestLoadReportsEveryProblem(t *testing.T) {
	content := `
wallet:
  default-chain-id: 10
chains:
  a:
    id: 1
    rpc-url: http://a
  b:
    id: 1
    bundler-url: http://b
contracts:
  entry-point-version: "0.8"
`
	_, err := Load(writeConfig(t, content))
	require.Error(t, err)
	for _, want := range []string{
		"'wallet.rp-id'",
		"'wallet.origin'",
		"chain 10 is not configured",
		"field: 'bundler-url', chain: 'a'",
		"field: 'rpc-url', chain: 'b'",
		"duplicates chain 'a'",
		"'registry.url'",
		"'registry.address'",
		"entry point address is required",
	} {
		require.ErrorContains(t, err, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "failed to read config file")
}

func TestLoadMalformed(t *testing.T) {
	_, err := Load(writeConfig(t, "chains: [\n"))
	require.ErrorContains(t, err, "failed to unmarshal config")
}
