package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe("eth_accounts", CodeOK, time.Millisecond)
	m.Observe("eth_accounts", CodeOK, time.Millisecond)
	m.Observe("wallet_addEthereumChain", 4200, time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Requests().WithLabelValues("eth_accounts", "0")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Requests().WithLabelValues("wallet_addEthereumChain", "4200")))
	require.Equal(t, 2, testutil.CollectAndCount(m.Duration()))

	n, err := testutil.GatherAndCount(reg, "passkey_wallet_requests_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() { m.Observe("eth_chainId", CodeOK, 0) })
}
