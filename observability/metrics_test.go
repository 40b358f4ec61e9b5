package observability

import (
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"dscengine/core/events"
	"dscengine/crypto"
)

func TestStablecoinMetricsCounters(t *testing.T) {
	m := Stablecoin()
	require.Same(t, m, Stablecoin())

	before := testutil.ToFloat64(m.operations.WithLabelValues("mint", "ok"))
	m.RecordOperation("mint", "ok")
	require.Equal(t, before+1, testutil.ToFloat64(m.operations.WithLabelValues("mint", "ok")))

	before = testutil.ToFloat64(m.rollbacks.WithLabelValues("unknown"))
	m.RecordRollback("  ")
	require.Equal(t, before+1, testutil.ToFloat64(m.rollbacks.WithLabelValues("unknown")))

	seized := new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18))
	beforeSeized := testutil.ToFloat64(m.seized.WithLabelValues("weth"))
	m.RecordLiquidation("weth", seized)
	require.InDelta(t, beforeSeized+3, testutil.ToFloat64(m.seized.WithLabelValues("weth")), 1e-9)

	before = testutil.ToFloat64(m.oracleFailures.WithLabelValues("feed"))
	m.RecordOracleFailure("feed")
	require.Equal(t, before+1, testutil.ToFloat64(m.oracleFailures.WithLabelValues("feed")))
}

func TestObserveHealthFactorSkipsSentinel(t *testing.T) {
	m := Stablecoin()
	sentinel := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	before := testutil.CollectAndCount(m.healthFactor)
	m.ObserveHealthFactor("sentinel-check", sentinel)
	require.Equal(t, before, testutil.CollectAndCount(m.healthFactor))

	m.ObserveHealthFactor("sentinel-check", big.NewInt(15e17))
	require.Equal(t, before+1, testutil.CollectAndCount(m.healthFactor))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *StablecoinMetrics
	m.RecordOperation("mint", "ok")
	m.ObserveHealthFactor("mint", big.NewInt(1))
	var h *HTTPMetrics
	h.Observe("route", http.MethodGet, http.StatusOK, time.Millisecond)
	h.RecordThrottle("rate_limit")
}

func TestHTTPMetricsCountsErrors(t *testing.T) {
	h := HTTP()
	before := testutil.ToFloat64(h.errors.WithLabelValues("mint", http.MethodPost, "422"))
	h.Observe("mint", http.MethodPost, http.StatusUnprocessableEntity, 5*time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(h.errors.WithLabelValues("mint", http.MethodPost, "422")))
	require.GreaterOrEqual(t, testutil.ToFloat64(h.requests.WithLabelValues("mint", http.MethodPost, "error")), 1.0)
}

func TestEventsCountsByType(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.emitted.WithLabelValues(events.TypeDscMinted))
	m.Emit(events.DscMinted{Account: crypto.DeriveAddress(crypto.AccountPrefix, "alice"), Amount: big.NewInt(1)})
	m.Emit(nil)
	require.Equal(t, before+1, testutil.ToFloat64(m.emitted.WithLabelValues(events.TypeDscMinted)))
}
