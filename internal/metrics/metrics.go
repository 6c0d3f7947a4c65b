// Package metrics exposes the client's Prometheus instrumentation:
//
//	signals_submissions_total{outcome} – submissions by terminal outcome
//	signals_rpc_calls_total{method,result} – endpoint calls by result
//	signals_account_balance_wei – last observed signing-account balance
//	signals_nonce_cursor – next nonce the allocator will hand out
//
// Collectors are registered in init() and served by Handler.
package metrics

import (
	"math/big"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_submissions_total",
			Help: "Ledger submissions by terminal outcome",
		},
		[]string{"outcome"},
	)

	RPCCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_rpc_calls_total",
			Help: "JSON-RPC calls by method and result",
		},
		[]string{"method", "result"},
	)

	BalanceWei = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "signals_account_balance_wei",
			Help: "Last observed signing-account balance in wei",
		},
	)

	NonceCursor = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "signals_nonce_cursor",
			Help: "Next nonce the allocator will hand out",
		},
	)
)

func init() {
	prometheus.MustRegister(Submissions, RPCCalls, BalanceWei, NonceCursor)
}

// Handler serves the Prometheus text exposition format.
func Handler() http.Handler { return promhttp.Handler() }

// SetBalance records a balance observation, saturating on values beyond
// float64 range.
func SetBalance(wei *big.Int) {
	if wei == nil {
		return
	}
	f, _ := new(big.Float).SetInt(wei).Float64()
	BalanceWei.Set(f)
}
