package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type FlashMetrics struct {
	stakesCreated   *prometheus.CounterVec
	unstakes        *prometheus.CounterVec
	fTokensMinted   *prometheus.CounterVec
	fTokensBurned   *prometheus.CounterVec
	principalLocked *prometheus.GaugeVec
	rpcRequests     *prometheus.CounterVec
}

var (
	flashOnce     sync.Once
	flashRegistry *FlashMetrics
)

func Flash() *FlashMetrics {
	flashOnce.Do(func() {
		flashRegistry = &FlashMetrics{
			stakesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "flash_stakes_created_total",
				Help: "Count of stakes created per strategy.",
			}, []string{"strategy"}),
			unstakes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "flash_unstakes_total",
				Help: "Count of unstake operations per strategy and outcome.",
			}, []string{"strategy", "outcome"}),
			fTokensMinted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "flash_ftokens_minted_total",
				Help: "Total fTokens minted per strategy, in whole tokens.",
			}, []string{"strategy"}),
			fTokensBurned: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "flash_ftokens_burned_total",
				Help: "Total fTokens burned per strategy, in whole tokens.",
			}, []string{"strategy"}),
			principalLocked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "flash_principal_locked",
				Help: "Principal currently locked per strategy, in whole tokens.",
			}, []string{"strategy"}),
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "flash_rpc_requests_total",
				Help: "JSON-RPC requests served by method and status.",
			}, []string{"method", "status"}),
		}
		prometheus.MustRegister(
			flashRegistry.stakesCreated,
			flashRegistry.unstakes,
			flashRegistry.fTokensMinted,
			flashRegistry.fTokensBurned,
			flashRegistry.principalLocked,
			flashRegistry.rpcRequests,
		)
	})
	return flashRegistry
}

func (m *FlashMetrics) ObserveStakeCreated(strategy string, minted float64) {
	if m == nil {
		return
	}
	if strategy == "" {
		strategy = "unknown"
	}
	m.stakesCreated.WithLabelValues(strategy).Inc()
	m.fTokensMinted.WithLabelValues(strategy).Add(minted)
}

func (m *FlashMetrics) ObserveUnstake(strategy, outcome string, burned float64) {
	if m == nil {
		return
	}
	if strategy == "" {
		strategy = "unknown"
	}
	if outcome == "" {
		outcome = "partial"
	}
	m.unstakes.WithLabelValues(strategy, outcome).Inc()
	m.fTokensBurned.WithLabelValues(strategy).Add(burned)
}

func (m *FlashMetrics) SetPrincipalLocked(strategy string, amount float64) {
	if m == nil {
		return
	}
	if strategy == "" {
		strategy = "unknown"
	}
	m.principalLocked.WithLabelValues(strategy).Set(amount)
}

func (m *FlashMetrics) IncRPCRequest(method, status string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.rpcRequests.WithLabelValues(method, status).Inc()
}
