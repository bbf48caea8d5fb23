package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BetsPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_bets_total",
		Help: "Bet placement attempts by outcome code",
	}, []string{"outcome"})

	TransferDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_transfer_duration_seconds",
		Help:    "Time from broadcast to confirmation or failure",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
	})

	PendingResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_pending_transfers_resolved_total",
		Help: "Pending transfers resolved by the reconciliation sweep",
	}, []string{"status"})

	BalanceRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_balance_refreshes_total",
		Help: "Authoritative balance refreshes by result",
	}, []string{"result"})

	WatchedAddresses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_watched_addresses",
		Help: "Addresses currently watched for balance changes",
	})

	WagersSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_wagers_ended_total",
		Help: "Wagers moved from active to ended by the lifecycle sweep",
	})

	DecisionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_decision_requests_total",
		Help: "Winner decision notifications by result",
	}, []string{"result"})

	DecisionConsumerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_decision_consumer_errors_total",
		Help: "Decision response consumer errors by stage",
	}, []string{"stage"})
)

type HealthFunc func(ctx context.Context) error

// StartMetricsServer serves /metrics and /healthz on its own port
func StartMetricsServer(port string, healthFn HealthFunc) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		if err := healthFn(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("unhealthy: %v", err)))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		_ = srv.ListenAndServe()
	}()

	return srv
}
