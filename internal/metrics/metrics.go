// Package metrics holds the Prometheus collectors exported by the pipeline
// and the optional HTTP endpoint that serves them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "petal"

var (
	// NodesAdded counts entities newly written by the driver.
	// Labels: label (entity label)
	NodesAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "driver",
		Name:      "nodes_added_total",
		Help:      "Entities newly persisted by the driver",
	}, []string{"label"})

	// LinksAdded counts bidirectional relationship pairs newly written.
	LinksAdded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "driver",
		Name:      "links_added_total",
		Help:      "Relationship pairs newly persisted by the driver",
	})

	// Duplicates counts transactions skipped by the dedup sets.
	// Labels: kind (node, link)
	Duplicates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "driver",
		Name:      "duplicates_total",
		Help:      "Writes skipped because they were already persisted",
	}, []string{"kind"})

	// StoreRetries counts transient store failures that were retried.
	// Labels: op (store operation)
	StoreRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "driver",
		Name:      "store_retries_total",
		Help:      "Store operations retried after the store was unavailable",
	}, []string{"op"})

	// BatchesConsumed counts batches consumed by the listener.
	// Labels: label (producing module's out label)
	BatchesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "listener",
		Name:      "batches_total",
		Help:      "Batches consumed by the driver listener",
	}, []string{"label"})

	// BatchDuration measures time to persist one batch.
	BatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "listener",
		Name:      "batch_duration_seconds",
		Help:      "Time to persist one batch including its provenance record",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"label"})

	// QueueDepth tracks batches waiting for the listener.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "listener",
		Name:      "queue_depth",
		Help:      "Batches waiting in the shared queue",
	})

	// ModuleItems counts input items fully processed per module.
	ModuleItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "module",
		Name:      "items_total",
		Help:      "Input items processed per module",
	}, []string{"module"})

	// ModuleTransactions counts transactions produced per module.
	ModuleTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "module",
		Name:      "transactions_total",
		Help:      "Transactions produced per module",
	}, []string{"module"})

	// ModuleFaults counts module errors and panics caught by the scheduler.
	ModuleFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "module",
		Name:      "faults_total",
		Help:      "Module faults caught at the worker boundary",
	}, []string{"module"})

	// ModuleState exposes the scheduler state of each module as a number
	// (0 unscheduled, 1 scheduled, 2 running, 3 idle).
	ModuleState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "module",
		Name:      "state",
		Help:      "Scheduler state per module",
	}, []string{"module"})
)

// Serve exposes the default registry on addr at /metrics until ctx is
// cancelled. An empty addr disables the endpoint.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics endpoint: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics shutdown: %w", err)
		}
		return nil
	}
}
