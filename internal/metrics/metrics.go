// Package metrics registers the Prometheus collectors and exposes them on
// /metrics.
//
// Registers:
//
//	#marketview_messages_total{stream}
//	#marketview_malformed_messages_total{stream}
//	#marketview_reconnects_total
//	#marketview_connection_state{stream}
//	#marketview_view_recompute_seconds
//	#marketview_channel_drops_total{stream,stage}
//	#marketview_collector_requests_total{collaborator,result}
//	#go_* and process_* system metrics
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketview/logger"
)

var (
	once              sync.Once
	registry          *prometheus.Registry
	messagesTotal     *prometheus.CounterVec
	malformedTotal    *prometheus.CounterVec
	reconnectsTotal   prometheus.Counter
	connectionState   *prometheus.GaugeVec
	recomputeSeconds  prometheus.Histogram
	channelDrops      *prometheus.CounterVec
	collectorRequests *prometheus.CounterVec
)

// Init registers the collectors once. Helpers are no-ops until it runs.
func Init() {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		messagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketview_messages_total",
			Help: "Websocket messages received",
		}, []string{"stream"})

		malformedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketview_malformed_messages_total",
			Help: "Websocket messages dropped because they could not be decoded",
		}, []string{"stream"})

		reconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketview_reconnects_total",
			Help: "Reconnects scheduled for the ticker stream",
		})

		connectionState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketview_connection_state",
			Help: "Connection state (0 idle, 1 connecting, 2 connected, 3 reconnecting, 4 exhausted)",
		}, []string{"stream"})

		recomputeSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketview_view_recompute_seconds",
			Help:    "Time spent recomputing the market view",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
		})

		channelDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketview_channel_drops_total",
			Help: "Messages dropped because a channel buffer was full",
		}, []string{"stream", "stage"})

		collectorRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketview_collector_requests_total",
			Help: "Requests made to REST collaborators",
		}, []string{"collaborator", "result"})

		registry.MustRegister(
			messagesTotal,
			malformedTotal,
			reconnectsTotal,
			connectionState,
			recomputeSeconds,
			channelDrops,
			collectorRequests,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler serves the registered collectors.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.GetLogger().WithComponent("metrics").WithFields(logger.Fields{"address": addr}).Info("metrics server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func IncrementMessages(stream string) {
	if messagesTotal != nil {
		messagesTotal.WithLabelValues(stream).Inc()
	}
}

func IncrementMalformed(stream string) {
	if malformedTotal != nil {
		malformedTotal.WithLabelValues(stream).Inc()
	}
}

func IncrementReconnect() {
	if reconnectsTotal != nil {
		reconnectsTotal.Inc()
	}
}

func SetConnectionState(stream string, state int) {
	if connectionState != nil {
		connectionState.WithLabelValues(stream).Set(float64(state))
	}
}

func ObserveRecompute(d time.Duration) {
	if recomputeSeconds != nil {
		recomputeSeconds.Observe(d.Seconds())
	}
}

func IncrementCollector(collaborator string, err error) {
	if collectorRequests == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	collectorRequests.WithLabelValues(collaborator, result).Inc()
}

// ReportDropped counts one message dropped at a full channel and forwards
// the event to registered metric handlers.
func ReportDropped(stream, stage string) {
	if channelDrops != nil {
		channelDrops.WithLabelValues(stream, stage).Inc()
	}
	dispatchMetric(Metric{
		Timestamp: time.Now(),
		Component: ChannelBuffers,
		Name:      ChannelDrops,
		Value:     1,
		Type:      Counter,
		Fields:    logger.Fields{"stream": stream, "stage": stage},
	})
}
