package myprom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type CounterStore struct {
	Registry *prometheus.Registry

	StartedTime      prometheus.Gauge
	NumPktsSent      *prometheus.CounterVec
	NumPktsReceived  *prometheus.CounterVec
	NumBytesSent     *prometheus.CounterVec
	NumBytesReceived *prometheus.CounterVec
	NumTimeouts      *prometheus.CounterVec
	RTTMs            *prometheus.HistogramVec
	RDNSRequests     *prometheus.CounterVec
}

const (
	PromLabelTarget      = "target"
	PromLabelDestination = "destination"
	PromLabelCacheHit    = "cachehit"
	PromLabelHasError    = "haserror"
)

// NewCounterStore registers the icmpping metrics on a registry of their own,
// so that several stores never collide.
func NewCounterStore() *CounterStore {
	cs := new(CounterStore)
	cs.Registry = prometheus.NewRegistry()
	factory := promauto.With(cs.Registry)

	cs.StartedTime = factory.NewGauge(prometheus.GaugeOpts{
		Name: "icmpping_started_at",
		Help: "The time when the ping session is started",
	})

	var commonLabels []string = []string{
		PromLabelTarget, PromLabelDestination,
	}

	cs.NumPktsSent = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icmpping_num_pkts_sent",
			Help: "The number of echo requests sent",
		},
		commonLabels,
	)

	cs.NumPktsReceived = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icmpping_num_pkts_received",
			Help: "The number of matching echo replies received",
		},
		commonLabels,
	)

	cs.NumBytesSent = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icmpping_num_bytes_sent",
			Help: "The number of icmp bytes sent",
		},
		commonLabels,
	)

	cs.NumBytesReceived = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icmpping_num_bytes_received",
			Help: "The number of bytes received in matching echo replies",
		},
		commonLabels,
	)

	cs.NumTimeouts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icmpping_num_timeouts",
			Help: "The number of probes that got no reply in time",
		},
		commonLabels,
	)

	cs.RTTMs = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "icmpping_rtt_ms",
			Help:    "Round trip time of answered probes in milliseconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		commonLabels,
	)

	cs.RDNSRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icmpping_num_rdns_requests",
			Help: "The number of reverse dns lookups of responders",
		},
		[]string{PromLabelCacheHit, PromLabelHasError},
	)

	return cs
}

func (cs *CounterStore) Handler() http.Handler {
	return promhttp.HandlerFor(cs.Registry, promhttp.HandlerOpts{Registry: cs.Registry})
}

// WriteTextfile dumps the current values in the node exporter textfile format.
func (cs *CounterStore) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, cs.Registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// Serve exposes the store on listenAddress until ctx is done.
func (cs *CounterStore) Serve(ctx context.Context, listenAddress, path string, logger *slog.Logger) (net.Addr, error) {
	prometheusListener, err := net.Listen("tcp", listenAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on address for prometheus metrics: %s: %w", listenAddress, err)
	}

	serveMux := http.NewServeMux()
	serveMux.Handle(path, cs.Handler())
	server := &http.Server{
		Handler:           serveMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving prometheus metrics", "address", prometheusListener.Addr().String(), "path", path)
		if err := server.Serve(prometheusListener); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			logger.Error("failed to serve prometheus metrics", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	return prometheusListener.Addr(), nil
}
