package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fexd12/prometheus-tenda-exporter/pkg/reporter"
	"github.com/fexd12/prometheus-tenda-exporter/pkg/tenda"
	"github.com/fexd12/prometheus-tenda-exporter/pkg/tracker"
)

const (
	labelMAC    = "mac"
	labelName   = "name"
	labelSource = "source"
	namespace   = "tenda"

	sourceStatus  = "status"
	sourceDevices = "devices"
)

type serverRegistry interface {
	prometheus.Gatherer
	prometheus.Registerer
}

type Server struct {
	scanner  *tracker.Scanner
	reporter *reporter.Reporter
	interval time.Duration

	traffic *trafficMetrics
	clients *clientMetrics
	meta    *metaMetrics

	registry serverRegistry
}

func NewServer(scanner *tracker.Scanner, rep *reporter.Reporter, interval time.Duration) (*Server, error) {
	s := newServer(scanner, rep, interval)

	// Add the metrics to the default registerer, user can change this later if
	// they're using another.
	reg, ok := prometheus.DefaultRegisterer.(serverRegistry)
	if !ok {
		return nil, errors.New("unable to use default registry")
	}
	if err := s.RegisterMetrics(reg); err != nil {
		return nil, err
	}

	return s, nil
}

func newServer(scanner *tracker.Scanner, rep *reporter.Reporter, interval time.Duration) *Server {
	return &Server{
		scanner:  scanner,
		reporter: rep,
		interval: interval,
		traffic:  NewTrafficMetrics(),
		clients:  NewClientMetrics(),
		meta:     NewMetaMetrics(),
	}
}

// RegisterMetrics adds the Servers managed metrics to the provided registry and
// updates itself to track this registry.
func (s *Server) RegisterMetrics(reg serverRegistry) error {
	s.registry = reg

	groups := []interface {
		RegisterMetrics(prometheus.Registerer) error
	}{
		s.traffic,
		s.clients,
		s.meta,
	}

	for _, group := range groups {
		if err := group.RegisterMetrics(reg); err != nil {
			return err
		}
	}

	return nil
}

// Collect polls the router once. Rates fall back to zero and the client list
// to the last known one when the router cannot be read; the first failure is
// returned after both have been recorded.
func (s *Server) Collect(ctx context.Context) error {
	spanTimer := prometheus.NewTimer(s.meta.CollectionTime)
	defer func() {
		spanTimer.ObserveDuration()
		logrus.WithFields(logrus.Fields{
			"context": "collect",
		}).Debug("finished collecting")
	}()

	var failure error

	rates, err := s.reporter.Sample(ctx)
	if err != nil {
		s.meta.Errors.WithLabelValues(sourceStatus).Inc()
		failure = err
	}
	s.traffic.Record(rates)

	if _, err := s.scanner.Update(ctx); err != nil {
		s.meta.Errors.WithLabelValues(sourceDevices).Inc()
		if failure == nil {
			failure = err
		}
	}
	s.clients.Record(s.scanner.Results())

	return failure
}

// Handler routes the metrics, device list and health endpoints.
func (s *Server) Handler() http.Handler {
	log := logrus.WithField("context", "server")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		ErrorLog:      log.WithField("handler", "prometheus"),
		ErrorHandling: promhttp.ContinueOnError,
	}))
	r.Get("/devices", s.handleDevices)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.scanner.Records()); err != nil {
		logrus.WithError(err).WithField("handler", "devices").Error("unable to write response")
	}
}

func (s *Server) Run(ctx context.Context, addr string) error {
	log := logrus.WithField("context", "server")

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Infof("starting server on %s", addr)
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server returned an error")
			return err
		}
		return nil
	})

	group.Go(func() error {
		log := log.WithField("context", "collect")
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		collect := func() {
			log.Debug("collecting")
			if err := s.Collect(groupCtx); err != nil {
				log.WithError(err).Error("collection error")
				return
			}
			log.Debug("completed successfully")
		}

		collect()

		for {
			select {
			case <-ticker.C:
				collect()
			case <-groupCtx.Done():
				return nil
			}
		}
	})

	group.Go(func() error {
		<-groupCtx.Done()

		const shutdownTimeout = time.Second * 5
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("unable to shutdown server")
			return err
		}
		log.Info("server shutdown")
		return nil
	})

	return group.Wait()
}

// metaMetrics are internal metrics having to do with the server and collection
// process, ie: not the collected data.
type metaMetrics struct {
	CollectionTime prometheus.Histogram
	Errors         *prometheus.CounterVec
}

// NewMetaMetrics prepares a set of metrics for tracking internal server and
// collection process metrics.
func NewMetaMetrics() *metaMetrics {
	return &metaMetrics{
		CollectionTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 15, 30},
			Help:      "time taken to perform collection from the router in seconds",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "errors_total",
			Help:      "failed collections by data source",
		}, []string{labelSource}),
	}
}

// RegisterMetrics adds metrics to the provided registry.
func (m *metaMetrics) RegisterMetrics(reg prometheus.Registerer) error {
	return register(reg, m.CollectionTime, m.Errors)
}

// trafficMetrics are the current WAN rates.
type trafficMetrics struct {
	Upload   prometheus.Gauge
	Download prometheus.Gauge
}

func NewTrafficMetrics() *trafficMetrics {
	const subsystem = "wan"

	return &trafficMetrics{
		Upload: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "upload_kbps",
			Help:      "current WAN upload rate in KB/s",
		}),
		Download: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "download_kbps",
			Help:      "current WAN download rate in KB/s",
		}),
	}
}

func (m *trafficMetrics) RegisterMetrics(reg prometheus.Registerer) error {
	return register(reg, m.Upload, m.Download)
}

func (m *trafficMetrics) Record(rates reporter.Rates) {
	m.Upload.Set(rates.UploadKBps)
	m.Download.Set(rates.DownloadKBps)
}

// clientMetrics are the metrics maintained for connected clients.
type clientMetrics struct {
	Present *prometheus.GaugeVec
	Count   prometheus.Gauge
}

func NewClientMetrics() *clientMetrics {
	const subsystem = "network"

	return &clientMetrics{
		Present: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "client_present",
			Help:      "client currently associated with the router",
		}, []string{labelMAC, labelName}),
		Count: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "clients",
			Help:      "number of clients associated with the router",
		}),
	}
}

func (m *clientMetrics) RegisterMetrics(reg prometheus.Registerer) error {
	return register(reg, m.Present, m.Count)
}

// Record replaces the client series so departed clients disappear.
func (m *clientMetrics) Record(devices tenda.Devices) {
	m.Present.Reset()
	for mac, name := range devices {
		m.Present.With(prometheus.Labels{
			labelMAC:  mac,
			labelName: name,
		}).Set(1)
	}
	m.Count.Set(float64(len(devices)))
}

func register(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
