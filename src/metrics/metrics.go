// Package metrics exposes Prometheus counters for store operations,
// refreshes and the two front ends.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"places_bot/src/types"
)

const namespace = "places"

type Metrics struct {
	registry *prometheus.Registry

	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	refreshes     *prometheus.CounterVec
	refreshPlaces prometheus.Gauge
	dialogs       *prometheus.CounterVec
	throttled     *prometheus.CounterVec
}

// New registers every collector on a fresh registry, plus the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Store operations by name and outcome.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Store operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Full-table refreshes by outcome.",
		}, []string{"result"}),
		refreshPlaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_inserted_places",
			Help:      "Places inserted by the most recent refresh.",
		}),
		dialogs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_dialogs_total",
			Help:      "Bot dialogues started, by command.",
		}, []string{"command"}),
		throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttled_requests_total",
			Help:      "Requests rejected by the rate limiter, by front end.",
		}, []string{"frontend"}),
	}
	m.registry.MustRegister(
		m.operations, m.duration, m.refreshes, m.refreshPlaces, m.dialogs, m.throttled,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRefresh(err error, inserted int) {
	m.refreshes.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.refreshPlaces.Set(float64(inserted))
	}
}

func (m *Metrics) DialogStarted(command string) {
	m.dialogs.WithLabelValues(command).Inc()
}

func (m *Metrics) Throttled(frontend string) {
	m.throttled.WithLabelValues(frontend).Inc()
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	m.operations.WithLabelValues(op, outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// Instrument wraps s so that every call is counted and timed.
func (m *Metrics) Instrument(s types.DataStore) types.DataStore {
	return &instrumented{next: s, m: m}
}

type instrumented struct {
	next types.DataStore
	m    *Metrics
}

func (i *instrumented) CreatePlace(ctx context.Context, name, category, address string) (id int64, err error) {
	defer func(start time.Time) { i.m.observe("create_place", start, err) }(time.Now())
	return i.next.CreatePlace(ctx, name, category, address)
}

func (i *instrumented) FindAddressByName(ctx context.Context, name string) (addr string, err error) {
	defer func(start time.Time) { i.m.observe("find_address_by_name", start, err) }(time.Now())
	return i.next.FindAddressByName(ctx, name)
}

func (i *instrumented) FindNameByAddress(ctx context.Context, address string) (name string, err error) {
	defer func(start time.Time) { i.m.observe("find_name_by_address", start, err) }(time.Now())
	return i.next.FindNameByAddress(ctx, address)
}

func (i *instrumented) ListByCategory(ctx context.Context, substring string) (places []types.Place, err error) {
	defer func(start time.Time) { i.m.observe("list_by_category", start, err) }(time.Now())
	return i.next.ListByCategory(ctx, substring)
}

func (i *instrumented) ListAll(ctx context.Context) (places []types.Place, err error) {
	defer func(start time.Time) { i.m.observe("list_all", start, err) }(time.Now())
	return i.next.ListAll(ctx)
}

func (i *instrumented) UpdateAddress(ctx context.Context, name, address string) (n int64, err error) {
	defer func(start time.Time) { i.m.observe("update_address", start, err) }(time.Now())
	return i.next.UpdateAddress(ctx, name, address)
}

func (i *instrumented) DeleteByName(ctx context.Context, name string) (n int64, err error) {
	defer func(start time.Time) { i.m.observe("delete_by_name", start, err) }(time.Now())
	return i.next.DeleteByName(ctx, name)
}

func (i *instrumented) ClearAll(ctx context.Context) (err error) {
	defer func(start time.Time) { i.m.observe("clear_all", start, err) }(time.Now())
	return i.next.ClearAll(ctx)
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
