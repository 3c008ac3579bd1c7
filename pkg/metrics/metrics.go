package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type CoreMetrics struct {
	CacheOps        *prometheus.CounterVec
	OrdersTotal     *prometheus.CounterVec
	EventsDelivered prometheus.Counter
	EventsDropped   prometheus.Counter
	ConnectedGauge  prometheus.Gauge
}

func NewCoreMetrics(service string) *CoreMetrics {
	cacheOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shopcore",
		Subsystem: service,
		Name:      "cache_ops_total",
		Help:      "Cache operations by tier and outcome.",
	}, []string{"tier", "outcome"})
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shopcore",
		Subsystem: service,
		Name:      "orders_total",
		Help:      "Order mutations by kind.",
	}, []string{"kind"})
	delivered := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shopcore",
		Subsystem: service,
		Name:      "events_delivered_total",
		Help:      "Realtime events delivered to clients.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shopcore",
		Subsystem: service,
		Name:      "events_dropped_total",
		Help:      "Realtime events dropped due to slow or gone clients.",
	})
	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shopcore",
		Subsystem: service,
		Name:      "connected_clients",
		Help:      "Currently connected realtime clients.",
	})

	prometheus.MustRegister(cacheOps, orders, delivered, dropped, connected)
	return &CoreMetrics{
		CacheOps:        cacheOps,
		OrdersTotal:     orders,
		EventsDelivered: delivered,
		EventsDropped:   dropped,
		ConnectedGauge:  connected,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
