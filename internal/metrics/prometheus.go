package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "hl_grid_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Inc() { p.gauge.Inc() }
func (p promGauge) Dec() { p.gauge.Dec() }

type Prometheus struct {
	Metrics *Metrics

	registry         *prometheus.Registry
	fillsProcessed   prometheus.Counter
	ordersPlaced     prometheus.Counter
	ordersCanceled   prometheus.Counter
	ordersFailed     prometheus.Counter
	marketBuys       prometheus.Counter
	wsReconnects     prometheus.Counter
	sinkErrors       prometheus.Counter
	observersRunning prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	fillsProcessed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "fills_processed_total",
		Help:      "Total number of executed-order notifications processed.",
	})
	ordersPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_placed_total",
		Help:      "Total number of grid rungs placed.",
	})
	ordersCanceled := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_canceled_total",
		Help:      "Total number of rungs canceled by pruning.",
	})
	ordersFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_failed_total",
		Help:      "Total number of order placement failures.",
	})
	marketBuys := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "market_buys_total",
		Help:      "Total number of compensating market buys.",
	})
	wsReconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "ws_reconnects_total",
		Help:      "Total number of stream reconnect attempts.",
	})
	sinkErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "sink_errors_total",
		Help:      "Total number of observation recording failures.",
	})
	observersRunning := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "observers_running",
		Help:      "Number of observers currently running.",
	})

	registry.MustRegister(fillsProcessed, ordersPlaced, ordersCanceled, ordersFailed, marketBuys, wsReconnects, sinkErrors, observersRunning)

	m := &Metrics{
		FillsProcessed:   promCounter{fillsProcessed},
		OrdersPlaced:     promCounter{ordersPlaced},
		OrdersCanceled:   promCounter{ordersCanceled},
		OrdersFailed:     promCounter{ordersFailed},
		MarketBuys:       promCounter{marketBuys},
		WSReconnects:     promCounter{wsReconnects},
		SinkErrors:       promCounter{sinkErrors},
		ObserversRunning: promGauge{observersRunning},
	}

	return &Prometheus{
		Metrics:          m,
		registry:         registry,
		fillsProcessed:   fillsProcessed,
		ordersPlaced:     ordersPlaced,
		ordersCanceled:   ordersCanceled,
		ordersFailed:     ordersFailed,
		marketBuys:       marketBuys,
		wsReconnects:     wsReconnects,
		sinkErrors:       sinkErrors,
		observersRunning: observersRunning,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
