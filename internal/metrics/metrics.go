package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Inc()
	Dec()
}

type Metrics struct {
	FillsProcessed   Counter
	OrdersPlaced     Counter
	OrdersCanceled   Counter
	OrdersFailed     Counter
	MarketBuys       Counter
	WSReconnects     Counter
	SinkErrors       Counter
	ObserversRunning Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Inc() {}
func (noopGauge) Dec() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		FillsProcessed:   n,
		OrdersPlaced:     n,
		OrdersCanceled:   n,
		OrdersFailed:     n,
		MarketBuys:       n,
		WSReconnects:     n,
		SinkErrors:       n,
		ObserversRunning: noopGauge{},
	}
}
