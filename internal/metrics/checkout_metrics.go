package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkout results used as the "result" label.
const (
	ResultPaid         = "paid"
	ResultEmptyCart    = "empty_cart"
	ResultInsufficient = "insufficient_stock"
	ResultValidation   = "validation"
	ResultConflict     = "conflict"
	ResultError        = "error"
)

type CheckoutMetrics struct {
	checkouts *prometheus.CounterVec
	duration  prometheus.Histogram
	retries   prometheus.Counter
	unitsSold prometheus.Counter
	inFlight  prometheus.Gauge
}

func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkouts: register(registerer, "kart_checkout_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kart_checkout_total",
			Help: "Checkout attempts by outcome",
		}, []string{"result"})),
		duration: register(registerer, "kart_checkout_duration_seconds", prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kart_checkout_duration_seconds",
			Help:    "Wall time of a checkout including conflict retries",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		})),
		retries: register(registerer, "kart_checkout_retries_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kart_checkout_retries_total",
			Help: "Checkout transactions re-run after a lock conflict",
		})),
		unitsSold: register(registerer, "kart_units_sold_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kart_units_sold_total",
			Help: "Units taken off stock by committed checkouts",
		})),
		inFlight: register(registerer, "kart_checkout_in_flight", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kart_checkout_in_flight",
			Help: "Checkouts currently running",
		})),
	}
}

// register returns the already registered collector of the same name when there is one, so
// several instances can share a registry.
func register[C prometheus.Collector](registerer prometheus.Registerer, name string, collector C) C {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			existing, ok := already.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register %q: %v", name, err))
	}
	return collector
}

// All methods are safe on a nil receiver.

func (m *CheckoutMetrics) Started() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *CheckoutMetrics) Finished(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.checkouts.WithLabelValues(result).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *CheckoutMetrics) Retried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *CheckoutMetrics) UnitsSold(n uint) {
	if m == nil {
		return
	}
	m.unitsSold.Add(float64(n))
}
