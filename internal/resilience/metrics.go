package resilience

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	breakerOnce sync.Once

	// BreakerState tracks the current state per target: 0=closed, 1=open,
	// 2=half-open.
	BreakerState *prometheus.GaugeVec
	// BreakerTransitions counts state transitions per target.
	BreakerTransitions *prometheus.CounterVec
	// BreakerOpenedTotal counts transitions into the open state.
	BreakerOpenedTotal *prometheus.CounterVec
)

// MustRegisterBreakerMetrics initialises and registers the breaker collectors.
// Until it is called the breaker runs without telemetry.
func MustRegisterBreakerMetrics(namespace string, reg prometheus.Registerer) {
	breakerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BreakerState = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Current breaker state: 0=closed, 1=open, 2=half-open.",
		}, []string{"target"}))
		BreakerTransitions = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transition_total",
			Help:      "Count of breaker state transitions.",
		}, []string{"target", "from", "to"}))
		BreakerOpenedTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_open_total",
			Help:      "Number of times a breaker transitioned into the open state.",
		}, []string{"target"}))
	})
}

func registerGaugeVec(reg prometheus.Registerer, g *prometheus.GaugeVec) *prometheus.GaugeVec {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.GaugeVec)
		}
		panic(fmt.Errorf("register gauge: %w", err))
	}
	return g
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		panic(fmt.Errorf("register counter: %w", err))
	}
	return c
}
