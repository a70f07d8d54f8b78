package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SalesTotal counts finalize outcomes by payment method.
	SalesTotal *prometheus.CounterVec
	// SaleAmountCentavos tracks the running total of completed sales.
	SaleAmountCentavos prometheus.Counter
	// DiscountCentavos tracks the running total of granted discounts.
	DiscountCentavos prometheus.Counter
	// PromoValidationTotal counts promo code validation outcomes.
	PromoValidationTotal *prometheus.CounterVec
	// ActiveSessions gauges currently open terminal sessions.
	ActiveSessions prometheus.Gauge
)

// MustRegisterDomainMetrics initialises and registers the POS collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SalesTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_total",
			Help:      "Count of transaction finalize outcomes.",
		}, []string{"method", "result"}))
		SaleAmountCentavos = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sale_amount_centavos_total",
			Help:      "Sum of completed sale totals in centavos.",
		}))
		DiscountCentavos = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_centavos_total",
			Help:      "Sum of discounts granted on completed sales in centavos.",
		}))
		PromoValidationTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_validation_total",
			Help:      "Count of promo code validation outcomes.",
		}, []string{"result"}))
		ActiveSessions = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of open terminal sessions.",
		}))
	})
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) prometheus.Counter {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Counter)
		}
		panic(err)
	}
	return c
}
