package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// CartMetrics tracks cart mutations, enrichment pruning and expiration reminders.
type CartMetrics struct {
	mutations *prometheus.CounterVec
	removals  prometheus.Counter
	reminders *prometheus.CounterVec
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart mutations by operation and outcome.",
	}, []string{"operation", "outcome"})
	removals := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_enrichment_removed_items_total",
		Help: "Cart lines dropped because the product no longer exists.",
	})
	reminders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_expiration_reminders_total",
		Help: "Expiration reminder events by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(mutations, removals, reminders)
	return &CartMetrics{
		mutations: mutations,
		removals:  removals,
		reminders: reminders,
	}
}

// ObserveMutation counts a mutation attempt.
func (c *CartMetrics) ObserveMutation(operation string, err error) {
	if c == nil || c.mutations == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	c.mutations.WithLabelValues(normalizeLabel(operation), outcome).Inc()
}

// AddEnrichmentRemovals counts lines pruned during enrichment.
func (c *CartMetrics) AddEnrichmentRemovals(n int) {
	if c == nil || c.removals == nil || n <= 0 {
		return
	}
	c.removals.Add(float64(n))
}

// IncReminder counts a reminder decision for one cart.
func (c *CartMetrics) IncReminder(outcome string) {
	if c == nil || c.reminders == nil {
		return
	}
	c.reminders.WithLabelValues(normalizeLabel(outcome)).Inc()
}
