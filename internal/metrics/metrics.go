// Package metrics holds the Prometheus collectors for the inquiry and
// presence paths. HTTP traffic is instrumented by the api middleware.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// BestEffortFailures counts swallowed failures of fire-and-forget work
	// (presence writes, inquiry sync) by task name.
	BestEffortFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "estate_best_effort_failures_total",
			Help: "Failures of best-effort background work, by task.",
		},
		[]string{"task"},
	)

	// QueryFallbacks counts ordered queries that were re-run unordered and
	// sorted in memory.
	QueryFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "estate_query_fallbacks_total",
			Help: "Ordered queries served by the unordered fallback, by collection.",
		},
		[]string{"collection"},
	)

	// InquiriesSynthesized counts inquiries derived from conversations at read time.
	InquiriesSynthesized = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "estate_inquiries_synthesized_total",
			Help: "Inquiries synthesized from conversations without an inquiry record.",
		},
	)

	// InquiryViewFallbacks counts dashboard reads answered from cache or empty.
	InquiryViewFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "estate_inquiry_view_fallbacks_total",
			Help: "Agent inquiry views served stale, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(BestEffortFailures, QueryFallbacks, InquiriesSynthesized, InquiryViewFallbacks)
}
