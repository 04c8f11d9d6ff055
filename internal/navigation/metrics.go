package navigation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fixesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "navigation_fixes_processed_total",
		Help: "Location fixes received by navigation sessions",
	}, []string{"result"})

	fixProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "navigation_fix_processing_duration_seconds",
		Help:    "Time spent applying one fix inside the session loop",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12), // 50us to ~100ms
	})

	offRouteTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "navigation_off_route_total",
		Help: "Off-route transitions detected",
	})

	instructionAdvancesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "navigation_instruction_advances_total",
		Help: "Instruction changes emitted after the first one of a route",
	})

	destinationsReachedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "navigation_destinations_reached_total",
		Help: "Sessions that reached their destination",
	})

	ratingPromptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "navigation_rating_prompts_total",
		Help: "Hazard rating prompts raised",
	})

	ratingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "navigation_hazard_ratings_total",
		Help: "Hazard ratings sent to the incident service",
	}, []string{"result"})

	recalculationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "navigation_route_recalculations_total",
		Help: "Route recalculations by reason and outcome",
	}, []string{"reason", "result"})

	hazardRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "navigation_hazard_refreshes_total",
		Help: "Hazard snapshot refreshes",
	}, []string{"result"})

	eventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "navigation_events_dropped_total",
		Help: "Events dropped because the session event buffer was full",
	}, []string{"type"})

	staleResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "navigation_stale_results_total",
		Help: "Async results discarded because the session moved on",
	}, []string{"task"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "navigation_active_sessions",
		Help: "Navigation sessions currently running",
	})
)
