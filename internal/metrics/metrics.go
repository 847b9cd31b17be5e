package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsStarted is a counter for authorization attempts started.
	AttemptsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "listeningtrends_auth_attempts_started_total",
			Help: "The total number of authorization attempts started.",
		},
	)

	// AttemptsSuperseded is a counter for pending attempts overwritten by a newer one.
	AttemptsSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "listeningtrends_auth_attempts_superseded_total",
			Help: "The total number of pending attempts overwritten before their callback arrived.",
		},
	)

	// CallbacksReceived is a counter for callbacks by the action they triggered.
	CallbacksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listeningtrends_auth_callbacks_total",
			Help: "The total number of callback requests handled.",
		},
		[]string{"action"},
	)

	// TokenExchanges is a counter for token exchanges by outcome.
	TokenExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listeningtrends_token_exchanges_total",
			Help: "The total number of authorization code exchanges.",
		},
		[]string{"outcome"},
	)

	// ProfileFetches is a counter for profile requests by outcome.
	ProfileFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listeningtrends_profile_fetches_total",
			Help: "The total number of profile requests.",
		},
		[]string{"outcome"},
	)

	// RequestDuration is a histogram of outbound request latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "listeningtrends_request_duration_seconds",
			Help:    "A histogram of outbound request duration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)
