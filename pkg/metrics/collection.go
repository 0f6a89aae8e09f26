// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type prometheusMetrics struct {
	partiesInQueue    prometheus.Gauge
	openSessions      prometheus.Gauge
	passElapsedTime   prometheus.Histogram
	requestOutcomes   prometheus.CounterVec
	readyCheckResults prometheus.CounterVec
}

func setupPrometheusMetrics(registry *prometheus.Registry) prometheusMetrics {
	factory := promauto.With(registry)

	partiesInQueue := factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "ab_gamefinder_parties_in_queue",
			Help: "Number of parties currently registered for matchmaking",
		})

	openSessions := factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "ab_gamefinder_open_sessions",
			Help: "Number of running sessions open to receive players",
		})

	//nolint:promlinter
	passElapsedTime := factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ab_gamefinder_matching_pass_elapsed_time_ms",
			Help:    "A histogram of matching pass elapsed time in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		})

	requestOutcomes := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ab_gamefinder_request_outcomes",
			Help: "A counter of completed find requests by outcome reason",
		}, []string{"reason"})

	readyCheckResults := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ab_gamefinder_ready_check_results",
			Help: "A counter of terminal ready check results",
		}, []string{"result"})

	return prometheusMetrics{
		partiesInQueue:    partiesInQueue,
		openSessions:      openSessions,
		passElapsedTime:   passElapsedTime,
		requestOutcomes:   *requestOutcomes,
		readyCheckResults: *readyCheckResults,
	}
}

func (metrics prometheusMetrics) SetPartiesInQueue(numParties int) {
	metrics.partiesInQueue.Set(float64(numParties))
}

func (metrics prometheusMetrics) SetOpenSessions(numSessions int) {
	metrics.openSessions.Set(float64(numSessions))
}

func (metrics prometheusMetrics) AddMatchingPassElapsedTimeMs(elapsedTime time.Duration) {
	metrics.passElapsedTime.Observe(float64(elapsedTime.Milliseconds()))
}

func (metrics prometheusMetrics) AddRequestOutcome(reason string) {
	metrics.requestOutcomes.With(prometheus.Labels{"reason": reason}).Add(float64(1))
}

func (metrics prometheusMetrics) AddReadyCheckResult(result string) {
	metrics.readyCheckResults.With(prometheus.Labels{"result": result}).Add(float64(1))
}
