// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type GameFinderMetrics interface {
	SetPartiesInQueue(numParties int)
	SetOpenSessions(numSessions int)
	AddMatchingPassElapsedTimeMs(elapsedTime time.Duration)
	AddRequestOutcome(reason string)
	AddReadyCheckResult(result string)
}

func NewMetrics(registry *prometheus.Registry) GameFinderMetrics {
	return setupPrometheusMetrics(registry)
}

// NewNoop returns a metrics sink that discards everything, for tests and
// hosts that do not wire prometheus.
func NewNoop() GameFinderMetrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) SetPartiesInQueue(int)                      {}
func (noopMetrics) SetOpenSessions(int)                        {}
func (noopMetrics) AddMatchingPassElapsedTimeMs(time.Duration) {}
func (noopMetrics) AddRequestOutcome(string)                   {}
func (noopMetrics) AddReadyCheckResult(string)                 {}
