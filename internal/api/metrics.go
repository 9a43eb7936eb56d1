// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records API client activity. A nil *Metrics records nothing.
type Metrics struct {
	// attempts counts network attempts by method and status code
	// ("error" when no response arrived)
	attempts *prometheus.CounterVec

	// duration tracks per-attempt latency by method
	duration *prometheus.HistogramVec

	// refreshes counts forced token refreshes after a 401 by result
	refreshes *prometheus.CounterVec

	// failures counts failed calls by error type
	failures *prometheus.CounterVec
}

// NewMetrics registers the API client metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veridia_api_attempts_total",
				Help: "Total API request attempts by method and status code",
			},
			[]string{"method", "code"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "veridia_api_attempt_duration_seconds",
				Help:    "API request attempt latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 200},
			},
			[]string{"method"},
		),
		refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veridia_api_token_refreshes_total",
				Help: "Total forced token refreshes after a 401 by result",
			},
			[]string{"result"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veridia_api_failures_total",
				Help: "Total failed API calls by error type",
			},
			[]string{"type"},
		),
	}
}

func (m *Metrics) recordAttempt(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := "error"
	if status != 0 {
		code = strconv.Itoa(status)
	}
	m.attempts.WithLabelValues(method, code).Inc()
	m.duration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) recordRefresh(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) recordFailure(t ErrorType) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(string(t)).Inc()
}
