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

package log

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TransportMetrics counts remote log delivery.
type TransportMetrics struct {
	// batches tracks flush POSTs by result (ok, error)
	batches *prometheus.CounterVec

	// events tracks events by outcome (queued, sent, dropped)
	events *prometheus.CounterVec
}

// NewTransportMetrics registers the log transport metrics on reg.
func NewTransportMetrics(reg prometheus.Registerer) *TransportMetrics {
	factory := promauto.With(reg)
	return &TransportMetrics{
		batches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veridia_log_batches_total",
				Help: "Total remote log batches by result",
			},
			[]string{"result"},
		),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veridia_log_events_total",
				Help: "Total remote log events by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *TransportMetrics) recordQueued() {
	if m == nil {
		return
	}
	m.events.WithLabelValues("queued").Inc()
}

func (m *TransportMetrics) recordBatch(size int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.batches.WithLabelValues("error").Inc()
		m.events.WithLabelValues("dropped").Add(float64(size))
		return
	}
	m.batches.WithLabelValues("ok").Inc()
	m.events.WithLabelValues("sent").Add(float64(size))
}
