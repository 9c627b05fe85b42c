/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace for all orchestrator metrics.
	Namespace = "hodei"

	StrategyLabel = "strategy"
	PoolLabel     = "pool"
	StatusLabel   = "status"
)

// DurationBuckets returns the default threshold values for duration
// histograms. Each returned slice is new and may be modified without
// impacting other bucket definitions.
func DurationBuckets() []float64 {
	return []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.15, 0.2, 0.25, 0.3, 0.35, 0.4, 0.45, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0,
		1.25, 1.5, 1.75, 2.0, 2.5, 3.0, 3.5, 4.0, 4.5, 5, 6, 7, 8, 9, 10, 15, 20, 25, 30, 40, 50, 60}
}

var (
	SchedulingDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "scheduler",
		Name:      "decisions_total",
		Help:      "Number of scheduling decisions, labeled by strategy and selected pool.",
	}, []string{StrategyLabel, PoolLabel})

	ActiveExecutions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "executions",
		Name:      "active",
		Help:      "Number of executions with an assigned worker that have not reached a terminal state.",
	})

	ExecutionResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "executions",
		Name:      "terminated_total",
		Help:      "Number of executions that reached a terminal state, labeled by status.",
	}, []string{StatusLabel})

	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "executions",
		Name:      "duration_seconds",
		Help:      "Wall clock duration of executions from assignment to terminal result.",
		Buckets:   DurationBuckets(),
	})

	ConnectedWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "workers",
		Name:      "connected",
		Help:      "Number of workers with an open channel stream.",
	})
)
