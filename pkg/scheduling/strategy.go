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

package scheduling

import (
	"context"
	"errors"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/metrics"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/utils/logging"
)

// ErrNoCandidatePools is returned by every strategy when the candidate list
// is empty.
var ErrNoCandidatePools = errors.New("No candidate pools available")

// Strategy ranks candidate pools and picks one. Implementations must be safe
// for parallel scheduling decisions and deterministic for identical inputs,
// round robin excepted by design.
type Strategy interface {
	SelectPool(ctx context.Context, job *v1.Job, candidates []*v1.PoolCandidate) (*v1.ResourcePool, error)
	Name() string
}

// Scheduler combines candidate evaluation with a pluggable strategy.
type Scheduler struct {
	evaluator *Evaluator
	strategy  Strategy
}

func NewScheduler(evaluator *Evaluator, strategy Strategy) *Scheduler {
	return &Scheduler{evaluator: evaluator, strategy: strategy}
}

// Schedule picks the pool that should host the job, or ErrNoCandidatePools
// when nothing fits.
func (s *Scheduler) Schedule(ctx context.Context, job *v1.Job, pools []*v1.ResourcePool) (*v1.ResourcePool, error) {
	candidates, err := s.evaluator.Evaluate(ctx, job, pools)
	if err != nil {
		return nil, err
	}
	pool, err := s.strategy.SelectPool(ctx, job, candidates)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).V(1).Info("scheduled job onto pool",
		"job", job.ID, "pool", pool.ID, "strategy", s.strategy.Name(), "candidates", len(candidates))
	metrics.SchedulingDecisions.WithLabelValues(s.strategy.Name(), pool.ID).Inc()
	return pool, nil
}

// mean of the cpu and memory utilization of a candidate, used by the greedy
// and bin packing strategies.
func averageUtilization(c *v1.PoolCandidate) float64 {
	return (c.Utilization.CPUUtilization() + c.Utilization.MemoryUtilization()) / 2
}
