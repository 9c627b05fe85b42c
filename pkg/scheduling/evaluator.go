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

	"github.com/samber/lo"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/utils/logging"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/utils/resources"
)

// ResourceMonitor provides utilization snapshots for pools. Implementations
// own the counters; the evaluator only reads them.
type ResourceMonitor interface {
	UtilizationFor(ctx context.Context, poolIDs []string) (map[string]*v1.ResourceUtilization, error)
}

// Evaluator computes which pools can host a job. It is stateless; every call
// pulls fresh utilization from the monitor.
type Evaluator struct {
	monitor ResourceMonitor
}

func NewEvaluator(monitor ResourceMonitor) *Evaluator {
	return &Evaluator{monitor: monitor}
}

// Evaluate returns the candidates among pools whose free capacity covers the
// job's cpu and memory requirements and whose concurrent job cap, when set,
// is not exhausted. Malformed requirement strings parse to zero and therefore
// never exclude a pool.
func (e *Evaluator) Evaluate(ctx context.Context, job *v1.Job, pools []*v1.ResourcePool) ([]*v1.PoolCandidate, error) {
	utilization, err := e.monitor.UtilizationFor(ctx, lo.Map(pools, func(p *v1.ResourcePool, _ int) string { return p.ID }))
	if err != nil {
		return nil, err
	}
	requestedCPU := resources.ParseCPU(job.ResourceRequirements["cpu"])
	requestedMemory := resources.ParseMemory(job.ResourceRequirements["memory"])

	var candidates []*v1.PoolCandidate
	for _, pool := range pools {
		u, ok := utilization[pool.ID]
		if !ok {
			logging.FromContext(ctx).V(1).Info("no utilization snapshot for pool, skipping", "pool", pool.ID)
			continue
		}
		if !fits(pool, u, requestedCPU, requestedMemory) {
			continue
		}
		candidates = append(candidates, &v1.PoolCandidate{Pool: pool, Utilization: u})
	}
	return candidates, nil
}

func fits(pool *v1.ResourcePool, u *v1.ResourceUtilization, requestedCPU float64, requestedMemory int64) bool {
	if requestedCPU > u.AvailableCPU() {
		return false
	}
	if requestedMemory > u.AvailableMemoryBytes() {
		return false
	}
	if pool.MaxConcurrentJobs != nil && u.RunningJobs >= *pool.MaxConcurrentJobs {
		return false
	}
	return true
}
