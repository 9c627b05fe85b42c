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

package scheduling_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/scheduling"
)

// staticMonitor serves canned utilization snapshots.
type staticMonitor struct {
	snapshots map[string]*v1.ResourceUtilization
	err       error
}

func (m *staticMonitor) UtilizationFor(_ context.Context, poolIDs []string) (map[string]*v1.ResourceUtilization, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := map[string]*v1.ResourceUtilization{}
	for _, id := range poolIDs {
		if u, ok := m.snapshots[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

var _ = Describe("Evaluator", func() {
	var job *v1.Job
	var monitor *staticMonitor
	var pools []*v1.ResourcePool

	BeforeEach(func() {
		job = v1.NewJob("test-job")
		monitor = &staticMonitor{snapshots: map[string]*v1.ResourceUtilization{}}
		pools = nil
	})

	addPool := func(id string, totalCPU, usedCPU float64, totalMem, usedMem int64) *v1.ResourcePool {
		pool := &v1.ResourcePool{ID: id, Name: id, Type: v1.PoolTypeDocker, Capacity: v1.PoolCapacity{TotalCPU: totalCPU, TotalMemoryBytes: totalMem}}
		pools = append(pools, pool)
		monitor.snapshots[id] = &v1.ResourceUtilization{
			PoolID: id, TotalCPU: totalCPU, UsedCPU: usedCPU, TotalMemoryBytes: totalMem, UsedMemoryBytes: usedMem,
		}
		return pool
	}

	It("should admit pools whose free capacity covers the request", func() {
		addPool("roomy", 8, 2, 16<<30, 4<<30)
		job.ResourceRequirements = map[string]string{"cpu": "2", "memory": "4Gi"}
		candidates, err := scheduling.NewEvaluator(monitor).Evaluate(ctx, job, pools)
		Expect(err).ToNot(HaveOccurred())
		Expect(candidates).To(HaveLen(1))
		Expect(candidates[0].Pool.ID).To(Equal("roomy"))
	})
	It("should exclude pools without enough free cpu", func() {
		addPool("cramped", 4, 3.5, 16<<30, 0)
		job.ResourceRequirements = map[string]string{"cpu": "1"}
		candidates, err := scheduling.NewEvaluator(monitor).Evaluate(ctx, job, pools)
		Expect(err).ToNot(HaveOccurred())
		Expect(candidates).To(BeEmpty())
	})
	It("should exclude pools without enough free memory", func() {
		addPool("cramped", 8, 0, 4<<30, 3<<30)
		job.ResourceRequirements = map[string]string{"memory": "2Gi"}
		candidates, err := scheduling.NewEvaluator(monitor).Evaluate(ctx, job, pools)
		Expect(err).ToNot(HaveOccurred())
		Expect(candidates).To(BeEmpty())
	})
	It("should exclude pools with an exhausted concurrent job cap", func() {
		pool := addPool("capped", 8, 0, 16<<30, 0)
		pool.MaxConcurrentJobs = lo.ToPtr(2)
		monitor.snapshots["capped"].RunningJobs = 2
		candidates, err := scheduling.NewEvaluator(monitor).Evaluate(ctx, job, pools)
		Expect(err).ToNot(HaveOccurred())
		Expect(candidates).To(BeEmpty())
	})
	It("should never exclude a pool over a malformed requirement", func() {
		addPool("tiny", 0.5, 0.4, 1<<20, 1<<19)
		job.ResourceRequirements = map[string]string{"cpu": "lots", "memory": "many"}
		candidates, err := scheduling.NewEvaluator(monitor).Evaluate(ctx, job, pools)
		Expect(err).ToNot(HaveOccurred())
		Expect(candidates).To(HaveLen(1))
	})
	It("should skip pools without a utilization snapshot", func() {
		addPool("known", 8, 0, 16<<30, 0)
		pools = append(pools, &v1.ResourcePool{ID: "unknown", Type: v1.PoolTypeDocker})
		candidates, err := scheduling.NewEvaluator(monitor).Evaluate(ctx, job, pools)
		Expect(err).ToNot(HaveOccurred())
		Expect(candidates).To(HaveLen(1))
		Expect(candidates[0].Pool.ID).To(Equal("known"))
	})
	It("should propagate monitor failures", func() {
		addPool("any", 8, 0, 16<<30, 0)
		monitor.err = fmt.Errorf("snapshot store down")
		_, err := scheduling.NewEvaluator(monitor).Evaluate(ctx, job, pools)
		Expect(err).To(MatchError("snapshot store down"))
	})
})

var _ = Describe("Scheduler", func() {
	It("should return the strategy error when nothing fits", func() {
		monitor := &staticMonitor{snapshots: map[string]*v1.ResourceUtilization{}}
		scheduler := scheduling.NewScheduler(scheduling.NewEvaluator(monitor), scheduling.NewRoundRobin())
		_, err := scheduler.Schedule(ctx, v1.NewJob("test-job"), nil)
		Expect(err).To(MatchError("No candidate pools available"))
	})
})
