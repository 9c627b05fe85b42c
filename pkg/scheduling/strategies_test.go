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
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/scheduling"
)

var _ = Describe("Strategies", func() {
	var job *v1.Job

	BeforeEach(func() {
		job = v1.NewJob("test-job")
	})

	DescribeTable("empty candidate list",
		func(strategy scheduling.Strategy) {
			pool, err := strategy.SelectPool(ctx, job, nil)
			Expect(pool).To(BeNil())
			Expect(err).To(MatchError("No candidate pools available"))
		},
		Entry("round robin", scheduling.NewRoundRobin()),
		Entry("greedy best fit", scheduling.NewGreedyBestFit()),
		Entry("least loaded", scheduling.NewLeastLoaded()),
		Entry("bin packing first fit", scheduling.NewBinPackingFirstFit()),
	)

	Context("RoundRobin", func() {
		It("should rotate over candidates sorted by pool id", func() {
			strategy := scheduling.NewRoundRobin()
			candidates := []*v1.PoolCandidate{candidate("a", 0), candidate("b", 0), candidate("c", 0)}
			var selected []string
			for i := 0; i < 7; i++ {
				pool, err := strategy.SelectPool(ctx, job, candidates)
				Expect(err).ToNot(HaveOccurred())
				selected = append(selected, pool.ID)
			}
			Expect(selected).To(Equal([]string{"a", "b", "c", "a", "b", "c", "a"}))
		})
		It("should rotate independently of candidate input order", func() {
			strategy := scheduling.NewRoundRobin()
			candidates := []*v1.PoolCandidate{candidate("c", 0), candidate("a", 0), candidate("b", 0)}
			pool, err := strategy.SelectPool(ctx, job, candidates)
			Expect(err).ToNot(HaveOccurred())
			Expect(pool.ID).To(Equal("a"))
		})
		It("should select every candidate under parallel scheduling", func() {
			strategy := scheduling.NewRoundRobin()
			candidates := []*v1.PoolCandidate{candidate("a", 0), candidate("b", 0), candidate("c", 0)}
			var mu sync.Mutex
			counts := map[string]int{}
			var wg sync.WaitGroup
			for i := 0; i < 30; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					pool, err := strategy.SelectPool(ctx, job, candidates)
					Expect(err).ToNot(HaveOccurred())
					mu.Lock()
					counts[pool.ID]++
					mu.Unlock()
				}()
			}
			wg.Wait()
			Expect(counts).To(Equal(map[string]int{"a": 10, "b": 10, "c": 10}))
		})
	})

	Context("GreedyBestFit", func() {
		It("should pick the pool with the lowest mean utilization", func() {
			strategy := scheduling.NewGreedyBestFit()
			candidates := []*v1.PoolCandidate{candidate("busy", 0.8), candidate("idle", 0.1), candidate("half", 0.5)}
			pool, err := strategy.SelectPool(ctx, job, candidates)
			Expect(err).ToNot(HaveOccurred())
			Expect(pool.ID).To(Equal("idle"))
		})
		It("should break ties by input order", func() {
			strategy := scheduling.NewGreedyBestFit()
			candidates := []*v1.PoolCandidate{candidate("first", 0.5), candidate("second", 0.5)}
			pool, err := strategy.SelectPool(ctx, job, candidates)
			Expect(err).ToNot(HaveOccurred())
			Expect(pool.ID).To(Equal("first"))
		})
		It("should be deterministic for identical inputs", func() {
			strategy := scheduling.NewGreedyBestFit()
			candidates := []*v1.PoolCandidate{candidate("x", 0.3), candidate("y", 0.2), candidate("z", 0.4)}
			first, err := strategy.SelectPool(ctx, job, candidates)
			Expect(err).ToNot(HaveOccurred())
			for i := 0; i < 5; i++ {
				pool, err := strategy.SelectPool(ctx, job, candidates)
				Expect(err).ToNot(HaveOccurred())
				Expect(pool.ID).To(Equal(first.ID))
			}
		})
	})

	Context("LeastLoaded", func() {
		It("should prefer the pool with the most availability", func() {
			strategy := scheduling.NewLeastLoaded()
			candidates := []*v1.PoolCandidate{candidate("loaded", 0.9), candidate("empty", 0)}
			pool, err := strategy.SelectPool(ctx, job, candidates)
			Expect(err).ToNot(HaveOccurred())
			Expect(pool.ID).To(Equal("empty"))
		})
		It("should penalize queue depth between otherwise identical pools", func() {
			strategy := scheduling.NewLeastLoaded()
			backlogged := candidate("backlogged", 0.2)
			backlogged.Utilization.QueuedJobs = 10
			quiet := candidate("quiet", 0.2)
			pool, err := strategy.SelectPool(ctx, job, []*v1.PoolCandidate{backlogged, quiet})
			Expect(err).ToNot(HaveOccurred())
			Expect(pool.ID).To(Equal("quiet"))
		})
		It("should penalize exhausted job capacity", func() {
			strategy := scheduling.NewLeastLoaded()
			capped := candidate("capped", 0.2)
			capped.Pool.MaxConcurrentJobs = lo.ToPtr(10)
			capped.Utilization.RunningJobs = 9
			roomy := candidate("roomy", 0.2)
			roomy.Pool.MaxConcurrentJobs = lo.ToPtr(10)
			roomy.Utilization.RunningJobs = 1
			pool, err := strategy.SelectPool(ctx, job, []*v1.PoolCandidate{capped, roomy})
			Expect(err).ToNot(HaveOccurred())
			Expect(pool.ID).To(Equal("roomy"))
		})
		It("should factor how well the request fits the remaining capacity", func() {
			strategy := scheduling.NewLeastLoaded()
			job.ResourceRequirements["cpu"] = "4"
			// same utilization ratio, but "tight" has almost no absolute cpu left
			tight := candidate("tight", 0.5)
			tight.Utilization.TotalCPU = 4
			tight.Utilization.UsedCPU = 2
			wide := candidate("wide", 0.5)
			pool, err := strategy.SelectPool(ctx, job, []*v1.PoolCandidate{tight, wide})
			Expect(err).ToNot(HaveOccurred())
			Expect(pool.ID).To(Equal("wide"))
		})
	})

	Context("BinPackingFirstFit", func() {
		It("should prefer well-utilized pools over idle and nearly full ones", func() {
			strategy := scheduling.NewBinPackingFirstFit()
			candidates := []*v1.PoolCandidate{
				candidate("idle", 0.05),
				candidate("warm", 0.35),
				candidate("packed", 0.75),
				candidate("full", 0.95),
			}
			// packing scores: 0.025, 0.35, 0.60, 0.475
			pool, err := strategy.SelectPool(ctx, job, candidates)
			Expect(err).ToNot(HaveOccurred())
			Expect(pool.ID).To(Equal("packed"))
		})
		It("should avoid nearly idle pools", func() {
			strategy := scheduling.NewBinPackingFirstFit()
			pool, err := strategy.SelectPool(ctx, job, []*v1.PoolCandidate{candidate("idle", 0.05), candidate("warm", 0.2)})
			Expect(err).ToNot(HaveOccurred())
			Expect(pool.ID).To(Equal("warm"))
		})
		It("should break score ties by input order", func() {
			strategy := scheduling.NewBinPackingFirstFit()
			pool, err := strategy.SelectPool(ctx, job, []*v1.PoolCandidate{candidate("first", 0.5), candidate("second", 0.5)})
			Expect(err).ToNot(HaveOccurred())
			Expect(pool.ID).To(Equal("first"))
		})
	})
})
