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

package orchestrator_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
)

var _ = Describe("Orchestrator", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness()
	})

	newJob := func() *v1.Job {
		job := v1.NewJob("submitted-job")
		job.Parameters["commands"] = []string{"echo hello"}
		return job
	}

	addPool := func(id string) {
		ExpectWithOffset(1, h.Pools.Create(ctx, &v1.ResourcePool{
			ID: id, Name: id, Type: v1.PoolTypeDocker,
			Capacity: v1.PoolCapacity{TotalCPU: 8, TotalMemoryBytes: 16 << 30},
		})).To(Succeed())
	}

	Context("SubmitJob", func() {
		It("should persist, schedule, and start the job", func() {
			addPool("pool-1")
			exec, err := h.Orchestrator.SubmitJob(ctx, newJob())
			Expect(err).ToNot(HaveOccurred())
			Expect(exec).ToNot(BeNil())
			Expect(h.Factory.CreatedWorkers).To(HaveLen(1))

			persisted, err := h.Orchestrator.GetJob(ctx, exec.JobID)
			Expect(err).ToNot(HaveOccurred())
			Expect(persisted.Status).To(Equal(v1.JobStatusRunning))
		})
		It("should require a job name", func() {
			addPool("pool-1")
			_, err := h.Orchestrator.SubmitJob(ctx, v1.NewJob(""))
			Expect(err).To(HaveOccurred())
		})
		It("should leave the job queued when no pool can host it", func() {
			job := newJob()
			_, err := h.Orchestrator.SubmitJob(ctx, job)
			Expect(err).To(MatchError("No candidate pools available"))

			persisted, err := h.Orchestrator.GetJob(ctx, job.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(persisted.Status).To(Equal(v1.JobStatusQueued))
		})
		It("should never hand clients the engine token", func() {
			// the façade is the only legitimate caller: a guessed token fails
			addPool("pool-1")
			_, err := h.Engine.StartExecution(ctx, newJob(), &v1.ResourcePool{ID: "pool-1"}, "guessed")
			Expect(err).To(MatchError("Unauthorized"))
		})
	})

	Context("CancelJob", func() {
		It("should cancel the job's active execution", func() {
			addPool("pool-1")
			exec, err := h.Orchestrator.SubmitJob(ctx, newJob())
			Expect(err).ToNot(HaveOccurred())
			Expect(h.Orchestrator.CancelJob(ctx, exec.JobID, "user requested")).To(Succeed())
			Expect(h.Comms.CancelCount()).To(Equal(1))
		})
		It("should cancel a queued job directly", func() {
			job := newJob()
			_, _ = h.Orchestrator.SubmitJob(ctx, job)
			Expect(h.Orchestrator.CancelJob(ctx, job.ID, "user requested")).To(Succeed())

			persisted, err := h.Orchestrator.GetJob(ctx, job.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(persisted.Status).To(Equal(v1.JobStatusCancelled))
		})
		It("should error for unknown jobs", func() {
			Expect(h.Orchestrator.CancelJob(ctx, "ghost", "reason")).ToNot(Succeed())
		})
	})

	It("should list submitted jobs", func() {
		addPool("pool-1")
		_, err := h.Orchestrator.SubmitJob(ctx, newJob())
		Expect(err).ToNot(HaveOccurred())
		jobs, err := h.Orchestrator.ListJobs(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(jobs).To(HaveLen(1))
	})
})
