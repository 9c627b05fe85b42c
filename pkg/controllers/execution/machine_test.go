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

package execution_test

import (
	"encoding/base64"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/controllers/execution"
)

func advance(m *execution.Machine, states ...execution.State) {
	for _, s := range states {
		ExpectWithOffset(1, m.TransitionTo(s)).To(BeTrue())
	}
}

var _ = Describe("Machine", func() {
	var machine *execution.Machine

	BeforeEach(func() {
		machine = execution.NewMachine()
	})

	It("should walk the happy path to completion", func() {
		advance(machine, execution.StateCreated, execution.StateAssigned, execution.StateStarted, execution.StateCompleted)
		Expect(machine.Current()).To(Equal(execution.StateCompleted))
		Expect(machine.Current().IsTerminal()).To(BeTrue())
	})
	It("should allow failure only after the task started", func() {
		advance(machine, execution.StateCreated, execution.StateAssigned)
		Expect(machine.TransitionTo(execution.StateFailed)).To(BeFalse())
		advance(machine, execution.StateStarted, execution.StateFailed)
	})
	It("should allow cancellation from every non-terminal state", func() {
		for _, prefix := range [][]execution.State{
			{},
			{execution.StateCreated},
			{execution.StateCreated, execution.StateAssigned},
			{execution.StateCreated, execution.StateAssigned, execution.StateStarted},
		} {
			m := execution.NewMachine()
			advance(m, prefix...)
			Expect(m.TransitionTo(execution.StateCancelled)).To(BeTrue())
		}
	})
	It("should reject illegal transitions without side effects", func() {
		advance(machine, execution.StateCreated)
		var observed []execution.State
		machine.Subscribe(func(s execution.State) { observed = append(observed, s) })
		Expect(machine.TransitionTo(execution.StateStarted)).To(BeFalse())
		Expect(machine.TransitionTo(execution.StateCompleted)).To(BeFalse())
		Expect(machine.Current()).To(Equal(execution.StateCreated))
		Expect(observed).To(BeEmpty())
	})
	It("should treat terminal states as sinks", func() {
		advance(machine, execution.StateCreated, execution.StateCancelled)
		Expect(machine.TransitionTo(execution.StateAssigned)).To(BeFalse())
		Expect(machine.TransitionTo(execution.StateCompleted)).To(BeFalse())
		Expect(machine.Current()).To(Equal(execution.StateCancelled))
	})
	It("should notify subscribers in transition order", func() {
		var observed []execution.State
		machine.Subscribe(func(s execution.State) { observed = append(observed, s) })
		advance(machine, execution.StateCreated, execution.StateAssigned, execution.StateStarted, execution.StateCompleted)
		Expect(observed).To(Equal([]execution.State{
			execution.StateCreated, execution.StateAssigned, execution.StateStarted, execution.StateCompleted,
		}))
	})

	Context("pending acknowledgements", func() {
		It("should record a pending ack when the transition requires one", func() {
			advance(machine, execution.StateCreated)
			Expect(machine.TransitionTo(execution.StateAssigned, execution.WithMessageID("msg-1"), execution.WithRequiresAck())).To(BeTrue())
			Expect(machine.PendingAcks()).To(ConsistOf("msg-1"))
		})
		It("should clear a specific ack by correlation id", func() {
			advance(machine, execution.StateCreated)
			machine.TransitionTo(execution.StateAssigned, execution.WithMessageID("msg-1"), execution.WithRequiresAck())
			Expect(machine.ClearPendingAck("msg-1")).To(BeTrue())
			Expect(machine.ClearPendingAck("msg-1")).To(BeFalse())
			Expect(machine.PendingAcks()).To(BeEmpty())
		})
		It("should clear everything outstanding at once", func() {
			advance(machine, execution.StateCreated)
			machine.TransitionTo(execution.StateAssigned, execution.WithMessageID("msg-1"), execution.WithRequiresAck())
			machine.ClearPendingAcks()
			Expect(machine.PendingAcks()).To(BeEmpty())
		})
	})

	Context("job status mapping", func() {
		It("should map execution states onto job statuses", func() {
			Expect(machine.JobStatus()).To(Equal(v1.JobStatusQueued))
			advance(machine, execution.StateCreated)
			Expect(machine.JobStatus()).To(Equal(v1.JobStatusQueued))
			advance(machine, execution.StateAssigned)
			Expect(machine.JobStatus()).To(Equal(v1.JobStatusRunning))
			advance(machine, execution.StateStarted)
			Expect(machine.JobStatus()).To(Equal(v1.JobStatusRunning))
			advance(machine, execution.StateCompleted)
			Expect(machine.JobStatus()).To(Equal(v1.JobStatusCompleted))
		})
	})
})

var _ = Describe("Job", func() {
	It("should keep terminal statuses monotone", func() {
		job := v1.NewJob("test-job")
		Expect(job.Start()).To(BeTrue())
		Expect(job.Complete()).To(BeTrue())
		Expect(job.Fail("too late")).To(BeFalse())
		Expect(job.Cancel()).To(BeFalse())
		Expect(job.Status).To(Equal(v1.JobStatusCompleted))
		Expect(job.FailureReason).To(BeEmpty())
	})
})

var _ = Describe("Token", func() {
	It("should issue 32 random bytes encoded base64-url without padding", func() {
		token := newTestEngine(nil).Engine.Token()
		raw, err := base64.RawURLEncoding.DecodeString(token)
		Expect(err).ToNot(HaveOccurred())
		Expect(raw).To(HaveLen(32))
	})
	It("should differ between engine instances", func() {
		Expect(newTestEngine(nil).Engine.Token()).ToNot(Equal(newTestEngine(nil).Engine.Token()))
	})
})
