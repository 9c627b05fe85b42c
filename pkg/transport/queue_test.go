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

package transport

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MessageQueue", func() {
	var queue *messageQueue

	BeforeEach(func() {
		queue = newMessageQueue()
	})

	It("should deliver messages in push order", func() {
		for i := 0; i < 5; i++ {
			Expect(queue.Push(&OrchestratorMessage{Cancel: &CancelSignal{Reason: fmt.Sprintf("r%d", i)}})).To(BeTrue())
		}
		for i := 0; i < 5; i++ {
			msg, ok := queue.Pop()
			Expect(ok).To(BeTrue())
			Expect(msg.Cancel.Reason).To(Equal(fmt.Sprintf("r%d", i)))
		}
	})
	It("should block poppers until a message arrives", func() {
		popped := make(chan *OrchestratorMessage, 1)
		go func() {
			defer GinkgoRecover()
			msg, ok := queue.Pop()
			Expect(ok).To(BeTrue())
			popped <- msg
		}()
		Consistently(popped).ShouldNot(Receive())
		queue.Push(&OrchestratorMessage{Cancel: &CancelSignal{}})
		Eventually(popped).Should(Receive())
	})
	It("should refuse pushes after close", func() {
		queue.Close()
		Expect(queue.Push(&OrchestratorMessage{})).To(BeFalse())
	})
	It("should drain queued messages after close before reporting closed", func() {
		queue.Push(&OrchestratorMessage{Cancel: &CancelSignal{Reason: "queued"}})
		queue.Close()
		msg, ok := queue.Pop()
		Expect(ok).To(BeTrue())
		Expect(msg.Cancel.Reason).To(Equal("queued"))
		_, ok = queue.Pop()
		Expect(ok).To(BeFalse())
	})
	It("should wake all blocked poppers on close", func() {
		done := make(chan struct{}, 2)
		for i := 0; i < 2; i++ {
			go func() {
				defer GinkgoRecover()
				_, ok := queue.Pop()
				Expect(ok).To(BeFalse())
				done <- struct{}{}
			}()
		}
		queue.Close()
		Eventually(done).Should(HaveLen(2))
	})
})

var _ = Describe("Codec", func() {
	It("should round trip worker messages", func() {
		in := &WorkerMessage{StatusUpdate: &StatusUpdate{EventType: EventTypeStepCompleted, Message: "step 1/2", Timestamp: 1700000000000}}
		data, err := codec{}.Marshal(in)
		Expect(err).ToNot(HaveOccurred())
		out := &WorkerMessage{}
		Expect(codec{}.Unmarshal(data, out)).To(Succeed())
		Expect(out).To(Equal(in))
	})
	It("should round trip orchestrator messages", func() {
		in := &OrchestratorMessage{Assignment: &ExecutionAssignment{
			ExecutionID: "exec-1",
			Definition: ExecutionDefinition{
				EnvVars:     map[string]string{"BRANCH": "main"},
				Shell:       &ShellTask{Commands: []string{"make build"}},
				TimeoutSecs: 300,
			},
		}}
		data, err := codec{}.Marshal(in)
		Expect(err).ToNot(HaveOccurred())
		out := &OrchestratorMessage{}
		Expect(codec{}.Unmarshal(data, out)).To(Succeed())
		Expect(out).To(Equal(in))
	})
	It("should encode identical messages to identical bytes", func() {
		msg := &WorkerMessage{Register: &RegisterRequest{WorkerID: "w-1", ProtocolVersion: ProtocolVersion}}
		first, err := codec{}.Marshal(msg)
		Expect(err).ToNot(HaveOccurred())
		second, err := codec{}.Marshal(msg)
		Expect(err).ToNot(HaveOccurred())
		Expect(second).To(Equal(first))
	})
})
