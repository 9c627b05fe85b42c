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

package worker_test

import (
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"

	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/transport"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/worker"
)

var _ = Describe("Executor", func() {
	var emitter *recordingEmitter
	var executor *worker.Executor

	BeforeEach(func() {
		emitter = &recordingEmitter{}
		executor = worker.NewExecutor(logr.Discard(), "", transport.ProtocolVersion, emitter)
	})

	eventTypes := func() []transport.EventType {
		return lo.Map(emitter.Statuses(), func(s *transport.StatusUpdate, _ int) transport.EventType { return s.EventType })
	}

	Context("shell tasks", func() {
		It("should run commands in order and capture stdout", func() {
			result := executor.Execute(ctx, &transport.ExecutionDefinition{
				Shell: &transport.ShellTask{Commands: []string{"echo one", "echo two"}},
			})
			Expect(result.Success).To(BeTrue())
			Expect(result.ExitCode).To(Equal(int32(0)))
			Expect(emitter.CombinedOutput(transport.LogStreamStdout)).To(Equal("one\ntwo\n"))
		})
		It("should bracket the run with stage events and each command with step events", func() {
			executor.Execute(ctx, &transport.ExecutionDefinition{
				Shell: &transport.ShellTask{Commands: []string{"true", "true"}},
			})
			Expect(eventTypes()).To(Equal([]transport.EventType{
				transport.EventTypeStageStarted,
				transport.EventTypeStepStarted, transport.EventTypeStepCompleted,
				transport.EventTypeStepStarted, transport.EventTypeStepCompleted,
				transport.EventTypeStageCompleted,
			}))
		})
		It("should suppress step events for protocol version 1 peers", func() {
			executor = worker.NewExecutor(logr.Discard(), "", 1, emitter)
			executor.Execute(ctx, &transport.ExecutionDefinition{
				Shell: &transport.ShellTask{Commands: []string{"true"}},
			})
			Expect(eventTypes()).To(Equal([]transport.EventType{
				transport.EventTypeStageStarted,
				transport.EventTypeStageCompleted,
			}))
		})
		It("should stop at the first failing command and report its exit code", func() {
			result := executor.Execute(ctx, &transport.ExecutionDefinition{
				Shell: &transport.ShellTask{Commands: []string{"echo before", "exit 3", "echo after"}},
			})
			Expect(result.Success).To(BeFalse())
			Expect(result.ExitCode).To(Equal(int32(3)))
			Expect(result.Details).To(ContainSubstring("command 2 failed"))
			Expect(emitter.CombinedOutput(transport.LogStreamStdout)).To(Equal("before\n"))
		})
		It("should capture stderr on its own stream", func() {
			executor.Execute(ctx, &transport.ExecutionDefinition{
				Shell: &transport.ShellTask{Commands: []string{"echo oops 1>&2"}},
			})
			Expect(emitter.CombinedOutput(transport.LogStreamStderr)).To(Equal("oops\n"))
			Expect(emitter.CombinedOutput(transport.LogStreamStdout)).To(BeEmpty())
		})
		It("should expose definition env vars to the task", func() {
			result := executor.Execute(ctx, &transport.ExecutionDefinition{
				EnvVars: map[string]string{"GREETING": "hola"},
				Shell:   &transport.ShellTask{Commands: []string{"echo $GREETING"}},
			})
			Expect(result.Success).To(BeTrue())
			Expect(emitter.CombinedOutput(transport.LogStreamStdout)).To(Equal("hola\n"))
		})
		It("should enforce the task timeout", func() {
			result := executor.Execute(ctx, &transport.ExecutionDefinition{
				TimeoutSecs: 1,
				Shell:       &transport.ShellTask{Commands: []string{"sleep 30"}},
			})
			Expect(result.Success).To(BeFalse())
			Expect(result.Details).To(ContainSubstring("timed out"))
		})
	})

	Context("script tasks", func() {
		It("should run the script body through the interpreter", func() {
			result := executor.Execute(ctx, &transport.ExecutionDefinition{
				Script: &transport.ScriptTask{ScriptContent: "echo from-script\nexit 0\n"},
			})
			Expect(result.Success).To(BeTrue())
			Expect(emitter.CombinedOutput(transport.LogStreamStdout)).To(Equal("from-script\n"))
		})
		It("should report the script's exit code", func() {
			result := executor.Execute(ctx, &transport.ExecutionDefinition{
				Script: &transport.ScriptTask{ScriptContent: "exit 7\n"},
			})
			Expect(result.Success).To(BeFalse())
			Expect(result.ExitCode).To(Equal(int32(7)))
		})
	})

	It("should fail a definition with no task", func() {
		result := executor.Execute(ctx, &transport.ExecutionDefinition{})
		Expect(result.Success).To(BeFalse())
		Expect(result.ExitCode).To(Equal(int32(-1)))
	})
	It("should stamp status updates with wall clock timestamps", func() {
		before := time.Now().Add(-time.Second).UnixMilli()
		executor.Execute(ctx, &transport.ExecutionDefinition{Shell: &transport.ShellTask{Commands: []string{"true"}}})
		for _, status := range emitter.Statuses() {
			Expect(status.Timestamp).To(BeNumerically(">=", before))
		}
	})
})
