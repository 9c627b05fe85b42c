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

package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/samber/lo"

	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/transport"
)

const (
	// DefaultInterpreter runs shell commands and, absent an override, script
	// bodies.
	DefaultInterpreter = "/bin/sh"
	// killGracePeriod is how long a signalled process may keep running before
	// it is killed.
	killGracePeriod = 10 * time.Second

	logChunkBytes = 32 << 10
)

// Emitter receives the frames an executor produces while a task runs.
type Emitter interface {
	EmitStatus(update *transport.StatusUpdate)
	EmitLog(chunk *transport.LogChunk)
}

// Executor runs one execution definition as local processes, streaming
// lifecycle events and output chunks through its emitter.
type Executor struct {
	logger      logr.Logger
	interpreter string
	emitter     Emitter
	// protocolVersion gates step-level events: peers below version 2 do not
	// understand them.
	protocolVersion int32
}

func NewExecutor(logger logr.Logger, interpreter string, protocolVersion int32, emitter Emitter) *Executor {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	return &Executor{
		logger:          logger.WithName("executor"),
		interpreter:     interpreter,
		emitter:         emitter,
		protocolVersion: protocolVersion,
	}
}

// Execute runs the definition to completion and returns the result frame to
// send back. It never returns a nil result; failures are encoded in it.
func (e *Executor) Execute(ctx context.Context, definition *transport.ExecutionDefinition) *transport.ExecutionResult {
	if definition.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(definition.TimeoutSecs)*time.Second)
		defer cancel()
	}
	e.status(transport.EventTypeStageStarted, "execution started")
	result := e.run(ctx, definition)
	e.status(transport.EventTypeStageCompleted, fmt.Sprintf("execution finished, exit code %d", result.ExitCode))
	return result
}

func (e *Executor) run(ctx context.Context, definition *transport.ExecutionDefinition) *transport.ExecutionResult {
	env := taskEnv(definition.EnvVars)
	switch {
	case definition.Shell != nil:
		return e.runShell(ctx, definition.Shell, env)
	case definition.Script != nil:
		return e.runScript(ctx, definition.Script, env)
	default:
		return &transport.ExecutionResult{Success: false, ExitCode: -1, Details: "definition carries no task"}
	}
}

// runShell executes the commands in order, stopping at the first failure.
func (e *Executor) runShell(ctx context.Context, task *transport.ShellTask, env []string) *transport.ExecutionResult {
	for i, command := range task.Commands {
		e.step(transport.EventTypeStepStarted, fmt.Sprintf("command %d/%d", i+1, len(task.Commands)))
		exitCode, err := e.runProcess(ctx, env, e.interpreter, "-c", command)
		e.step(transport.EventTypeStepCompleted, fmt.Sprintf("command %d/%d, exit code %d", i+1, len(task.Commands), exitCode))
		if err != nil || exitCode != 0 {
			return &transport.ExecutionResult{
				Success:  false,
				ExitCode: exitCode,
				Details:  failureDetails(ctx, fmt.Sprintf("command %d failed", i+1), err),
			}
		}
	}
	return &transport.ExecutionResult{Success: true, ExitCode: 0}
}

// runScript materializes the script body in a temp file and runs the
// interpreter over it.
func (e *Executor) runScript(ctx context.Context, task *transport.ScriptTask, env []string) *transport.ExecutionResult {
	file, err := os.CreateTemp("", "hodei-script-*")
	if err != nil {
		return &transport.ExecutionResult{Success: false, ExitCode: -1, Details: fmt.Sprintf("writing script: %v", err)}
	}
	defer os.Remove(file.Name())
	if _, err = file.WriteString(task.ScriptContent); err == nil {
		err = file.Close()
	}
	if err != nil {
		return &transport.ExecutionResult{Success: false, ExitCode: -1, Details: fmt.Sprintf("writing script: %v", err)}
	}

	e.step(transport.EventTypeStepStarted, "script")
	exitCode, err := e.runProcess(ctx, env, e.interpreter, file.Name())
	e.step(transport.EventTypeStepCompleted, fmt.Sprintf("script, exit code %d", exitCode))
	if err != nil || exitCode != 0 {
		return &transport.ExecutionResult{Success: false, ExitCode: exitCode, Details: failureDetails(ctx, "script failed", err)}
	}
	return &transport.ExecutionResult{Success: true, ExitCode: 0}
}

// runProcess starts one process, streams its output, and waits. Cancellation
// sends SIGTERM, then SIGKILL after the grace period.
func (e *Executor) runProcess(ctx context.Context, env []string, name string, args ...string) (int32, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = killGracePeriod

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, err
	}
	if err = cmd.Start(); err != nil {
		return -1, err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go e.streamOutput(&wg, transport.LogStreamStdout, stdout)
	go e.streamOutput(&wg, transport.LogStreamStderr, stderr)
	wg.Wait()

	err = cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		return int32(exitErr.ExitCode()), nil
	default:
		return -1, err
	}
}

// streamOutput relays one pipe as log chunks until EOF. Pipes close when the
// process exits, so this never outlives the command.
func (e *Executor) streamOutput(wg *sync.WaitGroup, stream transport.LogStream, pipe io.Reader) {
	defer wg.Done()
	buf := make([]byte, logChunkBytes)
	for {
		n, err := pipe.Read(buf)
		if n > 0 {
			content := make([]byte, n)
			copy(content, buf[:n])
			e.emitter.EmitLog(&transport.LogChunk{Stream: stream, Content: content})
		}
		if err != nil {
			return
		}
	}
}

func (e *Executor) status(eventType transport.EventType, message string) {
	e.emitter.EmitStatus(&transport.StatusUpdate{
		EventType: eventType,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}

// step emits a step-level event only when the protocol allows it.
func (e *Executor) step(eventType transport.EventType, message string) {
	if e.protocolVersion < 2 {
		return
	}
	e.status(eventType, message)
}

func taskEnv(vars map[string]string) []string {
	return append(os.Environ(), lo.MapToSlice(vars, func(k, v string) string { return k + "=" + v })...)
}

func failureDetails(ctx context.Context, prefix string, err error) string {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return prefix + ": timed out"
		}
		return prefix + ": cancelled"
	}
	if err != nil {
		return fmt.Sprintf("%s: %v", prefix, err)
	}
	return prefix
}
