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
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-logr/logr"

	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/transport"
)

const (
	connectAttempts  = 5
	connectBaseDelay = time.Second
)

// Runtime is the worker process: it dials the orchestrator, registers over
// the bidirectional stream, and runs at most one execution before exiting.
// The orchestrator provisions a fresh worker per execution, so the process
// lifecycle is bounded by the assignment's.
type Runtime struct {
	logger      logr.Logger
	endpoint    string
	workerID    string
	interpreter string
	artifactDir string
}

func NewRuntime(logger logr.Logger, endpoint, workerID, interpreter string) *Runtime {
	return &Runtime{
		logger:      logger.WithName("worker.runtime").WithValues("worker-id", workerID),
		endpoint:    endpoint,
		workerID:    workerID,
		interpreter: interpreter,
		artifactDir: filepath.Join(os.TempDir(), "hodei-artifacts"),
	}
}

// Run connects, registers, and serves orchestrator messages until the single
// execution completes or the stream breaks.
func (r *Runtime) Run(ctx context.Context) error {
	conn, err := transport.NewClientConn(r.endpoint)
	if err != nil {
		return fmt.Errorf("dialing orchestrator, %w", err)
	}
	defer conn.Close()

	var stream transport.ClientStream
	err = retry.Do(
		func() error {
			s, err := transport.Connect(ctx, conn)
			if err != nil {
				return err
			}
			if err = s.Send(&transport.WorkerMessage{Register: &transport.RegisterRequest{
				WorkerID:        r.workerID,
				ProtocolVersion: transport.ProtocolVersion,
			}}); err != nil {
				return err
			}
			stream = s
			return nil
		},
		retry.Attempts(connectAttempts),
		retry.Delay(connectBaseDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Error(err, "retrying orchestrator connection", "attempt", n+1)
		}),
	)
	if err != nil {
		return fmt.Errorf("registering with orchestrator, %w", err)
	}
	r.logger.Info("registered with orchestrator", "endpoint", r.endpoint)

	sender := &streamSender{stream: stream}
	return r.serve(ctx, stream, sender)
}

func (r *Runtime) serve(ctx context.Context, stream transport.ClientStream, sender *streamSender) error {
	inbound := make(chan *transport.OrchestratorMessage)
	recvErr := make(chan error, 1)
	go func() {
		for {
			msg, err := stream.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			select {
			case inbound <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		execCancel context.CancelFunc
		execDone   chan struct{}
	)
	for {
		select {
		case msg := <-inbound:
			switch {
			case msg.Assignment != nil:
				if execDone != nil {
					r.logger.Info("rejecting second assignment on stream", "execution-id", msg.Assignment.ExecutionID)
					continue
				}
				var execCtx context.Context
				execCtx, execCancel = context.WithCancel(ctx)
				execDone = r.startExecution(execCtx, sender, msg.Assignment)
			case msg.Cancel != nil:
				if execCancel == nil {
					r.logger.Info("ignoring cancel signal with no running execution")
					continue
				}
				r.logger.Info("received cancel signal", "reason", msg.Cancel.Reason)
				execCancel()
			case msg.Artifact != nil:
				if err := r.storeArtifact(msg.Artifact); err != nil {
					r.logger.Error(err, "failed to store artifact", "artifact-id", msg.Artifact.ArtifactID)
				}
			default:
				r.logger.Info("ignoring unknown orchestrator message variant")
			}
		case <-execDone:
			// the result frame is already on the wire; let the server observe
			// a clean half-close before the process exits
			if execCancel != nil {
				execCancel()
			}
			_ = stream.CloseSend()
			return nil
		case err := <-recvErr:
			if execCancel != nil {
				execCancel()
			}
			if execDone != nil {
				<-execDone
				return nil
			}
			return fmt.Errorf("orchestrator stream closed, %w", err)
		case <-ctx.Done():
			if execCancel != nil {
				execCancel()
				<-execDone
			}
			return ctx.Err()
		}
	}
}

func (r *Runtime) startExecution(ctx context.Context, sender *streamSender, assignment *transport.ExecutionAssignment) chan struct{} {
	r.logger.Info("received execution assignment", "execution-id", assignment.ExecutionID)
	done := make(chan struct{})
	executor := NewExecutor(r.logger, r.interpreter, transport.ProtocolVersion, sender)
	go func() {
		defer close(done)
		result := executor.Execute(ctx, &assignment.Definition)
		if err := sender.send(&transport.WorkerMessage{Result: result}); err != nil {
			r.logger.Error(err, "failed to send execution result", "execution-id", assignment.ExecutionID)
			return
		}
		r.logger.Info("execution result sent",
			"execution-id", assignment.ExecutionID, "success", result.Success, "exit-code", result.ExitCode)
	}()
	return done
}

func (r *Runtime) storeArtifact(artifact *transport.Artifact) error {
	if err := os.MkdirAll(r.artifactDir, 0o755); err != nil {
		return err
	}
	name := artifact.Name
	if name == "" {
		name = artifact.ArtifactID
	}
	return os.WriteFile(filepath.Join(r.artifactDir, filepath.Base(name)), artifact.Content, 0o644)
}

// streamSender serializes writes to the stream: the executor's status and log
// goroutines and the result sender all share it.
type streamSender struct {
	mu     sync.Mutex
	stream transport.ClientStream
}

func (s *streamSender) send(msg *transport.WorkerMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream.Send(msg)
}

func (s *streamSender) EmitStatus(update *transport.StatusUpdate) {
	_ = s.send(&transport.WorkerMessage{StatusUpdate: update})
}

func (s *streamSender) EmitLog(chunk *transport.LogChunk) {
	_ = s.send(&transport.WorkerMessage{LogChunk: chunk})
}
