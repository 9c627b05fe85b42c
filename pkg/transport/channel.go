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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-logr/logr"
	"github.com/samber/lo"

	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/metrics"
)

const (
	// DrainTimeout bounds how long a closing stream waits for the engine to
	// finish processing the worker's last result.
	DrainTimeout = 5 * time.Second

	resultRetryAttempts  = 3
	resultRetryBaseDelay = 100 * time.Millisecond
)

// Handler consumes inbound worker frames. Implemented by the execution
// engine; installed after construction to break the engine↔transport cycle.
type Handler interface {
	// ActiveExecutionForWorker resolves the execution currently owned by the
	// worker. Inbound frames do not carry an execution id on the wire.
	ActiveExecutionForWorker(workerID string) (string, bool)
	HandleStatusUpdate(ctx context.Context, executionID string, update *StatusUpdate)
	HandleLogChunk(ctx context.Context, executionID string, chunk *LogChunk)
	HandleExecutionResult(ctx context.Context, executionID string, result *ExecutionResult) error
}

// Registrar observes workers attaching to and detaching from the channel.
type Registrar interface {
	RegisterWorker(workerID string)
	UnregisterWorker(workerID string)
}

type connection struct {
	workerID        string
	protocolVersion int32
	stream          ConnectStream
	queue           *messageQueue

	closing   chan struct{} // closed to supersede or shut down
	finished  chan struct{} // closed when Connect returns
	drained   chan struct{} // closed by NotifyCompletion
	closeOnce sync.Once
	drainOnce sync.Once
}

func (c *connection) close() {
	c.closeOnce.Do(func() { close(c.closing) })
}

func (c *connection) markDrained() {
	c.drainOnce.Do(func() { close(c.drained) })
}

// Channel is the bidirectional streaming hub. Each connected worker owns one
// stream, one unbounded outbound queue, and a reader/writer goroutine pair.
// A worker id maps to at most one live connection; a second stream claiming
// the same id supersedes the first.
type Channel struct {
	logger    logr.Logger
	registrar Registrar

	mu      sync.RWMutex
	handler Handler
	conns   map[string]*connection
}

func NewChannel(logger logr.Logger, registrar Registrar) *Channel {
	return &Channel{
		logger:    logger.WithName("worker.channel"),
		registrar: registrar,
		conns:     map[string]*connection{},
	}
}

// SetHandler installs the inbound frame handler. Must be called before the
// channel serves streams.
func (c *Channel) SetHandler(handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *Channel) getHandler() Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handler
}

// Connect implements ConnectServer: it runs for the lifetime of one worker
// stream. The first inbound frame must be a register request.
func (c *Channel) Connect(stream ConnectStream) error {
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	if first.Register == nil {
		return fmt.Errorf("first frame on stream was not a register request")
	}
	conn := &connection{
		workerID:        first.Register.WorkerID,
		protocolVersion: first.Register.ProtocolVersion,
		stream:          stream,
		queue:           newMessageQueue(),
		closing:         make(chan struct{}),
		finished:        make(chan struct{}),
		drained:         make(chan struct{}),
	}
	defer close(conn.finished)
	logger := c.logger.WithValues("worker-id", conn.workerID)

	c.register(conn, logger)
	logger.Info("worker registered", "protocol-version", conn.protocolVersion)

	writerDone := make(chan struct{})
	go c.runWriter(conn, logger, writerDone)
	readerDone := make(chan struct{})
	go c.runReader(conn, logger, readerDone)

	select {
	case <-conn.closing:
	case <-readerDone:
	case <-stream.Context().Done():
	}
	c.teardown(conn, logger)
	return nil
}

func (c *Channel) register(conn *connection, logger logr.Logger) {
	c.mu.Lock()
	previous := c.conns[conn.workerID]
	c.conns[conn.workerID] = conn
	c.mu.Unlock()
	if previous != nil {
		logger.Info("superseding existing stream for worker")
		previous.close()
	} else {
		metrics.ConnectedWorkers.Inc()
	}
	c.registrar.RegisterWorker(conn.workerID)
}

func (c *Channel) runWriter(conn *connection, logger logr.Logger, done chan struct{}) {
	defer close(done)
	for {
		msg, ok := conn.queue.Pop()
		if !ok {
			return
		}
		if err := conn.stream.Send(msg); err != nil {
			logger.Error(err, "failed to write to worker stream")
			conn.close()
			return
		}
	}
}

func (c *Channel) runReader(conn *connection, logger logr.Logger, done chan struct{}) {
	defer close(done)
	ctx := conn.stream.Context()
	for {
		msg, err := conn.stream.Recv()
		if err != nil {
			logger.V(1).Info("worker stream closed", "cause", err.Error())
			return
		}
		c.dispatch(ctx, conn, logger, msg)
	}
}

// dispatch routes one inbound frame. Handler panics are contained so a bad
// frame never tears down the process.
func (c *Channel) dispatch(ctx context.Context, conn *connection, logger logr.Logger, msg *WorkerMessage) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Errorf("%v", r), "panic while handling worker frame")
		}
	}()
	handler := c.getHandler()
	if handler == nil {
		logger.Info("no handler installed, dropping frame")
		return
	}
	switch {
	case msg.Register != nil:
		// re-registration on a live stream carries no meaning
		logger.Info("ignoring duplicate register request")
	case msg.StatusUpdate != nil:
		executionID, ok := handler.ActiveExecutionForWorker(conn.workerID)
		if !ok {
			logger.Info("dropping status update for worker with no active execution")
			return
		}
		handler.HandleStatusUpdate(ctx, executionID, msg.StatusUpdate)
	case msg.LogChunk != nil:
		executionID, ok := handler.ActiveExecutionForWorker(conn.workerID)
		if !ok {
			logger.Info("dropping log chunk for worker with no active execution")
			return
		}
		handler.HandleLogChunk(ctx, executionID, msg.LogChunk)
	case msg.Result != nil:
		c.deliverResult(ctx, handler, conn, logger, msg.Result)
	default:
		logger.Info("ignoring unknown worker message variant")
	}
}

// deliverResult pushes the execution result into the engine with bounded
// retry: results are the critical frame, losing one strands the execution.
func (c *Channel) deliverResult(ctx context.Context, handler Handler, conn *connection, logger logr.Logger, result *ExecutionResult) {
	executionID, ok := handler.ActiveExecutionForWorker(conn.workerID)
	if !ok {
		logger.Info("dropping execution result for worker with no active execution")
		return
	}
	err := retry.Do(
		func() error { return handler.HandleExecutionResult(ctx, executionID, result) },
		retry.Attempts(resultRetryAttempts),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(n+1) * resultRetryBaseDelay
		}),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Error(err, "retrying execution result delivery", "execution-id", executionID, "attempt", n+1)
		}),
	)
	if err != nil {
		logger.Error(err, "abandoning execution result after retries", "execution-id", executionID)
		return
	}
	logger.Info("execution result delivered", "execution-id", executionID)
}

func (c *Channel) teardown(conn *connection, logger logr.Logger) {
	// Give the engine a window to flush terminal state for an in-flight
	// result before the connection record disappears.
	if handler := c.getHandler(); handler != nil {
		if _, active := handler.ActiveExecutionForWorker(conn.workerID); active {
			select {
			case <-conn.drained:
			case <-time.After(DrainTimeout):
				logger.Info("drain window elapsed before completion signal")
			}
		}
	}
	c.mu.Lock()
	current := c.conns[conn.workerID] == conn
	if current {
		delete(c.conns, conn.workerID)
		metrics.ConnectedWorkers.Dec()
	}
	c.mu.Unlock()
	conn.queue.Close()
	// a superseding stream owns the worker's registration now
	if current {
		c.registrar.UnregisterWorker(conn.workerID)
	}
	logger.Info("worker connection finalized")
}

// NotifyCompletion signals that the engine finished terminal processing for
// the worker's execution, releasing any pending drain wait.
func (c *Channel) NotifyCompletion(workerID string) {
	c.mu.RLock()
	conn := c.conns[workerID]
	c.mu.RUnlock()
	if conn != nil {
		conn.markDrained()
	}
}

// SendExecutionAssignment enqueues an assignment for the worker. Returns
// false when the worker has no live connection.
func (c *Channel) SendExecutionAssignment(workerID string, assignment *ExecutionAssignment) bool {
	return c.send(workerID, &OrchestratorMessage{Assignment: assignment})
}

// SendCancelSignal enqueues a cancel signal for the worker.
func (c *Channel) SendCancelSignal(workerID string, signal *CancelSignal) bool {
	return c.send(workerID, &OrchestratorMessage{Cancel: signal})
}

// SendArtifact enqueues an artifact payload for the worker.
func (c *Channel) SendArtifact(workerID string, artifact *Artifact) bool {
	return c.send(workerID, &OrchestratorMessage{Artifact: artifact})
}

func (c *Channel) send(workerID string, msg *OrchestratorMessage) bool {
	c.mu.RLock()
	conn := c.conns[workerID]
	c.mu.RUnlock()
	if conn == nil {
		return false
	}
	return conn.queue.Push(msg)
}

// IsWorkerConnected reports whether the worker has a live connection.
func (c *Channel) IsWorkerConnected(workerID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.conns[workerID]
	return ok
}

// ConnectedWorkers returns the ids of all connected workers.
func (c *Channel) ConnectedWorkers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Keys(c.conns)
}

// Shutdown finalizes every connection and waits for their streams to unwind,
// bounded by the context deadline.
func (c *Channel) Shutdown(ctx context.Context) {
	c.mu.RLock()
	conns := lo.Values(c.conns)
	c.mu.RUnlock()
	for _, conn := range conns {
		conn.markDrained()
		conn.close()
	}
	for _, conn := range conns {
		select {
		case <-conn.finished:
		case <-ctx.Done():
			return
		}
	}
}
