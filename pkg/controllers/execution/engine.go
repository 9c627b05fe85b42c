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

package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awslabs/operatorpkg/serrors"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/samber/lo"
	"k8s.io/utils/clock"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/cloudprovider"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/events"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/metrics"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/repository"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/state"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/transport"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/utils/resources"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/workers"
)

const (
	// DefaultRegistrationTimeout bounds the wait for a freshly provisioned
	// worker to connect.
	DefaultRegistrationTimeout = 30 * time.Second
	// DefaultCancelGracePeriod is how long a cancelled execution may wait
	// for the worker's result before being force-failed.
	DefaultCancelGracePeriod = 60 * time.Second
)

var (
	ErrUnauthorized         = errors.New("Unauthorized")
	ErrRegistrationTimeout  = errors.New("Worker failed to register within timeout")
	ErrTemplateNotPublished = errors.New("template is not published")
)

// WorkerCommunicationService is the narrow capability the engine needs from
// the transport. The concrete channel is injected after construction, which
// breaks the engine↔transport construction cycle.
type WorkerCommunicationService interface {
	SendExecutionAssignment(workerID string, assignment *transport.ExecutionAssignment) bool
	SendCancelSignal(workerID string, signal *transport.CancelSignal) bool
	SendArtifact(workerID string, artifact *transport.Artifact) bool
	IsWorkerConnected(workerID string) bool
	ConnectedWorkers() []string
	// NotifyCompletion releases the channel's drain wait for the worker.
	NotifyCompletion(workerID string)
}

// executionContext owns all mutable state for one active execution. Its
// mutex serializes inbound handling per execution id; distinct executions
// proceed concurrently.
type executionContext struct {
	mu sync.Mutex

	execution    *v1.Execution
	machine      *Machine
	pool         *v1.ResourcePool
	assignmentID string
	reservedCPU  float64
	reservedMem  int64
	// mirroredStatus makes the reactive job-status mirror idempotent
	mirroredStatus v1.JobStatus
	finalized      bool
	storedEvents   []*v1.ExecutionEvent
	storedLogs     []*v1.ExecutionLog
	cancelTimer    clock.Timer
}

// Engine orchestrates the job→pool→worker→execution lifecycle and routes
// inbound worker frames into per-execution state machines.
type Engine struct {
	logger    logr.Logger
	clock     clock.WithDelayedExecution
	token     string
	jobs      repository.JobRepository
	templates repository.TemplateRepository
	factory   cloudprovider.WorkerFactory
	registry  *workers.Manager
	bus       *events.Bus
	notifier  events.Notifier
	tracker   *state.Tracker

	registrationTimeout time.Duration
	cancelGracePeriod   time.Duration

	mu       sync.RWMutex
	comms    WorkerCommunicationService
	active   map[string]*executionContext
	byWorker map[string]string
}

type EngineOption func(*Engine)

func WithRegistrationTimeout(timeout time.Duration) EngineOption {
	return func(e *Engine) { e.registrationTimeout = timeout }
}

func WithCancelGracePeriod(grace time.Duration) EngineOption {
	return func(e *Engine) { e.cancelGracePeriod = grace }
}

func WithNotifier(notifier events.Notifier) EngineOption {
	return func(e *Engine) { e.notifier = notifier }
}

func NewEngine(
	logger logr.Logger,
	clk clock.WithDelayedExecution,
	jobs repository.JobRepository,
	templates repository.TemplateRepository,
	factory cloudprovider.WorkerFactory,
	registry *workers.Manager,
	bus *events.Bus,
	tracker *state.Tracker,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		logger:              logger.WithName("execution.engine"),
		clock:               clk,
		token:               newOrchestratorToken(),
		jobs:                jobs,
		templates:           templates,
		factory:             factory,
		registry:            registry,
		bus:                 bus,
		tracker:             tracker,
		registrationTimeout: DefaultRegistrationTimeout,
		cancelGracePeriod:   DefaultCancelGracePeriod,
		active:              map[string]*executionContext{},
		byWorker:            map[string]string{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = bus
	}
	return e
}

// Token returns the process-scoped orchestrator token. Only the orchestrator
// façade may hold it.
func (e *Engine) Token() string { return e.token }

// SetCommunicationService installs the transport capability. Must be called
// before the first StartExecution.
func (e *Engine) SetCommunicationService(comms WorkerCommunicationService) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.comms = comms
}

func (e *Engine) getComms() WorkerCommunicationService {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.comms
}

// StartExecution provisions a worker on the pool, waits for it to register,
// and assigns it the job's execution definition.
func (e *Engine) StartExecution(ctx context.Context, job *v1.Job, pool *v1.ResourcePool, orchestratorToken string) (*v1.Execution, error) {
	if orchestratorToken != e.token {
		e.logger.Error(ErrUnauthorized, "rejected direct engine entry", "job", job.ID, "security", true)
		return nil, ErrUnauthorized
	}
	if err := e.validateTemplate(ctx, job); err != nil {
		return nil, err
	}

	instance, err := e.factory.CreateWorker(ctx, job, pool)
	if err != nil {
		return nil, err
	}
	e.registry.Track(instance)

	if info := e.registry.WaitForWorkerRegistration(ctx, instance.ID, e.registrationTimeout); info == nil {
		e.destroyWorker(instance.ID)
		return nil, ErrRegistrationTimeout
	}

	definition, spec := BuildDefinition(job)
	exec := v1.NewExecution(job.ID, instance.ID, spec)
	machine := NewMachine()
	exCtx := &executionContext{
		execution:      exec,
		machine:        machine,
		pool:           pool,
		reservedCPU:    resources.ParseCPU(job.ResourceRequirements["cpu"]),
		reservedMem:    resources.ParseMemory(job.ResourceRequirements["memory"]),
		mirroredStatus: job.Status,
	}
	machine.Subscribe(func(s State) { e.mirrorJobStatus(exCtx, job.ID, s) })
	machine.TransitionTo(StateCreated)

	if !e.registry.AssignWorkerToExecution(instance.ID, exec.ID) {
		e.destroyWorker(instance.ID)
		return nil, serrors.Wrap(fmt.Errorf("failed to assign worker to execution"), "worker-id", instance.ID, "execution-id", exec.ID)
	}

	// Activate before sending: the worker's first frames may arrive the
	// instant the assignment lands.
	e.mu.Lock()
	e.active[exec.ID] = exCtx
	e.byWorker[instance.ID] = exec.ID
	e.mu.Unlock()
	metrics.ActiveExecutions.Inc()

	assignment := &transport.ExecutionAssignment{ExecutionID: exec.ID, Definition: definition}
	if !e.getComms().SendExecutionAssignment(instance.ID, assignment) {
		e.deactivate(exec.ID, instance.ID)
		e.registry.ReleaseWorker(instance.ID)
		e.destroyWorker(instance.ID)
		return nil, serrors.Wrap(fmt.Errorf("failed to send assignment to worker"), "worker-id", instance.ID, "execution-id", exec.ID)
	}

	exCtx.mu.Lock()
	exCtx.assignmentID = uuid.NewString()
	machine.TransitionTo(StateAssigned, WithMessageID(exCtx.assignmentID), WithRequiresAck(), WithMetadata(map[string]any{
		"definition-hash": definitionHash(definition),
	}))
	exCtx.mu.Unlock()

	if e.tracker != nil {
		e.tracker.Reserve(pool.ID, exCtx.reservedCPU, exCtx.reservedMem)
	}
	e.logger.Info("started execution",
		"execution-id", exec.ID, "job", job.ID, "pool", pool.ID, "worker-id", instance.ID)
	return exec, nil
}

func (e *Engine) validateTemplate(ctx context.Context, job *v1.Job) error {
	if job.TemplateID == "" {
		return nil
	}
	template, err := e.templates.FindByID(ctx, job.TemplateID)
	if err != nil {
		return serrors.Wrap(fmt.Errorf("fetching template, %w", err), "template-id", job.TemplateID)
	}
	if template.Status != v1.TemplateStatusPublished {
		return serrors.Wrap(ErrTemplateNotPublished, "template-id", job.TemplateID, "status", string(template.Status))
	}
	return nil
}

// CancelExecution sends a cancel signal to the execution's worker. The
// authoritative terminal transition still comes from the worker's result; a
// grace timer force-fails the execution if no result ever arrives.
func (e *Engine) CancelExecution(ctx context.Context, executionID, reason string) error {
	exCtx := e.context(executionID)
	if exCtx == nil {
		return fmt.Errorf("unknown execution %s", executionID)
	}
	exCtx.mu.Lock()
	workerID := exCtx.execution.WorkerID
	if exCtx.cancelTimer == nil {
		exCtx.cancelTimer = e.clock.AfterFunc(e.cancelGracePeriod, func() {
			e.forceFail(context.Background(), executionID, "no completion from worker")
		})
	}
	exCtx.mu.Unlock()

	if !e.getComms().SendCancelSignal(workerID, &transport.CancelSignal{Reason: reason}) {
		return serrors.Wrap(fmt.Errorf("failed to send cancel signal"), "execution-id", executionID, "worker-id", workerID)
	}
	e.logger.Info("sent cancel signal", "execution-id", executionID, "reason", reason)
	return nil
}

// ActiveExecutionForWorker implements transport.Handler.
func (e *Engine) ActiveExecutionForWorker(workerID string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	executionID, ok := e.byWorker[workerID]
	return executionID, ok
}

// HandleStatusUpdate implements transport.Handler: it may advance the state
// machine to STARTED, and always synthesizes an execution event.
func (e *Engine) HandleStatusUpdate(ctx context.Context, executionID string, update *transport.StatusUpdate) {
	exCtx := e.context(executionID)
	if exCtx == nil {
		e.logger.Info("dropping status update for unknown execution", "execution-id", executionID)
		return
	}
	exCtx.mu.Lock()
	// any status frame from the worker acknowledges the assignment
	exCtx.machine.ClearPendingAcks()
	started := update.EventType == transport.EventTypeStageStarted || update.EventType == transport.EventTypeStepStarted
	if started && exCtx.machine.Current() == StateAssigned {
		if exCtx.machine.TransitionTo(StateStarted) {
			now := e.clock.Now()
			exCtx.execution.Status = v1.ExecutionStatusRunning
			exCtx.execution.StartedAt = &now
		}
	}
	event := v1.NewExecutionEvent(executionID, eventTypeFor(update.EventType), update.Message)
	if update.Timestamp > 0 {
		event.Timestamp = time.UnixMilli(update.Timestamp)
	}
	exCtx.storedEvents = append(exCtx.storedEvents, event)
	exCtx.mu.Unlock()

	e.notifier.NotifyEvent(ctx, event)
}

// HandleLogChunk implements transport.Handler.
func (e *Engine) HandleLogChunk(ctx context.Context, executionID string, chunk *transport.LogChunk) {
	exCtx := e.context(executionID)
	if exCtx == nil {
		e.logger.Info("dropping log chunk for unknown execution", "execution-id", executionID)
		return
	}
	stream := v1.LogStreamStdout
	if chunk.Stream == transport.LogStreamStderr {
		stream = v1.LogStreamStderr
	}
	log := v1.NewExecutionLog(executionID, stream, chunk.Content)
	exCtx.mu.Lock()
	exCtx.storedLogs = append(exCtx.storedLogs, log)
	exCtx.mu.Unlock()

	e.notifier.NotifyLog(ctx, log)
}

// HandleExecutionResult implements transport.Handler: it drives the terminal
// transition and finalization. The terminal job write is authoritative and
// happens exactly once per execution; a transient repository failure is
// returned so the channel's bounded retry can re-deliver the frame.
func (e *Engine) HandleExecutionResult(ctx context.Context, executionID string, result *transport.ExecutionResult) error {
	exCtx := e.context(executionID)
	if exCtx == nil {
		e.logger.Info("dropping execution result for unknown execution", "execution-id", executionID)
		return nil
	}
	exCtx.mu.Lock()
	defer exCtx.mu.Unlock()
	if exCtx.finalized {
		return nil
	}

	target := StateFailed
	if result.Success {
		target = StateCompleted
	}
	if !exCtx.machine.Current().IsTerminal() {
		if !exCtx.machine.TransitionTo(target) {
			e.logger.Info("illegal terminal transition for execution result",
				"execution-id", executionID, "from", string(exCtx.machine.Current()), "to", string(target))
			return nil
		}
	}

	if err := e.writeTerminalJobStatus(ctx, exCtx.execution.JobID, result); err != nil {
		return serrors.Wrap(fmt.Errorf("writing terminal job status, %w", err), "execution-id", executionID)
	}
	exCtx.finalized = true
	e.finalize(exCtx, result)
	return nil
}

// writeTerminalJobStatus is the authoritative terminal write for the job.
func (e *Engine) writeTerminalJobStatus(ctx context.Context, jobID string, result *transport.ExecutionResult) error {
	job, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if result.Success {
		job.Complete()
	} else {
		job.Fail(result.Details)
	}
	_, err = e.jobs.Update(ctx, job)
	return err
}

// finalize releases and destroys the worker, cleans up subscribers, and
// removes the execution from the active set. Caller holds exCtx.mu and has
// set finalized.
func (e *Engine) finalize(exCtx *executionContext, result *transport.ExecutionResult) {
	exec := exCtx.execution
	now := e.clock.Now()
	if result.Success {
		exec.Status = v1.ExecutionStatusSuccess
	} else {
		exec.Status = v1.ExecutionStatusFailed
		exec.FailureDetails = result.Details
	}
	exitCode := result.ExitCode
	exec.ExitCode = &exitCode
	exec.CompletedAt = &now

	if exCtx.cancelTimer != nil {
		exCtx.cancelTimer.Stop()
	}
	metrics.ExecutionResults.WithLabelValues(string(exec.Status)).Inc()
	metrics.ExecutionDuration.Observe(now.Sub(exec.CreatedAt).Seconds())

	// worker release and destruction must happen even on error paths
	e.registry.ReleaseWorker(exec.WorkerID)
	go e.destroyWorker(exec.WorkerID)
	if e.tracker != nil {
		e.tracker.Release(exCtx.pool.ID, exCtx.reservedCPU, exCtx.reservedMem)
	}
	e.bus.CleanupExecution(exec.ID)
	e.deactivate(exec.ID, exec.WorkerID)
	if comms := e.getComms(); comms != nil {
		comms.NotifyCompletion(exec.WorkerID)
	}
	e.logger.Info("execution finalized",
		"execution-id", exec.ID, "status", string(exec.Status), "exit-code", exitCode)
}

// forceFail drives an execution to FAILED when no worker result will ever
// arrive (cancellation grace expiry, liveness timeout).
func (e *Engine) forceFail(ctx context.Context, executionID, reason string) {
	exCtx := e.context(executionID)
	if exCtx == nil {
		return
	}
	exCtx.mu.Lock()
	defer exCtx.mu.Unlock()
	if exCtx.finalized {
		return
	}
	if !exCtx.machine.TransitionTo(StateFailed) {
		// FAILED is unreachable before STARTED; fall back to CANCELLED
		exCtx.machine.TransitionTo(StateCancelled)
	}
	if err := e.writeTerminalJobStatus(ctx, exCtx.execution.JobID, &transport.ExecutionResult{Success: false, Details: reason}); err != nil {
		e.logger.Error(err, "failed to write terminal job status while force-failing", "execution-id", executionID)
	}
	exCtx.finalized = true
	e.finalize(exCtx, &transport.ExecutionResult{Success: false, ExitCode: -1, Details: reason})
}

// mirrorJobStatus is the reactive state→job-status mirror. It is idempotent
// (same status is a no-op) and defers terminal statuses to the authoritative
// direct write in HandleExecutionResult; its own write failures are logged
// and never mask that write.
func (e *Engine) mirrorJobStatus(exCtx *executionContext, jobID string, s State) {
	status := jobStatusFor(s)
	if status.IsTerminal() {
		return
	}
	if exCtx.mirroredStatus == status {
		return
	}
	exCtx.mirroredStatus = status
	ctx := context.Background()
	job, err := e.jobs.Get(ctx, jobID)
	if err == nil {
		if status == v1.JobStatusRunning {
			job.Start()
		}
		_, err = e.jobs.Update(ctx, job)
	}
	if err != nil {
		e.logger.Error(err, "failed to mirror job status", "job", jobID, "status", string(status))
	}
}

// ActiveExecutions returns the executions that have not been finalized.
// The engine lock is released before the per-execution locks are taken:
// finalization holds a context lock while it deactivates, so nesting the two
// here would invert that order.
func (e *Engine) ActiveExecutions() []*v1.Execution {
	e.mu.RLock()
	contexts := lo.Values(e.active)
	e.mu.RUnlock()
	return lo.Map(contexts, func(c *executionContext, _ int) *v1.Execution {
		c.mu.Lock()
		defer c.mu.Unlock()
		copied := *c.execution
		return &copied
	})
}

// ExecutionContext returns the execution, its stored events, and its stored
// logs, or nil for an unknown id.
func (e *Engine) ExecutionContext(executionID string) (*v1.Execution, []*v1.ExecutionEvent, []*v1.ExecutionLog) {
	exCtx := e.context(executionID)
	if exCtx == nil {
		return nil, nil, nil
	}
	exCtx.mu.Lock()
	defer exCtx.mu.Unlock()
	copied := *exCtx.execution
	storedEvents := make([]*v1.ExecutionEvent, len(exCtx.storedEvents))
	copy(storedEvents, exCtx.storedEvents)
	storedLogs := make([]*v1.ExecutionLog, len(exCtx.storedLogs))
	copy(storedLogs, exCtx.storedLogs)
	return &copied, storedEvents, storedLogs
}

// Subscribe registers an event subscription and returns its id.
func (e *Engine) Subscribe(sub events.Subscription) string { return e.bus.Subscribe(sub) }

// Unsubscribe removes an event subscription.
func (e *Engine) Unsubscribe(id string) { e.bus.Unsubscribe(id) }

// EventStream returns the stream of a subscription.
func (e *Engine) EventStream(id string) <-chan events.Message { return e.bus.EventStream(id) }

func (e *Engine) context(executionID string) *executionContext {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active[executionID]
}

func (e *Engine) deactivate(executionID, workerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.active[executionID]; ok {
		delete(e.active, executionID)
		metrics.ActiveExecutions.Dec()
	}
	if e.byWorker[workerID] == executionID {
		delete(e.byWorker, workerID)
	}
}

func (e *Engine) destroyWorker(workerID string) {
	if err := e.factory.DestroyWorker(context.Background(), workerID); err != nil {
		e.logger.Error(err, "failed to destroy worker", "worker-id", workerID)
	}
	e.registry.Forget(workerID)
}

func eventTypeFor(t transport.EventType) v1.ExecutionEventType {
	switch t {
	case transport.EventTypeStageStarted:
		return v1.EventTypeStageStarted
	case transport.EventTypeStageCompleted:
		return v1.EventTypeStageCompleted
	case transport.EventTypeStepStarted:
		return v1.EventTypeStepStarted
	case transport.EventTypeStepCompleted:
		return v1.EventTypeStepCompleted
	default:
		return v1.EventTypeStatusUpdate
	}
}

func definitionHash(definition transport.ExecutionDefinition) uint64 {
	hash, err := hashstructure.Hash(definition, hashstructure.FormatV2, nil)
	if err != nil {
		return 0
	}
	return hash
}
