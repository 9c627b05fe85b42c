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

package v1

import (
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "PENDING"
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusSuccess   ExecutionStatus = "SUCCESS"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
	ExecutionStatusCancelled ExecutionStatus = "CANCELLED"
)

// ExecutionSpec is the snapshot of the task payload sent to the worker:
// either an ordered command list or a script body, plus env vars.
type ExecutionSpec struct {
	Commands      []string
	ScriptContent string
	EnvVars       map[string]string
	TimeoutSecs   int64
}

// Execution binds one job to one worker for a single run attempt.
type Execution struct {
	ID             string
	JobID          string
	WorkerID       string
	Spec           ExecutionSpec
	Status         ExecutionStatus
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ExitCode       *int32
	FailureDetails string
}

// NewExecution constructs a pending execution with a fresh identity.
func NewExecution(jobID, workerID string, spec ExecutionSpec) *Execution {
	return &Execution{
		ID:        uuid.NewString(),
		JobID:     jobID,
		WorkerID:  workerID,
		Spec:      spec,
		Status:    ExecutionStatusPending,
		CreatedAt: time.Now(),
	}
}

type ExecutionEventType string

const (
	EventTypeStageStarted   ExecutionEventType = "STAGE_STARTED"
	EventTypeStageCompleted ExecutionEventType = "STAGE_COMPLETED"
	EventTypeStepStarted    ExecutionEventType = "STEP_STARTED"
	EventTypeStepCompleted  ExecutionEventType = "STEP_COMPLETED"
	EventTypeStatusUpdate   ExecutionEventType = "STATUS_UPDATE"
)

// ExecutionEvent is a lifecycle observation emitted while an execution runs.
type ExecutionEvent struct {
	ID          string
	ExecutionID string
	Timestamp   time.Time
	Type        ExecutionEventType
	Stage       string
	Step        string
	Message     string
	Metadata    map[string]any
}

// NewExecutionEvent constructs an event stamped now.
func NewExecutionEvent(executionID string, eventType ExecutionEventType, message string) *ExecutionEvent {
	return &ExecutionEvent{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		Timestamp:   time.Now(),
		Type:        eventType,
		Message:     message,
	}
}

type LogLevel string

const (
	LogLevelInfo  LogLevel = "INFO"
	LogLevelError LogLevel = "ERROR"
)

type LogStreamName string

const (
	LogStreamStdout LogStreamName = "STDOUT"
	LogStreamStderr LogStreamName = "STDERR"
)

// ExecutionLog is one chunk of task output relayed from a worker.
type ExecutionLog struct {
	ID          string
	ExecutionID string
	Timestamp   time.Time
	Level       LogLevel
	Stream      LogStreamName
	Stage       string
	Step        string
	Message     []byte
}

// NewExecutionLog constructs a log record stamped now.
func NewExecutionLog(executionID string, stream LogStreamName, message []byte) *ExecutionLog {
	return &ExecutionLog{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		Timestamp:   time.Now(),
		Level:       LogLevelInfo,
		Stream:      stream,
		Message:     message,
	}
}
