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

// Wire envelopes for the bidirectional worker stream. Both envelopes are
// one-ofs: exactly one pointer field is expected to be set; frames with no
// known variant set must be ignored with a warning (forward compatibility).
// Field keys are integers so the CBOR encoding stays compact and renames
// never break the wire.

// ProtocolVersion is the current protocol revision. Version 2 introduced the
// STEP_STARTED/STEP_COMPLETED status events.
const ProtocolVersion int32 = 2

type EventType int32

const (
	EventTypeUnspecified EventType = iota
	EventTypeStageStarted
	EventTypeStageCompleted
	EventTypeStepStarted
	EventTypeStepCompleted
)

type LogStream int32

const (
	LogStreamStdout LogStream = iota
	LogStreamStderr
)

// WorkerMessage is the worker→orchestrator envelope.
type WorkerMessage struct {
	Register     *RegisterRequest `cbor:"1,keyasint,omitempty"`
	StatusUpdate *StatusUpdate    `cbor:"2,keyasint,omitempty"`
	LogChunk     *LogChunk        `cbor:"3,keyasint,omitempty"`
	Result       *ExecutionResult `cbor:"4,keyasint,omitempty"`
}

// RegisterRequest must be the first frame on a new stream; it binds the
// worker id to the stream.
type RegisterRequest struct {
	WorkerID        string `cbor:"1,keyasint"`
	ProtocolVersion int32  `cbor:"2,keyasint,omitempty"`
}

type StatusUpdate struct {
	EventType EventType `cbor:"1,keyasint"`
	Message   string    `cbor:"2,keyasint,omitempty"`
	Timestamp int64     `cbor:"3,keyasint,omitempty"`
}

type LogChunk struct {
	Stream  LogStream `cbor:"1,keyasint"`
	Content []byte    `cbor:"2,keyasint"`
}

type ExecutionResult struct {
	Success  bool   `cbor:"1,keyasint"`
	ExitCode int32  `cbor:"2,keyasint"`
	Details  string `cbor:"3,keyasint,omitempty"`
}

// OrchestratorMessage is the orchestrator→worker envelope.
type OrchestratorMessage struct {
	Assignment *ExecutionAssignment `cbor:"1,keyasint,omitempty"`
	Cancel     *CancelSignal        `cbor:"2,keyasint,omitempty"`
	Artifact   *Artifact            `cbor:"3,keyasint,omitempty"`
}

type ExecutionAssignment struct {
	ExecutionID       string              `cbor:"1,keyasint"`
	Definition        ExecutionDefinition `cbor:"2,keyasint"`
	RequiredArtifacts []ArtifactRef       `cbor:"3,keyasint,omitempty"`
}

// ExecutionDefinition carries exactly one task variant plus env vars. The
// worker enforces TimeoutSecs over the whole task.
type ExecutionDefinition struct {
	EnvVars     map[string]string `cbor:"1,keyasint,omitempty"`
	Shell       *ShellTask        `cbor:"2,keyasint,omitempty"`
	Script      *ScriptTask       `cbor:"3,keyasint,omitempty"`
	TimeoutSecs int64             `cbor:"4,keyasint,omitempty"`
}

type ShellTask struct {
	Commands []string `cbor:"1,keyasint"`
}

type ScriptTask struct {
	ScriptContent string            `cbor:"1,keyasint"`
	Parameters    map[string]string `cbor:"2,keyasint,omitempty"`
}

type CancelSignal struct {
	Reason string `cbor:"1,keyasint,omitempty"`
}

type Artifact struct {
	ArtifactID string `cbor:"1,keyasint"`
	Name       string `cbor:"2,keyasint,omitempty"`
	Content    []byte `cbor:"3,keyasint,omitempty"`
}

type ArtifactRef struct {
	ArtifactID  string `cbor:"1,keyasint"`
	Destination string `cbor:"2,keyasint,omitempty"`
}
