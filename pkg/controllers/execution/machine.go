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
	"sync"

	"github.com/samber/lo"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
)

type State string

const (
	// stateNone is the machine's zero value before the engine transitions
	// into CREATED.
	stateNone State = ""

	StateCreated   State = "CREATED"
	StateAssigned  State = "ASSIGNED"
	StateStarted   State = "STARTED"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// legalTransitions encodes CREATED→ASSIGNED→STARTED→{COMPLETED|FAILED}, with
// CANCELLED reachable from any non-terminal state. Terminal states are sinks.
var legalTransitions = map[State][]State{
	stateNone:     {StateCreated, StateCancelled},
	StateCreated:  {StateAssigned, StateCancelled},
	StateAssigned: {StateStarted, StateCancelled},
	StateStarted:  {StateCompleted, StateFailed, StateCancelled},
}

type TransitionOption func(*transitionOptions)

type transitionOptions struct {
	messageID   string
	requiresAck bool
	metadata    map[string]any
}

// WithMessageID attaches the correlation id of the message that caused the
// transition.
func WithMessageID(id string) TransitionOption {
	return func(o *transitionOptions) { o.messageID = id }
}

// WithRequiresAck records the message id as a pending acknowledgement.
func WithRequiresAck() TransitionOption {
	return func(o *transitionOptions) { o.requiresAck = true }
}

// WithMetadata attaches arbitrary metadata to the transition.
func WithMetadata(metadata map[string]any) TransitionOption {
	return func(o *transitionOptions) { o.metadata = metadata }
}

// Machine is the per-execution finite-state machine. Illegal transition
// requests return false and leave the machine untouched. Subscribers observe
// states in transition order; callers must serialize transitions for one
// execution (the engine does this per execution id).
type Machine struct {
	mu          sync.Mutex
	current     State
	pendingAcks map[string]struct{}
	subscribers []func(State)
}

func NewMachine() *Machine {
	return &Machine{pendingAcks: map[string]struct{}{}}
}

// Current returns the machine's current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// TransitionTo attempts a transition. Returns false without side effects if
// the transition is illegal from the current state.
func (m *Machine) TransitionTo(state State, opts ...TransitionOption) bool {
	o := &transitionOptions{}
	for _, opt := range opts {
		opt(o)
	}
	m.mu.Lock()
	if !lo.Contains(legalTransitions[m.current], state) {
		m.mu.Unlock()
		return false
	}
	m.current = state
	if o.requiresAck && o.messageID != "" {
		m.pendingAcks[o.messageID] = struct{}{}
	}
	subscribers := make([]func(State), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()
	for _, fn := range subscribers {
		fn(state)
	}
	return true
}

// Subscribe registers an observer invoked synchronously on every successful
// transition.
func (m *Machine) Subscribe(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// ClearPendingAck removes a pending acknowledgement by correlation id,
// reporting whether it was pending.
func (m *Machine) ClearPendingAck(messageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pendingAcks[messageID]; !ok {
		return false
	}
	delete(m.pendingAcks, messageID)
	return true
}

// ClearPendingAcks removes all pending acknowledgements. The wire protocol
// does not echo correlation ids on status updates, so any inbound status
// frame acknowledges everything outstanding.
func (m *Machine) ClearPendingAcks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingAcks = map[string]struct{}{}
}

// PendingAcks returns the outstanding correlation ids.
func (m *Machine) PendingAcks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Keys(m.pendingAcks)
}

// JobStatus maps the machine's current state to the owning job's status.
func (m *Machine) JobStatus() v1.JobStatus {
	return jobStatusFor(m.Current())
}

func jobStatusFor(state State) v1.JobStatus {
	switch state {
	case StateAssigned, StateStarted:
		return v1.JobStatusRunning
	case StateCompleted:
		return v1.JobStatusCompleted
	case StateFailed:
		return v1.JobStatusFailed
	case StateCancelled:
		return v1.JobStatusCancelled
	default:
		return v1.JobStatusQueued
	}
}
