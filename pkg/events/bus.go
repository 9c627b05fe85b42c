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

package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/utils/logging"
)

// DefaultBufferSize is the per-subscription sink buffer when none is requested.
const DefaultBufferSize = 64

type DeliveryPolicy string

const (
	// DropOldest evicts the oldest buffered message to make room for a new
	// one when a sink is full. This is the default.
	DropOldest DeliveryPolicy = "drop-oldest"
	// DropNewest drops the incoming message when a sink is full.
	DropNewest DeliveryPolicy = "drop-newest"
)

// Notifier is the fire-and-forget fan-out surface consumed by the engine.
// Both calls must never block on a slow subscriber.
type Notifier interface {
	NotifyEvent(ctx context.Context, event *v1.ExecutionEvent)
	NotifyLog(ctx context.Context, log *v1.ExecutionLog)
}

// Message is one item on a subscriber's stream: exactly one field is set.
type Message struct {
	Event *v1.ExecutionEvent
	Log   *v1.ExecutionLog
}

// Subscription describes one subscriber's interest: an execution, an optional
// event-type filter (empty means all), and the sink buffering policy.
type Subscription struct {
	ID          string
	ExecutionID string
	EventTypes  []v1.ExecutionEventType
	BufferSize  int
	Policy      DeliveryPolicy
}

type sink struct {
	Subscription
	ch chan Message
}

func (s *sink) wants(eventType v1.ExecutionEventType) bool {
	return len(s.EventTypes) == 0 || lo.Contains(s.EventTypes, eventType)
}

// deliver pushes without blocking, applying the sink's overflow policy.
func (s *sink) deliver(msg Message) {
	select {
	case s.ch <- msg:
		return
	default:
	}
	if s.Policy == DropNewest {
		return
	}
	// evict the oldest and retry once; a concurrent reader may have already
	// made room
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- msg:
	default:
	}
}

// Bus fans execution events and logs out to subscribers.
type Bus struct {
	mu    sync.RWMutex
	sinks map[string]*sink
}

func NewBus() *Bus {
	return &Bus{sinks: map[string]*sink{}}
}

// Subscribe registers a subscription and returns its id. Zero-value buffer
// size and policy take the defaults.
func (b *Bus) Subscribe(sub Subscription) string {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.BufferSize <= 0 {
		sub.BufferSize = DefaultBufferSize
	}
	if sub.Policy == "" {
		sub.Policy = DropOldest
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks[sub.ID] = &sink{Subscription: sub, ch: make(chan Message, sub.BufferSize)}
	return sub.ID
}

// Unsubscribe removes a subscription and closes its stream.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sinks[id]; ok {
		close(s.ch)
		delete(b.sinks, id)
	}
}

// EventStream returns the subscriber's stream, or nil for an unknown id.
func (b *Bus) EventStream(id string) <-chan Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s, ok := b.sinks[id]; ok {
		return s.ch
	}
	return nil
}

// NotifyEvent fans the event out to all matching subscribers.
func (b *Bus) NotifyEvent(ctx context.Context, event *v1.ExecutionEvent) {
	if event.ExecutionID == "" {
		logging.FromContext(ctx).Info("dropping event without execution id")
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.sinks {
		if s.ExecutionID == event.ExecutionID && s.wants(event.Type) {
			s.deliver(Message{Event: event})
		}
	}
}

// NotifyLog fans the log out to all subscribers of its execution.
func (b *Bus) NotifyLog(ctx context.Context, log *v1.ExecutionLog) {
	if log.ExecutionID == "" {
		logging.FromContext(ctx).Info("dropping log without execution id")
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.sinks {
		if s.ExecutionID == log.ExecutionID {
			s.deliver(Message{Log: log})
		}
	}
}

// CleanupExecution removes every subscription for the execution, closing
// their streams.
func (b *Bus) CleanupExecution(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.sinks {
		if s.ExecutionID == executionID {
			close(s.ch)
			delete(b.sinks, id)
		}
	}
}
