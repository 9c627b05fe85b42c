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

import "sync"

// messageQueue is the unbounded FIFO behind each worker connection's writer.
// Push never blocks; Pop blocks until a message is available or the queue is
// closed. Close drains nothing: messages already queued are still delivered
// to a Pop caller until the queue is empty.
type messageQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    []*OrchestratorMessage
	closed   bool
}

func newMessageQueue() *messageQueue {
	q := &messageQueue{}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a message. Returns false if the queue is closed.
func (q *messageQueue) Push(msg *OrchestratorMessage) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, msg)
	q.notEmpty.Signal()
	return true
}

// Pop dequeues the oldest message, blocking while the queue is open and
// empty. The second return is false once the queue is closed and drained.
func (q *messageQueue) Pop() (*OrchestratorMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

// Close marks the queue closed and wakes all blocked Pop callers.
func (q *messageQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
}

func (q *messageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
