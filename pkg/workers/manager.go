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

package workers

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"k8s.io/utils/clock"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
)

const (
	// tombstoneTTL is how long a destroyed worker id is remembered so that a
	// late reconnect from a doomed worker is not mistaken for a fresh one.
	tombstoneTTL = 5 * time.Minute
)

// Info is the registry's view of one worker.
type Info struct {
	Instance     *v1.WorkerInstance
	Registered   bool
	RegisteredAt time.Time
	// ExecutionID is non-empty while the worker is bound to an execution.
	// A worker owns at most one execution at a time.
	ExecutionID string
}

// Manager tracks worker instances from creation through registration,
// assignment, release, and destruction.
type Manager struct {
	clock clock.Clock

	mu      sync.Mutex
	workers map[string]*Info
	// waiters are closed when the corresponding worker registers
	waiters    map[string]chan struct{}
	tombstones *gocache.Cache
}

func NewManager(clk clock.Clock) *Manager {
	return &Manager{
		clock:      clk,
		workers:    map[string]*Info{},
		waiters:    map[string]chan struct{}{},
		tombstones: gocache.New(tombstoneTTL, time.Minute),
	}
}

// Track admits a freshly created worker instance into the registry, before
// it has connected. A worker may connect before its creator gets here; an
// existing record keeps its registration and only the instance is filled in.
func (m *Manager) Track(instance *v1.WorkerInstance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info := m.workers[instance.ID]; info != nil {
		info.Instance = instance
		return
	}
	m.workers[instance.ID] = &Info{Instance: instance}
}

// RegisterWorker marks the worker as connected, waking any registration
// waiters. Workers unknown to the registry (e.g. started out of band) are
// admitted on the spot.
func (m *Manager) RegisterWorker(workerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := m.workers[workerID]
	if info == nil {
		info = &Info{Instance: &v1.WorkerInstance{ID: workerID, CreatedAt: m.clock.Now()}}
		m.workers[workerID] = info
	}
	info.Registered = true
	info.RegisteredAt = m.clock.Now()
	if waiter, ok := m.waiters[workerID]; ok {
		close(waiter)
		delete(m.waiters, workerID)
	}
}

// UnregisterWorker marks the worker as disconnected. The instance record
// stays until Forget so that late teardown still finds it.
func (m *Manager) UnregisterWorker(workerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info := m.workers[workerID]; info != nil {
		info.Registered = false
	}
}

// WaitForWorkerRegistration suspends until the worker has connected or the
// timeout elapses. Returns nil on timeout or context cancellation.
func (m *Manager) WaitForWorkerRegistration(ctx context.Context, workerID string, timeout time.Duration) *Info {
	m.mu.Lock()
	if info := m.workers[workerID]; info != nil && info.Registered {
		m.mu.Unlock()
		return m.Get(workerID)
	}
	waiter, ok := m.waiters[workerID]
	if !ok {
		waiter = make(chan struct{})
		m.waiters[workerID] = waiter
	}
	m.mu.Unlock()

	timer := m.clock.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-waiter:
		return m.Get(workerID)
	case <-timer.C():
		return nil
	case <-ctx.Done():
		return nil
	}
}

// AssignWorkerToExecution binds the worker to an execution. Returns false if
// the worker is unknown, not registered, or already bound.
func (m *Manager) AssignWorkerToExecution(workerID, executionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := m.workers[workerID]
	if info == nil || !info.Registered || info.ExecutionID != "" {
		return false
	}
	info.ExecutionID = executionID
	return true
}

// ReleaseWorker unbinds the worker from its execution. The worker may be
// re-assigned afterwards if it is still alive.
func (m *Manager) ReleaseWorker(workerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info := m.workers[workerID]; info != nil {
		info.ExecutionID = ""
	}
}

// FindAvailableWorker returns a registered, unassigned worker, or nil. The
// requirements map is matched against instance metadata.
func (m *Manager) FindAvailableWorker(requirements map[string]string) *Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, info := range m.workers {
		if !info.Registered || info.ExecutionID != "" {
			continue
		}
		if _, destroyed := m.tombstones.Get(id); destroyed {
			continue
		}
		if matchesRequirements(info.Instance, requirements) {
			copied := *info
			return &copied
		}
	}
	return nil
}

func matchesRequirements(instance *v1.WorkerInstance, requirements map[string]string) bool {
	for key, want := range requirements {
		if instance.Metadata[key] != want {
			return false
		}
	}
	return true
}

// Get returns a copy of the worker's registry record, or nil.
func (m *Manager) Get(workerID string) *Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := m.workers[workerID]
	if info == nil {
		return nil
	}
	copied := *info
	return &copied
}

// Forget drops the worker record after destruction and leaves a tombstone.
func (m *Manager) Forget(workerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workers, workerID)
	// pending waiters are left to their timeout: nobody will ever register
	// under this id again
	delete(m.waiters, workerID)
	m.tombstones.SetDefault(workerID, struct{}{})
}
