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

package fake

import (
	"context"
	"fmt"
	"sync"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
)

// WorkerFactory is an in-memory WorkerFactory for tests. Behavior is
// controlled through the error fields; calls are recorded for assertions.
type WorkerFactory struct {
	mu sync.Mutex

	CreateError  error
	DestroyError error
	// OnCreate, when set, observes each created instance (e.g. to simulate
	// the worker registering).
	OnCreate func(instance *v1.WorkerInstance)

	nextID           int
	CreatedWorkers   []*v1.WorkerInstance
	DestroyedWorkers []string
}

func NewWorkerFactory() *WorkerFactory {
	return &WorkerFactory{}
}

func (f *WorkerFactory) SupportsPoolType(v1.PoolType) bool { return true }

func (f *WorkerFactory) CreateWorker(_ context.Context, _ *v1.Job, pool *v1.ResourcePool) (*v1.WorkerInstance, error) {
	f.mu.Lock()
	if f.CreateError != nil {
		err := f.CreateError
		f.mu.Unlock()
		return nil, err
	}
	f.nextID++
	instance := &v1.WorkerInstance{
		ID:       fmt.Sprintf("fake-worker-%d", f.nextID),
		PoolID:   pool.ID,
		PoolType: pool.Type,
		Metadata: map[string]string{},
	}
	f.CreatedWorkers = append(f.CreatedWorkers, instance)
	onCreate := f.OnCreate
	f.mu.Unlock()
	if onCreate != nil {
		onCreate(instance)
	}
	return instance, nil
}

func (f *WorkerFactory) DestroyWorker(_ context.Context, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DestroyError != nil {
		return f.DestroyError
	}
	f.DestroyedWorkers = append(f.DestroyedWorkers, workerID)
	return nil
}

// DestroyedCount returns how many destroy calls were recorded.
func (f *WorkerFactory) DestroyedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.DestroyedWorkers)
}

// Reset clears all recorded calls.
func (f *WorkerFactory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID = 0
	f.CreatedWorkers = nil
	f.DestroyedWorkers = nil
	f.CreateError = nil
	f.DestroyError = nil
	f.OnCreate = nil
}
