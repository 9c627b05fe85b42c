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

package cloudprovider

import (
	"context"
	"fmt"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
)

// WorkerFactory provisions ephemeral workers on a pool backend. CreateWorker
// returns immediately with the id the worker will later register under;
// DestroyWorker is idempotent.
type WorkerFactory interface {
	CreateWorker(ctx context.Context, job *v1.Job, pool *v1.ResourcePool) (*v1.WorkerInstance, error)
	DestroyWorker(ctx context.Context, workerID string) error
	SupportsPoolType(poolType v1.PoolType) bool
}

// WorkerCreationError wraps backend failures during provisioning.
type WorkerCreationError struct {
	PoolID string
	Err    error
}

func (e *WorkerCreationError) Error() string {
	return fmt.Sprintf("creating worker on pool %s, %s", e.PoolID, e.Err)
}

func (e *WorkerCreationError) Unwrap() error { return e.Err }

// WorkerDeletionError wraps backend failures during destruction.
type WorkerDeletionError struct {
	WorkerID string
	Err      error
}

func (e *WorkerDeletionError) Error() string {
	return fmt.Sprintf("destroying worker %s, %s", e.WorkerID, e.Err)
}

func (e *WorkerDeletionError) Unwrap() error { return e.Err }
