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

package docker

import (
	"context"
	"fmt"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/google/uuid"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/cloudprovider"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/utils/logging"
)

const (
	workerIDEnv     = "HODEI_WORKER_ID"
	endpointEnv     = "HODEI_ORCHESTRATOR_ENDPOINT"
	poolIDEnv       = "HODEI_POOL_ID"
	managedByLabel  = "hodei.managed-by"
	managedByValue  = "hodei-orchestrator"
	workerNameStem  = "hodei-worker"
	stopGracePeriod = 10 // seconds
)

// Factory provisions workers as containers on a docker daemon. Each worker
// container runs the worker runtime binary, which dials back to the
// orchestrator endpoint injected through its environment.
type Factory struct {
	api      client.APIClient
	image    string
	endpoint string

	mu sync.Mutex
	// workerID -> containerID, populated on create so destroy does not need
	// a daemon-wide lookup
	containers map[string]string
}

func NewFactory(api client.APIClient, image, orchestratorEndpoint string) *Factory {
	return &Factory{
		api:        api,
		image:      image,
		endpoint:   orchestratorEndpoint,
		containers: map[string]string{},
	}
}

// NewFactoryFromEnv connects to the daemon configured by the standard DOCKER_*
// environment variables.
func NewFactoryFromEnv(image, orchestratorEndpoint string) (*Factory, error) {
	api, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connecting to docker daemon, %w", err)
	}
	return NewFactory(api, image, orchestratorEndpoint), nil
}

func (f *Factory) SupportsPoolType(poolType v1.PoolType) bool {
	return poolType == v1.PoolTypeDocker
}

func (f *Factory) CreateWorker(ctx context.Context, job *v1.Job, pool *v1.ResourcePool) (*v1.WorkerInstance, error) {
	workerID := fmt.Sprintf("%s-%s", workerNameStem, uuid.NewString()[:8])
	created, err := f.api.ContainerCreate(ctx,
		&container.Config{
			Image: f.image,
			Env: []string{
				fmt.Sprintf("%s=%s", workerIDEnv, workerID),
				fmt.Sprintf("%s=%s", endpointEnv, f.endpoint),
				fmt.Sprintf("%s=%s", poolIDEnv, pool.ID),
			},
			Labels: map[string]string{
				managedByLabel: managedByValue,
				"hodei.job-id": job.ID,
				"hodei.pool":   pool.ID,
			},
		},
		&container.HostConfig{AutoRemove: false},
		nil, nil, workerID)
	if err != nil {
		return nil, &cloudprovider.WorkerCreationError{PoolID: pool.ID, Err: err}
	}
	if err := f.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		// best effort cleanup of the half-created container
		_ = f.api.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})
		return nil, &cloudprovider.WorkerCreationError{PoolID: pool.ID, Err: err}
	}
	f.mu.Lock()
	f.containers[workerID] = created.ID
	f.mu.Unlock()
	logging.FromContext(ctx).Info("created docker worker",
		"worker-id", workerID, "container-id", created.ID, "pool", pool.ID)
	return &v1.WorkerInstance{
		ID:       workerID,
		PoolID:   pool.ID,
		PoolType: pool.Type,
		Metadata: map[string]string{"containerId": created.ID},
	}, nil
}

func (f *Factory) DestroyWorker(ctx context.Context, workerID string) error {
	f.mu.Lock()
	containerID, ok := f.containers[workerID]
	delete(f.containers, workerID)
	f.mu.Unlock()
	if !ok {
		// unknown or already destroyed; destruction is idempotent
		return nil
	}
	timeout := stopGracePeriod
	if err := f.api.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil && !client.IsErrNotFound(err) {
		logging.FromContext(ctx).Error(err, "failed to stop worker container", "worker-id", workerID)
	}
	if err := f.api.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return &cloudprovider.WorkerDeletionError{WorkerID: workerID, Err: err}
	}
	logging.FromContext(ctx).Info("destroyed docker worker", "worker-id", workerID, "container-id", containerID)
	return nil
}
