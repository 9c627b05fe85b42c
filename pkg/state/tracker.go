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

package state

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/repository"
)

const (
	// SnapshotTTL bounds how stale a cached utilization snapshot may be.
	SnapshotTTL = 10 * time.Second

	snapshotCleanupInterval = time.Minute
)

type poolUsage struct {
	usedCPU         float64
	usedMemoryBytes int64
	runningJobs     int
	queuedJobs      int
}

// Tracker maintains live per-pool resource counters and serves utilization
// snapshots to the scheduler. Reservations are made when an execution starts
// on a pool and released when it terminates; snapshots are cached with a
// short TTL so a burst of scheduling decisions does not recompute them.
type Tracker struct {
	pools     repository.PoolRepository
	mu        sync.Mutex
	usage     map[string]*poolUsage
	snapshots *cache.Cache
}

func NewTracker(pools repository.PoolRepository) *Tracker {
	return &Tracker{
		pools:     pools,
		usage:     map[string]*poolUsage{},
		snapshots: cache.New(SnapshotTTL, snapshotCleanupInterval),
	}
}

// UtilizationFor implements scheduling.ResourceMonitor.
func (t *Tracker) UtilizationFor(ctx context.Context, poolIDs []string) (map[string]*v1.ResourceUtilization, error) {
	out := make(map[string]*v1.ResourceUtilization, len(poolIDs))
	for _, id := range poolIDs {
		if cached, found := t.snapshots.Get(id); found {
			out[id] = cached.(*v1.ResourceUtilization)
			continue
		}
		pool, err := t.pools.Get(ctx, id)
		if err != nil {
			if err == repository.ErrNotFound {
				continue
			}
			return nil, err
		}
		snapshot := t.snapshot(pool)
		t.snapshots.SetDefault(id, snapshot)
		out[id] = snapshot
	}
	return out, nil
}

func (t *Tracker) snapshot(pool *v1.ResourcePool) *v1.ResourceUtilization {
	t.mu.Lock()
	defer t.mu.Unlock()
	u := t.usage[pool.ID]
	if u == nil {
		u = &poolUsage{}
	}
	return &v1.ResourceUtilization{
		PoolID:           pool.ID,
		TotalCPU:         pool.Capacity.TotalCPU,
		UsedCPU:          u.usedCPU,
		TotalMemoryBytes: pool.Capacity.TotalMemoryBytes,
		UsedMemoryBytes:  u.usedMemoryBytes,
		RunningJobs:      u.runningJobs,
		QueuedJobs:       u.queuedJobs,
		Timestamp:        time.Now(),
	}
}

// Reserve records an execution starting on the pool.
func (t *Tracker) Reserve(poolID string, cpu float64, memoryBytes int64) {
	t.mutate(poolID, func(u *poolUsage) {
		u.usedCPU += cpu
		u.usedMemoryBytes += memoryBytes
		u.runningJobs++
	})
}

// Release records an execution leaving the pool. Counters never go negative.
func (t *Tracker) Release(poolID string, cpu float64, memoryBytes int64) {
	t.mutate(poolID, func(u *poolUsage) {
		u.usedCPU = max(u.usedCPU-cpu, 0)
		u.usedMemoryBytes = max(u.usedMemoryBytes-memoryBytes, 0)
		u.runningJobs = max(u.runningJobs-1, 0)
	})
}

// JobQueued records a job waiting for the pool.
func (t *Tracker) JobQueued(poolID string) {
	t.mutate(poolID, func(u *poolUsage) { u.queuedJobs++ })
}

// JobDequeued records a queued job leaving the wait state.
func (t *Tracker) JobDequeued(poolID string) {
	t.mutate(poolID, func(u *poolUsage) { u.queuedJobs = max(u.queuedJobs-1, 0) })
}

func (t *Tracker) mutate(poolID string, fn func(*poolUsage)) {
	t.mu.Lock()
	u := t.usage[poolID]
	if u == nil {
		u = &poolUsage{}
		t.usage[poolID] = u
	}
	fn(u)
	t.mu.Unlock()
	// the cached snapshot is stale the moment counters move
	t.snapshots.Delete(poolID)
}
