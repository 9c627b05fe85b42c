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

import "time"

type PoolType string

const (
	PoolTypeDocker     PoolType = "docker"
	PoolTypeKubernetes PoolType = "kubernetes"
)

// PoolCapacity is the static capacity descriptor of a resource pool.
type PoolCapacity struct {
	TotalCPU         float64
	TotalMemoryBytes int64
}

// ResourcePool is a provisioning target for workers.
type ResourcePool struct {
	ID       string
	Name     string
	Type     PoolType
	Capacity PoolCapacity
	// MaxConcurrentJobs caps running jobs on the pool when set.
	MaxConcurrentJobs *int
}

// ResourceUtilization is a point-in-time snapshot of a pool's resource
// counters, produced by the resource monitor.
type ResourceUtilization struct {
	PoolID           string
	TotalCPU         float64
	UsedCPU          float64
	TotalMemoryBytes int64
	UsedMemoryBytes  int64
	RunningJobs      int
	QueuedJobs       int
	Timestamp        time.Time
}

// CPUUtilization returns used/total cpu in [0,1], or 0 when capacity is unknown.
func (u *ResourceUtilization) CPUUtilization() float64 {
	if u.TotalCPU <= 0 {
		return 0
	}
	return u.UsedCPU / u.TotalCPU
}

// MemoryUtilization returns used/total memory in [0,1], or 0 when capacity is unknown.
func (u *ResourceUtilization) MemoryUtilization() float64 {
	if u.TotalMemoryBytes <= 0 {
		return 0
	}
	return float64(u.UsedMemoryBytes) / float64(u.TotalMemoryBytes)
}

// AvailableCPU returns the unreserved cpu cores, never negative.
func (u *ResourceUtilization) AvailableCPU() float64 {
	if avail := u.TotalCPU - u.UsedCPU; avail > 0 {
		return avail
	}
	return 0
}

// AvailableMemoryBytes returns the unreserved memory, never negative.
func (u *ResourceUtilization) AvailableMemoryBytes() int64 {
	if avail := u.TotalMemoryBytes - u.UsedMemoryBytes; avail > 0 {
		return avail
	}
	return 0
}

// PoolCandidate pairs a pool with its utilization snapshot for the duration
// of one scheduling decision.
type PoolCandidate struct {
	Pool        *ResourcePool
	Utilization *ResourceUtilization
	Score       float64
}
