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

package scheduling

import (
	"context"
	"sort"
	"sync/atomic"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
)

// RoundRobin cycles through candidates in pool id order. The counter is per
// strategy instance and safe under parallel scheduling.
type RoundRobin struct {
	counter atomic.Uint64
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (r *RoundRobin) Name() string { return "round-robin" }

func (r *RoundRobin) SelectPool(_ context.Context, _ *v1.Job, candidates []*v1.PoolCandidate) (*v1.ResourcePool, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidatePools
	}
	sorted := make([]*v1.PoolCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Pool.ID < sorted[j].Pool.ID })
	next := r.counter.Add(1) - 1
	return sorted[next%uint64(len(sorted))].Pool, nil
}
