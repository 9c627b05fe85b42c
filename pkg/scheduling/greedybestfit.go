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

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
)

// GreedyBestFit picks the least utilized candidate that still fits: score is
// the mean of cpu and memory utilization and the minimum wins. Ties are
// broken by input order.
type GreedyBestFit struct{}

func NewGreedyBestFit() *GreedyBestFit {
	return &GreedyBestFit{}
}

func (g *GreedyBestFit) Name() string { return "greedy-best-fit" }

func (g *GreedyBestFit) SelectPool(_ context.Context, _ *v1.Job, candidates []*v1.PoolCandidate) (*v1.ResourcePool, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidatePools
	}
	best := candidates[0]
	bestScore := averageUtilization(best)
	for _, candidate := range candidates[1:] {
		if score := averageUtilization(candidate); score < bestScore {
			best, bestScore = candidate, score
		}
	}
	best.Score = bestScore
	return best.Pool, nil
}
