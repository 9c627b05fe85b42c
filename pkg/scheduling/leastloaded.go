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
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/utils/resources"
)

// Weighted component contributions to the least loaded score. They sum to 1.0
// together with the fit components.
const (
	weightCPUAvailability = 0.25
	weightMemAvailability = 0.25
	weightJobCapacity     = 0.20
	weightQueue           = 0.10
	weightCPUFit          = 0.10
	weightMemFit          = 0.10
)

// LeastLoaded scores each candidate by a weighted combination of availability,
// job capacity headroom, queue depth, and how well the job's request fits the
// remaining capacity. The maximum score wins; ties are broken by input order.
type LeastLoaded struct{}

func NewLeastLoaded() *LeastLoaded {
	return &LeastLoaded{}
}

func (l *LeastLoaded) Name() string { return "least-loaded" }

func (l *LeastLoaded) SelectPool(_ context.Context, job *v1.Job, candidates []*v1.PoolCandidate) (*v1.ResourcePool, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidatePools
	}
	requestedCPU := resources.ParseCPU(job.ResourceRequirements["cpu"])
	requestedMemory := resources.ParseMemory(job.ResourceRequirements["memory"])

	best := candidates[0]
	bestScore := l.score(best, requestedCPU, requestedMemory)
	best.Score = bestScore
	for _, candidate := range candidates[1:] {
		if score := l.score(candidate, requestedCPU, requestedMemory); score > bestScore {
			candidate.Score = score
			best, bestScore = candidate, score
		}
	}
	return best.Pool, nil
}

func (l *LeastLoaded) score(c *v1.PoolCandidate, requestedCPU float64, requestedMemory int64) float64 {
	u := c.Utilization
	cpuAvailability := 1 - u.CPUUtilization()
	memAvailability := 1 - u.MemoryUtilization()

	var jobCapacityScore float64
	if c.Pool.MaxConcurrentJobs != nil && *c.Pool.MaxConcurrentJobs > 0 {
		jobCapacityScore = 1 - float64(u.RunningJobs)/float64(*c.Pool.MaxConcurrentJobs)
	} else {
		jobCapacityScore = 1 / (1 + 0.1*float64(u.RunningJobs))
	}
	queueScore := 1 / (1 + 0.2*float64(u.QueuedJobs))

	cpuFitScore := fitScore(u.AvailableCPU(), requestedCPU)
	memFitScore := fitScore(float64(u.AvailableMemoryBytes()), float64(requestedMemory))

	return weightCPUAvailability*cpuAvailability +
		weightMemAvailability*memAvailability +
		weightJobCapacity*jobCapacityScore +
		weightQueue*queueScore +
		weightCPUFit*cpuFitScore +
		weightMemFit*memFitScore
}

// fitScore is min(available/required, 1) when a requirement is present, and a
// neutral 1 otherwise.
func fitScore(available, required float64) float64 {
	if required <= 0 {
		return 1
	}
	if score := available / required; score < 1 {
		return score
	}
	return 1
}
