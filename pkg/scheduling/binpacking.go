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

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
)

// BinPackingFirstFit consolidates load: it prefers pools that are already
// well utilized, while avoiding both nearly idle pools (keep them free to
// drain) and nearly full ones (leave headroom). The packing score is a
// piecewise shaping of the average utilization; candidates are sorted by
// score descending with a stable sort and the first one wins.
type BinPackingFirstFit struct{}

func NewBinPackingFirstFit() *BinPackingFirstFit {
	return &BinPackingFirstFit{}
}

func (b *BinPackingFirstFit) Name() string { return "bin-packing-first-fit" }

func (b *BinPackingFirstFit) SelectPool(_ context.Context, _ *v1.Job, candidates []*v1.PoolCandidate) (*v1.ResourcePool, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidatePools
	}
	ranked := make([]*v1.PoolCandidate, len(candidates))
	copy(ranked, candidates)
	for _, candidate := range ranked {
		candidate.Score = packingScore(averageUtilization(candidate))
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked[0].Pool, nil
}

func packingScore(avgUtil float64) float64 {
	switch {
	case avgUtil < 0.1:
		return avgUtil * 0.5
	case avgUtil < 0.7:
		return avgUtil
	case avgUtil < 0.9:
		return avgUtil * 0.8
	default:
		return avgUtil * 0.5
	}
}
