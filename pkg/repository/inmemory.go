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

package repository

import (
	"context"
	"sync"

	"github.com/samber/lo"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
)

// InMemoryJobRepository is the reference JobRepository. Reads return deep
// copies so callers never observe concurrent mutation.
type InMemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*v1.Job
}

func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{jobs: map[string]*v1.Job{}}
}

func (r *InMemoryJobRepository) Create(_ context.Context, job *v1.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job.DeepCopy()
	return nil
}

func (r *InMemoryJobRepository) Get(_ context.Context, id string) (*v1.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.DeepCopy(), nil
}

func (r *InMemoryJobRepository) Update(_ context.Context, job *v1.Job) (*v1.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return nil, ErrNotFound
	}
	r.jobs[job.ID] = job.DeepCopy()
	return job.DeepCopy(), nil
}

func (r *InMemoryJobRepository) List(_ context.Context) ([]*v1.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(lo.Values(r.jobs), func(j *v1.Job, _ int) *v1.Job { return j.DeepCopy() }), nil
}

// InMemoryTemplateRepository is the reference TemplateRepository.
type InMemoryTemplateRepository struct {
	mu        sync.RWMutex
	templates map[string]*v1.Template
}

func NewInMemoryTemplateRepository() *InMemoryTemplateRepository {
	return &InMemoryTemplateRepository{templates: map[string]*v1.Template{}}
}

func (r *InMemoryTemplateRepository) Create(_ context.Context, template *v1.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := *template
	r.templates[template.ID] = &t
	return nil
}

func (r *InMemoryTemplateRepository) FindByID(_ context.Context, id string) (*v1.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	template, ok := r.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	t := *template
	return &t, nil
}

func (r *InMemoryTemplateRepository) FindByNameAndVersion(_ context.Context, name, version string) (*v1.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	template, ok := lo.Find(lo.Values(r.templates), func(t *v1.Template) bool {
		return t.Name == name && t.Version == version
	})
	if !ok {
		return nil, ErrNotFound
	}
	t := *template
	return &t, nil
}

// InMemoryPoolRepository is the reference PoolRepository.
type InMemoryPoolRepository struct {
	mu    sync.RWMutex
	pools map[string]*v1.ResourcePool
}

func NewInMemoryPoolRepository() *InMemoryPoolRepository {
	return &InMemoryPoolRepository{pools: map[string]*v1.ResourcePool{}}
}

func (r *InMemoryPoolRepository) Create(_ context.Context, pool *v1.ResourcePool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := *pool
	r.pools[pool.ID] = &p
	return nil
}

func (r *InMemoryPoolRepository) Get(_ context.Context, id string) (*v1.ResourcePool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pool, ok := r.pools[id]
	if !ok {
		return nil, ErrNotFound
	}
	p := *pool
	return &p, nil
}

func (r *InMemoryPoolRepository) List(_ context.Context) ([]*v1.ResourcePool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(lo.Values(r.pools), func(p *v1.ResourcePool, _ int) *v1.ResourcePool {
		out := *p
		return &out
	}), nil
}
