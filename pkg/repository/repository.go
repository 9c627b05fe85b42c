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
	"errors"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
)

var ErrNotFound = errors.New("not found")

// JobRepository stores jobs. Implementations must be safe for concurrent
// readers and serialize writes per key.
type JobRepository interface {
	Create(ctx context.Context, job *v1.Job) error
	Get(ctx context.Context, id string) (*v1.Job, error)
	Update(ctx context.Context, job *v1.Job) (*v1.Job, error)
	List(ctx context.Context) ([]*v1.Job, error)
}

// TemplateRepository stores pipeline templates.
type TemplateRepository interface {
	Create(ctx context.Context, template *v1.Template) error
	FindByID(ctx context.Context, id string) (*v1.Template, error)
	FindByNameAndVersion(ctx context.Context, name, version string) (*v1.Template, error)
}

// PoolRepository stores resource pools.
type PoolRepository interface {
	Create(ctx context.Context, pool *v1.ResourcePool) error
	Get(ctx context.Context, id string) (*v1.ResourcePool, error)
	List(ctx context.Context) ([]*v1.ResourcePool, error)
}
