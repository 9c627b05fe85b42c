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

// WorkerInstance is an ephemeral worker provisioned on a pool backend. It is
// created by the worker factory, becomes registered once it connects through
// the worker channel, is assigned at most one execution at a time, and is
// destroyed after the execution reaches a terminal state.
type WorkerInstance struct {
	ID       string
	PoolID   string
	PoolType PoolType
	// Metadata carries backend-specific handles, e.g. the container id for
	// the docker backend.
	Metadata  map[string]string
	CreatedAt time.Time
}

type TemplateStatus string

const (
	TemplateStatusDraft     TemplateStatus = "DRAFT"
	TemplateStatusPublished TemplateStatus = "PUBLISHED"
	TemplateStatusArchived  TemplateStatus = "ARCHIVED"
)

// Template is a reusable pipeline definition. Only published templates may
// back a job submission.
type Template struct {
	ID          string
	Name        string
	Version     string
	Status      TemplateStatus
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
