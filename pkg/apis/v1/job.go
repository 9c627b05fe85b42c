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

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal reports whether the status is a sink: once reached, no further
// transition is legal.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job is a unit of work submitted by a client. Its status is mutated only by
// the execution engine; terminal states are monotone.
type Job struct {
	ID              string
	Name            string
	Status          JobStatus
	TemplateID      string
	TemplateVersion string
	// Parameters are free-form submission inputs, substituted into the
	// execution definition when the job runs.
	Parameters map[string]any
	// ResourceRequirements are free-form quantity strings, e.g.
	// cpu="1", memory="2Gi", maxExecutionTime="5m".
	ResourceRequirements map[string]string
	CreatedBy            string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	StartedAt            *time.Time
	CompletedAt          *time.Time
	FailureReason        string
}

// NewJob constructs a queued job with a fresh identity.
func NewJob(name string) *Job {
	now := time.Now()
	return &Job{
		ID:                   uuid.NewString(),
		Name:                 name,
		Status:               JobStatusQueued,
		Parameters:           map[string]any{},
		ResourceRequirements: map[string]string{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// Start marks the job running. Returns false without mutation if the job is
// already terminal.
func (j *Job) Start() bool {
	return j.setStatus(JobStatusRunning)
}

// Complete marks the job completed.
func (j *Job) Complete() bool {
	return j.setStatus(JobStatusCompleted)
}

// Fail marks the job failed, recording the failure details.
func (j *Job) Fail(details string) bool {
	if !j.setStatus(JobStatusFailed) {
		return false
	}
	j.FailureReason = details
	return true
}

// Cancel marks the job cancelled.
func (j *Job) Cancel() bool {
	return j.setStatus(JobStatusCancelled)
}

func (j *Job) setStatus(status JobStatus) bool {
	if j.Status.IsTerminal() {
		return false
	}
	now := time.Now()
	if status == JobStatusRunning && j.StartedAt == nil {
		j.StartedAt = &now
	}
	if status.IsTerminal() {
		j.CompletedAt = &now
	}
	j.Status = status
	j.UpdatedAt = now
	return true
}

// DeepCopy returns an independent copy of the job, detaching maps and
// timestamp pointers so repository readers never alias writer state.
func (j *Job) DeepCopy() *Job {
	out := *j
	out.Parameters = make(map[string]any, len(j.Parameters))
	for k, v := range j.Parameters {
		out.Parameters[k] = v
	}
	out.ResourceRequirements = make(map[string]string, len(j.ResourceRequirements))
	for k, v := range j.ResourceRequirements {
		out.ResourceRequirements[k] = v
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
