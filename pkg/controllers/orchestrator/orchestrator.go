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

package orchestrator

import (
	"context"
	"fmt"

	"github.com/awslabs/operatorpkg/serrors"
	"github.com/go-logr/logr"
	"github.com/samber/lo"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/controllers/execution"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/repository"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/scheduling"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/state"
)

// Orchestrator is the submission façade: it persists jobs, runs the
// scheduler, and is the only holder of the engine's start token. Clients
// never reach the engine's StartExecution directly.
type Orchestrator struct {
	logger    logr.Logger
	jobs      repository.JobRepository
	pools     repository.PoolRepository
	scheduler *scheduling.Scheduler
	tracker   *state.Tracker
	engine    *execution.Engine
	token     string
}

func New(
	logger logr.Logger,
	jobs repository.JobRepository,
	pools repository.PoolRepository,
	scheduler *scheduling.Scheduler,
	tracker *state.Tracker,
	engine *execution.Engine,
) *Orchestrator {
	return &Orchestrator{
		logger:    logger.WithName("orchestrator"),
		jobs:      jobs,
		pools:     pools,
		scheduler: scheduler,
		tracker:   tracker,
		engine:    engine,
		token:     engine.Token(),
	}
}

// SubmitJob persists the job, schedules it onto a pool, and starts its
// execution. The job stays QUEUED when no pool can host it; the caller may
// resubmit once capacity frees up.
func (o *Orchestrator) SubmitJob(ctx context.Context, job *v1.Job) (*v1.Execution, error) {
	if job.Name == "" {
		return nil, fmt.Errorf("job name is required")
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, serrors.Wrap(fmt.Errorf("persisting job, %w", err), "job", job.ID)
	}

	pools, err := o.pools.List(ctx)
	if err != nil {
		return nil, serrors.Wrap(fmt.Errorf("listing pools, %w", err), "job", job.ID)
	}
	pool, err := o.scheduler.Schedule(ctx, job, pools)
	if err != nil {
		o.logger.Info("job left queued, no pool selected", "job", job.ID, "error", err)
		return nil, err
	}

	o.tracker.JobQueued(pool.ID)
	defer o.tracker.JobDequeued(pool.ID)

	exec, err := o.engine.StartExecution(ctx, job, pool, o.token)
	if err != nil {
		return nil, serrors.Wrap(fmt.Errorf("starting execution, %w", err), "job", job.ID, "pool", pool.ID)
	}
	return exec, nil
}

// CancelJob cancels the job's active execution if one exists; otherwise it
// cancels the queued job directly.
func (o *Orchestrator) CancelJob(ctx context.Context, jobID, reason string) error {
	active, found := lo.Find(o.engine.ActiveExecutions(), func(e *v1.Execution) bool { return e.JobID == jobID })
	if found {
		return o.engine.CancelExecution(ctx, active.ID, reason)
	}
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return serrors.Wrap(fmt.Errorf("fetching job, %w", err), "job", jobID)
	}
	if !job.Cancel() {
		return nil
	}
	_, err = o.jobs.Update(ctx, job)
	return err
}

// GetJob returns the job by id.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*v1.Job, error) {
	return o.jobs.Get(ctx, jobID)
}

// ListJobs returns all known jobs.
func (o *Orchestrator) ListJobs(ctx context.Context) ([]*v1.Job, error) {
	return o.jobs.List(ctx)
}
