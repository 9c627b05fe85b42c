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

package operator

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"k8s.io/utils/clock"

	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/cloudprovider"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/cloudprovider/docker"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/controllers/execution"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/controllers/orchestrator"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/events"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/operator/options"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/repository"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/scheduling"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/state"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/transport"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/utils/logging"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/workers"
)

const shutdownTimeout = 10 * time.Second

// Operator assembles the orchestrator process: repositories, scheduler,
// worker registry, execution engine, transport channel, and the serving
// surfaces.
type Operator struct {
	logger logr.Logger
	opts   *options.Options

	Jobs      repository.JobRepository
	Templates repository.TemplateRepository
	Pools     repository.PoolRepository

	Tracker      *state.Tracker
	Registry     *workers.Manager
	Channel      *transport.Channel
	Engine       *execution.Engine
	Orchestrator *orchestrator.Orchestrator
}

// NewOperator wires all components. The factory argument may be nil, in
// which case a docker factory is built from the environment.
func NewOperator(logger logr.Logger, opts *options.Options, factory cloudprovider.WorkerFactory) (*Operator, error) {
	if factory == nil {
		dockerFactory, err := docker.NewFactoryFromEnv(opts.WorkerImage, opts.OrchestratorEndpoint)
		if err != nil {
			return nil, fmt.Errorf("building docker worker factory, %w", err)
		}
		factory = dockerFactory
	}
	strategy, err := strategyFor(opts.SchedulingStrategy)
	if err != nil {
		return nil, err
	}

	jobs := repository.NewInMemoryJobRepository()
	templates := repository.NewInMemoryTemplateRepository()
	pools := repository.NewInMemoryPoolRepository()
	tracker := state.NewTracker(pools)
	registry := workers.NewManager(clock.RealClock{})
	bus := events.NewBus()
	notifier := events.NewDedupeNotifier(bus)

	engine := execution.NewEngine(logger, clock.RealClock{}, jobs, templates, factory, registry, bus, tracker,
		execution.WithRegistrationTimeout(opts.RegistrationTimeout),
		execution.WithCancelGracePeriod(opts.CancelGracePeriod),
		execution.WithNotifier(notifier),
	)
	channel := transport.NewChannel(logger, registry)
	channel.SetHandler(engine)
	engine.SetCommunicationService(channel)

	scheduler := scheduling.NewScheduler(scheduling.NewEvaluator(tracker), strategy)
	facade := orchestrator.New(logger, jobs, pools, scheduler, tracker, engine)

	return &Operator{
		logger:       logger.WithName("operator"),
		opts:         opts,
		Jobs:         jobs,
		Templates:    templates,
		Pools:        pools,
		Tracker:      tracker,
		Registry:     registry,
		Channel:      channel,
		Engine:       engine,
		Orchestrator: facade,
	}, nil
}

func strategyFor(name string) (scheduling.Strategy, error) {
	switch name {
	case "round-robin":
		return scheduling.NewRoundRobin(), nil
	case "greedy-best-fit":
		return scheduling.NewGreedyBestFit(), nil
	case "least-loaded":
		return scheduling.NewLeastLoaded(), nil
	case "bin-packing":
		return scheduling.NewBinPackingFirstFit(), nil
	default:
		return nil, fmt.Errorf("unknown scheduling strategy %q", name)
	}
}

// Start serves the worker channel and the metrics endpoint until ctx is
// cancelled, then drains connections and stops both servers.
func (o *Operator) Start(ctx context.Context) error {
	ctx = logging.IntoContext(ctx, o.logger)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", o.opts.GRPCPort))
	if err != nil {
		return fmt.Errorf("listening on grpc port, %w", err)
	}
	grpcServer := grpc.NewServer(transport.ServerOptions()...)
	grpcServer.RegisterService(&transport.ServiceDesc, o.Channel)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: fmt.Sprintf(":%d", o.opts.MetricsPort), Handler: metricsMux}

	errCh := make(chan error, 2)
	go func() {
		o.logger.Info("serving worker channel", "port", o.opts.GRPCPort)
		errCh <- grpcServer.Serve(listener)
	}()
	go func() {
		o.logger.Info("serving metrics", "port", o.opts.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	o.Channel.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	_ = metricsServer.Shutdown(shutdownCtx)
	o.logger.Info("orchestrator stopped")
	return err
}
