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

package options

import (
	"errors"
	"flag"
	"os"
	"time"

	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/utils/env"
)

// Options for running the orchestrator binary.
type Options struct {
	*flag.FlagSet

	LogLevel    string
	GRPCPort    int
	MetricsPort int

	SchedulingStrategy  string
	RegistrationTimeout time.Duration
	CancelGracePeriod   time.Duration

	// WorkerImage is the container image the docker pool factory launches.
	WorkerImage string
	// OrchestratorEndpoint is the host:port advertised to workers for dialing
	// back. It must be reachable from inside worker containers.
	OrchestratorEndpoint string
}

// New creates an Options struct and registers CLI flags and environment
// variables to fill in its fields.
func New() *Options {
	opts := &Options{}
	f := flag.NewFlagSet("hodei-orchestrator", flag.ContinueOnError)
	opts.FlagSet = f

	f.StringVar(&opts.LogLevel, "log-level", env.WithDefaultString("LOG_LEVEL", "info"), "The log level: debug, info, warn, or error")
	f.IntVar(&opts.GRPCPort, "grpc-port", env.WithDefaultInt("GRPC_PORT", 50051), "The port the worker channel gRPC server binds to")
	f.IntVar(&opts.MetricsPort, "metrics-port", env.WithDefaultInt("METRICS_PORT", 8080), "The port the metric endpoint binds to for operating metrics about the orchestrator itself")
	f.StringVar(&opts.SchedulingStrategy, "scheduling-strategy", env.WithDefaultString("SCHEDULING_STRATEGY", "round-robin"), "The pool selection strategy: round-robin, greedy-best-fit, least-loaded, or bin-packing")
	f.DurationVar(&opts.RegistrationTimeout, "registration-timeout", env.WithDefaultDuration("REGISTRATION_TIMEOUT", 30*time.Second), "How long a provisioned worker may take to connect before its execution fails")
	f.DurationVar(&opts.CancelGracePeriod, "cancel-grace-period", env.WithDefaultDuration("CANCEL_GRACE_PERIOD", 60*time.Second), "How long a cancelled execution may wait for the worker's result before being force-failed")
	f.StringVar(&opts.WorkerImage, "worker-image", env.WithDefaultString("WORKER_IMAGE", ""), "The container image used for docker pool workers")
	f.StringVar(&opts.OrchestratorEndpoint, "orchestrator-endpoint", env.WithDefaultString("ORCHESTRATOR_ENDPOINT", ""), "The host:port workers dial to reach this orchestrator")
	return opts
}

// MustParse reads the user passed flags, environment variables, and default
// values. Options are validated and panics if an error is returned.
func (o *Options) MustParse() *Options {
	err := o.Parse(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		panic(err)
	}
	if err := o.Validate(); err != nil {
		panic(err)
	}
	return o
}
