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
	"fmt"
	"os"

	"go.uber.org/multierr"

	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/utils/env"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/worker"
)

// Options for running the worker binary. The orchestrator injects the
// defaults through the container environment when it provisions the worker.
type Options struct {
	*flag.FlagSet

	LogLevel    string
	Endpoint    string
	WorkerID    string
	Interpreter string
}

// New creates an Options struct and registers CLI flags and environment
// variables to fill in its fields.
func New() *Options {
	opts := &Options{}
	f := flag.NewFlagSet("hodei-worker", flag.ContinueOnError)
	opts.FlagSet = f

	f.StringVar(&opts.LogLevel, "log-level", env.WithDefaultString("LOG_LEVEL", "info"), "The log level: debug, info, warn, or error")
	f.StringVar(&opts.Endpoint, "endpoint", env.WithDefaultString("HODEI_ORCHESTRATOR_ENDPOINT", ""), "The host:port of the orchestrator's worker channel")
	f.StringVar(&opts.WorkerID, "worker-id", env.WithDefaultString("HODEI_WORKER_ID", ""), "The identity this worker registers under")
	f.StringVar(&opts.Interpreter, "interpreter", env.WithDefaultString("HODEI_INTERPRETER", worker.DefaultInterpreter), "The interpreter used for shell commands and script bodies")
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

func (o *Options) Validate() error {
	var err error
	if o.Endpoint == "" {
		err = multierr.Append(err, fmt.Errorf("missing field, endpoint"))
	}
	if o.WorkerID == "" {
		err = multierr.Append(err, fmt.Errorf("missing field, worker-id"))
	}
	return err
}
