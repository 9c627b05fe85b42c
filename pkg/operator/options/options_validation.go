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
	"fmt"
	"net"
	"strings"

	"github.com/awslabs/operatorpkg/serrors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
)

var validStrategies = []string{"round-robin", "greedy-best-fit", "least-loaded", "bin-packing"}

func (o *Options) Validate() error {
	return multierr.Combine(
		o.validateStrategy(),
		o.validateEndpoint(),
		o.validateRequiredFields(),
		o.validateTimeouts(),
	)
}

func (o *Options) validateStrategy() error {
	if lo.Contains(validStrategies, o.SchedulingStrategy) {
		return nil
	}
	return fmt.Errorf("invalid scheduling strategy '%s', valid strategies are: [%s]",
		o.SchedulingStrategy, strings.Join(validStrategies, ", "))
}

func (o *Options) validateEndpoint() error {
	if o.OrchestratorEndpoint == "" {
		return nil
	}
	// host:port, not a URL; workers pass it straight to the dialer
	if _, _, err := net.SplitHostPort(o.OrchestratorEndpoint); err != nil {
		return serrors.Wrap(fmt.Errorf("orchestrator endpoint is not a valid host:port"), "orchestrator-endpoint", o.OrchestratorEndpoint)
	}
	return nil
}

func (o *Options) validateRequiredFields() error {
	var err error
	if o.OrchestratorEndpoint == "" {
		err = multierr.Append(err, fmt.Errorf("missing field, orchestrator-endpoint"))
	}
	if o.WorkerImage == "" {
		err = multierr.Append(err, fmt.Errorf("missing field, worker-image"))
	}
	return err
}

func (o *Options) validateTimeouts() error {
	var err error
	if o.RegistrationTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("registration-timeout must be positive"))
	}
	if o.CancelGracePeriod <= 0 {
		err = multierr.Append(err, fmt.Errorf("cancel-grace-period must be positive"))
	}
	return err
}
