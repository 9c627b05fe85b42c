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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/operator"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/operator/options"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/utils/logging"
)

func main() {
	opts := options.New().MustParse()
	logger := logging.NewLogger(opts.LogLevel)

	op, err := operator.NewOperator(logger, opts, nil)
	if err != nil {
		logger.Error(err, "failed to build orchestrator")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := op.Start(logging.IntoContext(ctx, logger)); err != nil {
		logger.Error(err, "orchestrator exited")
		os.Exit(1)
	}
}
