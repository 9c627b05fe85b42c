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

	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/utils/logging"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/worker"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/worker/options"
)

func main() {
	opts := options.New().MustParse()
	logger := logging.NewLogger(opts.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runtime := worker.NewRuntime(logger, opts.Endpoint, opts.WorkerID, opts.Interpreter)
	if err := runtime.Run(logging.IntoContext(ctx, logger)); err != nil && ctx.Err() == nil {
		logger.Error(err, "worker exited")
		os.Exit(1)
	}
}
