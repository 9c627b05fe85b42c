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

package execution

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/transport"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/utils/resources"
)

// Reserved parameter keys: "commands" selects a shell task, "script" a script
// task. Everything else becomes an env var and a placeholder value.
const (
	commandsParameter = "commands"
	scriptParameter   = "script"
	timeoutParameter  = "timeout"
)

// BuildDefinition turns a job into the task payload sent to a worker: a shell
// task (ordered command list) when the job carries commands, otherwise a
// script task, plus the env var map derived from the job's parameters.
// Placeholders {{.params.KEY}}, {{.job.name}} and {{.job.id}} in command
// strings are substituted.
func BuildDefinition(job *v1.Job) (transport.ExecutionDefinition, v1.ExecutionSpec) {
	params := lo.OmitByKeys(job.Parameters, []string{commandsParameter, scriptParameter})
	envVars := make(map[string]string, len(params))
	for key, value := range params {
		envVars[key] = coerceString(value)
	}
	timeoutSecs := resources.ParseTimeout(job.ResourceRequirements[timeoutParameter])

	definition := transport.ExecutionDefinition{EnvVars: envVars, TimeoutSecs: timeoutSecs}
	spec := v1.ExecutionSpec{EnvVars: envVars, TimeoutSecs: timeoutSecs}

	if commands := commandList(job.Parameters[commandsParameter]); len(commands) > 0 {
		substituted := lo.Map(commands, func(command string, _ int) string {
			return substitutePlaceholders(command, job, envVars)
		})
		definition.Shell = &transport.ShellTask{Commands: substituted}
		spec.Commands = substituted
		return definition, spec
	}

	script := coerceString(job.Parameters[scriptParameter])
	definition.Script = &transport.ScriptTask{ScriptContent: script, Parameters: envVars}
	spec.ScriptContent = script
	return definition, spec
}

// commandList accepts either []string or []any of primitives.
func commandList(value any) []string {
	switch typed := value.(type) {
	case []string:
		return typed
	case []any:
		return lo.Map(typed, func(item any, _ int) string { return coerceString(item) })
	default:
		return nil
	}
}

func substitutePlaceholders(command string, job *v1.Job, envVars map[string]string) string {
	command = strings.ReplaceAll(command, "{{.job.name}}", job.Name)
	command = strings.ReplaceAll(command, "{{.job.id}}", job.ID)
	for key, value := range envVars {
		command = strings.ReplaceAll(command, fmt.Sprintf("{{.params.%s}}", key), value)
	}
	return command
}

// coerceString renders primitive parameter values as strings.
func coerceString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case int:
		return strconv.Itoa(typed)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", typed)
	}
}
