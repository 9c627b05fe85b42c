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

package execution_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/Rubentxu/hodei-pipelines-sub004/pkg/apis/v1"
	"github.com/Rubentxu/hodei-pipelines-sub004/pkg/controllers/execution"
)

var _ = Describe("BuildDefinition", func() {
	var job *v1.Job

	BeforeEach(func() {
		job = v1.NewJob("build-and-test")
	})

	It("should build a shell task from the commands parameter", func() {
		job.Parameters["commands"] = []string{"make build", "make test"}
		definition, spec := execution.BuildDefinition(job)
		Expect(definition.Shell).ToNot(BeNil())
		Expect(definition.Script).To(BeNil())
		Expect(definition.Shell.Commands).To(Equal([]string{"make build", "make test"}))
		Expect(spec.Commands).To(Equal(definition.Shell.Commands))
	})
	It("should accept commands as a list of any", func() {
		job.Parameters["commands"] = []any{"echo one", "echo two"}
		definition, _ := execution.BuildDefinition(job)
		Expect(definition.Shell.Commands).To(Equal([]string{"echo one", "echo two"}))
	})
	It("should build a script task when no commands are present", func() {
		job.Parameters["script"] = "#!/bin/sh\necho hi\n"
		definition, spec := execution.BuildDefinition(job)
		Expect(definition.Shell).To(BeNil())
		Expect(definition.Script).ToNot(BeNil())
		Expect(definition.Script.ScriptContent).To(Equal("#!/bin/sh\necho hi\n"))
		Expect(spec.ScriptContent).To(Equal(definition.Script.ScriptContent))
	})
	It("should expose non-reserved parameters as env vars", func() {
		job.Parameters["commands"] = []string{"true"}
		job.Parameters["BRANCH"] = "main"
		job.Parameters["RETRIES"] = 3
		job.Parameters["VERBOSE"] = true
		definition, _ := execution.BuildDefinition(job)
		Expect(definition.EnvVars).To(Equal(map[string]string{
			"BRANCH": "main", "RETRIES": "3", "VERBOSE": "true",
		}))
	})
	It("should substitute job and parameter placeholders in commands", func() {
		job.ID = "job-42"
		job.Parameters["commands"] = []string{"echo {{.job.name}} {{.job.id}} {{.params.TARGET}}"}
		job.Parameters["TARGET"] = "prod"
		definition, _ := execution.BuildDefinition(job)
		Expect(definition.Shell.Commands).To(Equal([]string{"echo build-and-test job-42 prod"}))
	})
	It("should leave unknown placeholders untouched", func() {
		job.Parameters["commands"] = []string{"echo {{.params.MISSING}}"}
		definition, _ := execution.BuildDefinition(job)
		Expect(definition.Shell.Commands).To(Equal([]string{"echo {{.params.MISSING}}"}))
	})
	It("should carry the parsed timeout", func() {
		job.Parameters["commands"] = []string{"true"}
		job.ResourceRequirements["timeout"] = "5m"
		definition, spec := execution.BuildDefinition(job)
		Expect(definition.TimeoutSecs).To(Equal(int64(300)))
		Expect(spec.TimeoutSecs).To(Equal(int64(300)))
	})
	It("should default the timeout when the requirement is absent or malformed", func() {
		job.Parameters["commands"] = []string{"true"}
		_, spec := execution.BuildDefinition(job)
		Expect(spec.TimeoutSecs).To(Equal(int64(300)))

		job.ResourceRequirements["timeout"] = "whenever"
		_, spec = execution.BuildDefinition(job)
		Expect(spec.TimeoutSecs).To(Equal(int64(300)))
	})
})
