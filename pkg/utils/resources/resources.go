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

package resources

import (
	"strconv"
	"strings"
)

// DefaultTimeoutSeconds is used whenever a timeout string cannot be parsed.
const DefaultTimeoutSeconds = 300

// memoryMultipliers maps quantity suffixes to byte multipliers. The "i"
// variants are binary (powers of 1024), the rest are decimal.
var memoryMultipliers = []struct {
	suffix     string
	multiplier int64
}{
	{"Ki", 1 << 10},
	{"Mi", 1 << 20},
	{"Gi", 1 << 30},
	{"K", 1e3},
	{"M", 1e6},
	{"G", 1e9},
}

// ParseMemory converts a memory quantity string ("2Gi", "512Mi", "1G", "1024")
// into bytes. Bare numbers are bytes. Unparseable input returns 0 so that a
// malformed requirement never blocks a scheduling decision.
func ParseMemory(quantity string) int64 {
	quantity = strings.TrimSpace(quantity)
	if quantity == "" {
		return 0
	}
	for _, m := range memoryMultipliers {
		if strings.HasSuffix(quantity, m.suffix) {
			value, err := strconv.ParseFloat(strings.TrimSuffix(quantity, m.suffix), 64)
			if err != nil {
				return 0
			}
			return int64(value * float64(m.multiplier))
		}
	}
	value, err := strconv.ParseInt(quantity, 10, 64)
	if err != nil {
		return 0
	}
	return value
}

// ParseCPU converts a cpu quantity string ("1", "0.5", "2") into cores.
// Unparseable input returns 0.
func ParseCPU(quantity string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(quantity), 64)
	if err != nil {
		return 0
	}
	return value
}

// ParseTimeout converts a timeout string ("30s", "5m", "2h", "42") into
// seconds. Bare numbers are seconds. Unparseable input returns
// DefaultTimeoutSeconds.
func ParseTimeout(timeout string) int64 {
	timeout = strings.TrimSpace(timeout)
	if timeout == "" {
		return DefaultTimeoutSeconds
	}
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(timeout, "s"):
		timeout = strings.TrimSuffix(timeout, "s")
	case strings.HasSuffix(timeout, "m"):
		timeout, multiplier = strings.TrimSuffix(timeout, "m"), 60
	case strings.HasSuffix(timeout, "h"):
		timeout, multiplier = strings.TrimSuffix(timeout, "h"), 3600
	}
	value, err := strconv.ParseInt(timeout, 10, 64)
	if err != nil {
		return DefaultTimeoutSeconds
	}
	return value * multiplier
}
