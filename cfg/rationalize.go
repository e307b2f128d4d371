// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg

const (
	// LogSeverityConfigKey is the viper key of the logging severity.
	LogSeverityConfigKey = "logging.severity"
)

// isSet interface is abstraction over the IsSet() method of viper, specially
// added to keep rationalize method simple.
type isSet interface {
	IsSet(string) bool
}

// Rationalize updates the config fields based on the values of other fields.
// A verbose interpreter raises the log severity unless the user chose one.
func Rationalize(v isSet, c *Config) error {
	if v.IsSet(LogSeverityConfigKey) {
		return nil
	}
	switch {
	case c.Harness.Verbose >= 4:
		c.Logging.Severity = TraceLogSeverity
	case c.Harness.Verbose >= 3:
		c.Logging.Severity = DebugLogSeverity
	}
	return nil
}
