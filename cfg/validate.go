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

import (
	"fmt"
)

const (
	FailPercentInvalidValueError  = "the value of fail-percent for harness must be between 0 and 100"
	ErrorLimitInvalidValueError   = "the value of error-limit for harness must be at least 1"
	StringLengthInvalidValueError = "the value of string-length for harness must be at least 1"
	VerboseInvalidValueError      = "the value of verbose for harness must be between 0 and 4"

	// MaxVerbose is the highest verbosity level of the interpreter.
	MaxVerbose = 4
)

func isValidLogRotateConfig(config *LogRotateLoggingConfig) error {
	if config.MaxFileSizeMb <= 0 {
		return fmt.Errorf("max-file-size-mb should be atleast 1")
	}
	if config.BackupFileCount < 0 {
		return fmt.Errorf("backup-file-count should be 0 (to retain all backup files) or a positive value")
	}
	return nil
}

func isValidLogFormat(format string) error {
	if format != TextLogFormat && format != JSONLogFormat {
		return fmt.Errorf("invalid log format: %q. Must be one of [text, json]", format)
	}
	return nil
}

func isValidHarnessConfig(c *HarnessConfig) error {
	if c.FailPercent < 0 || c.FailPercent > 100 {
		return fmt.Errorf(FailPercentInvalidValueError)
	}
	if c.ErrorLimit < 1 {
		return fmt.Errorf(ErrorLimitInvalidValueError)
	}
	if c.StringLength < 1 {
		return fmt.Errorf(StringLengthInvalidValueError)
	}
	if c.Verbose < 0 || c.Verbose > MaxVerbose {
		return fmt.Errorf(VerboseInvalidValueError)
	}
	return nil
}

// ValidateConfig returns a non-nil error if the config is invalid.
func ValidateConfig(config *Config) error {
	var err error

	if err = isValidLogRotateConfig(&config.Logging.LogRotate); err != nil {
		return fmt.Errorf("error parsing log-rotate config: %w", err)
	}

	if err = isValidLogFormat(config.Logging.Format); err != nil {
		return fmt.Errorf("error parsing logging config: %w", err)
	}

	if err = isValidHarnessConfig(&config.Harness); err != nil {
		return fmt.Errorf("error parsing harness config: %w", err)
	}

	if config.Metrics.PrometheusPort < 0 {
		return fmt.Errorf("error parsing metrics config: prometheus-port can't be negative")
	}

	return nil
}
