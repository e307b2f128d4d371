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

// GENERATED CODE - DO NOT EDIT config.go FILE MANUALLY.

package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	AppName string `yaml:"app-name"`

	Debug DebugConfig `yaml:"debug"`

	Harness HarnessConfig `yaml:"harness"`

	Logging LoggingConfig `yaml:"logging"`

	Metrics MetricsConfig `yaml:"metrics"`
}

type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`
}

type HarnessConfig struct {
	Echo bool `yaml:"echo"`

	ErrorLimit int64 `yaml:"error-limit"`

	FailPercent int64 `yaml:"fail-percent"`

	Seed int64 `yaml:"seed"`

	StringLength int64 `yaml:"string-length"`

	Verbose int64 `yaml:"verbose"`
}

type LogRotateLoggingConfig struct {
	BackupFileCount int64 `yaml:"backup-file-count"`

	Compress bool `yaml:"compress"`

	MaxFileSizeMb int64 `yaml:"max-file-size-mb"`
}

type LoggingConfig struct {
	FilePath ResolvedPath `yaml:"file-path"`

	Format string `yaml:"format"`

	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`

	Severity LogSeverity `yaml:"severity"`
}

type MetricsConfig struct {
	PrometheusPort int64 `yaml:"prometheus-port"`
}

func BindFlags(v *viper.Viper, flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("app-name", "", "", "The application name attached to log records of this run.")

	err = v.BindPFlag("app-name", flagSet.Lookup("app-name"))
	if err != nil {
		return err
	}

	flagSet.BoolP("debug_invariants", "", false, "Exit when internal invariants of the queue are violated.")

	err = v.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug_invariants"))
	if err != nil {
		return err
	}

	flagSet.BoolP("echo", "e", true, "Echo each command read from a script before running it.")

	err = v.BindPFlag("harness.echo", flagSet.Lookup("echo"))
	if err != nil {
		return err
	}

	flagSet.IntP("error-limit", "", 5, "Number of errors after which the interpreter stops.")

	err = v.BindPFlag("harness.error-limit", flagSet.Lookup("error-limit"))
	if err != nil {
		return err
	}

	flagSet.IntP("malloc-fail-percent", "", 0, "Percentage of allocations that fail, in [0, 100].")

	err = v.BindPFlag("harness.fail-percent", flagSet.Lookup("malloc-fail-percent"))
	if err != nil {
		return err
	}

	flagSet.Int64P("seed", "", 1, "Seed for the allocation failure generator.")

	err = v.BindPFlag("harness.seed", flagSet.Lookup("seed"))
	if err != nil {
		return err
	}

	flagSet.IntP("string-length", "", 1024, "Maximum number of bytes of a removed value that are kept.")

	err = v.BindPFlag("harness.string-length", flagSet.Lookup("string-length"))
	if err != nil {
		return err
	}

	flagSet.IntP("verbose", "v", 1, "Verbosity level of the interpreter's reports, in [0, 4].")

	err = v.BindPFlag("harness.verbose", flagSet.Lookup("verbose"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "The file for storing logs. When not provided, logs are printed to stdout.")

	err = v.BindPFlag("logging.file-path", flagSet.Lookup("log-file"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "The format of the log file: 'text' or 'json'.")

	err = v.BindPFlag("logging.format", flagSet.Lookup("log-format"))
	if err != nil {
		return err
	}

	flagSet.IntP("log-rotate-backup-file-count", "", 10, "The maximum number of backup log files to retain after they have been rotated. 0 retains all backups.")

	err = v.BindPFlag("logging.log-rotate.backup-file-count", flagSet.Lookup("log-rotate-backup-file-count"))
	if err != nil {
		return err
	}

	flagSet.BoolP("log-rotate-compress", "", true, "Controls whether the rotated log files should be compressed using gzip.")

	err = v.BindPFlag("logging.log-rotate.compress", flagSet.Lookup("log-rotate-compress"))
	if err != nil {
		return err
	}

	flagSet.IntP("log-rotate-max-file-size-mb", "", 512, "The maximum size in megabytes that a log file can reach before it is rotated.")

	err = v.BindPFlag("logging.log-rotate.max-file-size-mb", flagSet.Lookup("log-rotate-max-file-size-mb"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", "info", "Specifies the logging severity expressed as one of [trace, debug, info, warning, error, off]")

	err = v.BindPFlag("logging.severity", flagSet.Lookup("log-severity"))
	if err != nil {
		return err
	}

	flagSet.IntP("prometheus-port", "", 0, "Expose Prometheus metrics endpoint on this port. 0 disables it.")

	err = v.BindPFlag("metrics.prometheus-port", flagSet.Lookup("prometheus-port"))
	if err != nil {
		return err
	}

	return nil
}
