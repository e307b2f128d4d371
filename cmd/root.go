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

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/strqueue/strqueue/cfg"
	"github.com/strqueue/strqueue/common"
	"github.com/strqueue/strqueue/internal/util"
)

type runFn func(c cfg.Config, scripts []string) error

// NewRootCmd accepts the run function to be invoked once the config has been
// resolved, and returns the qtest root command.
func NewRootCmd(run runFn) (*cobra.Command, error) {
	var (
		configObj cfg.Config
		cfgFile   string
		cfgErr    error
		v         = viper.New()
	)

	initConfig := func() {
		if cfgFile != "" {
			resolved, err := util.GetResolvedPath(cfgFile)
			if err != nil {
				cfgErr = fmt.Errorf("error while resolving config-file path[%s]: %w", cfgFile, err)
				return
			}
			v.SetConfigFile(resolved)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				cfgErr = fmt.Errorf("error while reading the config: %w", err)
				return
			}
		}

		if cfgErr = v.Unmarshal(&configObj, cfg.DecoderConfigOptions()...); cfgErr != nil {
			cfgErr = fmt.Errorf("error while unmarshaling the config: %w", cfgErr)
			return
		}

		if cfgErr = cfg.Rationalize(v, &configObj); cfgErr != nil {
			return
		}
		cfgErr = cfg.ValidateConfig(&configObj)
	}

	rootCmd := &cobra.Command{
		Use:   "qtest [flags] [script...]",
		Short: "Exercise a linked-list string queue with a command interpreter",
		Long: `qtest reads queue commands from each script in turn, or from standard
input when no script is given, and runs them against a string queue whose
storage is tracked so that leaks and misuse are reported.`,
		Version:      common.GetVersion(),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			initConfig()
			if cfgErr != nil {
				return cfgErr
			}
			return run(configObj, args)
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Absolute path to the config file.")
	if err := cfg.BindFlags(v, rootCmd.PersistentFlags()); err != nil {
		return nil, fmt.Errorf("error while binding flags: %w", err)
	}
	return rootCmd, nil
}

// Execute runs qtest with the process arguments and exits with a non-zero
// status on failure.
func Execute() {
	rootCmd, err := NewRootCmd(runScripts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error while creating the root command: %v\n", err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
