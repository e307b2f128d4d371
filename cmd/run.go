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
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jacobsa/timeutil"
	"github.com/strqueue/strqueue/cfg"
	"github.com/strqueue/strqueue/common"
	"github.com/strqueue/strqueue/internal/alloc"
	"github.com/strqueue/strqueue/internal/console"
	"github.com/strqueue/strqueue/internal/logger"
	"github.com/strqueue/strqueue/internal/monitor"
	"github.com/strqueue/strqueue/metrics"
)

func runScripts(c cfg.Config, scripts []string) error {
	return runConsole(context.Background(), c, scripts, os.Stdin, os.Stdout)
}

// runConsole runs every script, or stdin when there are none, through one
// interpreter. The interpreter is closed even when a script fails, so the
// current queue is freed and leaks are reported.
func runConsole(ctx context.Context, c cfg.Config, scripts []string, stdin io.Reader, stdout io.Writer) (err error) {
	if err = logger.InitLogFile(c.Logging); err != nil {
		return fmt.Errorf("init log file: %w", err)
	}
	defer logger.Close()

	if s, err := cfg.Stringify(&c); err != nil {
		logger.Warnf("Failed to stringify config: %v", err)
	} else {
		logger.Info("qtest config", "app", common.ServiceName(c.AppName), "config", s)
	}

	shutdownFn := monitor.SetupOTelMetricExporters(ctx, &c)
	defer func() {
		if shutdownErr := shutdownFn(ctx); shutdownErr != nil {
			logger.Warnf("Error while shutting down metric exporters: %v", shutdownErr)
		}
	}()

	var metricHandle metrics.MetricHandle
	if mh, mErr := metrics.NewOTelMetrics(); mErr != nil {
		logger.Errorf("Failed to create metrics, continuing without them: %v", mErr)
		metricHandle = metrics.NewNoopMetrics()
	} else {
		metricHandle = mh
	}

	tracker := alloc.NewTracker(c.Harness.Seed)
	tracker.SetFailPercent(int(c.Harness.FailPercent))
	con := console.New(console.OptionsFromConfig(&c), stdout, tracker, metricHandle, timeutil.RealClock())

	if len(scripts) == 0 {
		err = con.Run(ctx, stdin, "stdin")
	}
	for _, script := range scripts {
		if err = con.RunFile(ctx, script); err != nil {
			break
		}
	}
	return errors.Join(err, con.Close())
}
