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

// Package console implements qtest, a line-oriented interpreter that drives a
// queue.Queue. Each line names a command followed by its arguments; results
// and errors are reported to an output writer.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
	"github.com/strqueue/strqueue/cfg"
	"github.com/strqueue/strqueue/internal/alloc"
	"github.com/strqueue/strqueue/internal/logger"
	"github.com/strqueue/strqueue/metrics"
	"github.com/strqueue/strqueue/queue"
)

const (
	prompt = "cmd> "

	// Maximum number of elements printed by show.
	bigQueueSize = 30

	// Bytes past the removal buffer that must stay untouched, and the value
	// they are filled with.
	guardBytes = 16
	guardByte  = 'X'

	// Maximum nesting of source commands.
	maxSourceDepth = 16
)

// Options controls the interpreter. They start from the config and can be
// changed by the option command.
type Options struct {
	// Number of errors after which commands stop being run.
	ErrorLimit int

	// Maximum number of bytes of a removed value that are kept.
	StringLength int

	// 0 reports errors only, 1 also prints the queue after each operation,
	// 2 and above add notes about every step.
	Verbose int

	// Print each command before running it.
	Echo bool

	// Crash instead of reporting when the queue's invariants break.
	ExitOnInvariantViolation bool
}

// OptionsFromConfig returns the interpreter options selected by c.
func OptionsFromConfig(c *cfg.Config) Options {
	return Options{
		ErrorLimit:               int(c.Harness.ErrorLimit),
		StringLength:             int(c.Harness.StringLength),
		Verbose:                  int(c.Harness.Verbose),
		Echo:                     c.Harness.Echo,
		ExitOnInvariantViolation: c.Debug.ExitOnInvariantViolation,
	}
}

// Console runs qtest commands against a single current queue.
//
// Not safe for concurrent use by multiple goroutines; the mutex only exists
// so that invariants are checked around every access to the queue.
type Console struct {
	/////////////////////////
	// Dependencies
	/////////////////////////

	out          io.Writer
	tracker      *alloc.Tracker
	metricHandle metrics.MetricHandle
	clock        timeutil.Clock

	/////////////////////////
	// Mutable state
	/////////////////////////

	opts      Options
	sessionID string
	commands  map[string]*command

	// Number of errors reported so far.
	errors int

	// Set by quit or once the error limit is reached.
	stopped bool

	// Nesting depth of source commands.
	depth int

	mu syncutil.InvariantMutex

	// The current queue, nil when there is none.
	//
	// INVARIANT: q.CheckInvariants() doesn't panic
	q *queue.Queue // GUARDED_BY(mu)
}

// New returns an interpreter writing its reports to out. Queues are built on
// tracker, which must not be shared with other users.
func New(
	opts Options,
	out io.Writer,
	tracker *alloc.Tracker,
	metricHandle metrics.MetricHandle,
	clock timeutil.Clock) *Console {
	c := &Console{
		out:          out,
		tracker:      tracker,
		metricHandle: metricHandle,
		clock:        clock,
		opts:         opts,
		sessionID:    uuid.New().String(),
	}
	c.commands = c.builtinCommands()
	c.mu = syncutil.NewInvariantMutex(c.checkInvariants)

	if opts.ExitOnInvariantViolation {
		syncutil.EnableInvariantChecking()
	}
	return c
}

// SHARED_LOCKS_REQUIRED(c.mu)
func (c *Console) checkInvariants() {
	c.q.CheckInvariants()
}

// Errors returns the number of errors reported so far.
func (c *Console) Errors() int {
	return c.errors
}

// SessionID identifies this interpreter in log records.
func (c *Console) SessionID() string {
	return c.sessionID
}

// Run executes the commands read from r until r is exhausted, quit is run, or
// the error limit is reached. name identifies r in log records.
func (c *Console) Run(ctx context.Context, r io.Reader, name string) error {
	logger.Infof("qtest[%s]: running commands from %s", c.sessionID, name)

	scanner := bufio.NewScanner(r)
	line := 0
	for !c.stopped && scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		c.Interpret(ctx, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s after line %d: %w", name, line, err)
	}
	return nil
}

// RunFile executes the commands in the file at path.
func (c *Console) RunFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening script: %w", err)
	}
	defer f.Close()
	return c.Run(ctx, f, path)
}

// Interpret runs a single command line.
func (c *Console) Interpret(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if c.opts.Echo {
		c.printf("%s%s\n", prompt, line)
	}
	if strings.HasPrefix(line, "#") {
		return
	}

	args := strings.Fields(line)
	cmd, ok := c.commands[args[0]]
	if !ok {
		c.reportError("", "", "Unknown command '%s'", args[0])
		return
	}
	cmd.run(ctx, c, args)
}

// Close frees the current queue, reports storage that is still allocated,
// and returns an error if any errors were reported during the session.
func (c *Console) Close() error {
	if c.q != nil {
		c.notef(1, "Freeing queue")
	}
	c.freeQueue()
	if c.errors > 0 {
		return fmt.Errorf("%d errors reported", c.errors)
	}
	return nil
}

////////////////////////////////////////////////////////////////////////
// Reporting
////////////////////////////////////////////////////////////////////////

func (c *Console) printf(format string, v ...interface{}) {
	fmt.Fprintf(c.out, format, v...)
}

// notef prints a message when the verbosity level is at least level.
func (c *Console) notef(level int, format string, v ...interface{}) {
	if c.opts.Verbose >= level {
		c.printf(format+"\n", v...)
	}
}

// warnf reports a condition that is expected under the current options and
// does not count as an error.
func (c *Console) warnf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	logger.Warnf("qtest[%s]: %s", c.sessionID, msg)
	c.notef(1, "Warning: %s", msg)
}

// reportError prints and counts an error, and stops the interpreter once the
// error limit is reached. op and category label the error metric when set.
func (c *Console) reportError(op, category, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	c.errors++
	logger.Errorf("qtest[%s]: %s", c.sessionID, msg)
	c.printf("ERROR: %s\n", msg)
	if op != "" && category != "" {
		c.metricHandle.QueueOpsErrorCount(context.Background(), 1, category, op)
	}

	if c.errors >= c.opts.ErrorLimit && !c.stopped {
		c.printf("Error limit exceeded. Stopping command execution\n")
		c.stopped = true
	}
}

// drainViolations reports misuse recorded by the allocator since the last
// command.
func (c *Console) drainViolations(op string) {
	for _, err := range c.tracker.Violations() {
		c.reportError(op, metrics.QueueErrorCategoryALLOCATORMISUSE, "%v", err)
	}
}
