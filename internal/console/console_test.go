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

package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/strqueue/strqueue/cfg"
	"github.com/strqueue/strqueue/internal/alloc"
	"github.com/strqueue/strqueue/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// recordingMetrics counts the operations and error categories it is given.
type recordingMetrics struct {
	ops    map[string]int64
	errors map[string]int64
	length int64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{ops: map[string]int64{}, errors: map[string]int64{}}
}

func (r *recordingMetrics) QueueOpsCount(_ context.Context, inc int64, op string) {
	r.ops[op] += inc
}

func (r *recordingMetrics) QueueOpsErrorCount(_ context.Context, inc int64, category string, _ string) {
	r.errors[category] += inc
}

func (r *recordingMetrics) QueueOpsLatency(context.Context, time.Duration, string) {}

func (r *recordingMetrics) QueueLength(_ context.Context, n int64) {
	r.length = n
}

func (r *recordingMetrics) AllocLiveBlocks(context.Context, int64) {}

type ConsoleTest struct {
	suite.Suite
	ctx     context.Context
	out     bytes.Buffer
	clock   timeutil.SimulatedClock
	tracker *alloc.Tracker
	metrics *recordingMetrics
	console *Console
}

func TestConsoleSuite(t *testing.T) {
	suite.Run(t, new(ConsoleTest))
}

func (t *ConsoleTest) SetupTest() {
	t.ctx = context.Background()
	t.out.Reset()
	t.clock.SetTime(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	t.tracker = alloc.NewTracker(1)
	t.metrics = newRecordingMetrics()
	t.console = New(Options{
		ErrorLimit:   5,
		StringLength: 1024,
		Verbose:      1,
	}, &t.out, t.tracker, t.metrics, &t.clock)
}

func (t *ConsoleTest) run(script string) {
	err := t.console.Run(t.ctx, strings.NewReader(script), "test")
	require.NoError(t.T(), err)
}

func (t *ConsoleTest) TestBasicOperations() {
	t.run(`
new
ih b
ih a
it c
rh a
reverse
show
size
`)

	output := t.out.String()
	assert.Contains(t.T(), output, "q = [a b c]\n")
	assert.Contains(t.T(), output, "Removed a from queue\n")
	assert.Contains(t.T(), output, "q = [c b]\n")
	assert.Contains(t.T(), output, "Queue size = 2\n")
	assert.Equal(t.T(), 0, t.console.Errors())
	assert.NoError(t.T(), t.console.Close())
	assert.Equal(t.T(), 0, t.tracker.Stats().LiveBlocks)
}

func (t *ConsoleTest) TestCloseFreesCurrentQueue() {
	t.run("new\nit a 2")

	assert.NoError(t.T(), t.console.Close())

	assert.True(t.T(), strings.HasSuffix(t.out.String(), "Freeing queue\n"))
	assert.Equal(t.T(), 0, t.tracker.Stats().LiveBlocks)
	assert.Equal(t.T(), uint64(5), t.tracker.Stats().Frees)
}

func (t *ConsoleTest) TestCloseWithoutQueue() {
	assert.NoError(t.T(), t.console.Close())

	assert.Empty(t.T(), t.out.String())
}

func (t *ConsoleTest) TestInsertCount() {
	t.run("new\nit x 4\nsize")

	assert.Contains(t.T(), t.out.String(), "q = [x x x x]\n")
	assert.Contains(t.T(), t.out.String(), "Queue size = 4\n")
	assert.Equal(t.T(), int64(4), t.metrics.length)
}

func (t *ConsoleTest) TestShowElidesLongQueue() {
	t.run("new\nit v 31\nshow")

	assert.Contains(t.T(), t.out.String(), strings.Repeat("v ", 29)+"v ...]\n")
	assert.Equal(t.T(), 0, t.console.Errors())
}

func (t *ConsoleTest) TestRemoveHeadMismatchIsAnError() {
	t.run("new\nit a\nrh b")

	assert.Contains(t.T(), t.out.String(), "ERROR: Removed value a != expected value b\n")
	assert.Equal(t.T(), 1, t.console.Errors())
	assert.Equal(t.T(), int64(1), t.metrics.errors[metrics.QueueErrorCategoryMISMATCH])
	assert.Error(t.T(), t.console.Close())
}

func (t *ConsoleTest) TestRemoveHeadTruncatesToStringLength() {
	t.run("option length 3\nnew\nit abcdef\nrh abcdef")

	assert.Contains(t.T(), t.out.String(), "Removed abc from queue\n")
	assert.Equal(t.T(), 0, t.console.Errors())
}

func (t *ConsoleTest) TestRemoveHeadQuiet() {
	t.run("new\nit a\nit b\nrhq")

	assert.NotContains(t.T(), t.out.String(), "Removed")
	assert.Contains(t.T(), t.out.String(), "q = [b]\n")
	assert.Equal(t.T(), int64(2), t.metrics.ops[metrics.QueueOpInsertTail])
	assert.Equal(t.T(), int64(1), t.metrics.ops[metrics.QueueOpRemoveHead])
}

func (t *ConsoleTest) TestRemoveFromEmptyQueueIsAWarning() {
	t.run("new\nrh")

	assert.Contains(t.T(), t.out.String(), "Warning: Calling remove head on empty queue\n")
	assert.Equal(t.T(), 0, t.console.Errors())
	assert.Equal(t.T(), int64(1), t.metrics.errors[metrics.QueueErrorCategoryEMPTYQUEUE])
}

func (t *ConsoleTest) TestAbsentQueue() {
	t.run("ih a\nit b\nrh\nreverse\nsize\nshow\nfree")

	output := t.out.String()
	assert.Contains(t.T(), output, "Warning: Calling insert head on null queue\n")
	assert.Contains(t.T(), output, "Warning: Calling insert tail on null queue\n")
	assert.Contains(t.T(), output, "Warning: Calling remove head on null queue\n")
	assert.Contains(t.T(), output, "Warning: Calling reverse on null queue\n")
	assert.Contains(t.T(), output, "Warning: Calling size on null queue\n")
	assert.Contains(t.T(), output, "Warning: Calling free on null queue\n")
	assert.Contains(t.T(), output, "q = NULL\n")
	assert.Equal(t.T(), 0, t.console.Errors())
	assert.Equal(t.T(), int64(6), t.metrics.errors[metrics.QueueErrorCategoryABSENTQUEUE])
}

func (t *ConsoleTest) TestFreeAfterNew() {
	t.run("new\nit a 3\nfree\nit b")

	assert.Contains(t.T(), t.out.String(), "Warning: Calling insert tail on null queue\n")
	assert.Equal(t.T(), 0, t.tracker.Stats().LiveBlocks)
	assert.Equal(t.T(), 0, t.console.Errors())
}

func (t *ConsoleTest) TestNewReplacesQueue() {
	t.run("new\nit a 3\nnew\nshow")

	assert.True(t.T(), strings.HasSuffix(t.out.String(), "q = []\n"))
	assert.Equal(t.T(), 0, t.console.Errors())
	assert.NoError(t.T(), t.console.Close())
}

func (t *ConsoleTest) TestInjectedFailuresAreWarnings() {
	t.run("new\noption malloc 100\nih a\nit b 3\nnew")

	output := t.out.String()
	assert.Contains(t.T(), output, "Warning: Insertion of a failed\n")
	assert.Contains(t.T(), output, "Warning: Insertion of b failed\n")
	assert.Contains(t.T(), output, "Warning: New failed: ")
	assert.Equal(t.T(), 0, t.console.Errors())
	assert.Equal(t.T(), int64(3), t.metrics.errors[metrics.QueueErrorCategoryOUTOFMEMORY])
	assert.NoError(t.T(), t.console.Close())
}

func (t *ConsoleTest) TestErrorLimitStopsExecution() {
	t.run("option fail 2\nbogus\nbogus\nnew")

	output := t.out.String()
	assert.Contains(t.T(), output, "ERROR: Unknown command 'bogus'\n")
	assert.Contains(t.T(), output, "Error limit exceeded. Stopping command execution\n")
	assert.NotContains(t.T(), output, "q = []")
	assert.Equal(t.T(), 2, t.console.Errors())
}

func (t *ConsoleTest) TestQuitStopsExecution() {
	t.run("new\nquit\nit a")

	assert.Equal(t.T(), int64(0), t.metrics.ops[metrics.QueueOpInsertTail])
	assert.NoError(t.T(), t.console.Close())
}

func (t *ConsoleTest) TestUsageErrors() {
	t.run("ih\nsize x\nnew extra")

	output := t.out.String()
	assert.Contains(t.T(), output, "ERROR: Invalid arguments for 'ih'. Usage: ih str [n]\n")
	assert.Contains(t.T(), output, "ERROR: Invalid count 'x'\n")
	assert.Contains(t.T(), output, "ERROR: Invalid arguments for 'new'. Usage: new \n")
	assert.Equal(t.T(), 3, t.console.Errors())
}

func (t *ConsoleTest) TestOptions() {
	t.run("option\noption verbose 3\noption malloc 101\noption nope 1\noption length")

	output := t.out.String()
	assert.Contains(t.T(), output, "Options:\n")
	assert.Contains(t.T(), output, "\tmalloc\t0\tMalloc failure probability percent\n")
	assert.Contains(t.T(), output, "ERROR: Invalid value 101 for option 'malloc': must be between 0 and 100\n")
	assert.Contains(t.T(), output, "ERROR: Unknown option 'nope'\n")
	assert.Contains(t.T(), output, "length\t1024\tMaximum length of displayed string\n")
	assert.Equal(t.T(), 2, t.console.Errors())
	assert.Equal(t.T(), 3, t.console.opts.Verbose)
	assert.Equal(t.T(), 0, t.tracker.FailPercent())
}

func (t *ConsoleTest) TestVerboseOptionIsBounded() {
	t.run("option verbose 5\noption verbose -1")

	output := t.out.String()
	assert.Contains(t.T(), output, "ERROR: Invalid value 5 for option 'verbose': must be between 0 and 4\n")
	assert.Contains(t.T(), output, "ERROR: Invalid value -1 for option 'verbose': must be between 0 and 4\n")
	assert.Equal(t.T(), 1, t.console.opts.Verbose)

	t.run("option verbose 4")

	assert.Equal(t.T(), 4, t.console.opts.Verbose)
	assert.Equal(t.T(), 2, t.console.Errors())
}

func (t *ConsoleTest) guardedBuffer(value string) []byte {
	t.console.opts.StringLength = 4
	buf := bytes.Repeat([]byte{guardByte}, t.console.opts.StringLength+1+guardBytes)
	copy(buf, value)
	buf[len(value)] = 0
	return buf
}

func (t *ConsoleTest) TestCheckRemovedAcceptsIntactGuard() {
	buf := t.guardedBuffer("abcd")

	checkRemoved(t.console, buf, nil)

	assert.Contains(t.T(), t.out.String(), "Removed abcd from queue\n")
	assert.Equal(t.T(), 0, t.console.Errors())
}

func (t *ConsoleTest) TestCheckRemovedDetectsOverflow() {
	buf := t.guardedBuffer("abcd")
	buf[t.console.opts.StringLength+1] = 'e'

	checkRemoved(t.console, buf, nil)

	assert.Contains(t.T(), t.out.String(), "ERROR: Copying of string in remove head overflowed destination buffer\n")
	assert.Equal(t.T(), 1, t.console.Errors())
}

func (t *ConsoleTest) TestCheckRemovedDetectsMissingTerminator() {
	buf := bytes.Repeat([]byte{'a'}, 5)
	t.console.opts.StringLength = 4
	buf = append(buf, bytes.Repeat([]byte{guardByte}, guardBytes)...)

	checkRemoved(t.console, buf, nil)

	assert.Contains(t.T(), t.out.String(), "ERROR: Removed value is not terminated\n")
}

func (t *ConsoleTest) TestEchoAndComments() {
	t.console.opts.Echo = true

	t.run("# a comment\nnew")

	assert.Equal(t.T(), "cmd> # a comment\ncmd> new\nq = []\n", t.out.String())
}

func (t *ConsoleTest) TestTime() {
	t.run("time new")

	assert.Contains(t.T(), t.out.String(), "Elapsed time = 0.000\n")
	assert.Equal(t.T(), int64(1), t.metrics.ops[metrics.QueueOpNew])
}

func (t *ConsoleTest) TestHelp() {
	t.run("help")

	output := t.out.String()
	for name := range t.console.commands {
		assert.Contains(t.T(), output, "\t"+name+"\t")
	}
}

func (t *ConsoleTest) TestSourceNested() {
	t.run("source testdata/trace-nested.cmd")

	output := t.out.String()
	assert.Contains(t.T(), output, "Removed inner from queue\n")
	assert.Contains(t.T(), output, "Queue size = 2\n")
	assert.Equal(t.T(), 0, t.console.Errors())
}

func (t *ConsoleTest) TestSourceMissingFile() {
	t.run("source testdata/missing.cmd")

	assert.Contains(t.T(), t.out.String(), "ERROR: Could not open source file 'testdata/missing.cmd'")
	assert.Equal(t.T(), 1, t.console.Errors())
}

func (t *ConsoleTest) TestTraces() {
	for _, trace := range []string{"testdata/trace-ops.cmd", "testdata/trace-malloc.cmd"} {
		t.Run(trace, func() {
			t.SetupTest()

			require.NoError(t.T(), t.console.RunFile(t.ctx, trace))

			assert.Equal(t.T(), 0, t.console.Errors(), t.out.String())
			assert.NoError(t.T(), t.console.Close())
			assert.Equal(t.T(), 0, t.tracker.Stats().LiveBlocks)
		})
	}
}

func (t *ConsoleTest) TestRunFileMissing() {
	err := t.console.RunFile(t.ctx, "testdata/missing.cmd")

	assert.ErrorContains(t.T(), err, "opening script")
}

func (t *ConsoleTest) TestRunStopsOnCancelledContext() {
	ctx, cancel := context.WithCancel(t.ctx)
	cancel()

	err := t.console.Run(ctx, strings.NewReader("new"), "test")

	assert.ErrorIs(t.T(), err, context.Canceled)
	assert.Empty(t.T(), t.out.String())
}

func (t *ConsoleTest) TestSessionIDIsUnique() {
	other := New(Options{ErrorLimit: 1}, &t.out, alloc.NewTracker(1), metrics.NewNoopMetrics(), &t.clock)

	assert.NotEmpty(t.T(), t.console.SessionID())
	assert.NotEqual(t.T(), t.console.SessionID(), other.SessionID())
}

func TestOptionsFromConfig(t *testing.T) {
	c := cfg.Config{
		Debug: cfg.DebugConfig{ExitOnInvariantViolation: false},
		Harness: cfg.HarnessConfig{
			Echo:         true,
			ErrorLimit:   7,
			StringLength: 64,
			Verbose:      2,
		},
	}

	opts := OptionsFromConfig(&c)

	assert.Equal(t, Options{ErrorLimit: 7, StringLength: 64, Verbose: 2, Echo: true}, opts)
}
