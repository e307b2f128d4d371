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
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/strqueue/strqueue/cfg"
	"github.com/strqueue/strqueue/internal/logger"
	"github.com/strqueue/strqueue/metrics"
	"github.com/strqueue/strqueue/queue"
)

type command struct {
	name  string
	usage string
	doc   string

	// Metric label for commands that operate on the queue; empty otherwise.
	op string

	fn func(ctx context.Context, c *Console, args []string)
}

func (cmd *command) run(ctx context.Context, c *Console, args []string) {
	start := c.clock.Now()
	cmd.fn(ctx, c, args)
	if cmd.op == "" {
		return
	}

	c.metricHandle.QueueOpsCount(ctx, 1, cmd.op)
	c.metricHandle.QueueOpsLatency(ctx, c.clock.Now().Sub(start), cmd.op)
	c.metricHandle.QueueLength(ctx, int64(c.q.Size()))
	c.metricHandle.AllocLiveBlocks(ctx, int64(c.tracker.Stats().LiveBlocks))
	c.drainViolations(cmd.op)
}

func (c *Console) builtinCommands() map[string]*command {
	cmds := []*command{
		{name: "new", doc: "Create new queue", op: metrics.QueueOpNew, fn: doNew},
		{name: "free", doc: "Delete queue", op: metrics.QueueOpFree, fn: doFree},
		{name: "ih", usage: "str [n]", doc: "Insert string str at head of queue n times (default: n = 1)", op: metrics.QueueOpInsertHead, fn: doInsertHead},
		{name: "it", usage: "str [n]", doc: "Insert string str at tail of queue n times (default: n = 1)", op: metrics.QueueOpInsertTail, fn: doInsertTail},
		{name: "rh", usage: "[str]", doc: "Remove from head of queue. Optionally compare to expected value str", op: metrics.QueueOpRemoveHead, fn: doRemoveHead},
		{name: "rhq", doc: "Remove from head of queue without reporting value", op: metrics.QueueOpRemoveHead, fn: doRemoveHeadQuiet},
		{name: "reverse", doc: "Reverse queue", op: metrics.QueueOpReverse, fn: doReverse},
		{name: "size", usage: "[n]", doc: "Compute queue size n times (default: n = 1)", op: metrics.QueueOpSize, fn: doSize},
		{name: "show", doc: "Show queue contents", op: metrics.QueueOpShow, fn: doShow},
		{name: "option", usage: "[name val]", doc: "Display or set options", fn: doOption},
		{name: "source", usage: "file", doc: "Read commands from source file", fn: doSource},
		{name: "time", usage: "cmd arg ...", doc: "Time command execution", fn: doTime},
		{name: "help", doc: "Show documentation", fn: doHelp},
		{name: "quit", doc: "Exit program", fn: doQuit},
	}

	m := make(map[string]*command, len(cmds))
	for _, cmd := range cmds {
		m[cmd.name] = cmd
	}
	return m
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// withQueue runs fn with the queue locked, then checks the queue. With
// invariant checking enabled a broken queue panics on unlock instead.
func (c *Console) withQueue(op string, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn()
	if !c.opts.ExitOnInvariantViolation {
		c.verifyQueue(op)
	}
}

// LOCKS_REQUIRED(c.mu)
func (c *Console) verifyQueue(op string) {
	defer func() {
		if r := recover(); r != nil {
			c.reportError(op, metrics.QueueErrorCategoryINVARIANTVIOLATION, "Queue is corrupt: %v", r)
		}
	}()
	c.q.CheckInvariants()
}

// allocFailure reports an operation that failed for want of storage. It is
// only an error when no failures are being injected.
func (c *Console) allocFailure(op, format string, v ...interface{}) {
	if c.tracker.FailPercent() > 0 {
		c.metricHandle.QueueOpsErrorCount(context.Background(), 1, metrics.QueueErrorCategoryOUTOFMEMORY, op)
		c.warnf(format, v...)
		return
	}
	c.reportError(op, metrics.QueueErrorCategoryOUTOFMEMORY, format, v...)
}

// absentQueue notes an operation run without a current queue.
func (c *Console) absentQueue(op, name string) {
	c.metricHandle.QueueOpsErrorCount(context.Background(), 1, metrics.QueueErrorCategoryABSENTQUEUE, op)
	c.warnf("Calling %s on null queue", name)
}

// LOCKS_REQUIRED(c.mu)
func (c *Console) contents() []string {
	var vals []string
	c.q.Walk(func(_ int, v string) bool {
		vals = append(vals, v)
		return true
	})
	return vals
}

// showQueue prints the queue when the verbosity level is at least level and
// checks that the number of elements reached matches its size.
//
// LOCKS_REQUIRED(c.mu)
func (c *Console) showQueue(level int) {
	if c.q == nil {
		c.notef(level, "q = NULL")
		return
	}

	var b strings.Builder
	b.WriteString("q = [")
	count := 0
	c.q.Walk(func(i int, v string) bool {
		count++
		if i >= bigQueueSize {
			return true
		}
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(v)
		return true
	})
	if count > bigQueueSize {
		b.WriteString(" ...")
	}
	b.WriteString("]")
	c.notef(level, "%s", b.String())

	if count != c.q.Size() {
		c.reportError(metrics.QueueOpShow, metrics.QueueErrorCategoryMISMATCH,
			"Queue has %d elements, but its size is %d", count, c.q.Size())
	}
}

func (c *Console) freeQueue() {
	c.mu.Lock()
	c.q.Free()
	c.q = nil
	c.mu.Unlock()

	c.drainViolations(metrics.QueueOpFree)
	if err := c.tracker.CheckLeaks(); err != nil {
		c.reportError(metrics.QueueOpFree, metrics.QueueErrorCategoryLEAK, "Freed queue, but %v", err)
	}
}

func (c *Console) usageError(cmd string) {
	c.reportError("", "", "Invalid arguments for '%s'. Usage: %s %s", cmd, cmd, c.commands[cmd].usage)
}

// parseCount parses an optional positive repetition count.
func (c *Console) parseCount(args []string, pos int) (int, bool) {
	if len(args) <= pos {
		return 1, true
	}
	n, err := strconv.Atoi(args[pos])
	if err != nil || n < 1 {
		c.reportError("", "", "Invalid count '%s'", args[pos])
		return 0, false
	}
	return n, true
}

////////////////////////////////////////////////////////////////////////
// Queue commands
////////////////////////////////////////////////////////////////////////

func doNew(ctx context.Context, c *Console, args []string) {
	if len(args) != 1 {
		c.usageError(args[0])
		return
	}

	c.withQueue(metrics.QueueOpNew, func() {
		if c.q != nil {
			c.notef(2, "Freeing old queue")
			c.q.Free()
			c.q = nil
		}

		q, err := queue.New(c.tracker)
		if err != nil {
			c.allocFailure(metrics.QueueOpNew, "New failed: %v", err)
			return
		}
		c.q = q
		c.showQueue(1)
	})
}

func doFree(ctx context.Context, c *Console, args []string) {
	if len(args) != 1 {
		c.usageError(args[0])
		return
	}
	if c.q == nil {
		c.absentQueue(metrics.QueueOpFree, "free")
	}
	c.freeQueue()
	c.notef(1, "q = NULL")
}

func doInsertHead(ctx context.Context, c *Console, args []string) {
	insert(c, args, metrics.QueueOpInsertHead, "insert head", func(s string) bool {
		return c.q.InsertHead(s)
	})
}

func doInsertTail(ctx context.Context, c *Console, args []string) {
	insert(c, args, metrics.QueueOpInsertTail, "insert tail", func(s string) bool {
		return c.q.InsertTail(s)
	})
}

func insert(c *Console, args []string, op, name string, ins func(string) bool) {
	if len(args) < 2 || len(args) > 3 {
		c.usageError(args[0])
		return
	}
	s := args[1]
	n, ok := c.parseCount(args, 2)
	if !ok {
		return
	}

	c.withQueue(op, func() {
		if c.q == nil {
			if ins(s) {
				c.reportError(op, metrics.QueueErrorCategoryABSENTQUEUE, "Insertion into null queue succeeded")
			}
			c.absentQueue(op, name)
			return
		}

		before := c.q.Size()
		inserted := 0
		for ; inserted < n; inserted++ {
			if !ins(s) {
				c.allocFailure(op, "Insertion of %s failed", s)
				break
			}
		}

		if after := c.q.Size(); after != before+inserted {
			c.reportError(op, metrics.QueueErrorCategoryMISMATCH,
				"Queue size is %d after %d insertions into a queue of size %d", after, inserted, before)
		}
		c.showQueue(1)
	})
}

func doRemoveHead(ctx context.Context, c *Console, args []string) {
	if len(args) > 2 {
		c.usageError(args[0])
		return
	}

	var expected *string
	if len(args) == 2 {
		expected = &args[1]
	}

	c.withQueue(metrics.QueueOpRemoveHead, func() {
		removeHead(c, expected, true)
	})
}

func doRemoveHeadQuiet(ctx context.Context, c *Console, args []string) {
	if len(args) != 1 {
		c.usageError(args[0])
		return
	}

	c.withQueue(metrics.QueueOpRemoveHead, func() {
		removeHead(c, nil, false)
	})
}

// removeHead removes the first element. When report is set the value is
// copied into a buffer of StringLength+1 bytes followed by guard bytes that
// must survive the copy.
//
// LOCKS_REQUIRED(c.mu)
func removeHead(c *Console, expected *string, report bool) {
	const op = metrics.QueueOpRemoveHead

	var buf []byte
	if report {
		buf = make([]byte, c.opts.StringLength+1+guardBytes)
		for i := range buf {
			buf[i] = guardByte
		}
	}

	before := c.q.Size()
	var ok bool
	if report {
		ok = c.q.RemoveHead(buf[:c.opts.StringLength+1])
	} else {
		ok = c.q.RemoveHead(nil)
	}

	switch {
	case c.q == nil:
		if ok {
			c.reportError(op, metrics.QueueErrorCategoryABSENTQUEUE, "Removal from null queue succeeded")
		}
		c.absentQueue(op, "remove head")
		return

	case before == 0:
		if ok {
			c.reportError(op, metrics.QueueErrorCategoryEMPTYQUEUE, "Removal from empty queue succeeded")
		}
		c.metricHandle.QueueOpsErrorCount(context.Background(), 1, metrics.QueueErrorCategoryEMPTYQUEUE, op)
		c.warnf("Calling remove head on empty queue")
		return

	case !ok:
		c.reportError(op, metrics.QueueErrorCategoryMISMATCH, "Removal from queue of size %d failed", before)
		return
	}

	if after := c.q.Size(); after != before-1 {
		c.reportError(op, metrics.QueueErrorCategoryMISMATCH,
			"Queue size is %d after removal from a queue of size %d", after, before)
	}

	if report {
		checkRemoved(c, buf, expected)
	}
	c.showQueue(1)
}

// LOCKS_REQUIRED(c.mu)
func checkRemoved(c *Console, buf []byte, expected *string) {
	const op = metrics.QueueOpRemoveHead
	limit := c.opts.StringLength + 1

	for _, b := range buf[limit:] {
		if b != guardByte {
			c.reportError(op, metrics.QueueErrorCategoryMISMATCH,
				"Copying of string in remove head overflowed destination buffer")
			return
		}
	}

	end := bytes.IndexByte(buf[:limit], 0)
	if end < 0 {
		c.reportError(op, metrics.QueueErrorCategoryMISMATCH, "Removed value is not terminated")
		return
	}
	removed := string(buf[:end])
	c.notef(1, "Removed %s from queue", removed)

	if expected == nil {
		return
	}
	want := *expected
	if len(want) > c.opts.StringLength {
		want = want[:c.opts.StringLength]
	}
	if removed != want {
		c.reportError(op, metrics.QueueErrorCategoryMISMATCH,
			"Removed value %s != expected value %s", removed, want)
	}
}

func doReverse(ctx context.Context, c *Console, args []string) {
	if len(args) != 1 {
		c.usageError(args[0])
		return
	}

	c.withQueue(metrics.QueueOpReverse, func() {
		if c.q == nil {
			c.q.Reverse()
			c.absentQueue(metrics.QueueOpReverse, "reverse")
			return
		}

		want := c.contents()
		slices.Reverse(want)
		stats := c.tracker.Stats()

		c.q.Reverse()

		after := c.tracker.Stats()
		if after.Mallocs != stats.Mallocs || after.Frees != stats.Frees {
			c.reportError(metrics.QueueOpReverse, metrics.QueueErrorCategoryALLOCATORMISUSE,
				"Reverse made %d allocations and %d releases",
				after.Mallocs-stats.Mallocs, after.Frees-stats.Frees)
		}
		if got := c.contents(); !slices.Equal(got, want) {
			c.reportError(metrics.QueueOpReverse, metrics.QueueErrorCategoryMISMATCH,
				"Reversed queue is %v, expected %v", got, want)
		}
		c.showQueue(1)
	})
}

func doSize(ctx context.Context, c *Console, args []string) {
	if len(args) > 2 {
		c.usageError(args[0])
		return
	}
	n, ok := c.parseCount(args, 1)
	if !ok {
		return
	}

	c.withQueue(metrics.QueueOpSize, func() {
		size := 0
		for i := 0; i < n; i++ {
			size = c.q.Size()
		}
		if c.q == nil {
			c.absentQueue(metrics.QueueOpSize, "size")
			if size != 0 {
				c.reportError(metrics.QueueOpSize, metrics.QueueErrorCategoryABSENTQUEUE, "Null queue has size %d", size)
			}
			return
		}

		if count := len(c.contents()); count != size {
			c.reportError(metrics.QueueOpSize, metrics.QueueErrorCategoryMISMATCH,
				"Computed queue size as %d, but correct value is %d", size, count)
			return
		}
		c.notef(1, "Queue size = %d", size)
	})
}

func doShow(ctx context.Context, c *Console, args []string) {
	if len(args) != 1 {
		c.usageError(args[0])
		return
	}
	c.withQueue(metrics.QueueOpShow, func() {
		c.showQueue(0)
	})
}

////////////////////////////////////////////////////////////////////////
// Interpreter commands
////////////////////////////////////////////////////////////////////////

type option struct {
	name string
	doc  string
	get  func(c *Console) int
	set  func(c *Console, v int) error
}

var options = []option{
	{
		name: "echo",
		doc:  "Do/don't echo commands",
		get: func(c *Console) int {
			if c.opts.Echo {
				return 1
			}
			return 0
		},
		set: func(c *Console, v int) error {
			c.opts.Echo = v != 0
			return nil
		},
	},
	{
		name: "fail",
		doc:  "Number of times allow queue operations to return false",
		get:  func(c *Console) int { return c.opts.ErrorLimit },
		set: func(c *Console, v int) error {
			if v < 1 {
				return fmt.Errorf("must be at least 1")
			}
			c.opts.ErrorLimit = v
			return nil
		},
	},
	{
		name: "length",
		doc:  "Maximum length of displayed string",
		get:  func(c *Console) int { return c.opts.StringLength },
		set: func(c *Console, v int) error {
			if v < 1 {
				return fmt.Errorf("must be at least 1")
			}
			c.opts.StringLength = v
			return nil
		},
	},
	{
		name: "malloc",
		doc:  "Malloc failure probability percent",
		get:  func(c *Console) int { return c.tracker.FailPercent() },
		set: func(c *Console, v int) error {
			if v < 0 || v > 100 {
				return fmt.Errorf("must be between 0 and 100")
			}
			c.tracker.SetFailPercent(v)
			return nil
		},
	},
	{
		name: "verbose",
		doc:  "Verbosity level",
		get:  func(c *Console) int { return c.opts.Verbose },
		set: func(c *Console, v int) error {
			if v < 0 || v > cfg.MaxVerbose {
				return fmt.Errorf("must be between 0 and %d", cfg.MaxVerbose)
			}
			c.opts.Verbose = v
			return nil
		},
	},
}

func doOption(ctx context.Context, c *Console, args []string) {
	switch len(args) {
	case 1:
		c.printf("Options:\n")
		for _, o := range options {
			c.printf("\t%s\t%d\t%s\n", o.name, o.get(c), o.doc)
		}
		return
	case 2, 3:
	default:
		c.usageError(args[0])
		return
	}

	i := slices.IndexFunc(options, func(o option) bool { return o.name == args[1] })
	if i < 0 {
		c.reportError("", "", "Unknown option '%s'", args[1])
		return
	}
	o := options[i]
	if len(args) == 2 {
		c.printf("%s\t%d\t%s\n", o.name, o.get(c), o.doc)
		return
	}

	v, err := strconv.Atoi(args[2])
	if err != nil {
		c.reportError("", "", "Invalid value '%s' for option '%s'", args[2], o.name)
		return
	}
	if err := o.set(c, v); err != nil {
		c.reportError("", "", "Invalid value %d for option '%s': %v", v, o.name, err)
		return
	}
	logger.Debugf("qtest[%s]: option %s set to %d", c.sessionID, o.name, v)
}

func doSource(ctx context.Context, c *Console, args []string) {
	if len(args) != 2 {
		c.usageError(args[0])
		return
	}
	if c.depth >= maxSourceDepth {
		c.reportError("", "", "Source files nested more than %d deep", maxSourceDepth)
		return
	}

	f, err := os.Open(args[1])
	if err != nil {
		c.reportError("", "", "Could not open source file '%s': %v", args[1], err)
		return
	}
	defer f.Close()

	c.depth++
	defer func() { c.depth-- }()
	if err := c.Run(ctx, f, args[1]); err != nil {
		c.reportError("", "", "%v", err)
	}
}

func doTime(ctx context.Context, c *Console, args []string) {
	if len(args) < 2 {
		c.usageError(args[0])
		return
	}
	cmd, ok := c.commands[args[1]]
	if !ok {
		c.reportError("", "", "Unknown command '%s'", args[1])
		return
	}

	start := c.clock.Now()
	cmd.run(ctx, c, args[1:])
	c.printf("Elapsed time = %.3f\n", c.clock.Now().Sub(start).Seconds())
}

func doHelp(ctx context.Context, c *Console, args []string) {
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	c.printf("Commands:\n")
	c.printf("\t#\t...\t| Display comment\n")
	for _, name := range names {
		cmd := c.commands[name]
		c.printf("\t%s\t%s\t| %s\n", cmd.name, cmd.usage, cmd.doc)
	}
}

func doQuit(ctx context.Context, c *Console, args []string) {
	c.stopped = true
}
