package controller

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/caffeineduck/plxrun/executor"
	"github.com/caffeineduck/plxrun/internal/wasmtest"
	"github.com/caffeineduck/plxrun/language/protolex"
	"github.com/caffeineduck/plxrun/output"
)

func startedController(t *testing.T, rt *fakeRuntime, opts ...Option) *Controller {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	c := New(rt, opts...)
	require.NoError(t, c.Start(context.Background()))
	require.Equal(t, Ready, c.State())
	return c
}

func writes(texts ...string) func(context.Context, executor.Callbacks) (uint32, error) {
	return func(_ context.Context, cb executor.Callbacks) (uint32, error) {
		for _, s := range texts {
			cb.Stdout(s)
		}
		return 0, nil
	}
}

// =============================================================================
// START
// =============================================================================

func TestNewIsUninitialized(t *testing.T) {
	c := New(newFakeRuntime())

	assert.Equal(t, Uninitialized, c.State())
	assert.Equal(t, "Runtime not started", c.Status())
	assert.False(t, c.CanRun())
	assert.Equal(t, DefaultProgramPath, c.ProgramPath())
}

func TestStartReachesReady(t *testing.T) {
	var states []State
	c := startedController(t, newFakeRuntime(), WithStatusListener(func(s State, _ string) {
		states = append(states, s)
	}))

	assert.Equal(t, []State{Loading, Ready}, states)
	assert.Equal(t, "Runtime ready", c.Status())
	assert.True(t, c.CanRun())
	assert.Zero(t, c.Output().Len())
}

func TestStartTwice(t *testing.T) {
	c := startedController(t, newFakeRuntime())

	err := c.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Equal(t, Ready, c.State())
}

func TestStartFailureFaults(t *testing.T) {
	rt := newFakeRuntime()
	rt.initErr = fmt.Errorf("%w: load protolex module: file not found", executor.ErrInitializationFailed)

	var statuses []string
	c := New(rt, WithStatusListener(func(_ State, status string) {
		statuses = append(statuses, status)
	}))

	err := c.Start(context.Background())
	require.ErrorIs(t, err, ErrInitializationFailed)
	assert.Equal(t, Faulted, c.State())
	assert.Equal(t, "Runtime failed to load", c.Status())
	assert.Equal(t, []string{"Loading runtime…", "Runtime failed to load"}, statuses)

	records := c.Output().Snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, output.Exception, records[0].Channel)
	assert.True(t, strings.HasPrefix(records[0].Text, "[exception] "))
	assert.Contains(t, records[0].Text, "file not found")
}

func TestStartWrapsForeignErrors(t *testing.T) {
	rt := newFakeRuntime()
	rt.initErr = errors.New("boom")

	err := New(rt).Start(context.Background())
	assert.ErrorIs(t, err, ErrInitializationFailed)
	assert.Contains(t, err.Error(), "boom")
}

// Initialization failure is terminal: no run is ever accepted.
func TestFaultedRejectsRunsIndefinitely(t *testing.T) {
	rt := newFakeRuntime()
	rt.initErr = errors.New("instantiate failed")
	c := New(rt)
	require.Error(t, c.Start(context.Background()))

	before := c.Output().Snapshot()
	for i := 0; i < 5; i++ {
		report, err := c.Run(context.Background(), "print(1)")
		assert.ErrorIs(t, err, ErrNotReady)
		assert.Nil(t, report)
		assert.Equal(t, Faulted, c.State())
	}
	assert.Equal(t, before, c.Output().Snapshot())
	assert.Zero(t, rt.invocations())

	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)
	assert.Equal(t, Faulted, c.State())
}

// =============================================================================
// RUN
// =============================================================================

func TestRunBeforeStart(t *testing.T) {
	rt := newFakeRuntime()
	c := New(rt)

	report, err := c.Run(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Nil(t, report)
	assert.Equal(t, Uninitialized, c.State())
	assert.Zero(t, c.Output().Len())
}

func TestRunHappyPath(t *testing.T) {
	rt := newFakeRuntime()
	rt.invoke = writes("hello\n")
	c := startedController(t, rt)

	source := `io.write(io.stdout, "hello\n")`
	report, err := c.Run(context.Background(), source)
	require.NoError(t, err)

	assert.Equal(t, []output.Record{{Channel: output.Normal, Text: "hello\n"}}, c.Output().Snapshot())
	assert.Equal(t, Ready, c.State())
	assert.Equal(t, "Runtime ready", c.Status())

	assert.Equal(t, source, rt.staged[DefaultProgramPath])
	assert.Equal(t, OutcomeSucceeded, report.Outcome)
	assert.False(t, report.Failed())
	assert.NoError(t, report.Err)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, source, report.Source)
	assert.Equal(t, c.Output().Snapshot(), report.Records)
}

func TestRunStatusSequence(t *testing.T) {
	var statuses []string
	c := startedController(t, newFakeRuntime(), WithStatusListener(func(_ State, s string) {
		statuses = append(statuses, s)
	}))
	statuses = nil

	_, err := c.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Running…", "Runtime ready"}, statuses)
}

func TestRunClearsPreviousOutput(t *testing.T) {
	rt := newFakeRuntime()
	rt.invoke = writes("first\n")
	c := startedController(t, rt)

	_, err := c.Run(context.Background(), "a")
	require.NoError(t, err)

	rt.invoke = writes("second\n")
	_, err = c.Run(context.Background(), "b")
	require.NoError(t, err)

	assert.Equal(t, "second\n", c.Output().Text())
}

func TestRunStagingFailure(t *testing.T) {
	rt := newFakeRuntime()
	rt.stageErr = fmt.Errorf("%w: filesystem not ready", executor.ErrStagingFailed)
	var states []State
	c := startedController(t, rt, WithStatusListener(func(s State, _ string) {
		states = append(states, s)
	}))
	states = nil

	report, err := c.Run(context.Background(), "print(1)")
	require.NoError(t, err)

	records := c.Output().Snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, output.Exception, records[0].Channel)
	assert.True(t, strings.HasPrefix(records[0].Text, "[exception]"))
	assert.Contains(t, records[0].Text, "filesystem not ready")

	assert.Equal(t, []State{Running, Ready}, states)
	assert.Equal(t, Ready, c.State())
	assert.Zero(t, rt.invocations(), "invocation must be skipped after staging failure")

	assert.Equal(t, OutcomeStagingFailed, report.Outcome)
	assert.ErrorIs(t, report.Err, executor.ErrStagingFailed)
	assert.True(t, report.Failed())
}

func TestRunExecutionFailureKeepsPartialOutput(t *testing.T) {
	rt := newFakeRuntime()
	rt.invoke = func(_ context.Context, cb executor.Callbacks) (uint32, error) {
		cb.Stdout("partial\n")
		cb.Stderr("warning\n")
		return 0, fmt.Errorf("%w: wasm error: unreachable", executor.ErrExecutionFailed)
	}
	c := startedController(t, rt)

	report, err := c.Run(context.Background(), "boom()")
	require.NoError(t, err)

	records := c.Output().Snapshot()
	require.Len(t, records, 3)
	assert.Equal(t, output.Record{Channel: output.Normal, Text: "partial\n"}, records[0])
	assert.Equal(t, output.Record{Channel: output.Error, Text: "warning\n"}, records[1])
	assert.Equal(t, output.Exception, records[2].Channel)
	assert.True(t, strings.HasPrefix(records[2].Text, "[exception] "))
	assert.Contains(t, records[2].Text, "unreachable")

	assert.Equal(t, Ready, c.State())
	assert.Equal(t, OutcomeExecutionFailed, report.Outcome)
	assert.ErrorIs(t, report.Err, executor.ErrExecutionFailed)
}

func TestRunRecoversRuntimePanic(t *testing.T) {
	rt := newFakeRuntime()
	rt.invoke = func(_ context.Context, cb executor.Callbacks) (uint32, error) {
		cb.Stdout("x\n")
		panic("guest bridge exploded")
	}
	c := startedController(t, rt)

	report, err := c.Run(context.Background(), "boom()")
	require.NoError(t, err)
	assert.Equal(t, Ready, c.State())
	assert.Equal(t, OutcomeExecutionFailed, report.Outcome)
	assert.ErrorIs(t, report.Err, executor.ErrExecutionFailed)

	require.Len(t, report.Records, 2)
	assert.Equal(t, output.Record{Channel: output.Normal, Text: "x\n"}, report.Records[0])
	assert.Equal(t, output.Exception, report.Records[1].Channel)
	assert.Contains(t, report.Records[1].Text, "guest bridge exploded")

	rt.invoke = writes("again\n")
	report, err = c.Run(context.Background(), "ok()")
	require.NoError(t, err, "the controller must accept runs after a panic")
	assert.Equal(t, OutcomeSucceeded, report.Outcome)
}

func TestRunPanickingListenerStillEndsReady(t *testing.T) {
	c := startedController(t, newFakeRuntime())
	c.listeners = append(c.listeners, func(s State, _ string) {
		if s == Running {
			panic("listener failed")
		}
	})

	assert.Panics(t, func() { c.Run(context.Background(), "") })
	assert.Equal(t, Ready, c.State())
}

func TestRunNonZeroExitIsNotFailure(t *testing.T) {
	rt := newFakeRuntime()
	rt.invoke = func(_ context.Context, cb executor.Callbacks) (uint32, error) {
		cb.Stderr("syntax error near 'end'\n")
		return 1, nil
	}
	c := startedController(t, rt)

	report, err := c.Run(context.Background(), "end")
	require.NoError(t, err)

	assert.Equal(t, OutcomeSucceeded, report.Outcome)
	assert.Equal(t, uint32(1), report.ExitCode)
	assert.Equal(t, []output.Record{{Channel: output.Error, Text: "syntax error near 'end'\n"}}, report.Records)
}

// Every completed run leaves the controller in Ready.
func TestRunAlwaysEndsReady(t *testing.T) {
	cases := []struct {
		name     string
		stageErr error
		invoke   func(context.Context, executor.Callbacks) (uint32, error)
	}{
		{"success", nil, writes("ok\n")},
		{"staging failure", executor.ErrStagingFailed, nil},
		{"execution failure", nil, func(context.Context, executor.Callbacks) (uint32, error) {
			return 0, executor.ErrExecutionFailed
		}},
		{"non-zero exit", nil, func(context.Context, executor.Callbacks) (uint32, error) {
			return 3, nil
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := newFakeRuntime()
			rt.stageErr = tc.stageErr
			rt.invoke = tc.invoke
			c := startedController(t, rt)

			for i := 0; i < 3; i++ {
				_, err := c.Run(context.Background(), "src")
				require.NoError(t, err)
				assert.Equal(t, Ready, c.State())
				assert.True(t, c.CanRun())
			}
		})
	}
}

// While a run is in flight, further runs are rejected without side effects.
func TestRunRejectedWhileRunning(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	rt := newFakeRuntime()
	rt.invoke = func(_ context.Context, cb executor.Callbacks) (uint32, error) {
		cb.Stdout("working\n")
		close(entered)
		<-release
		return 0, nil
	}
	c := startedController(t, rt)

	done := make(chan *Report)
	go func() {
		report, err := c.Run(context.Background(), "slow()")
		assert.NoError(t, err)
		done <- report
	}()

	<-entered
	require.Equal(t, Running, c.State())
	assert.False(t, c.CanRun())
	before := c.Output().Snapshot()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := c.Run(context.Background(), "other()")
			assert.ErrorIs(t, err, ErrNotReady)
			assert.Nil(t, report)
		}()
	}
	wg.Wait()

	assert.Equal(t, before, c.Output().Snapshot())
	assert.Equal(t, Running, c.State())
	assert.Equal(t, 1, rt.invocations())

	close(release)
	select {
	case report := <-done:
		assert.Equal(t, "working\n", output.Join(report.Records))
	case <-time.After(5 * time.Second):
		t.Fatal("run did not complete")
	}
	assert.Equal(t, Ready, c.State())
}

func TestRunIdempotent(t *testing.T) {
	rt := newFakeRuntime()
	rt.invoke = func(_ context.Context, cb executor.Callbacks) (uint32, error) {
		cb.Stdout("a\n")
		cb.Stderr("b\n")
		cb.Stdout("c")
		return 0, nil
	}
	c := startedController(t, rt)

	first, err := c.Run(context.Background(), "same")
	require.NoError(t, err)
	second, err := c.Run(context.Background(), "same")
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRunUsesProgramPath(t *testing.T) {
	rt := newFakeRuntime()
	c := startedController(t, rt, WithProgramPath("/work/main.plx"))

	_, err := c.Run(context.Background(), "x = 1")
	require.NoError(t, err)
	assert.Equal(t, "x = 1", rt.staged["/work/main.plx"])
}

func TestRunPassesContext(t *testing.T) {
	type key struct{}
	rt := newFakeRuntime()
	var seen any
	rt.invoke = func(ctx context.Context, _ executor.Callbacks) (uint32, error) {
		seen = ctx.Value(key{})
		return 0, nil
	}
	c := startedController(t, rt)

	ctx := context.WithValue(context.Background(), key{}, "v")
	_, err := c.Run(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "v", seen)
}

func TestSharedSink(t *testing.T) {
	sink := output.NewSink()
	rt := newFakeRuntime()
	rt.invoke = writes("shared\n")
	c := startedController(t, rt, WithSink(sink))

	_, err := c.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Same(t, sink, c.Output())
	assert.Equal(t, "shared\n", sink.Text())
}

// =============================================================================
// RECORDER
// =============================================================================

func TestRecorderReceivesReports(t *testing.T) {
	rec := &memoryRecorder{}
	rt := newFakeRuntime()
	rt.invoke = writes("x\n")
	c := startedController(t, rt, WithRecorder(rec))

	r1, err := c.Run(context.Background(), "one")
	require.NoError(t, err)
	r2, err := c.Run(context.Background(), "two")
	require.NoError(t, err)

	require.Len(t, rec.reports, 2)
	assert.Same(t, r1, rec.reports[0])
	assert.Same(t, r2, rec.reports[1])
}

func TestRecorderErrorDoesNotFailRun(t *testing.T) {
	rec := &memoryRecorder{err: errors.New("disk full")}
	c := startedController(t, newFakeRuntime(), WithRecorder(rec))

	report, err := c.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, report.Outcome)
	assert.Equal(t, Ready, c.State())
}

func TestPanickingRecorderStillEndsReady(t *testing.T) {
	c := startedController(t, newFakeRuntime(), WithRecorder(panicRecorder{}))

	assert.Panics(t, func() { c.Run(context.Background(), "") })
	assert.Equal(t, Ready, c.State())
	assert.True(t, c.CanRun())
}

// =============================================================================
// WITH THE REAL RUNTIME
// =============================================================================

func TestControllerWithHandle(t *testing.T) {
	module := wasmtest.WriteModule(t, wasmtest.Program{
		Writes: []wasmtest.Write{
			wasmtest.Stdout("hello\n"),
			wasmtest.Stderr("careful\n"),
		},
	})

	h := executor.New(protolex.New(module), executor.WithLogger(zaptest.NewLogger(t)))
	t.Cleanup(func() { h.Close() })

	c := New(h, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, c.Start(context.Background()))

	for i := 0; i < 2; i++ {
		report, err := c.Run(context.Background(), `io.write(io.stdout, "hello\n")`)
		require.NoError(t, err)
		assert.Equal(t, []output.Record{
			{Channel: output.Normal, Text: "hello\n"},
			{Channel: output.Error, Text: "careful\n"},
		}, report.Records)
		assert.Equal(t, Ready, c.State())
	}

	staged, err := h.VFS().ReadFile(DefaultProgramPath)
	require.NoError(t, err)
	assert.Equal(t, `io.write(io.stdout, "hello\n")`, string(staged))
}

func TestControllerWithMissingModule(t *testing.T) {
	h := executor.New(protolex.New(filepath.Join(t.TempDir(), "missing.wasm")))
	t.Cleanup(func() { h.Close() })

	c := New(h)
	err := c.Start(context.Background())
	require.ErrorIs(t, err, ErrInitializationFailed)
	assert.Equal(t, Faulted, c.State())

	_, err = c.Run(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestControllerWithTrappingGuest(t *testing.T) {
	module := wasmtest.WriteModule(t, wasmtest.Program{
		Writes: []wasmtest.Write{wasmtest.Stdout("before\n")},
		Trap:   true,
	})
	h := executor.New(protolex.New(module))
	t.Cleanup(func() { h.Close() })

	c := New(h)
	require.NoError(t, c.Start(context.Background()))

	report, err := c.Run(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, report.Records, 2)
	assert.Equal(t, output.Record{Channel: output.Normal, Text: "before\n"}, report.Records[0])
	assert.Equal(t, output.Exception, report.Records[1].Channel)
	assert.Equal(t, OutcomeExecutionFailed, report.Outcome)
	assert.Equal(t, Ready, c.State())
}
