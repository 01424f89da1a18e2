package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/caffeineduck/plxrun/executor"
	"github.com/caffeineduck/plxrun/output"
)

// DefaultProgramPath is where source is staged before each run.
const DefaultProgramPath = "/program.plx"

// Runtime is the embedded interpreter as the controller sees it.
// *executor.Handle satisfies it.
type Runtime interface {
	Initialize(ctx context.Context, cb executor.Callbacks) error
	Ready() bool
	StageProgram(path string, content []byte) error
	Invoke(ctx context.Context, path string) (uint32, error)
}

// Recorder persists completed runs.
type Recorder interface {
	RecordRun(ctx context.Context, r *Report) error
}

// StatusListener is called after every state transition.
type StatusListener func(state State, status string)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithProgramPath overrides the staging path.
func WithProgramPath(p string) Option {
	return func(c *Controller) {
		if p != "" {
			c.programPath = p
		}
	}
}

// WithRecorder stores every completed run in r.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithStatusListener registers fn for state changes.
func WithStatusListener(fn StatusListener) Option {
	return func(c *Controller) {
		if fn != nil {
			c.listeners = append(c.listeners, fn)
		}
	}
}

// WithSink makes the controller write into s instead of a private sink.
func WithSink(s *output.Sink) Option {
	return func(c *Controller) {
		if s != nil {
			c.sink = s
		}
	}
}

// Controller owns one session's run state and output.
type Controller struct {
	rt          Runtime
	sink        *output.Sink
	logger      *zap.Logger
	programPath string
	recorder    Recorder
	listeners   []StatusListener

	mu    sync.Mutex
	state State
}

// New creates a Controller in the Uninitialized state.
func New(rt Runtime, opts ...Option) *Controller {
	c := &Controller{
		rt:          rt,
		sink:        output.NewSink(),
		logger:      zap.NewNop(),
		programPath: DefaultProgramPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start initializes the runtime and blocks until it is ready or has failed.
// On failure the controller is Faulted for good and one exception record
// describing the failure is appended to the output.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Uninitialized {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = Loading
	c.mu.Unlock()
	c.notify(Loading)

	start := time.Now()
	err := c.rt.Initialize(ctx, executor.Callbacks{
		Stdout: func(text string) { c.sink.Append(output.Normal, text) },
		Stderr: func(text string) { c.sink.Append(output.Error, text) },
	})

	next := Ready
	if err != nil {
		next = Faulted
		if !errors.Is(err, ErrInitializationFailed) {
			err = fmt.Errorf("%w: %w", ErrInitializationFailed, err)
		}
		c.sink.Append(output.Exception, exceptionText(err))
		c.logger.Error("runtime failed to load", zap.Error(err))
	} else {
		c.logger.Info("runtime ready", zap.Duration("elapsed", time.Since(start)))
	}

	c.mu.Lock()
	c.state = next
	c.mu.Unlock()
	c.notify(next)

	return err
}

// Run stages source and invokes the interpreter on it. It returns
// ErrNotReady without touching the output or the state unless the
// controller is Ready. Otherwise the run always completes with a Report
// and the controller back in Ready; staging and execution failures,
// including a panicking runtime, are reported through the Report, not the
// error.
func (c *Controller) Run(ctx context.Context, source string) (*Report, error) {
	c.mu.Lock()
	if c.state != Ready {
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("run rejected", zap.Stringer("state", state))
		return nil, ErrNotReady
	}
	c.state = Running
	c.mu.Unlock()

	restored := false
	restore := func() {
		if restored {
			return
		}
		restored = true
		c.mu.Lock()
		c.state = Ready
		c.mu.Unlock()
		c.notify(Ready)
	}
	defer restore()

	c.sink.Clear()
	c.notify(Running)

	report := &Report{
		ID:        uuid.NewString(),
		Source:    source,
		StartedAt: time.Now(),
		Outcome:   OutcomeSucceeded,
	}
	logger := c.logger.With(zap.String("run_id", report.ID))

	c.execute(ctx, report)

	if report.Err != nil {
		c.sink.Append(output.Exception, exceptionText(report.Err))
		logger.Warn("run failed", zap.Stringer("outcome", report.Outcome), zap.Error(report.Err))
	}

	report.Duration = time.Since(report.StartedAt)
	report.Records = c.sink.Snapshot()

	restore()

	logger.Debug("run complete",
		zap.Stringer("outcome", report.Outcome),
		zap.Uint32("exit_code", report.ExitCode),
		zap.Duration("elapsed", report.Duration),
	)

	if c.recorder != nil {
		if err := c.recorder.RecordRun(context.WithoutCancel(ctx), report); err != nil {
			logger.Warn("record run", zap.Error(err))
		}
	}

	return report, nil
}

// execute stages and invokes the program, filling in the report's outcome.
// A panic in the runtime becomes a failure of the step that raised it.
func (c *Controller) execute(ctx context.Context, report *Report) {
	step, sentinel := OutcomeStagingFailed, executor.ErrStagingFailed
	defer func() {
		if p := recover(); p != nil {
			report.Outcome = step
			report.Err = fmt.Errorf("%w: runtime panic: %v", sentinel, p)
		}
	}()

	if err := c.rt.StageProgram(c.programPath, []byte(report.Source)); err != nil {
		report.Outcome = OutcomeStagingFailed
		report.Err = err
		return
	}

	step, sentinel = OutcomeExecutionFailed, executor.ErrExecutionFailed
	code, err := c.rt.Invoke(ctx, c.programPath)
	report.ExitCode = code
	if err != nil {
		report.Outcome = OutcomeExecutionFailed
		report.Err = err
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the status line for the current state.
func (c *Controller) Status() string {
	return c.State().Status()
}

// CanRun reports whether a Run would be accepted right now.
func (c *Controller) CanRun() bool {
	return c.State() == Ready
}

// Output returns the sink runs write into.
func (c *Controller) Output() *output.Sink {
	return c.sink
}

// ProgramPath returns the staging path.
func (c *Controller) ProgramPath() string {
	return c.programPath
}

func (c *Controller) notify(s State) {
	status := s.Status()
	for _, fn := range c.listeners {
		fn(s, status)
	}
}

func exceptionText(err error) string {
	return "[exception] " + err.Error() + "\n"
}
