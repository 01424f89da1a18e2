package controller

import (
	"context"
	"errors"
	"sync"

	"github.com/caffeineduck/plxrun/executor"
)

// fakeRuntime scripts the runtime's behaviour per call.
type fakeRuntime struct {
	mu       sync.Mutex
	initErr  error
	stageErr error
	// invoke runs in place of the guest; it may emit through cb.
	invoke func(ctx context.Context, cb executor.Callbacks) (uint32, error)

	cb      executor.Callbacks
	ready   bool
	staged  map[string]string
	invoked int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{staged: make(map[string]string)}
}

func (f *fakeRuntime) Initialize(_ context.Context, cb executor.Callbacks) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return f.initErr
	}
	f.cb = cb
	f.ready = true
	return nil
}

func (f *fakeRuntime) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeRuntime) StageProgram(path string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stageErr != nil {
		return f.stageErr
	}
	f.staged[path] = string(content)
	return nil
}

func (f *fakeRuntime) Invoke(ctx context.Context, path string) (uint32, error) {
	f.mu.Lock()
	f.invoked++
	invoke := f.invoke
	cb := f.cb
	if _, ok := f.staged[path]; !ok {
		f.mu.Unlock()
		return 0, errors.New("no program at " + path)
	}
	f.mu.Unlock()

	if invoke == nil {
		return 0, nil
	}
	return invoke(ctx, cb)
}

func (f *fakeRuntime) invocations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invoked
}

// memoryRecorder keeps recorded reports in order.
type memoryRecorder struct {
	mu      sync.Mutex
	reports []*Report
	err     error
}

func (m *memoryRecorder) RecordRun(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.reports = append(m.reports, r)
	return nil
}

type panicRecorder struct{}

func (panicRecorder) RecordRun(context.Context, *Report) error {
	panic("recorder failed")
}
