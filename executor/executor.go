package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
)

// Callbacks receive guest output. Either may be nil to discard that stream.
type Callbacks struct {
	Stdout func(text string)
	Stderr func(text string)
}

// Handle wraps the embedded interpreter: one wazero runtime, one compiled
// module and the virtual filesystem every invocation mounts.
type Handle struct {
	lang   Language
	cfg    config
	logger *zap.Logger
	vfs    *VFS

	runtime   wazero.Runtime
	cache     wazero.CompilationCache
	compiled  wazero.CompiledModule
	callbacks Callbacks

	mu          sync.Mutex
	initialized bool
	closed      bool
	ready       atomic.Bool
}

// New creates a Handle for lang. Nothing is loaded until Initialize.
func New(lang Language, opts ...Option) *Handle {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Handle{
		lang:   lang,
		cfg:    cfg,
		logger: cfg.logger.With(zap.String("language", lang.Name())),
		vfs:    NewVFS(),
	}
}

// Initialize loads and compiles the interpreter and registers the output
// callbacks used by every later invocation. It may be called once; a failed
// attempt leaves the handle permanently not ready.
func (h *Handle) Initialize(ctx context.Context, cb Callbacks) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if h.initialized {
		return ErrAlreadyInitialized
	}
	h.initialized = true

	start := time.Now()
	h.logger.Debug("initializing runtime")

	module, err := h.lang.Module()
	if err != nil {
		return fmt.Errorf("%w: load %s module: %w", ErrInitializationFailed, h.lang.Name(), err)
	}

	var cache wazero.CompilationCache
	if h.cfg.diskCache {
		cacheDir := h.cfg.cacheDir
		if cacheDir == "" {
			cacheDir = DefaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return fmt.Errorf("%w: create disk cache: %w", ErrInitializationFailed, err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if h.cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(h.cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	cleanup := func() {
		rt.Close(context.Background())
		if cache != nil {
			cache.Close(context.Background())
		}
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		cleanup()
		return fmt.Errorf("%w: instantiate WASI: %w", ErrInitializationFailed, err)
	}

	compiled, err := rt.CompileModule(ctx, module)
	if err != nil {
		cleanup()
		return fmt.Errorf("%w: compile %s: %w", ErrInitializationFailed, h.lang.Name(), err)
	}

	h.runtime = rt
	h.cache = cache
	h.compiled = compiled
	h.callbacks = cb
	h.ready.Store(true)

	h.logger.Info("runtime ready", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Ready reports whether Initialize has completed successfully.
func (h *Handle) Ready() bool {
	return h.ready.Load()
}

// VFS returns the handle's virtual filesystem.
func (h *Handle) VFS() *VFS {
	return h.vfs
}

// StageProgram writes content at path in the virtual filesystem, replacing
// whatever was there.
func (h *Handle) StageProgram(path string, content []byte) error {
	if !h.Ready() {
		return fmt.Errorf("%w: runtime not ready", ErrStagingFailed)
	}
	if err := h.vfs.WriteFile(path, content); err != nil {
		return fmt.Errorf("%w: %w", ErrStagingFailed, err)
	}
	h.logger.Debug("program staged", zap.String("path", path), zap.Int("bytes", len(content)))
	return nil
}

// Invoke runs the interpreter's entry point with path as its only argument
// and returns the program's exit code. Output reaches the callbacks before
// Invoke returns. A non-zero exit code is not an error; traps, engine
// failures and cancellation are.
func (h *Handle) Invoke(ctx context.Context, path string) (uint32, error) {
	if !h.Ready() {
		return 0, fmt.Errorf("%w: runtime not ready", ErrExecutionFailed)
	}

	if h.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.timeout)
		defer cancel()
	}

	streams := newOutputStreams()
	stdout := streams.writer(h.callbacks.Stdout)
	stderr := streams.writer(h.callbacks.Stderr)

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(stdout).
		WithStderr(stderr).
		WithArgs(h.lang.Args(path)...).
		WithFSConfig(wazero.NewFSConfig().WithFSMount(h.vfs.FS(), "/")).
		WithName("")

	for k, v := range h.cfg.env {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}

	start := time.Now()
	mod, err := h.runtime.InstantiateModule(ctx, h.compiled, moduleConfig)
	if mod != nil {
		mod.Close(context.Background())
	}
	streams.Flush()

	logger := h.logger.With(zap.String("path", path), zap.Duration("elapsed", time.Since(start)))

	return h.exitStatus(ctx, err, logger)
}

// exitStatus maps the result of an instantiation onto the program's exit code
// or an execution failure. The context only matters when the guest did not
// finish on its own.
func (h *Handle) exitStatus(ctx context.Context, err error, logger *zap.Logger) (uint32, error) {
	if err == nil {
		logger.Debug("program exited", zap.Uint32("exit_code", 0))
		return 0, nil
	}

	// A cancelled context surfaces as a closing ExitError, so check it first.
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && h.cfg.timeout > 0 {
			logger.Warn("invocation timed out", zap.Duration("timeout", h.cfg.timeout))
			return 0, fmt.Errorf("%w: timeout after %v", ErrExecutionFailed, h.cfg.timeout)
		}
		logger.Warn("invocation cancelled", zap.Error(ctxErr))
		return 0, fmt.Errorf("%w: %w", ErrExecutionFailed, ctxErr)
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		logger.Debug("program exited", zap.Uint32("exit_code", exitErr.ExitCode()))
		return exitErr.ExitCode(), nil
	}
	logger.Warn("invocation failed", zap.Error(err))
	return 0, fmt.Errorf("%w: %w", ErrExecutionFailed, err)
}

// Close releases all resources held by the Handle.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	h.ready.Store(false)

	ctx := context.Background()

	var errs []error
	if h.runtime != nil {
		if err := h.runtime.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if h.cache != nil {
		if err := h.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// DefaultCacheDir is where WithDiskCache stores compiled modules when no
// directory is given.
func DefaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "plxrun")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "plxrun")
	}
	return filepath.Join(os.TempDir(), "plxrun-cache")
}
