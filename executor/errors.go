package executor

import "errors"

var (
	ErrInitializationFailed = errors.New("runtime initialization failed")
	ErrAlreadyInitialized   = errors.New("runtime already initialized")
	ErrStagingFailed        = errors.New("program staging failed")
	ErrExecutionFailed      = errors.New("program execution failed")
	ErrClosed               = errors.New("runtime closed")
)
