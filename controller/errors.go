package controller

import (
	"errors"

	"github.com/caffeineduck/plxrun/executor"
)

var (
	ErrNotReady       = errors.New("runtime not ready")
	ErrAlreadyStarted = errors.New("controller already started")

	// ErrInitializationFailed is returned by Start when the runtime could not
	// be brought up. It aliases the executor sentinel so either can be matched.
	ErrInitializationFailed = executor.ErrInitializationFailed
)
