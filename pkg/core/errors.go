package core

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration      = errors.New("configuration error")
	ErrWorkerFailure      = errors.New("worker failure")
	ErrEnvironmentFailure = errors.New("environment failure")
)

// ConfigurationError reports an invalid agent/scope setup. It is always
// raised before any worker is started.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigurationError formats a ConfigurationError.
func NewConfigurationError(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// WorkerFailure reports a fault inside a worker while it handled a command.
type WorkerFailure struct {
	Worker int
	Phase  string
	Err    error
}

func (e *WorkerFailure) Error() string {
	return fmt.Sprintf("worker %d failed during %s: %v", e.Worker, e.Phase, e.Err)
}

func (e *WorkerFailure) Unwrap() error {
	return e.Err
}

func (e *WorkerFailure) Is(target error) bool {
	return target == ErrWorkerFailure
}

// EnvironmentFailure reports a fault raised by the environment.
type EnvironmentFailure struct {
	Op  string
	Err error
}

func (e *EnvironmentFailure) Error() string {
	return fmt.Sprintf("environment %s: %v", e.Op, e.Err)
}

func (e *EnvironmentFailure) Unwrap() error {
	return e.Err
}

func (e *EnvironmentFailure) Is(target error) bool {
	return target == ErrEnvironmentFailure
}
