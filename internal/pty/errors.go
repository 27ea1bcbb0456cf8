package pty

import "errors"

var (
	// ErrTerminalNotFound is returned for operations on an unknown terminal id.
	ErrTerminalNotFound = errors.New("terminal not found")
	// ErrAlreadyExists is returned when Create is called with a registered id.
	ErrAlreadyExists = errors.New("terminal already exists")
	// ErrSpawnFailed wraps the underlying cause of a failed shell spawn.
	ErrSpawnFailed = errors.New("failed to spawn shell")
	// ErrEngineClosed is returned once Shutdown has begun.
	ErrEngineClosed = errors.New("pty engine is shut down")
)
