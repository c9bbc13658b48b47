package httpserver

import "errors"

// Run and Shutdown failures. ErrAlreadyRunning is joined with ErrStart.
var (
	ErrStart          = errors.New("ops server failed to start")
	ErrAlreadyRunning = errors.New("ops server already running")
	ErrShutdown       = errors.New("ops server did not shut down cleanly")
)
