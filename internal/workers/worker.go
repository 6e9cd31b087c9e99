package workers

// Worker is one scheduled background job.
type Worker interface {
	// Start schedules the worker. It must not block.
	Start() error

	// Stop gracefully stops the worker
	Stop()

	// Name returns the worker name for logging
	Name() string
}
