package ports

// TriageFilter is a long-running intake that triages mail as it arrives
type TriageFilter interface {
	// Start starts the filter service
	Start() error

	// Stop stops the filter service
	Stop() error

	// Done is closed when the running filter exits on its own or is stopped.
	// It is nil before Start.
	Done() <-chan struct{}

	// Err returns the error the filter exited with, if any
	Err() error
}
