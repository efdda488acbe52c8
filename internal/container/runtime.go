package container

import "context"

// Spec describes one container to launch.
type Spec struct {
	Image string
	Env   []string
	// PublishedPort on the host maps to TargetPort inside the container.
	PublishedPort int
	TargetPort    int
	Labels        map[string]string
}

// Status reports a container's process state.
type Status struct {
	Running  bool
	ExitCode int
}

// Runtime is the process boundary to the container manager. The
// orchestration core only ever talks to containers through it, which
// also makes the controller testable without a Docker daemon.
type Runtime interface {
	// Launch creates and starts the named container.
	Launch(ctx context.Context, name string, spec Spec) error

	// Terminate stops the named container, allowing grace seconds before
	// the runtime force-kills it, then removes it. Terminating a container
	// that no longer exists is not an error.
	Terminate(ctx context.Context, name string, graceSeconds int) error

	// Status returns the container's running flag and exit code.
	Status(ctx context.Context, name string) (Status, error)

	// TailLogs returns the most recent stdout/stderr lines.
	TailLogs(ctx context.Context, name string, tail int) ([]string, error)

	// Close releases resources associated with the runtime.
	Close() error
}
