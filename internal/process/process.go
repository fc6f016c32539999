package process

import (
	"context"
	"syscall"
	"time"
)

// Ref identifies a spawned child within a launcher run. Attempt is the
// position in the probe plan; the final no-override fallback uses the
// position one past the end.
type Ref struct {
	Attempt int
	Label   string
}

// State is a simplified view of a child's lifecycle.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateExited   State = "exited"
	StateFailed   State = "failed"
)

// Status describes a child process.
type Status struct {
	Ref      Ref
	State    State
	PID      int
	Started  time.Time
	ExitCode int
}

// Spec defines how to start a child. Env entries override the inherited
// environment; they are never applied to the launcher's own environment
// block, so concurrent attempts could not race on it.
type Spec struct {
	Ref        Ref
	Path       string
	Args       []string
	Env        map[string]string
	WorkingDir string

	// TTY runs the child on a pseudo-terminal mirrored to the caller's
	// stdio instead of inheriting it directly.
	TTY bool
}

// Backend is a semantic interface for running launcher attempts.
// Concrete backends can be backed by OS processes, a fake, or anything else.
type Backend interface {
	// Start spawns the child asynchronously. A Start error means the child
	// never existed; callers treat it the same as an immediate exit.
	Start(ctx context.Context, spec Spec) error

	// Alive reports whether the child is still executing. It must not
	// disturb the child.
	Alive(ctx context.Context, ref Ref) (bool, error)

	// Wait blocks until the child exits and returns its exit code.
	Wait(ctx context.Context, ref Ref) (int, error)

	// Kill signals the child (and its process group, where that applies).
	Kill(ctx context.Context, ref Ref, signal syscall.Signal) error

	Describe(ctx context.Context, ref Ref) (*Status, error)

	Close() error
}
