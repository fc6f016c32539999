// Package launcher sequences backend probe attempts: spawn, grace wait,
// liveness check, adopt-or-advance, with one unconditional fallback once
// the table is exhausted.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/mbrock/glaunch/internal/plan"
	"github.com/mbrock/glaunch/internal/process"
)

// ErrLaunchFailed means every configuration, including the unconditional
// fallback, failed to produce a process.
var ErrLaunchFailed = errors.New("no backend configuration produced a live process")

// Reporter receives human-facing progress events.
type Reporter interface {
	// Probing is emitted before an attempt is spawned.
	Probing(label string)
	// Failed is emitted when an attempt did not survive its probe
	// (or never started; the two are indistinguishable here).
	Failed(label string)
	// Adopted is emitted when an attempt passed its probe and the
	// launcher is now bound to it.
	Adopted(label string, pid int)
	// FinalAttempt is emitted before the unconditional fallback.
	FinalAttempt(label string)
}

// Probe decides whether a freshly spawned attempt should be adopted.
// "Still running after the grace period" is a liveness heuristic, not a
// readiness proof; a handshake-based probe can replace it without
// touching the sequencing.
type Probe func(ctx context.Context, backend process.Backend, ref process.Ref) (bool, error)

// GraceProbe is the default policy: sleep a fixed duration, then ask the
// backend whether the child is still executing.
func GraceProbe(grace time.Duration) Probe {
	return func(ctx context.Context, backend process.Backend, ref process.Ref) (bool, error) {
		t := time.NewTimer(grace)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return false, ctx.Err()
		}
		return backend.Alive(ctx, ref)
	}
}

// Launcher probes an ordered list of backend configurations until one
// keeps the target alive.
type Launcher struct {
	Backend  process.Backend
	Reporter Reporter

	// Probe overrides the liveness policy. Nil means GraceProbe with the
	// plan's grace period.
	Probe Probe

	// ReapRejected kills the process group of an attempt that failed its
	// probe before moving on. Off by default: the observed behavior leaves
	// rejected children behind, and stragglers from a partially crashed
	// attempt may outlive the probed PID.
	ReapRejected bool

	// TTY runs the adopted process on a pseudo-terminal.
	TTY bool

	mu      sync.Mutex
	current *process.Ref
}

// Run executes the probe sequence for target and returns the exit code the
// launcher should propagate. A non-nil error other than ErrLaunchFailed
// means the run was interrupted rather than completed.
func (l *Launcher) Run(ctx context.Context, target string, args []string, pl plan.Plan) (int, error) {
	probe := l.Probe
	if probe == nil {
		grace := pl.Grace
		if grace <= 0 {
			grace = plan.DefaultGrace
		}
		probe = GraceProbe(grace)
	}

	for i, cfg := range pl.Attempts {
		ref := process.Ref{Attempt: i, Label: cfg.Label}
		l.Reporter.Probing(cfg.Label)

		spec := process.Spec{
			Ref:  ref,
			Path: target,
			Args: args,
			Env:  cfg.Env,
			TTY:  l.TTY,
		}
		if err := l.Backend.Start(ctx, spec); err != nil {
			// Spawn failure and an early crash look the same from here.
			slog.Debug("attempt did not start", "backend", cfg.Label, "error", err)
			l.Reporter.Failed(cfg.Label)
			continue
		}

		l.setCurrent(ref)
		alive, err := probe(ctx, l.Backend, ref)
		if err != nil {
			l.clearCurrent()
			return 0, err
		}
		if !alive {
			l.clearCurrent()
			l.Reporter.Failed(cfg.Label)
			if l.ReapRejected {
				// Catch stragglers in the attempt's process group.
				_ = l.Backend.Kill(ctx, ref, syscall.SIGKILL)
			}
			continue
		}

		pid := 0
		if st, err := l.Backend.Describe(ctx, ref); err == nil {
			pid = st.PID
		}
		l.Reporter.Adopted(cfg.Label, pid)
		slog.Debug("backend adopted", "backend", cfg.Label, "pid", pid)

		code, err := l.Backend.Wait(ctx, ref)
		l.clearCurrent()
		return code, err
	}

	return l.finalAttempt(ctx, target, args, len(pl.Attempts))
}

// finalAttempt runs the target once with no overrides, in the foreground:
// no probe, whatever happens is the launcher's outcome.
func (l *Launcher) finalAttempt(ctx context.Context, target string, args []string, attempt int) (int, error) {
	ref := process.Ref{Attempt: attempt, Label: plan.FinalLabel}
	l.Reporter.FinalAttempt(plan.FinalLabel)

	spec := process.Spec{
		Ref:  ref,
		Path: target,
		Args: args,
		TTY:  l.TTY,
	}
	if err := l.Backend.Start(ctx, spec); err != nil {
		l.Reporter.Failed(plan.FinalLabel)
		return 127, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	l.setCurrent(ref)
	code, err := l.Backend.Wait(ctx, ref)
	l.clearCurrent()
	return code, err
}

// Forward relays a signal to whichever child the launcher is currently
// bound to. Called from the CLI's signal handler.
func (l *Launcher) Forward(sig syscall.Signal) {
	l.mu.Lock()
	ref := l.current
	l.mu.Unlock()
	if ref == nil {
		return
	}
	_ = l.Backend.Kill(context.Background(), *ref, sig)
}

func (l *Launcher) setCurrent(ref process.Ref) {
	l.mu.Lock()
	l.current = &ref
	l.mu.Unlock()
}

func (l *Launcher) clearCurrent() {
	l.mu.Lock()
	l.current = nil
	l.mu.Unlock()
}
