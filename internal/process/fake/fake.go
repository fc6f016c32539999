// Package fake is an in-memory process.Backend for unit tests. Commands
// are Go functions registered by path, so tests can script exact child
// behavior (exit immediately, survive forever, block on cancel) without
// real OS processes.
package fake

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/mbrock/glaunch/internal/process"
)

// Command simulates a child process. It receives the environment overrides
// it was spawned with and returns the exit code; the context is cancelled
// when the process is killed.
type Command func(ctx context.Context, env map[string]string) int

// StartRecord captures one Start call for assertions.
type StartRecord struct {
	Ref  process.Ref
	Path string
	Args []string
	Env  map[string]string
	TTY  bool
}

type fakeProc struct {
	ref     process.Ref
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}

	mu       sync.Mutex
	exitCode int
	state    process.State
}

// Backend is an in-memory implementation of process.Backend.
type Backend struct {
	mu       sync.Mutex
	commands map[string]Command
	procs    map[process.Ref]*fakeProc
	starts   []StartRecord
	kills    []process.Ref
}

var _ process.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{
		commands: make(map[string]Command),
		procs:    make(map[process.Ref]*fakeProc),
	}
}

// Register installs a handler for an executable path. Starting an
// unregistered path fails, which is how tests model a missing binary.
func (b *Backend) Register(path string, cmd Command) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands[path] = cmd
}

// Starts returns a copy of all recorded Start calls in order.
func (b *Backend) Starts() []StartRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]StartRecord, len(b.starts))
	copy(out, b.starts)
	return out
}

// Kills returns the refs that received a Kill, in order.
func (b *Backend) Kills() []process.Ref {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]process.Ref, len(b.kills))
	copy(out, b.kills)
	return out
}

func (b *Backend) Start(ctx context.Context, spec process.Spec) error {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	b.starts = append(b.starts, StartRecord{
		Ref:  spec.Ref,
		Path: spec.Path,
		Args: append([]string(nil), spec.Args...),
		Env:  copyEnv(spec.Env),
		TTY:  spec.TTY,
	})

	cmd, ok := b.commands[spec.Path]
	if !ok {
		return fmt.Errorf("fork/exec %s: no such file or directory", spec.Path)
	}
	if _, exists := b.procs[spec.Ref]; exists {
		return fmt.Errorf("attempt already started")
	}

	procCtx, cancel := context.WithCancel(context.Background())
	p := &fakeProc{
		ref:     spec.Ref,
		started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   process.StateRunning,
	}
	b.procs[spec.Ref] = p

	env := copyEnv(spec.Env)
	go func() {
		code := cmd(procCtx, env)
		p.mu.Lock()
		p.exitCode = code
		p.state = process.StateExited
		if code != 0 {
			p.state = process.StateFailed
		}
		p.mu.Unlock()
		close(p.done)
	}()
	return nil
}

func (b *Backend) Alive(ctx context.Context, ref process.Ref) (bool, error) {
	_ = ctx
	b.mu.Lock()
	p, ok := b.procs[ref]
	b.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("attempt not found")
	}
	select {
	case <-p.done:
		return false, nil
	default:
		return true, nil
	}
}

func (b *Backend) Wait(ctx context.Context, ref process.Ref) (int, error) {
	b.mu.Lock()
	p, ok := b.procs[ref]
	b.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("attempt not found")
	}
	select {
	case <-p.done:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, nil
}

func (b *Backend) Kill(ctx context.Context, ref process.Ref, sig syscall.Signal) error {
	_ = ctx
	_ = sig
	b.mu.Lock()
	p, ok := b.procs[ref]
	if ok {
		b.kills = append(b.kills, ref)
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("process not running")
	}
	p.cancel()
	return nil
}

func (b *Backend) Describe(ctx context.Context, ref process.Ref) (*process.Status, error) {
	_ = ctx
	b.mu.Lock()
	p, ok := b.procs[ref]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("attempt not found")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return &process.Status{
		Ref:      ref,
		State:    p.state,
		Started:  p.started,
		ExitCode: p.exitCode,
	}, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	procs := make([]*fakeProc, 0, len(b.procs))
	for _, p := range b.procs {
		procs = append(procs, p)
	}
	b.mu.Unlock()
	for _, p := range procs {
		p.cancel()
	}
	return nil
}

func copyEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
