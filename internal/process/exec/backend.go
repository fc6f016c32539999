package exec

import (
	"context"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/mbrock/glaunch/internal/process"
)

// Backend is a process.Backend implementation backed by plain OS processes.
type Backend struct {
	mu    sync.Mutex
	procs map[process.Ref]*procState
}

type procState struct {
	ref process.Ref

	cmd *osexec.Cmd

	started time.Time

	// TTY plumbing, nil unless Spec.TTY was set.
	ptmx    *os.File
	restore func()

	done     chan struct{}
	exitCode int
	exitErr  error
	state    process.State
}

var _ process.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{
		procs: make(map[process.Ref]*procState),
	}
}

func (b *Backend) Close() error {
	// Best-effort kill all still-running processes.
	b.mu.Lock()
	procs := make([]*procState, 0, len(b.procs))
	for _, p := range b.procs {
		procs = append(procs, p)
	}
	b.mu.Unlock()

	for _, p := range procs {
		select {
		case <-p.done:
		default:
			_ = b.Kill(context.Background(), p.ref, syscall.SIGKILL)
		}
	}
	return nil
}

func (b *Backend) Start(ctx context.Context, spec process.Spec) error {
	if spec.Path == "" {
		return fmt.Errorf("empty executable path")
	}

	b.mu.Lock()
	if _, exists := b.procs[spec.Ref]; exists {
		b.mu.Unlock()
		return fmt.Errorf("attempt already started")
	}
	b.mu.Unlock()

	cmd := osexec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Dir = spec.WorkingDir
	cmd.Env = mergeEnv(os.Environ(), spec.Env)

	p := &procState{
		ref:     spec.Ref,
		cmd:     cmd,
		started: time.Now(),
		done:    make(chan struct{}),
		state:   process.StateStarting,
	}

	var err error
	if spec.TTY {
		err = startTTY(p)
	} else {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		// Give each attempt its own process group so we can kill it reliably.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		err = cmd.Start()
	}
	if err != nil {
		return err
	}

	b.mu.Lock()
	p.state = process.StateRunning
	b.procs[spec.Ref] = p
	b.mu.Unlock()

	go b.waitForExit(p)
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
	b.mu.Lock()
	code := p.exitCode
	b.mu.Unlock()
	return code, nil
}

func (b *Backend) Kill(ctx context.Context, ref process.Ref, sig syscall.Signal) error {
	_ = ctx
	b.mu.Lock()
	p := b.procs[ref]
	b.mu.Unlock()
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return fmt.Errorf("process not running")
	}

	// Try process group first (negative PID), then fall back to direct process.
	pid := p.cmd.Process.Pid
	if pid > 0 {
		_ = syscall.Kill(-pid, sig)
	}
	return p.cmd.Process.Signal(sig)
}

func (b *Backend) Describe(ctx context.Context, ref process.Ref) (*process.Status, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.procs[ref]
	if !ok {
		return nil, fmt.Errorf("attempt not found")
	}
	return &process.Status{
		Ref:      ref,
		State:    p.state,
		PID:      pidOf(p.cmd),
		Started:  p.started,
		ExitCode: p.exitCode,
	}, nil
}

// startTTY starts the child on a pseudo-terminal and mirrors it to the
// caller's stdio. pty.Start puts the child in its own session, so group
// kills via -pid still work.
func startTTY(p *procState) error {
	ptmx, err := pty.Start(p.cmd)
	if err != nil {
		return err
	}
	p.ptmx = ptmx

	stdinFD := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFD) {
		_ = pty.InheritSize(os.Stdin, ptmx)

		winch := make(chan os.Signal, 1)
		signal.Notify(winch, syscall.SIGWINCH)
		go func() {
			for range winch {
				_ = pty.InheritSize(os.Stdin, ptmx)
			}
		}()

		oldState, rawErr := term.MakeRaw(stdinFD)
		p.restore = func() {
			signal.Stop(winch)
			close(winch)
			if rawErr == nil {
				_ = term.Restore(stdinFD, oldState)
			}
		}
	}

	go func() { _, _ = io.Copy(ptmx, os.Stdin) }()
	go func() { _, _ = io.Copy(os.Stdout, ptmx) }()
	return nil
}

func (b *Backend) waitForExit(p *procState) {
	err := p.cmd.Wait()

	if p.ptmx != nil {
		_ = p.ptmx.Close()
	}
	if p.restore != nil {
		p.restore()
	}

	exitCode := 0
	if err != nil {
		if ee, ok := err.(*osexec.ExitError); ok {
			exitCode = ee.ExitCode()
			if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				// Shell convention for signal deaths.
				exitCode = 128 + int(ws.Signal())
			}
		} else {
			exitCode = 1
		}
	}

	state := process.StateExited
	if exitCode != 0 {
		state = process.StateFailed
	}

	b.mu.Lock()
	p.exitErr = err
	p.exitCode = exitCode
	p.state = state
	b.mu.Unlock()

	close(p.done)
}

// mergeEnv layers overrides on top of the inherited environment without
// touching the launcher's own environment block.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		name := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			name = kv[:i]
		}
		if _, shadowed := overrides[name]; shadowed {
			continue
		}
		out = append(out, kv)
	}
	extra := make([]string, 0, len(overrides))
	for k, v := range overrides {
		extra = append(extra, k+"="+v)
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func pidOf(cmd *osexec.Cmd) int {
	if cmd == nil || cmd.Process == nil {
		return 0
	}
	return cmd.Process.Pid
}
