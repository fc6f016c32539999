package exec

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/mbrock/glaunch/internal/process"
)

func TestMergeEnv(t *testing.T) {
	base := []string{"PATH=/usr/bin", "HOME=/home/u", "LIBGL_ALWAYS_SOFTWARE=0"}

	got := mergeEnv(base, map[string]string{
		"LIBGL_ALWAYS_SOFTWARE": "1",
		"WGPU_BACKEND":          "vulkan",
	})

	want := []string{
		"PATH=/usr/bin",
		"HOME=/home/u",
		"LIBGL_ALWAYS_SOFTWARE=1",
		"WGPU_BACKEND=vulkan",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestMergeEnv_NoOverrides(t *testing.T) {
	base := []string{"PATH=/usr/bin"}
	if got := mergeEnv(base, nil); len(got) != 1 || got[0] != "PATH=/usr/bin" {
		t.Errorf("expected base unchanged, got %v", got)
	}
}

func TestBackend_ExitCode(t *testing.T) {
	b := New()
	defer b.Close()

	ref := process.Ref{Attempt: 0, Label: "test"}
	err := b.Start(context.Background(), process.Spec{
		Ref:  ref,
		Path: "/bin/sh",
		Args: []string{"-c", "exit 7"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	code, err := b.Wait(context.Background(), ref)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if code != 7 {
		t.Errorf("expected exit code 7, got %d", code)
	}

	alive, err := b.Alive(context.Background(), ref)
	if err != nil {
		t.Fatalf("Alive failed: %v", err)
	}
	if alive {
		t.Error("expected Alive=false after exit")
	}
}

func TestBackend_AliveAndKill(t *testing.T) {
	b := New()
	defer b.Close()

	ref := process.Ref{Attempt: 0, Label: "test"}
	err := b.Start(context.Background(), process.Spec{
		Ref:  ref,
		Path: "/bin/sh",
		Args: []string{"-c", "sleep 30"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	alive, err := b.Alive(context.Background(), ref)
	if err != nil {
		t.Fatalf("Alive failed: %v", err)
	}
	if !alive {
		t.Fatal("expected Alive=true while sleeping")
	}

	if err := b.Kill(context.Background(), ref, syscall.SIGKILL); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code, err := b.Wait(ctx, ref)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if code != 128+int(syscall.SIGKILL) {
		t.Errorf("expected exit code %d after SIGKILL, got %d", 128+int(syscall.SIGKILL), code)
	}
}

func TestBackend_MissingBinary(t *testing.T) {
	b := New()
	defer b.Close()

	ref := process.Ref{Attempt: 0, Label: "test"}
	err := b.Start(context.Background(), process.Spec{
		Ref:  ref,
		Path: "/no/such/binary",
	})
	if err == nil {
		t.Fatal("expected Start to fail for a missing binary")
	}

	// The attempt never existed, so it is not tracked.
	if _, err := b.Alive(context.Background(), ref); err == nil {
		t.Error("expected Alive to fail for an attempt that never started")
	}
}

func TestBackend_EnvReachesChild(t *testing.T) {
	b := New()
	defer b.Close()

	ref := process.Ref{Attempt: 0, Label: "test"}
	err := b.Start(context.Background(), process.Spec{
		Ref:  ref,
		Path: "/bin/sh",
		Args: []string{"-c", `test "$LIBGL_ALWAYS_SOFTWARE" = 1`},
		Env:  map[string]string{"LIBGL_ALWAYS_SOFTWARE": "1"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	code, err := b.Wait(context.Background(), ref)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if code != 0 {
		t.Errorf("child did not see the override, exit code %d", code)
	}
}
