package plan

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestDefault(t *testing.T) {
	pl := Default()

	if pl.Grace != DefaultGrace {
		t.Errorf("expected grace %s, got %s", DefaultGrace, pl.Grace)
	}
	if len(pl.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(pl.Attempts))
	}
	if pl.Attempts[0].Env["LIBGL_ALWAYS_SOFTWARE"] != "1" {
		t.Errorf("first attempt must force software GL: %+v", pl.Attempts[0].Env)
	}
	if pl.Attempts[1].Env["WGPU_BACKEND"] != "vulkan" {
		t.Errorf("second attempt must select vulkan: %+v", pl.Attempts[1].Env)
	}
	if pl.Attempts[1].Env["VK_ICD_FILENAMES"] == "" {
		t.Error("second attempt must carry an ICD path")
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "plan.hcl", `
grace = "500ms"

attempt "Software OpenGL" {
  env = {
    LIBGL_ALWAYS_SOFTWARE = "1"
  }
}

attempt "Vulkan lavapipe" {
  env = {
    WGPU_BACKEND     = "vulkan"
    VK_ICD_FILENAMES = "/opt/icd/lvp.json"
  }
}

attempt "bare" {}
`)

	pl, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if pl.Grace != 500*time.Millisecond {
		t.Errorf("expected grace 500ms, got %s", pl.Grace)
	}
	if len(pl.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(pl.Attempts))
	}
	if pl.Attempts[0].Label != "Software OpenGL" || pl.Attempts[1].Label != "Vulkan lavapipe" || pl.Attempts[2].Label != "bare" {
		t.Errorf("attempt order not preserved: %+v", pl.Attempts)
	}
	if pl.Attempts[1].Env["VK_ICD_FILENAMES"] != "/opt/icd/lvp.json" {
		t.Errorf("env not decoded: %+v", pl.Attempts[1].Env)
	}
	if len(pl.Attempts[2].Env) != 0 {
		t.Errorf("bare attempt should have no env, got %+v", pl.Attempts[2].Env)
	}
}

func TestLoad_DefaultGraceWhenOmitted(t *testing.T) {
	path := writeFile(t, "plan.hcl", `
attempt "only" {
  env = { X = "1" }
}
`)
	pl, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if pl.Grace != DefaultGrace {
		t.Errorf("expected default grace, got %s", pl.Grace)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad syntax", `attempt "x" {`},
		{"bad grace", `grace = "soon"`},
		{"negative grace", `grace = "-1s"`},
		{"empty label", `attempt "" {}`},
		{"env not a map", "attempt \"x\" {\n  env = \"nope\"\n}"},
		{"unknown attribute", `nonsense = true`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, "plan.hcl", tc.content)
			if _, err := Load(path); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.hcl")); err == nil {
		t.Error("expected error for missing plan file")
	}
}

func TestWithExtraEnv(t *testing.T) {
	pl := Plan{
		Grace: DefaultGrace,
		Attempts: []BackendConfig{
			{Label: "a", Env: map[string]string{"KEEP": "attempt"}},
			{Label: "b", Env: nil},
		},
	}

	merged := pl.WithExtraEnv(map[string]string{"KEEP": "extra", "ADDED": "1"})

	if merged.Attempts[0].Env["KEEP"] != "attempt" {
		t.Error("attempt-specific value must win over the extra env")
	}
	if merged.Attempts[0].Env["ADDED"] != "1" || merged.Attempts[1].Env["ADDED"] != "1" {
		t.Error("extra env must reach every attempt")
	}
	// Original plan untouched.
	if _, ok := pl.Attempts[0].Env["ADDED"]; ok {
		t.Error("WithExtraEnv must not mutate the receiver")
	}
}

func TestWithExtraEnv_Empty(t *testing.T) {
	pl := Default()
	if got := pl.WithExtraEnv(nil); len(got.Attempts) != len(pl.Attempts) {
		t.Error("empty extra env must be a no-op")
	}
}

func TestReadEnvFile(t *testing.T) {
	path := writeFile(t, "extra.env", "MESA_DEBUG=1\nXDG_SESSION_TYPE=x11\n")

	env, err := ReadEnvFile(path)
	if err != nil {
		t.Fatalf("ReadEnvFile failed: %v", err)
	}
	if env["MESA_DEBUG"] != "1" || env["XDG_SESSION_TYPE"] != "x11" {
		t.Errorf("unexpected env: %+v", env)
	}
}

func TestReadEnvFile_Missing(t *testing.T) {
	if _, err := ReadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err == nil {
		t.Error("expected error for missing env file")
	}
}

func TestFindLavapipeICD(t *testing.T) {
	empty := t.TempDir()
	populated := t.TempDir()
	icd := filepath.Join(populated, "lvp_icd.x86_64.json")
	if err := os.WriteFile(icd, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := FindLavapipeICD(empty, populated); got != icd {
		t.Errorf("expected %s, got %s", icd, got)
	}

	// Earlier directories win.
	first := t.TempDir()
	firstICD := filepath.Join(first, "lvp_icd.i686.json")
	if err := os.WriteFile(firstICD, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := FindLavapipeICD(first, populated); got != firstICD {
		t.Errorf("expected %s, got %s", firstICD, got)
	}
}

func TestFindLavapipeICD_Fallback(t *testing.T) {
	got := FindLavapipeICD(t.TempDir())
	if got != "/usr/share/vulkan/icd.d/lvp_icd.x86_64.json" {
		t.Errorf("expected conventional fallback path, got %s", got)
	}
}
