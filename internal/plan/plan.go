// Package plan defines the ordered table of backend configurations the
// launcher probes. The table is the built-in default unless an HCL plan
// file overrides it; either way it is read-only once resolved.
package plan

import (
	"path/filepath"
	"sort"
	"time"
)

// DefaultGrace is how long a spawned attempt gets before its liveness probe.
const DefaultGrace = 2 * time.Second

// FinalLabel names the unconditional no-override fallback attempt.
const FinalLabel = "default"

// BackendConfig is one ordered probe step: a human-readable label and the
// environment overrides that select a rendering backend.
type BackendConfig struct {
	Label string
	Env   map[string]string
}

// Plan is the resolved probe sequence.
type Plan struct {
	Grace    time.Duration
	Attempts []BackendConfig
}

// Default returns the built-in probe sequence: software OpenGL, then
// Vulkan on the lavapipe software rasterizer. The unconditional fallback
// with no overrides is not part of the table; the prober always runs it
// last.
func Default() Plan {
	return Plan{
		Grace: DefaultGrace,
		Attempts: []BackendConfig{
			{
				Label: "Software OpenGL",
				Env: map[string]string{
					"LIBGL_ALWAYS_SOFTWARE": "1",
				},
			},
			{
				Label: "Vulkan lavapipe",
				Env: map[string]string{
					"WGPU_BACKEND":     "vulkan",
					"VK_ICD_FILENAMES": FindLavapipeICD(icdSearchDirs...),
				},
			},
		},
	}
}

// WithExtraEnv layers extra variables under every attempt. Attempt-specific
// overrides win on conflict.
func (p Plan) WithExtraEnv(extra map[string]string) Plan {
	if len(extra) == 0 {
		return p
	}
	attempts := make([]BackendConfig, len(p.Attempts))
	for i, a := range p.Attempts {
		env := make(map[string]string, len(extra)+len(a.Env))
		for k, v := range extra {
			env[k] = v
		}
		for k, v := range a.Env {
			env[k] = v
		}
		attempts[i] = BackendConfig{Label: a.Label, Env: env}
	}
	return Plan{Grace: p.Grace, Attempts: attempts}
}

// icdSearchDirs are the standard Vulkan ICD manifest locations, in
// priority order.
var icdSearchDirs = []string{
	"/usr/share/vulkan/icd.d",
	"/usr/local/share/vulkan/icd.d",
	"/etc/vulkan/icd.d",
}

// FindLavapipeICD returns the first lavapipe ICD manifest found in the
// given directories. When nothing is found it falls back to the
// conventional path, leaving it to the Vulkan loader to complain.
func FindLavapipeICD(dirs ...string) string {
	for _, dir := range dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "lvp_icd*.json"))
		if err != nil || len(matches) == 0 {
			continue
		}
		sort.Strings(matches)
		return matches[0]
	}
	return "/usr/share/vulkan/icd.d/lvp_icd.x86_64.json"
}
