// glaunch - graphics-backend probing launcher
//
// Tries a sequence of rendering-backend configurations (software OpenGL,
// Vulkan on lavapipe, then the plain default) until one keeps the target
// program alive, then stays bound to it and propagates its exit status.
//
// Usage:
//
//	glaunch [flags] [--] [target [args...]]
//
// With no arguments it launches "ivsg" with the built-in probe plan.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/mbrock/glaunch/internal/launcher"
	"github.com/mbrock/glaunch/internal/notify"
	"github.com/mbrock/glaunch/internal/plan"
	procexec "github.com/mbrock/glaunch/internal/process/exec"
	"github.com/mbrock/glaunch/internal/report"
)

const defaultTarget = "ivsg"

var (
	planFlag      string
	graceFlag     time.Duration
	envFileFlag   string
	reapFlag      bool
	ptyFlag       bool
	notifyFlag    bool
	printPlanFlag bool
	logLevelFlag  string
)

func main() {
	flag.StringVar(&planFlag, "plan", "", "HCL probe plan file (default: built-in plan)")
	flag.DurationVar(&graceFlag, "grace", plan.DefaultGrace, "Liveness grace period per attempt")
	flag.StringVar(&envFileFlag, "env-file", "", "Extra environment variables (dotenv file) for every attempt")
	flag.BoolVar(&reapFlag, "reap", false, "Kill the process group of attempts that fail the liveness probe")
	flag.BoolVar(&ptyFlag, "pty", false, "Run the adopted process on a pseudo-terminal")
	flag.BoolVar(&notifyFlag, "notify", false, "Send a desktop notification if every backend fails")
	flag.BoolVar(&printPlanFlag, "print-plan", false, "Print the resolved probe plan and exit")
	flag.StringVar(&logLevelFlag, "log-level", "info", "Log level: debug, info, warn, error")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `glaunch - graphics-backend probing launcher

Usage:
  glaunch [flags] [--] [target [args...]]

Tries each backend configuration in order; a target that survives the
grace period is adopted and its exit status becomes glaunch's own. If
every configuration fails, the target runs once more with no overrides.

Flags:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(logLevelFlag),
	})))

	os.Exit(run(flag.Args()))
}

func run(args []string) int {
	pl, err := resolvePlan()
	if err != nil {
		fatal("%v", err)
	}

	target := defaultTarget
	var targetArgs []string
	if len(args) > 0 {
		target = args[0]
		targetArgs = args[1:]
	}

	if printPlanFlag {
		printPlan(pl)
		return 0
	}

	backend := procexec.New()
	defer backend.Close()

	l := &launcher.Launcher{
		Backend:      backend,
		Reporter:     report.NewConsole(os.Stdout),
		ReapRejected: reapFlag,
		TTY:          ptyFlag,
	}

	// Forward interrupts to whichever child we are bound to; its signal
	// death comes back to us through the exit code.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for s := range sigCh {
			if sig, ok := s.(syscall.Signal); ok {
				l.Forward(sig)
			}
		}
	}()

	code, err := l.Run(context.Background(), target, targetArgs, pl)
	if err != nil {
		if errors.Is(err, launcher.ErrLaunchFailed) {
			fmt.Fprintf(os.Stderr, "glaunch: %v\n", err)
			if notifyFlag {
				if nerr := notify.Desktop("glaunch", target+" failed to start with any backend"); nerr != nil {
					slog.Debug("desktop notification failed", "error", nerr)
				}
			}
			return code
		}
		fatal("%v", err)
	}
	return code
}

// resolvePlan builds the probe plan from the built-in table or a plan file,
// then applies --env-file and --grace.
func resolvePlan() (plan.Plan, error) {
	pl := plan.Default()
	if planFlag != "" {
		loaded, err := plan.Load(planFlag)
		if err != nil {
			return plan.Plan{}, err
		}
		pl = loaded
	}

	if envFileFlag != "" {
		extra, err := plan.ReadEnvFile(envFileFlag)
		if err != nil {
			return plan.Plan{}, err
		}
		pl = pl.WithExtraEnv(extra)
	}

	// An explicit --grace beats the plan file's grace.
	if flag.CommandLine.Changed("grace") {
		if graceFlag <= 0 {
			return plan.Plan{}, fmt.Errorf("--grace must be positive, got %s", graceFlag)
		}
		pl.Grace = graceFlag
	}
	return pl, nil
}

func printPlan(pl plan.Plan) {
	fmt.Printf("grace %s\n", pl.Grace)
	for i, a := range pl.Attempts {
		fmt.Printf("%d. %s\n", i+1, a.Label)
		keys := make([]string, 0, len(a.Env))
		for k := range a.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("   %s=%s\n", k, a.Env[k])
		}
	}
	fmt.Printf("%d. %s (no overrides)\n", len(pl.Attempts)+1, plan.FinalLabel)
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
