// Package hotreload implements the Self Hot-Reload Controller (§4.H):
// per bridge root, detects whether the bridge's own source is newer than
// its build output (triggering a rebuild then a restart) or whether the
// build output is newer than the current process's start time (triggering
// a restart only), and carries out the restart by asking the
// companion-extension bridge to restart the bridge process. No k6 analogue
// exists (k6 ships a fixed binary per release); the mtime-compare
// -then-marker-file shape is written fresh to the exact contract §4.H
// and §4.G step 1 describe.
package hotreload

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Condition names which of the two §4.H change conditions fired.
type Condition int

const (
	NoChange Condition = iota
	// SourceNewerThanBuild triggers a rebuild, then a restart, on success.
	SourceNewerThanBuild
	// BuildNewerThanStart triggers a restart directly, without a rebuild.
	BuildNewerThanStart
)

// BuildError reports that the self-rebuild command failed, carrying its
// combined stdout/stderr for the agent-facing error message (§7
// "BuildError").
type BuildError struct {
	Command string
	Output  string
	Err     error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("hotreload: build command %q failed: %v\n%s", e.Command, e.Err, e.Output)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Restarter is the one-method view of the companion-extension bridge client
// this package needs, satisfied by *companion.Client.
type Restarter interface {
	RestartBridge(ctx context.Context) error
}

// Controller owns the marker-file timestamp and the build-command wiring
// for one bridge root.
type Controller struct {
	SourceDir    string
	BuildOutput  string
	MarkerPath   string
	BuildCommand []string

	ProcessStartedAt time.Time

	Companion Restarter

	// restartPending latches once a restart has been scheduled so
	// subsequent tool calls short-circuit per §4.G step 2, without
	// needing to re-probe mtimes every time.
	restartPending bool
	restartReason  string
}

// New builds a Controller rooted at dir with marker file
// "<dir>/.devtools/hotreload-marker" and the given build output path and
// command.
func New(dir, buildOutput string, buildCommand []string, processStartedAt time.Time, companion Restarter) *Controller {
	return &Controller{
		SourceDir:        dir,
		BuildOutput:      buildOutput,
		MarkerPath:       filepath.Join(dir, ".devtools", "hotreload-marker"),
		BuildCommand:     buildCommand,
		ProcessStartedAt: processStartedAt,
		Companion:        companion,
	}
}

// RestartPending reports whether a restart has already been scheduled
// (§4.G step 2 "Restart-pending short-circuit").
func (c *Controller) RestartPending() (bool, string) {
	return c.restartPending, c.restartReason
}

// newestSourceMtime walks SourceDir for the newest *.go file modification
// time.
func (c *Controller) newestSourceMtime() (time.Time, error) {
	var newest time.Time
	err := filepath.Walk(c.SourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if info.Name() == ".devtools" || info.Name() == "_examples" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	return newest, err
}

// Check implements §4.G step 1's detection half: compare source mtime
// to build output mtime, and build output mtime to process start time.
func (c *Controller) Check() (Condition, error) {
	if c.restartPending {
		return NoChange, nil
	}

	buildInfo, err := os.Stat(c.BuildOutput)
	if os.IsNotExist(err) {
		// No build output yet at all: treat as source-newer so the
		// first self-rebuild produces one.
		return SourceNewerThanBuild, nil
	}
	if err != nil {
		return NoChange, fmt.Errorf("hotreload: stat build output: %w", err)
	}

	srcMtime, err := c.newestSourceMtime()
	if err != nil {
		return NoChange, fmt.Errorf("hotreload: scan source tree: %w", err)
	}

	if srcMtime.After(buildInfo.ModTime()) {
		return SourceNewerThanBuild, nil
	}
	if buildInfo.ModTime().After(c.ProcessStartedAt) {
		return BuildNewerThanStart, nil
	}
	return NoChange, nil
}

// Rebuild runs the configured build command, returning a *BuildError on
// failure with the command's combined stdout/stderr (§4.G step 1:
// "on failure return a formatted error").
func (c *Controller) Rebuild(ctx context.Context) error {
	if len(c.BuildCommand) == 0 {
		return &BuildError{Err: fmt.Errorf("no build command configured")}
	}
	cmd := exec.CommandContext(ctx, c.BuildCommand[0], c.BuildCommand[1:]...)
	cmd.Dir = c.SourceDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &BuildError{Command: fmt.Sprintf("%v", c.BuildCommand), Output: string(out), Err: err}
	}
	return nil
}

// ScheduleRestart writes the marker file (so a concurrent/subsequent check
// does not re-trigger) and latches restartPending so the dispatcher's
// short-circuit (§4.G step 2) fires on the next call. It does not
// itself call exit(0) — the caller does that after returning its response,
// satisfying §8 invariant 7 ("the scheduling response is returned
// before exit(0) is invoked").
func (c *Controller) ScheduleRestart(reason string) error {
	if err := os.MkdirAll(filepath.Dir(c.MarkerPath), 0o755); err != nil {
		return fmt.Errorf("hotreload: create marker dir: %w", err)
	}
	if err := os.WriteFile(c.MarkerPath, []byte(time.Now().Format(time.RFC3339Nano)), 0o644); err != nil {
		return fmt.Errorf("hotreload: write marker: %w", err)
	}
	c.restartPending = true
	c.restartReason = reason
	return nil
}

// RequestRestart asks the companion-extension bridge to restart the bridge
// process, then gives stdio a moment to flush before the caller's exit(0)
// (§4.H: "after a short delay ... the bridge calls exit(0)").
func (c *Controller) RequestRestart(ctx context.Context) {
	if c.Companion != nil {
		_ = c.Companion.RestartBridge(ctx)
	}
	time.Sleep(200 * time.Millisecond)
}

// BuildAge returns how long ago BuildOutput was produced, used to render
// the "recently updated" restart banner (§4.G "Restart-on-update
// banner").
func (c *Controller) BuildAge() (time.Duration, error) {
	info, err := os.Stat(c.BuildOutput)
	if err != nil {
		return 0, err
	}
	return time.Since(info.ModTime()), nil
}

// MarkerExists reports whether a restart marker is present from a prior
// process's ScheduleRestart call, used by the new process on startup to
// decide whether to show the restart-on-update banner once.
func (c *Controller) MarkerExists() bool {
	_, err := os.Stat(c.MarkerPath)
	return err == nil
}

// ClearMarker removes the marker file after its one-time banner has been
// shown (§4.G "clear the banner").
func (c *Controller) ClearMarker() error {
	err := os.Remove(c.MarkerPath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
