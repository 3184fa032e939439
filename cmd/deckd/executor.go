package main

import (
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
)

// ============================================================================
// Action Executor
// ============================================================================
// Executes exactly one OS-level side effect per Action. Every failure is
// converted into an *ExecError; nothing here is allowed to take down the
// dispatch loop or the process.
// ============================================================================

// ExecErrorKind classifies executor failures.
type ExecErrorKind string

const (
	// ExecLaunchFailed covers OS-call failures: missing file, permission
	// denied, injection layer rejection.
	ExecLaunchFailed ExecErrorKind = "launch_failed"

	// ExecInvalidSpec means a key-combination spec could not be parsed.
	ExecInvalidSpec ExecErrorKind = "invalid_spec"
)

// ExecError is the only error type Execute returns.
type ExecError struct {
	Kind ExecErrorKind
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// ActionExecutor performs button actions. The spawn and open functions are
// fields so tests can record invocations instead of touching the OS.
type ActionExecutor struct {
	keyboard Keyboard
	logger   *slog.Logger

	openFn  func(target string) error
	spawnFn func(path string) error
}

// NewActionExecutor returns an executor using the real OS openers and the
// given keyboard.
func NewActionExecutor(keyboard Keyboard, logger *slog.Logger) *ActionExecutor {
	return &ActionExecutor{
		keyboard: keyboard,
		logger:   logger,
		openFn:   openWithDefaultApp,
		spawnFn:  spawnDetached,
	}
}

// Execute performs the action's side effect. Fire-and-forget: spawned
// processes are not waited on.
func (x *ActionExecutor) Execute(a Action) error {
	switch a := a.(type) {
	case NoAction, nil:
		return nil

	case OpenLink:
		x.logger.Info("opening link", "url", a.URL)
		if err := x.openFn(a.URL); err != nil {
			return &ExecError{Kind: ExecLaunchFailed, Err: err}
		}
		return nil

	case LaunchExecutable:
		x.logger.Info("launching executable", "path", a.Path)
		if err := x.spawnFn(a.Path); err != nil {
			return &ExecError{Kind: ExecLaunchFailed, Err: err}
		}
		return nil

	case SendKeypress:
		key, mods, err := parseKeySpec(a.Spec)
		if err != nil {
			return &ExecError{Kind: ExecInvalidSpec, Err: err}
		}
		x.logger.Info("sending keypress", "spec", a.Spec)
		if err := x.keyboard.Tap(key, mods...); err != nil {
			return &ExecError{Kind: ExecLaunchFailed, Err: err}
		}
		return nil

	case TypeText:
		x.logger.Info("typing text", "chars", len(a.Text))
		if err := x.keyboard.Type(a.Text); err != nil {
			return &ExecError{Kind: ExecLaunchFailed, Err: err}
		}
		return nil

	default:
		return &ExecError{Kind: ExecLaunchFailed, Err: fmt.Errorf("unsupported action type: %T", a)}
	}
}

// openWithDefaultApp hands the target to the OS-default opener.
// We don't wait for the command: it usually launches a long-lived GUI app.
func openWithDefaultApp(target string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", target)
	case "windows":
		// Windows 'start' is a shell built-in, so it has to go through cmd /c.
		cmd = exec.Command("cmd", "/c", "start", "", target)
	case "darwin":
		cmd = exec.Command("open", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %q: %w", target, err)
	}
	return nil
}

// spawnDetached starts path as a detached process. Shortcut files can't be
// exec'd directly, so they are resolved through the shell's start mechanism.
func spawnDetached(path string) error {
	var cmd *exec.Cmd

	if runtime.GOOS == "windows" {
		if strings.HasSuffix(strings.ToLower(path), ".lnk") {
			cmd = exec.Command("cmd", "/c", "start", "", path)
		} else {
			cmd = exec.Command(path)
		}
	} else {
		cmd = exec.Command(path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn %q: %w", path, err)
	}
	return nil
}
