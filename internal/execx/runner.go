// Package execx wraps process execution behind a small interface so
// provisioning strategies can be tested without touching the host system.
package execx

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// Runner is the subset of process operations used by the provisioning
// strategies. It is implemented by SystemRunner and by test doubles.
type Runner interface {
	// LookPath reports whether name resolves to an executable on PATH.
	LookPath(name string) (string, error)

	// Run executes the command and waits for it, discarding its output.
	Run(ctx context.Context, name string, args ...string) error

	// Output executes the command and returns its trimmed stdout.
	Output(ctx context.Context, name string, args ...string) (string, error)

	// RunShell executes a shell pipeline via sh -c, inheriting stderr so
	// vendor install scripts can report progress to the operator.
	RunShell(ctx context.Context, script string) error

	// StartDetached launches the command in its own session and does not
	// wait for it. Used to run the model runtime as a background process
	// when no service manager is available.
	StartDetached(name string, args ...string) error
}

// SystemRunner executes commands on the real host.
type SystemRunner struct{}

// NewSystemRunner returns a Runner backed by os/exec.
func NewSystemRunner() *SystemRunner {
	return &SystemRunner{}
}

func (r *SystemRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (r *SystemRunner) Run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

func (r *SystemRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (r *SystemRunner) RunShell(ctx context.Context, script string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// StartDetached puts the child in a new session so it survives the
// bootstrapper exiting. The process is released, not supervised.
func (r *SystemRunner) StartDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
