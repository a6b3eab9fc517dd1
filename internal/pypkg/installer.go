// Package pypkg installs and verifies the dashboard's python package set.
package pypkg

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docdash/quartermaster/internal/config"
	"docdash/quartermaster/internal/execx"
	"docdash/quartermaster/internal/provision"
)

const pythonProbeName = "python"

// Installer installs the manifest packages system-wide via pip and verifies
// each one afterwards. Installation is lenient: a failing pip run never fails
// the bootstrap, but the per-package verification tells the operator what
// actually landed.
type Installer struct {
	interpreter string
	packages    []string
	runner      execx.Runner
}

// NewInstaller constructs an Installer for the manifest packages.
func NewInstaller(cfg config.PythonConfig, packages []string, runner execx.Runner) *Installer {
	return &Installer{
		interpreter: cfg.Interpreter,
		packages:    packages,
		runner:      runner,
	}
}

// Install runs one pip invocation for the whole package list, then probes
// every package with `pip show` to build the structured report. The bulk
// install overrides externally-managed-environment protection and suppresses
// per-package output, matching how the dashboard environment is provisioned.
func (i *Installer) Install(ctx context.Context) provision.PackageReport {
	var report provision.PackageReport

	if len(i.packages) == 0 {
		return report
	}

	args := append(
		[]string{"-m", "pip", "install", "--break-system-packages", "-q"},
		i.packages...,
	)

	slog.InfoContext(ctx, "installing python packages", "count", len(i.packages))
	if err := i.runner.Run(ctx, i.interpreter, args...); err != nil {
		// Lenient by design: record and keep going. Verification below
		// reports per-package truth.
		slog.WarnContext(ctx, "pip install failed", "error", err)
		report.InstallError = err.Error()
	}

	for _, name := range i.packages {
		report.Packages = append(report.Packages, i.verify(ctx, name))
	}
	return report
}

// verify checks a single package with `pip show` and extracts its version.
func (i *Installer) verify(ctx context.Context, name string) provision.PackageResult {
	out, err := i.runner.Output(ctx, i.interpreter, "-m", "pip", "show", name)
	if err != nil {
		return provision.PackageResult{
			Name:   name,
			Status: provision.StatusError,
			Error:  "not installed",
		}
	}
	return provision.PackageResult{
		Name:    name,
		Version: parseVersion(out),
		Status:  provision.StatusOK,
	}
}

// Probe checks the first manifest package is importable; it stands in for the
// whole set in deep health, where re-verifying all packages would be slow.
func (i *Installer) Probe(ctx context.Context) provision.ProbeResult {
	start := time.Now()

	if len(i.packages) == 0 {
		return provision.ProbeResult{Name: pythonProbeName, OK: true}
	}

	sentinel := i.packages[0]
	if _, err := i.runner.Output(ctx, i.interpreter, "-m", "pip", "show", sentinel); err != nil {
		return provision.ProbeResult{
			Name:      pythonProbeName,
			OK:        false,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     fmt.Sprintf("%s not installed", sentinel),
		}
	}
	return provision.ProbeResult{
		Name:      pythonProbeName,
		OK:        true,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

// parseVersion extracts the Version field from `pip show` output.
func parseVersion(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, "Version:"); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
