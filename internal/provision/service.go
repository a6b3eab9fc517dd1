package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// ErrProvisionInProgress is returned when Run is called while a bootstrap is
// already running.
var ErrProvisionInProgress = errors.New("bootstrap already in progress")

// RuntimeInstaller is satisfied by *sysprov.Installer.
type RuntimeInstaller interface {
	// Ensure makes the runtime binary present and returns a short
	// human-readable note on how (e.g. "already installed").
	Ensure(ctx context.Context) (string, error)
}

// ServiceSupervisor is satisfied by *sysprov.Service.
type ServiceSupervisor interface {
	// Ensure makes the runtime service active and ready to accept
	// requests, returning a note on how it was started.
	Ensure(ctx context.Context) (string, error)
}

// ModelEnsurer is satisfied by *clients.OllamaClient.
type ModelEnsurer interface {
	// EnsureModels pulls every manifest model not already cached.
	EnsureModels(ctx context.Context) (string, error)
	// Probe checks the runtime API is reachable.
	Probe(ctx context.Context) ProbeResult
	// ProbeModels checks every manifest model is cache-resident.
	ProbeModels(ctx context.Context) ProbeResult
}

// PackageProvisioner is satisfied by *pypkg.Installer.
type PackageProvisioner interface {
	// Install installs the manifest packages. It reports structured
	// per-package outcomes and never fails the run.
	Install(ctx context.Context) PackageReport
	// Probe checks a sentinel package is importable.
	Probe(ctx context.Context) ProbeResult
}

// WorkspaceEnsurer is satisfied by *workspace.Workspace.
type WorkspaceEnsurer interface {
	// Ensure creates the manifest directories; already-present is success.
	Ensure() (string, error)
	// Probe checks every manifest directory exists and is a directory.
	Probe() ProbeResult
}

// Provisioner runs the five bootstrap phases in strict order and serves
// health probes over the provisioned environment.
type Provisioner struct {
	installer  RuntimeInstaller
	supervisor ServiceSupervisor
	models     ModelEnsurer
	packages   PackageProvisioner
	workspace  WorkspaceEnsurer

	runInProgress atomic.Bool
	lastResult    *ProvisionResult
	lastReport    *PackageReport
	resultMu      sync.RWMutex
}

// New constructs a Provisioner with the given phase implementations. The
// concrete types in clients, sysprov, pypkg, and workspace satisfy the
// interfaces defined in this package.
func New(installer RuntimeInstaller, supervisor ServiceSupervisor, models ModelEnsurer, packages PackageProvisioner, ws WorkspaceEnsurer) *Provisioner {
	return &Provisioner{
		installer:  installer,
		supervisor: supervisor,
		models:     models,
		packages:   packages,
		workspace:  ws,
	}
}

// Run executes the bootstrap phases sequentially. A failure in a strict phase
// (everything except python-packages) stops the run; the remaining phases are
// recorded as skipped. The python-packages phase records ok/partial/error and
// never stops the run. Returns ErrProvisionInProgress if a run is already
// active.
func (p *Provisioner) Run(ctx context.Context) (*ProvisionResult, error) {
	if !p.runInProgress.CompareAndSwap(false, true) {
		return nil, ErrProvisionInProgress
	}
	defer p.runInProgress.Store(false)
	return p.run(ctx), nil
}

// RunAsync starts a bootstrap run in a background goroutine. The overlap
// check happens synchronously, before this returns, so two concurrent callers
// cannot both be told a run was started.
func (p *Provisioner) RunAsync(ctx context.Context) error {
	if !p.runInProgress.CompareAndSwap(false, true) {
		return ErrProvisionInProgress
	}
	go func() {
		defer p.runInProgress.Store(false)
		p.run(ctx)
	}()
	return nil
}

// run executes the phases. The caller holds the runInProgress flag.
func (p *Provisioner) run(ctx context.Context) *ProvisionResult {
	result := &ProvisionResult{
		Status: StatusInProgress,
		Phases: make(map[string]PhaseResult, len(phaseOrder)),
	}

	ctx, span := otel.Tracer("quartermaster").Start(ctx, "quartermaster.bootstrap")
	defer span.End()

	slog.InfoContext(ctx, "bootstrap started")

	var report PackageReport
	aborted := false

	for _, name := range phaseOrder {
		if aborted {
			result.Phases[name] = PhaseResult{
				Name:   name,
				Status: StatusSkipped,
				Detail: "not attempted",
			}
			continue
		}

		var phase PhaseResult
		switch name {
		case PhaseRuntimeInstall:
			phase = ensureToPhase(name)(p.installer.Ensure(ctx))
		case PhaseRuntimeService:
			phase = ensureToPhase(name)(p.supervisor.Ensure(ctx))
		case PhaseModels:
			phase = ensureToPhase(name)(p.models.EnsureModels(ctx))
		case PhasePackages:
			report = p.packages.Install(ctx)
			phase = packagesToPhase(report)
		case PhaseWorkspace:
			phase = ensureToPhase(name)(p.workspace.Ensure())
		}

		logPhase(ctx, phase)
		result.Phases[name] = phase

		// python-packages is the one lenient phase: its failures are
		// surfaced, never fatal.
		if phase.Status == StatusError && name != PhasePackages {
			aborted = true
		}
	}

	result.Status = overallStatus(result.Phases)

	span.SetAttributes(attribute.String("bootstrap.status", result.Status))
	if result.Status == StatusError {
		span.SetStatus(codes.Error, "one or more bootstrap phases failed")
		slog.WarnContext(ctx, "bootstrap completed with errors", "status", result.Status)
	} else {
		span.SetStatus(codes.Ok, "")
		slog.InfoContext(ctx, "bootstrap completed", "status", result.Status)
	}

	p.resultMu.Lock()
	p.lastResult = result
	p.lastReport = &report
	p.resultMu.Unlock()

	return result
}

// RunDeepHealth probes the runtime API, the model cache, the python
// environment, and the workspace concurrently and returns a map of target
// name to ProbeResult.
func (p *Provisioner) RunDeepHealth(ctx context.Context) map[string]ProbeResult {
	results := make(map[string]ProbeResult, 4)
	var mu sync.Mutex
	var g errgroup.Group

	record := func(name string, probe ProbeResult) {
		mu.Lock()
		results[name] = probe
		mu.Unlock()
	}

	g.Go(func() error {
		record("runtime", p.models.Probe(ctx))
		return nil
	})

	g.Go(func() error {
		record("models", p.models.ProbeModels(ctx))
		return nil
	})

	g.Go(func() error {
		record("python", p.packages.Probe(ctx))
		return nil
	})

	g.Go(func() error {
		record("workspace", p.workspace.Probe())
		return nil
	})

	// g.Wait() never returns an error because all goroutines return nil.
	_ = g.Wait()
	return results
}

// IsRunInProgress returns true while a bootstrap run is active.
func (p *Provisioner) IsRunInProgress() bool {
	return p.runInProgress.Load()
}

// IsReady returns true if the last bootstrap completed without a strict-phase
// failure.
func (p *Provisioner) IsReady() bool {
	p.resultMu.RLock()
	defer p.resultMu.RUnlock()
	return p.lastResult != nil && p.lastResult.Status != StatusError &&
		p.lastResult.Status != StatusInProgress
}

// LastResult returns the result of the most recent bootstrap run, or nil if
// no run has completed. Callers poll it after triggering an async run.
func (p *Provisioner) LastResult() *ProvisionResult {
	p.resultMu.RLock()
	defer p.resultMu.RUnlock()
	return p.lastResult
}

// LastPackageReport returns the package report of the most recent run, or nil
// if no run has completed. The summary renderer uses it to surface versions
// and failures.
func (p *Provisioner) LastPackageReport() *PackageReport {
	p.resultMu.RLock()
	defer p.resultMu.RUnlock()
	return p.lastReport
}

// overallStatus folds phase statuses into a run status: any strict-phase
// error → "error"; a misbehaving python-packages phase alone → "partial".
func overallStatus(phases map[string]PhaseResult) string {
	status := StatusOK
	for name, phase := range phases {
		if name == PhasePackages {
			if phase.Status != StatusOK {
				if status == StatusOK {
					status = StatusPartial
				}
			}
			continue
		}
		if phase.Status == StatusError {
			return StatusError
		}
	}
	return status
}

// logPhase emits a trace-correlated log for a bootstrap phase result.
// Errors log at WARN so they are visible without being fatal here; fatality
// is decided by the phase loop holder.
func logPhase(ctx context.Context, p PhaseResult) {
	if p.Status == StatusError {
		slog.WarnContext(ctx, "bootstrap phase failed", "phase", p.Name, "error", p.Error)
		return
	}
	slog.InfoContext(ctx, "bootstrap phase done", "phase", p.Name, "status", p.Status, "detail", p.Detail)
}

// ensureToPhase converts an Ensure-style (detail, err) return into a
// PhaseResult for the named phase.
func ensureToPhase(name string) func(string, error) PhaseResult {
	return func(detail string, err error) PhaseResult {
		if err != nil {
			return PhaseResult{Name: name, Status: StatusError, Error: err.Error()}
		}
		return PhaseResult{Name: name, Status: StatusOK, Detail: detail}
	}
}

// packagesToPhase converts a PackageReport into the python-packages phase
// result, folding failed package names into the detail line.
func packagesToPhase(report PackageReport) PhaseResult {
	phase := PhaseResult{
		Name:   PhasePackages,
		Status: report.Status(),
		Detail: fmt.Sprintf("%d of %d packages installed", len(report.Packages)-len(report.Failed()), len(report.Packages)),
	}
	if failed := report.Failed(); len(failed) > 0 {
		phase.Error = "not installed: " + strings.Join(failed, ", ")
	}
	if report.InstallError != "" {
		if phase.Error != "" {
			phase.Error += "; "
		}
		phase.Error += "pip: " + report.InstallError
	}
	return phase
}
