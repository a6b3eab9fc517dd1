package provision

// Status values used across ProvisionResult, PhaseResult, and PackageResult.
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusInProgress = "in-progress"
	StatusSkipped    = "skipped"
	StatusPartial    = "partial"
)

// Phase names, in execution order.
const (
	PhaseRuntimeInstall = "runtime-install"
	PhaseRuntimeService = "runtime-service"
	PhaseModels         = "models"
	PhasePackages       = "python-packages"
	PhaseWorkspace      = "workspace"
)

// phaseOrder drives sequential execution and result rendering.
var phaseOrder = []string{
	PhaseRuntimeInstall,
	PhaseRuntimeService,
	PhaseModels,
	PhasePackages,
	PhaseWorkspace,
}

// ProvisionResult is the aggregate result of a full bootstrap run. Phases are
// written sequentially by a single goroutine, so no locking is needed.
//
// Status is "ok" when every phase succeeded, "partial" when only the lenient
// python-packages phase misbehaved, and "error" when a strict phase failed.
type ProvisionResult struct {
	Status string                 `json:"status"`
	Phases map[string]PhaseResult `json:"phases"`
}

// PhaseResult represents the outcome of a single bootstrap phase.
type PhaseResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ProbeResult is returned by RunDeepHealth for each probed target.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// PackageResult is the per-package outcome of the python install phase.
type PackageResult struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// PackageReport is the structured outcome of the python install phase. The
// phase never aborts the run; the report records what actually happened so
// the summary can surface it instead of discarding diagnostics.
type PackageReport struct {
	Packages []PackageResult `json:"packages"`
	// InstallError holds the pip invocation error, if the bulk install
	// command itself failed.
	InstallError string `json:"installError,omitempty"`
}

// Status derives the phase status from the per-package results: "ok" when
// every package is present, "error" when none are, "partial" otherwise.
func (r PackageReport) Status() string {
	if len(r.Packages) == 0 {
		if r.InstallError != "" {
			return StatusError
		}
		return StatusOK
	}

	present := 0
	for _, p := range r.Packages {
		if p.Status == StatusOK {
			present++
		}
	}
	switch present {
	case len(r.Packages):
		return StatusOK
	case 0:
		return StatusError
	default:
		return StatusPartial
	}
}

// Failed returns the names of packages that are not installed.
func (r PackageReport) Failed() []string {
	var failed []string
	for _, p := range r.Packages {
		if p.Status != StatusOK {
			failed = append(failed, p.Name)
		}
	}
	return failed
}

// Version returns the installed version of the named package, or "" if the
// package is missing from the report or failed to install.
func (r PackageReport) Version(name string) string {
	for _, p := range r.Packages {
		if p.Name == name && p.Status == StatusOK {
			return p.Version
		}
	}
	return ""
}
