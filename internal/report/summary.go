// Package report renders the operator-facing bootstrap summary.
package report

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"docdash/quartermaster/internal/provision"
)

const rule = "============================================================"

// Data is everything the summary needs. Zero values render as sensible
// fallbacks so a partially failed run still produces a useful block.
type Data struct {
	// RuntimeVersion is the runtime's reported version; empty renders the
	// generic "installed" fallback.
	RuntimeVersion string

	// Models are the manifest model identifiers.
	Models []string

	// Packages is the package report of the run; nil renders fallbacks.
	Packages *provision.PackageReport

	// Highlight names the packages whose versions the summary calls out.
	Highlight []string

	// SmokeTestModel is the model used in the printed smoke-test command.
	SmokeTestModel string
}

// Render writes the fixed-format summary block: what is installed, then the
// operator reminders (credential export, runtime smoke test, dashboard
// launch).
func Render(w io.Writer, d Data) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, " Document dashboard environment")
	fmt.Fprintln(w, rule)

	version := d.RuntimeVersion
	if version == "" {
		version = "installed"
	}
	fmt.Fprintf(w, " Runtime:   ollama %s\n", version)

	label := " Models:   "
	for _, model := range d.Models {
		fmt.Fprintf(w, "%s %s\n", label, model)
		label = "           "
	}

	label = " Packages: "
	for _, name := range d.Highlight {
		fmt.Fprintf(w, "%s %s %s\n", label, name, packageVersion(d.Packages, name))
		label = "           "
	}

	if failed := failedPackages(d.Packages); len(failed) > 0 {
		fmt.Fprintf(w, " Failed:    %s\n", strings.Join(failed, ", "))
	}

	smokeModel := d.SmokeTestModel
	if smokeModel == "" && len(d.Models) > 0 {
		smokeModel = d.Models[len(d.Models)-1]
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, " Next steps:")
	fmt.Fprintln(w, "   export ANTHROPIC_API_KEY=sk-ant-...   # required by the dashboard")
	if smokeModel != "" {
		fmt.Fprintf(w, "   ollama run %s \"hello\"   # smoke-test the runtime\n", smokeModel)
	}
	fmt.Fprintln(w, "   streamlit run app.py                  # launch the dashboard")
	fmt.Fprintln(w, rule)
}

// packageVersion returns the installed version or the generic fallback.
func packageVersion(report *provision.PackageReport, name string) string {
	if report == nil {
		return "installed"
	}
	if v := report.Version(name); v != "" {
		return v
	}
	if slices.Contains(report.Failed(), name) {
		return "NOT INSTALLED"
	}
	return "installed"
}

func failedPackages(report *provision.PackageReport) []string {
	if report == nil {
		return nil
	}
	return report.Failed()
}
