package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"docdash/quartermaster/internal/provision"
	"docdash/quartermaster/internal/report"

	"github.com/spf13/cobra"
)

// summaryPackages are the manifest packages whose versions the final summary
// calls out individually.
var summaryPackages = []string{"chromadb", "anthropic"}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Run the one-shot environment bootstrap and exit",
	Long: `Bootstrap runs the five provisioning phases in order: runtime install,
runtime service, model pulls, python packages, working directories.

The command runs once, prints a JSON phase result followed by a human
summary, and exits 0 on success (including partial python-package
installs) or non-zero when a strict phase fails.`,
	RunE: runBootstrap,
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Bootstrap.Timeout)
	defer cancel()

	if app.otelProvider != nil {
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			if err := app.otelProvider.Shutdown(shutCtx); err != nil {
				slog.Warn("OTEL shutdown error", "err", err)
			}
		}()
	}

	slog.Info("starting bootstrap")

	result, err := app.provisioner.Run(ctx)
	if err != nil {
		printResult("error", err.Error())
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	printProvisionResult(result)

	if result.Status == provision.StatusError {
		return fmt.Errorf("bootstrap completed with errors")
	}

	printSummary(ctx)
	slog.Info("bootstrap completed", "status", result.Status)
	return nil
}

// printSummary renders the operator summary block. The runtime version query
// is best-effort: a generic "installed" fallback is rendered if it fails.
func printSummary(ctx context.Context) {
	versionCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	version, err := app.runtime.Version(versionCtx)
	if err != nil {
		slog.Debug("runtime version query failed", "err", err)
	}

	report.Render(os.Stdout, report.Data{
		RuntimeVersion: version,
		Models:         cfg.Bootstrap.Manifest.Models,
		Packages:       app.provisioner.LastPackageReport(),
		Highlight:      summaryPackages,
	})
}

func printProvisionResult(result *provision.ProvisionResult) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stdout, `{"status":%q}`+"\n", result.Status)
	}
}

func printResult(status, errMsg string) {
	result := map[string]string{"status": status}
	if errMsg != "" {
		result["error"] = errMsg
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		// Fallback to plain text if JSON encoding somehow fails.
		fmt.Fprintf(os.Stdout, `{"status":%q}`+"\n", status)
	}
}
