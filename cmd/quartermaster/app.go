package main

import (
	"context"
	"log/slog"

	"docdash/quartermaster/internal/api"
	"docdash/quartermaster/internal/clients"
	"docdash/quartermaster/internal/config"
	"docdash/quartermaster/internal/execx"
	"docdash/quartermaster/internal/provision"
	"docdash/quartermaster/internal/pypkg"
	"docdash/quartermaster/internal/sysprov"
	"docdash/quartermaster/internal/telemetry"
	"docdash/quartermaster/internal/workspace"
)

// AppContext holds all constructed application dependencies shared across
// subcommands. It is built once in PersistentPreRunE and referenced by
// server.go and bootstrap.go.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	runtime      *clients.OllamaClient
	provisioner  *provision.Provisioner
	router       *api.Router
}

// buildAppContext constructs all application dependencies from cfg:
//  1. Initialises the OTEL provider (best-effort, non-fatal)
//  2. Creates the runtime client behind a circuit breaker
//  3. Creates the five phase implementations
//  4. Creates the provisioner
//  5. Creates the HTTP router
func buildAppContext(cfg *config.Config) (*AppContext, error) {
	app := &AppContext{cfg: cfg}

	// OTEL is best-effort: a missing collector must never block a bootstrap.
	// When OTLPEndpoint is empty, telemetry is disabled entirely — the normal
	// case on a workstation with no collector running.
	if cfg.Telemetry.OTLPEndpoint == "" {
		slog.Debug("OTEL telemetry disabled (no endpoint configured)")
	} else {
		tp, err := telemetry.InitProvider(
			context.Background(),
			cfg.Telemetry.OTLPEndpoint,
			cfg.Telemetry.ServiceName,
			cfg.Telemetry.OTLPInsecure,
		)
		if err != nil {
			slog.Warn("OTEL provider init failed — telemetry disabled", "err", err)
		} else {
			app.otelProvider = tp
		}
	}

	runner := execx.NewSystemRunner()

	app.runtime = clients.NewOllamaClient(
		cfg.Bootstrap.Runtime,
		cfg.Bootstrap.Manifest.Models,
		clients.NewCircuitBreaker("ollama"),
	)

	installer := sysprov.NewInstaller(cfg.Bootstrap.Runtime, runner)
	supervisor := sysprov.NewService(
		cfg.Bootstrap.Runtime,
		runner,
		app.runtime,
		cfg.Bootstrap.RetryBackoff,
		cfg.Bootstrap.ReadinessTimeout,
	)
	packages := pypkg.NewInstaller(cfg.Bootstrap.Python, cfg.Bootstrap.Manifest.Packages, runner)
	dirs := workspace.New(cfg.Bootstrap.Manifest.Directories)

	app.provisioner = provision.New(installer, supervisor, app.runtime, packages, dirs)
	app.router = api.NewRouter(app.provisioner)

	return app, nil
}
