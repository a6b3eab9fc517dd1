// Package sysprov provisions the host itself: runtime installation via a
// prioritized strategy chain, and runtime service supervision with a bounded
// readiness poll.
package sysprov

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"docdash/quartermaster/internal/config"
	"docdash/quartermaster/internal/execx"
)

// ErrNoInstallStrategy indicates no install strategy was usable on this host.
var ErrNoInstallStrategy = errors.New("sysprov: no install strategy available")

// installStrategy is one way of getting the runtime onto the host. Strategies
// are probed in order and the first available one is used.
type installStrategy struct {
	name      string
	available func(ctx context.Context) bool
	install   func(ctx context.Context) error
}

// Installer ensures the runtime binary is present, trying package helpers
// first and the vendor install script as a last resort.
type Installer struct {
	cfg    config.RuntimeConfig
	runner execx.Runner
}

// NewInstaller constructs an Installer using the given runner for all host
// interaction.
func NewInstaller(cfg config.RuntimeConfig, runner execx.Runner) *Installer {
	return &Installer{cfg: cfg, runner: runner}
}

// Ensure makes the runtime binary present. Already installed is success and
// is reported as such. Otherwise the first available strategy is run; its
// result is verified with a fresh presence probe so a lying installer cannot
// produce a false success.
func (i *Installer) Ensure(ctx context.Context) (string, error) {
	if i.installed(ctx) {
		return "already installed", nil
	}

	for _, s := range i.strategies() {
		if !s.available(ctx) {
			continue
		}

		slog.InfoContext(ctx, "installing runtime", "strategy", s.name, "package", i.cfg.Package)
		if err := s.install(ctx); err != nil {
			return "", fmt.Errorf("%s: %w", s.name, err)
		}
		if !i.installed(ctx) {
			return "", fmt.Errorf("%s finished but %s is still missing", s.name, i.cfg.Binary)
		}
		return "installed via " + s.name, nil
	}

	return "", ErrNoInstallStrategy
}

// installed probes for the runtime two ways: binary on PATH, then a package
// database query. The query catches installs whose binary lives outside the
// current PATH.
func (i *Installer) installed(ctx context.Context) bool {
	if _, err := i.runner.LookPath(i.cfg.Binary); err == nil {
		return true
	}
	if _, err := i.runner.LookPath("pacman"); err == nil {
		if err := i.runner.Run(ctx, "pacman", "-Qi", i.cfg.Package); err == nil {
			return true
		}
	}
	return false
}

// strategies returns the ordered chain: configured package helpers first,
// then the vendor install script fetched over HTTPS.
func (i *Installer) strategies() []installStrategy {
	var chain []installStrategy

	for _, helper := range i.cfg.AURHelpers {
		helper := helper
		chain = append(chain, installStrategy{
			name: helper,
			available: func(_ context.Context) bool {
				_, err := i.runner.LookPath(helper)
				return err == nil
			},
			install: func(ctx context.Context) error {
				return i.runner.Run(ctx, helper, "-S", "--noconfirm", i.cfg.Package)
			},
		})
	}

	chain = append(chain, installStrategy{
		name: "vendor-script",
		available: func(_ context.Context) bool {
			_, err := i.runner.LookPath("curl")
			return err == nil
		},
		install: func(ctx context.Context) error {
			return i.runner.RunShell(ctx, fmt.Sprintf("curl -fsSL %s | sh", i.cfg.InstallScriptURL))
		},
	})

	return chain
}
