package sysprov

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docdash/quartermaster/internal/config"
	"docdash/quartermaster/internal/execx"
	"docdash/quartermaster/internal/provision"
)

// readinessProber reports whether the runtime API is accepting requests.
// Satisfied by *clients.OllamaClient. The poll uses the breaker-free probe:
// a daemon that is still coming up fails several probes in a row, and a
// breaker tripping on those would stop the poll from seeing it turn ready.
type readinessProber interface {
	ProbeDirect(ctx context.Context) provision.ProbeResult
}

// Service ensures the runtime daemon is active: systemd when present, a
// detached background process otherwise, followed by a bounded readiness
// poll against the runtime API.
type Service struct {
	cfg     config.RuntimeConfig
	runner  execx.Runner
	prober  readinessProber
	backoff time.Duration
	timeout time.Duration
}

// NewService constructs a Service. backoff is the interval between readiness
// probes; timeout bounds the whole poll.
func NewService(cfg config.RuntimeConfig, runner execx.Runner, prober readinessProber, backoff, timeout time.Duration) *Service {
	return &Service{
		cfg:     cfg,
		runner:  runner,
		prober:  prober,
		backoff: backoff,
		timeout: timeout,
	}
}

// Ensure makes the runtime service active and waits until its API answers.
// Already active still goes through the readiness poll — active per systemd
// does not yet mean accepting requests.
func (s *Service) Ensure(ctx context.Context) (string, error) {
	how := "already active"
	if !s.active(ctx) {
		started, err := s.start(ctx)
		if err != nil {
			return "", err
		}
		how = started
	}

	if err := s.awaitReady(ctx); err != nil {
		return "", err
	}
	return how, nil
}

// active reports whether the systemd unit is active. Without systemd the
// answer is always false and readiness is decided by the API poll alone.
func (s *Service) active(ctx context.Context) bool {
	if _, err := s.runner.LookPath("systemctl"); err != nil {
		return false
	}
	return s.runner.Run(ctx, "systemctl", "is-active", "--quiet", s.cfg.Service) == nil
}

// start brings the daemon up: enable-and-start via systemd when available,
// falling back to a detached `serve` process when systemd is missing or
// refuses (e.g. running unprivileged).
func (s *Service) start(ctx context.Context) (string, error) {
	if _, err := s.runner.LookPath("systemctl"); err == nil {
		if err := s.runner.Run(ctx, "systemctl", "enable", "--now", s.cfg.Service); err == nil {
			return "started via systemd", nil
		}
		slog.WarnContext(ctx, "systemctl enable failed, starting runtime directly", "service", s.cfg.Service)
	}

	if err := s.runner.StartDetached(s.cfg.Binary, "serve"); err != nil {
		return "", fmt.Errorf("starting %s serve: %w", s.cfg.Binary, err)
	}
	return "started as background process", nil
}

// awaitReady polls the runtime API until it answers or the timeout elapses.
func (s *Service) awaitReady(ctx context.Context) error {
	deadline := time.Now().Add(s.timeout)

	for {
		probe := s.prober.ProbeDirect(ctx)
		if probe.OK {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("runtime not ready after %s: %s", s.timeout, probe.Error)
		}

		slog.DebugContext(ctx, "runtime not ready yet", "error", probe.Error, "retry_in", s.backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff):
		}
	}
}
