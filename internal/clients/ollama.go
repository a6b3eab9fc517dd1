package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/sony/gobreaker"

	"docdash/quartermaster/internal/config"
	"docdash/quartermaster/internal/provision"
)

const (
	ollamaProbeName = "ollama"
	modelsProbeName = "model-cache"
)

// ollamaAPI is the subset of *api.Client used by OllamaClient. Defining an
// interface here allows test doubles to be injected without a live daemon.
type ollamaAPI interface {
	Version(ctx context.Context) (string, error)
	List(ctx context.Context) (*api.ListResponse, error)
	Pull(ctx context.Context, req *api.PullRequest, fn api.PullProgressFunc) error
}

// OllamaClient talks to the local model runtime over its HTTP API: version
// probing, model listing, and idempotent model pulls. All calls are wrapped
// in a circuit breaker.
type OllamaClient struct {
	cfg    config.RuntimeConfig
	models []string
	cb     *gobreaker.CircuitBreaker
	newAPI func() (ollamaAPI, error)
}

// NewOllamaClient constructs an OllamaClient for the manifest models. No
// connection is made at construction time; the API client is built lazily on
// first use.
func NewOllamaClient(cfg config.RuntimeConfig, models []string, cb *gobreaker.CircuitBreaker) *OllamaClient {
	c := &OllamaClient{
		cfg:    cfg,
		models: models,
		cb:     cb,
	}
	c.newAPI = c.realNewAPI
	return c
}

// realNewAPI builds the runtime API client from config. An empty Host defers
// to the client library's environment default (OLLAMA_HOST or localhost).
func (c *OllamaClient) realNewAPI() (ollamaAPI, error) {
	if c.cfg.Host == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("runtime client from environment: %w", err)
		}
		return client, nil
	}

	base, err := url.Parse(c.cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("parsing runtime host %q: %w", c.cfg.Host, err)
	}
	return api.NewClient(base, http.DefaultClient), nil
}

// Version returns the runtime's reported version.
func (c *OllamaClient) Version(ctx context.Context) (string, error) {
	v, err := c.cb.Execute(func() (any, error) {
		client, err := c.newAPI()
		if err != nil {
			return nil, err
		}
		return client.Version(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// EnsureModels pulls every manifest model that is not already in the local
// cache. Pulls of cached models are skipped outright rather than relying on
// the runtime's no-op behavior, which keeps re-runs cheap and visible in the
// returned detail. A pull failure fails the whole operation.
func (c *OllamaClient) EnsureModels(ctx context.Context) (string, error) {
	client, err := c.newAPI()
	if err != nil {
		return "", err
	}

	cached, err := c.listNames(ctx, client)
	if err != nil {
		return "", fmt.Errorf("listing local models: %w", err)
	}

	pulled := 0
	for _, model := range c.models {
		if hasModel(cached, model) {
			slog.InfoContext(ctx, "model already cached", "model", model)
			continue
		}
		if err := c.pull(ctx, client, model); err != nil {
			return "", fmt.Errorf("pulling %s: %w", model, err)
		}
		pulled++
	}

	return fmt.Sprintf("%d pulled, %d already cached", pulled, len(c.models)-pulled), nil
}

// pull streams a single model pull, logging status transitions so long
// downloads stay observable without flooding the log.
func (c *OllamaClient) pull(ctx context.Context, client ollamaAPI, model string) error {
	slog.InfoContext(ctx, "pulling model", "model", model)

	lastStatus := ""
	fn := func(resp api.ProgressResponse) error {
		if resp.Status != lastStatus {
			lastStatus = resp.Status
			slog.DebugContext(ctx, "pull progress",
				"model", model,
				"status", resp.Status,
				"total", resp.Total,
				"completed", resp.Completed,
			)
		}
		return nil
	}

	_, err := c.cb.Execute(func() (any, error) {
		return nil, client.Pull(ctx, &api.PullRequest{Model: model}, fn)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return errors.New("circuit open")
		}
		return err
	}

	slog.InfoContext(ctx, "model pulled", "model", model)
	return nil
}

// Probe checks the runtime API answers its version endpoint.
func (c *OllamaClient) Probe(ctx context.Context) provision.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.version(ctx)
	})

	return toProbe(ollamaProbeName, start, err)
}

// ProbeDirect checks the runtime API without the circuit breaker. The startup
// readiness poll expects consecutive failures while the daemon comes up;
// routing it through the breaker would open it mid-poll and mask the moment
// the runtime turns ready.
func (c *OllamaClient) ProbeDirect(ctx context.Context) provision.ProbeResult {
	start := time.Now()
	return toProbe(ollamaProbeName, start, c.version(ctx))
}

func (c *OllamaClient) version(ctx context.Context) error {
	client, err := c.newAPI()
	if err != nil {
		return err
	}
	if _, err := client.Version(ctx); err != nil {
		return fmt.Errorf("version: %w", err)
	}
	return nil
}

// ProbeModels checks every manifest model is present in the local cache.
func (c *OllamaClient) ProbeModels(ctx context.Context) provision.ProbeResult {
	start := time.Now()

	client, err := c.newAPI()
	if err != nil {
		return toProbe(modelsProbeName, start, err)
	}

	cached, err := c.listNames(ctx, client)
	if err != nil {
		return toProbe(modelsProbeName, start, fmt.Errorf("list: %w", err))
	}

	var missing []string
	for _, model := range c.models {
		if !hasModel(cached, model) {
			missing = append(missing, model)
		}
	}
	if len(missing) > 0 {
		return toProbe(modelsProbeName, start,
			fmt.Errorf("missing from cache: %s", strings.Join(missing, ", ")))
	}
	return toProbe(modelsProbeName, start, nil)
}

// listNames returns the set of locally cached model names. The list call goes
// through the breaker like every other runtime request.
func (c *OllamaClient) listNames(ctx context.Context, client ollamaAPI) (map[string]bool, error) {
	v, err := c.cb.Execute(func() (any, error) {
		return client.List(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, errors.New("circuit open")
		}
		return nil, err
	}
	resp := v.(*api.ListResponse)

	names := make(map[string]bool, len(resp.Models))
	for _, m := range resp.Models {
		names[m.Name] = true
	}
	return names, nil
}

// hasModel reports whether name is in the cached set. A manifest entry
// without a tag matches its :latest variant, mirroring the runtime's own
// name resolution.
func hasModel(cached map[string]bool, name string) bool {
	if cached[name] {
		return true
	}
	if !strings.Contains(name, ":") {
		return cached[name+":latest"]
	}
	return false
}

// toProbe folds a breaker-wrapped call into a ProbeResult, mapping the open
// state to a stable "circuit open" message.
func toProbe(name string, start time.Time, err error) provision.ProbeResult {
	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			errMsg = "circuit open"
		}
		return provision.ProbeResult{
			Name:      name,
			OK:        false,
			LatencyMs: latency,
			Error:     errMsg,
		}
	}

	return provision.ProbeResult{
		Name:      name,
		OK:        true,
		LatencyMs: latency,
	}
}
