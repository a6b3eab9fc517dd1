package clients

import (
	"context"
	"errors"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docdash/quartermaster/internal/config"
)

// mockOllamaAPI is a test double for ollamaAPI.
type mockOllamaAPI struct {
	version      string
	versionErr   error
	versionCalls int

	listed    []string
	listErr   error
	listCalls int

	pullErrs map[string]error
	pulled   []string
}

func (m *mockOllamaAPI) Version(_ context.Context) (string, error) {
	m.versionCalls++
	return m.version, m.versionErr
}

func (m *mockOllamaAPI) List(_ context.Context) (*api.ListResponse, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	resp := &api.ListResponse{}
	for _, name := range m.listed {
		resp.Models = append(resp.Models, api.ListModelResponse{Name: name, Model: name})
	}
	return resp, nil
}

func (m *mockOllamaAPI) Pull(_ context.Context, req *api.PullRequest, fn api.PullProgressFunc) error {
	if err := m.pullErrs[req.Model]; err != nil {
		return err
	}
	// Exercise the progress callback the way the real client does.
	if err := fn(api.ProgressResponse{Status: "pulling manifest"}); err != nil {
		return err
	}
	if err := fn(api.ProgressResponse{Status: "success", Total: 100, Completed: 100}); err != nil {
		return err
	}
	m.pulled = append(m.pulled, req.Model)
	return nil
}

func newTestClient(t *testing.T, mock *mockOllamaAPI, models ...string) *OllamaClient {
	t.Helper()
	c := NewOllamaClient(config.RuntimeConfig{}, models, NewCircuitBreaker("ollama-test-"+t.Name()))
	c.newAPI = func() (ollamaAPI, error) { return mock, nil }
	return c
}

func TestEnsureModels_PullsOnlyMissing(t *testing.T) {
	t.Parallel()

	mock := &mockOllamaAPI{listed: []string{"qwen2.5-coder:7b"}}
	c := newTestClient(t, mock, "qwen2.5-coder:7b", "llama3.1:8b")

	detail, err := c.EnsureModels(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"llama3.1:8b"}, mock.pulled)
	assert.Equal(t, "1 pulled, 1 already cached", detail)
}

func TestEnsureModels_AllCachedIsNoop(t *testing.T) {
	t.Parallel()

	mock := &mockOllamaAPI{listed: []string{"qwen2.5-coder:7b", "llama3.1:8b"}}
	c := newTestClient(t, mock, "qwen2.5-coder:7b", "llama3.1:8b")

	detail, err := c.EnsureModels(context.Background())
	require.NoError(t, err)

	assert.Empty(t, mock.pulled)
	assert.Equal(t, "0 pulled, 2 already cached", detail)
}

func TestEnsureModels_UntaggedManifestMatchesLatest(t *testing.T) {
	t.Parallel()

	mock := &mockOllamaAPI{listed: []string{"nomic-embed-text:latest"}}
	c := newTestClient(t, mock, "nomic-embed-text")

	_, err := c.EnsureModels(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mock.pulled)
}

func TestEnsureModels_PullFailureIsFatal(t *testing.T) {
	t.Parallel()

	mock := &mockOllamaAPI{
		pullErrs: map[string]error{"llama3.1:8b": errors.New("connection refused")},
	}
	c := newTestClient(t, mock, "llama3.1:8b")

	_, err := c.EnsureModels(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pulling llama3.1:8b")
}

func TestProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mock       *mockOllamaAPI
		wantOK     bool
		wantErrSub string
	}{
		{
			name:   "success",
			mock:   &mockOllamaAPI{version: "0.5.7"},
			wantOK: true,
		},
		{
			name:       "failure — version errors",
			mock:       &mockOllamaAPI{versionErr: errors.New("connection refused")},
			wantOK:     false,
			wantErrSub: "connection refused",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, tc.mock, "llama3.1:8b")
			result := c.Probe(context.Background())

			assert.Equal(t, ollamaProbeName, result.Name)
			assert.Equal(t, tc.wantOK, result.OK)
			if tc.wantErrSub != "" {
				assert.Contains(t, result.Error, tc.wantErrSub)
			}
		})
	}
}

func TestProbeModels_ReportsMissing(t *testing.T) {
	t.Parallel()

	mock := &mockOllamaAPI{listed: []string{"qwen2.5-coder:7b"}}
	c := newTestClient(t, mock, "qwen2.5-coder:7b", "llama3.1:8b")

	result := c.ProbeModels(context.Background())

	assert.Equal(t, modelsProbeName, result.Name)
	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "llama3.1:8b")
	assert.NotContains(t, result.Error, "qwen2.5-coder")
}

func TestProbeCircuitBreaker_OpensAfterFiveFailures(t *testing.T) {
	t.Parallel()

	mock := &mockOllamaAPI{versionErr: errors.New("connection refused")}
	c := newTestClient(t, mock, "llama3.1:8b")

	// Five consecutive failures should trip the breaker.
	for i := range 5 {
		result := c.Probe(context.Background())
		assert.False(t, result.OK, "probe %d should fail", i+1)
		assert.NotEqual(t, "circuit open", result.Error,
			"probe %d should not be circuit-open yet", i+1)
	}

	// The 6th call must be rejected immediately by the open breaker.
	result := c.Probe(context.Background())
	assert.False(t, result.OK)
	assert.Equal(t, "circuit open", result.Error)
}

func TestProbeDirect_SeesRecoveryAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	// A cold daemon refuses connections until it is up. The direct probe
	// must keep contacting it on every call, even past the count that would
	// trip the breaker.
	mock := &mockOllamaAPI{versionErr: errors.New("connection refused")}
	c := newTestClient(t, mock, "llama3.1:8b")

	for i := range 5 {
		result := c.ProbeDirect(context.Background())
		assert.False(t, result.OK, "probe %d should fail", i+1)
	}

	mock.versionErr = nil
	mock.version = "0.5.7"

	result := c.ProbeDirect(context.Background())
	assert.True(t, result.OK, "recovery must be seen on the next probe")
	assert.Equal(t, 6, mock.versionCalls, "every probe must reach the runtime")
}

func TestProbeDirect_BypassesOpenBreaker(t *testing.T) {
	t.Parallel()

	mock := &mockOllamaAPI{versionErr: errors.New("connection refused")}
	c := newTestClient(t, mock, "llama3.1:8b")

	// Trip the breaker with wrapped probes.
	for range 5 {
		c.Probe(context.Background())
	}
	mock.versionErr = nil
	mock.version = "0.5.7"

	assert.Equal(t, "circuit open", c.Probe(context.Background()).Error)
	assert.True(t, c.ProbeDirect(context.Background()).OK,
		"direct probe must not be gated by the open breaker")
}

func TestEnsureModels_ListRejectedByOpenBreaker(t *testing.T) {
	t.Parallel()

	mock := &mockOllamaAPI{versionErr: errors.New("connection refused")}
	c := newTestClient(t, mock, "llama3.1:8b")

	for range 5 {
		c.Probe(context.Background())
	}

	_, err := c.EnsureModels(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Zero(t, mock.listCalls, "open breaker must reject the list call")
}

func TestVersion(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &mockOllamaAPI{version: "0.5.7"})
	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.5.7", v)
}
