package provision

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackageReport_Status(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		report PackageReport
		want   string
	}{
		{
			name:   "empty report is ok",
			report: PackageReport{},
			want:   StatusOK,
		},
		{
			name:   "empty report with install error",
			report: PackageReport{InstallError: "pip exited 1"},
			want:   StatusError,
		},
		{
			name: "all present",
			report: PackageReport{Packages: []PackageResult{
				{Name: "chromadb", Status: StatusOK},
				{Name: "pypdf", Status: StatusOK},
			}},
			want: StatusOK,
		},
		{
			name: "none present",
			report: PackageReport{Packages: []PackageResult{
				{Name: "chromadb", Status: StatusError},
				{Name: "pypdf", Status: StatusError},
			}},
			want: StatusError,
		},
		{
			name: "mixed",
			report: PackageReport{Packages: []PackageResult{
				{Name: "chromadb", Status: StatusOK},
				{Name: "pypdf", Status: StatusError},
			}},
			want: StatusPartial,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.report.Status())
		})
	}
}

func TestPackageReport_FailedAndVersion(t *testing.T) {
	t.Parallel()

	report := PackageReport{Packages: []PackageResult{
		{Name: "chromadb", Version: "0.5.5", Status: StatusOK},
		{Name: "anthropic", Version: "0.34.0", Status: StatusOK},
		{Name: "tiktoken", Status: StatusError, Error: "build failed"},
	}}

	assert.Equal(t, []string{"tiktoken"}, report.Failed())
	assert.Equal(t, "0.5.5", report.Version("chromadb"))
	assert.Empty(t, report.Version("tiktoken"), "failed packages have no version")
	assert.Empty(t, report.Version("unknown"))
}

func TestProvisionResult_JSONShape(t *testing.T) {
	t.Parallel()

	result := &ProvisionResult{
		Status: StatusOK,
		Phases: map[string]PhaseResult{
			PhaseModels: {Name: PhaseModels, Status: StatusOK, Detail: "2 models cached"},
		},
	}

	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "ok", decoded["status"])

	phases, ok := decoded["phases"].(map[string]any)
	require.True(t, ok)
	phase, ok := phases[PhaseModels].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2 models cached", phase["detail"])
	// Empty error fields must not appear on the wire.
	assert.NotContains(t, phase, "error")
}
