// Package workspace ensures the dashboard's working directories exist.
package workspace

import (
	"fmt"
	"os"
	"strings"
	"time"

	"docdash/quartermaster/internal/provision"
)

const workspaceProbeName = "workspace"

// Workspace creates and probes the manifest directories. Paths are relative
// to the process working directory, which is where the dashboard expects
// them.
type Workspace struct {
	dirs []string
}

// New constructs a Workspace over the manifest directories.
func New(dirs []string) *Workspace {
	return &Workspace{dirs: dirs}
}

// Ensure creates every directory including missing parents. A directory that
// already exists is success, never an error.
func (w *Workspace) Ensure() (string, error) {
	created := 0
	for _, dir := range w.dirs {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating %s: %w", dir, err)
		}
		created++
	}

	if created == 0 {
		return "all directories present", nil
	}
	return fmt.Sprintf("created %d of %d directories", created, len(w.dirs)), nil
}

// Probe checks every manifest directory exists and is a directory.
func (w *Workspace) Probe() provision.ProbeResult {
	start := time.Now()

	var missing []string
	for _, dir := range w.dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			missing = append(missing, dir)
		}
	}

	result := provision.ProbeResult{
		Name:      workspaceProbeName,
		OK:        len(missing) == 0,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if len(missing) > 0 {
		result.Error = "missing: " + strings.Join(missing, ", ")
	}
	return result
}
