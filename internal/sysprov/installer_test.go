package sysprov

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docdash/quartermaster/internal/config"
)

// fakeRunner is a programmable test double for execx.Runner.
type fakeRunner struct {
	// paths lists binaries that LookPath resolves.
	paths map[string]bool

	// runErrs maps a space-joined command line to its error. Commands not
	// present succeed.
	runErrs map[string]error

	// afterRun, when set, is invoked after every Run call — used to flip
	// installed-state mid test.
	afterRun func(cmdline string)

	runCalls   []string
	shellCalls []string
	shellErr   error

	detachedCalls []string
	detachedErr   error

	outputs map[string]string
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.paths[name] {
		return "/usr/bin/" + name, nil
	}
	return "", errors.New("executable file not found in $PATH")
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	cmdline := strings.Join(append([]string{name}, args...), " ")
	f.runCalls = append(f.runCalls, cmdline)
	err := f.runErrs[cmdline]
	if f.afterRun != nil {
		f.afterRun(cmdline)
	}
	return err
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) (string, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")
	if out, ok := f.outputs[cmdline]; ok {
		return out, nil
	}
	return "", errors.New("exit status 1")
}

func (f *fakeRunner) RunShell(_ context.Context, script string) error {
	f.shellCalls = append(f.shellCalls, script)
	return f.shellErr
}

func (f *fakeRunner) StartDetached(name string, args ...string) error {
	f.detachedCalls = append(f.detachedCalls, strings.Join(append([]string{name}, args...), " "))
	return f.detachedErr
}

func runtimeCfg() config.RuntimeConfig {
	return config.RuntimeConfig{
		Binary:           "ollama",
		Package:          "ollama",
		Service:          "ollama",
		AURHelpers:       []string{"yay", "paru"},
		InstallScriptURL: "https://ollama.com/install.sh",
	}
}

func TestInstallerEnsure_AlreadyOnPath(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{paths: map[string]bool{"ollama": true}}
	inst := NewInstaller(runtimeCfg(), runner)

	detail, err := inst.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "already installed", detail)
	assert.Empty(t, runner.runCalls, "no install command should run")
}

func TestInstallerEnsure_AlreadyInPackageDB(t *testing.T) {
	t.Parallel()

	// Binary not on PATH but the package database knows it.
	runner := &fakeRunner{paths: map[string]bool{"pacman": true}}
	inst := NewInstaller(runtimeCfg(), runner)

	detail, err := inst.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "already installed", detail)
	assert.Equal(t, []string{"pacman -Qi ollama"}, runner.runCalls)
}

func TestInstallerEnsure_FirstHelperWins(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{paths: map[string]bool{"yay": true, "paru": true}}
	// Simulate the install making the binary appear.
	runner.afterRun = func(cmdline string) {
		if cmdline == "yay -S --noconfirm ollama" {
			runner.paths["ollama"] = true
		}
	}
	inst := NewInstaller(runtimeCfg(), runner)

	detail, err := inst.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "installed via yay", detail)
	assert.Contains(t, runner.runCalls, "yay -S --noconfirm ollama")
	assert.NotContains(t, runner.runCalls, "paru -S --noconfirm ollama")
}

func TestInstallerEnsure_SecondHelperWhenFirstAbsent(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{paths: map[string]bool{"paru": true}}
	runner.afterRun = func(cmdline string) {
		if cmdline == "paru -S --noconfirm ollama" {
			runner.paths["ollama"] = true
		}
	}
	inst := NewInstaller(runtimeCfg(), runner)

	detail, err := inst.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "installed via paru", detail)
}

func TestInstallerEnsure_VendorScriptFallback(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{paths: map[string]bool{"curl": true}}
	inst := NewInstaller(runtimeCfg(), &scriptedRunner{fakeRunner: runner})

	detail, err := inst.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "installed via vendor-script", detail)
	require.Len(t, runner.shellCalls, 1)
	assert.Equal(t, "curl -fsSL https://ollama.com/install.sh | sh", runner.shellCalls[0])
}

// scriptedRunner makes the vendor script install the binary.
type scriptedRunner struct {
	*fakeRunner
}

func (s *scriptedRunner) RunShell(ctx context.Context, script string) error {
	err := s.fakeRunner.RunShell(ctx, script)
	if err == nil {
		s.paths["ollama"] = true
	}
	return err
}

func TestInstallerEnsure_NoStrategyAvailable(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{paths: map[string]bool{}}
	inst := NewInstaller(runtimeCfg(), runner)

	_, err := inst.Ensure(context.Background())
	assert.ErrorIs(t, err, ErrNoInstallStrategy)
}

func TestInstallerEnsure_HelperFailurePropagates(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		paths:   map[string]bool{"yay": true},
		runErrs: map[string]error{"yay -S --noconfirm ollama": errors.New("exit status 1")},
	}
	inst := NewInstaller(runtimeCfg(), runner)

	_, err := inst.Ensure(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yay")
}

func TestInstallerEnsure_LyingInstallerDetected(t *testing.T) {
	t.Parallel()

	// yay "succeeds" but the binary never appears.
	runner := &fakeRunner{paths: map[string]bool{"yay": true}}
	inst := NewInstaller(runtimeCfg(), runner)

	_, err := inst.Ensure(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still missing")
}
