package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for quartermaster.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
}

type BootstrapConfig struct {
	// RetryBackoff is the interval between readiness probes while waiting
	// for the runtime service to come up.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`

	// ReadinessTimeout bounds the readiness poll after the service start
	// command has been issued.
	ReadinessTimeout time.Duration `mapstructure:"readiness_timeout"`

	// Timeout bounds a whole bootstrap run. Model pulls dominate, so the
	// default is generous.
	Timeout time.Duration `mapstructure:"timeout"`

	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	Python   PythonConfig   `mapstructure:"python"`
	Manifest ManifestConfig `mapstructure:"manifest"`
}

// RuntimeConfig locates and names the local model-serving runtime.
type RuntimeConfig struct {
	// Binary is the runtime executable probed on PATH.
	Binary string `mapstructure:"binary"`

	// Package is the distro package name queried and installed.
	Package string `mapstructure:"package"`

	// Service is the systemd unit that runs the runtime daemon.
	Service string `mapstructure:"service"`

	// Host overrides the runtime API address. Empty means the client's
	// environment default (OLLAMA_HOST or 127.0.0.1:11434).
	Host string `mapstructure:"host"`

	// AURHelpers are package-helper binaries tried in order before
	// falling back to the vendor install script.
	AURHelpers []string `mapstructure:"aur_helpers"`

	// InstallScriptURL is the vendor install script used when no package
	// helper is available.
	InstallScriptURL string `mapstructure:"install_script_url"`
}

// PythonConfig selects the interpreter used for package installation.
type PythonConfig struct {
	Interpreter string `mapstructure:"interpreter"`
}

// ManifestConfig is the declarative provisioning manifest: everything the
// bootstrapper ensures is present. Values are substitutable in tests and via
// config without touching provisioning logic.
type ManifestConfig struct {
	Models      []string `mapstructure:"models"`
	Packages    []string `mapstructure:"packages"`
	Directories []string `mapstructure:"directories"`
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the QUARTERMASTER_ prefix
// (e.g. QUARTERMASTER_SERVER_PORT).
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("QUARTERMASTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8095)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "quartermaster")
	v.SetDefault("telemetry.log_level", "info")

	v.SetDefault("bootstrap.retry_backoff", 2*time.Second)
	v.SetDefault("bootstrap.readiness_timeout", 30*time.Second)
	v.SetDefault("bootstrap.timeout", 45*time.Minute)

	v.SetDefault("bootstrap.runtime.binary", "ollama")
	v.SetDefault("bootstrap.runtime.package", "ollama")
	v.SetDefault("bootstrap.runtime.service", "ollama")
	v.SetDefault("bootstrap.runtime.host", "")
	v.SetDefault("bootstrap.runtime.aur_helpers", []string{"yay", "paru"})
	v.SetDefault("bootstrap.runtime.install_script_url", "https://ollama.com/install.sh")

	v.SetDefault("bootstrap.python.interpreter", "python3")

	v.SetDefault("bootstrap.manifest.models", []string{
		"qwen2.5-coder:7b",
		"llama3.1:8b",
	})
	v.SetDefault("bootstrap.manifest.packages", []string{
		"chromadb",
		"ollama",
		"anthropic",
		"langchain",
		"langchain-text-splitters",
		"langchain-community",
		"sentence-transformers",
		"python-docx",
		"pypdf",
		"openpyxl",
		"tiktoken",
	})
	v.SetDefault("bootstrap.manifest.directories", []string{
		"data/vectorstore",
		"data/ingest",
		"ingest_inbox",
		"logs",
	})
}
