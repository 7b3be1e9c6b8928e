// Package config resolves the bridge's runtime configuration from
// environment variables, an optional YAML override file, and built-in
// defaults.
//
// Precedence (lowest to highest): built-in defaults, YAML file (if
// provided), environment variables. Environment variables win last so a
// launching editor can always pin the socket path without needing to edit
// a file on disk.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultDebounceInterval resolves the spec's Open Question on the
	// aggregator's notification pacing: reported as 50ms in one source and
	// 150ms in another, this picks 200ms, inside the recommended
	// 150-300ms range.
	DefaultDebounceInterval = 200 * time.Millisecond

	// DefaultKeepAliveInterval is the default 60s cadence at which the
	// Session Hub pings every live session.
	DefaultKeepAliveInterval = 60 * time.Second

	// DefaultMaxMissedPings is the number of consecutive failed pings
	// after which a session is abandoned.
	DefaultMaxMissedPings = 3

	// DefaultIDEName is used for the env-script filename and its editor
	// export when no editor identifier is supplied.
	DefaultIDEName = "nvim"
)

// Config is the fully-resolved set of inputs the bridge needs to start.
type Config struct {
	// EditorSocketPath is the required path/URI to the editor's RPC
	// socket, read from the environment.
	EditorSocketPath string

	// EditorPID is the optional editor process id, read from the
	// environment but not otherwise used; the bridge's own pid is what's
	// embedded in descriptor filenames.
	EditorPID int

	// WorkspacePath defaults to the current working directory.
	WorkspacePath string

	// IDEName is the short editor-identifier flag written into the
	// env-script filename and contents, and advertised as the
	// descriptor's ideInfo.
	IDEName string

	// Debug switches the logger to a development (console) encoder.
	Debug bool

	// TrustWorkspace seeds IdeContext.workspaceState.isTrusted.
	TrustWorkspace bool

	DebounceInterval  time.Duration
	KeepAliveInterval time.Duration
	MaxMissedPings    int

	// TempDir defaults to os.TempDir() and may be set by the YAML tempDir
	// key. The discovery publisher does not read it: it always creates
	// "gemini/ide/" under os.TempDir().
	TempDir string
}

// fileOverrides is the subset of Config that may be supplied via YAML; it
// deliberately excludes inputs (socket path, pid) that only make sense
// coming from the process environment at launch time.
type fileOverrides struct {
	WorkspacePath     string `yaml:"workspacePath"`
	IDEName           string `yaml:"ideName"`
	Debug             *bool  `yaml:"debug"`
	TrustWorkspace    *bool  `yaml:"trustWorkspace"`
	DebounceMillis    *int   `yaml:"debounceMillis"`
	KeepAliveSeconds  *int   `yaml:"keepAliveSeconds"`
	MaxMissedPings    *int   `yaml:"maxMissedPings"`
	TempDir           string `yaml:"tempDir"`
}

// Load resolves Config from the process environment, applying overrides
// from configPath (if non-empty) before env vars so that env vars always
// win.
func Load(configPath string) (Config, error) {
	cfg := Config{
		IDEName:           DefaultIDEName,
		DebounceInterval:  DefaultDebounceInterval,
		KeepAliveInterval: DefaultKeepAliveInterval,
		MaxMissedPings:    DefaultMaxMissedPings,
		TempDir:           os.TempDir(),
	}

	if wd, err := os.Getwd(); err == nil {
		cfg.WorkspacePath = wd
	}

	if configPath != "" {
		if err := applyFile(&cfg, configPath); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if cfg.EditorSocketPath == "" {
		return Config{}, fmt.Errorf("missing required environment variable for the editor RPC socket path")
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %q: %w", path, err)
	}
	var overrides fileOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if overrides.WorkspacePath != "" {
		cfg.WorkspacePath = overrides.WorkspacePath
	}
	if overrides.IDEName != "" {
		cfg.IDEName = overrides.IDEName
	}
	if overrides.Debug != nil {
		cfg.Debug = *overrides.Debug
	}
	if overrides.TrustWorkspace != nil {
		cfg.TrustWorkspace = *overrides.TrustWorkspace
	}
	if overrides.DebounceMillis != nil {
		cfg.DebounceInterval = time.Duration(*overrides.DebounceMillis) * time.Millisecond
	}
	if overrides.KeepAliveSeconds != nil {
		cfg.KeepAliveInterval = time.Duration(*overrides.KeepAliveSeconds) * time.Second
	}
	if overrides.MaxMissedPings != nil {
		cfg.MaxMissedPings = *overrides.MaxMissedPings
	}
	if overrides.TempDir != "" {
		cfg.TempDir = overrides.TempDir
	}
	return nil
}

// Environment variable names. IDE_BRIDGE_SOCKET_PATH is the one required
// input; everything else has a default.
const (
	envSocketPath     = "IDE_BRIDGE_SOCKET_PATH"
	envEditorPID      = "IDE_BRIDGE_EDITOR_PID"
	envWorkspacePath  = "IDE_BRIDGE_WORKSPACE_PATH"
	envIDEName        = "IDE_BRIDGE_IDE_NAME"
	envDebug          = "IDE_BRIDGE_DEBUG"
	envTrustWorkspace = "IDE_BRIDGE_TRUST_WORKSPACE"
)

func applyEnv(cfg *Config) {
	if v := os.Getenv(envSocketPath); v != "" {
		cfg.EditorSocketPath = v
	}
	if v := os.Getenv(envEditorPID); v != "" {
		if pid, err := strconv.Atoi(v); err == nil {
			cfg.EditorPID = pid
		}
	}
	if v := os.Getenv(envWorkspacePath); v != "" {
		cfg.WorkspacePath = v
	}
	if v := os.Getenv(envIDEName); v != "" {
		cfg.IDEName = v
	}
	if v := os.Getenv(envDebug); v != "" {
		cfg.Debug = v == "1" || v == "true"
	}
	if v := os.Getenv(envTrustWorkspace); v != "" {
		cfg.TrustWorkspace = v == "1" || v == "true"
	}
}
