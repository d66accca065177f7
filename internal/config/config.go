package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all assistant configuration.
type Config struct {
	// Completion backend (Ollama-compatible)
	Ollama OllamaConfig `yaml:"ollama"`

	// Browser hosting the content panes
	Browser BrowserConfig `yaml:"browser"`

	// Pane URLs keyed by pane type (editor, playground, docs, manual)
	Panes map[string]string `yaml:"panes"`

	// Capability handshake
	Bridge BridgeConfig `yaml:"bridge"`

	// Conversation engine
	Chat ChatConfig `yaml:"chat"`

	// Persistence
	Storage StorageConfig `yaml:"storage"`

	// Local HTTP surface
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// OllamaConfig configures the completion transport.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout bounds the connectivity check only; streams are bounded by cancellation.
	Timeout string `yaml:"timeout"`
}

// BrowserConfig configures the Chrome instance that hosts panes.
type BrowserConfig struct {
	DebuggerURL       string   `yaml:"debugger_url"`
	Launch            []string `yaml:"launch"`
	Headless          bool     `yaml:"headless"`
	ViewportWidth     int      `yaml:"viewport_width"`
	ViewportHeight    int      `yaml:"viewport_height"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
	SessionStore      string   `yaml:"session_store"`
}

// BridgeConfig configures capability acquisition.
type BridgeConfig struct {
	PollInterval string `yaml:"poll_interval"`
	ReadyTimeout string `yaml:"ready_timeout"`
	// ContentTimeout bounds the wait for the peer's content-ready signal.
	ContentTimeout string `yaml:"content_timeout"`
	// AssumeLoadedWhenReachable treats a reachable peer as loaded when the
	// content-ready wait times out. Risky: capability calls may hit an
	// uninitialized peer.
	AssumeLoadedWhenReachable bool `yaml:"assume_loaded_when_reachable"`
}

// ChatConfig configures the conversation engine.
type ChatConfig struct {
	WindowSize     int    `yaml:"window_size"`
	Persist        bool   `yaml:"persist"`
	DefaultAgentID string `yaml:"default_agent"`
	AgentsFile     string `yaml:"agents_file"`
}

// StorageConfig selects the window store backend.
type StorageConfig struct {
	Backend      string `yaml:"backend"` // memory, sqlite
	DatabasePath string `yaml:"database_path"`
	SessionID    string `yaml:"session_id"`
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Timeout: "10s",
		},
		Browser: BrowserConfig{
			Headless:          true,
			ViewportWidth:     1440,
			ViewportHeight:    900,
			NavigationTimeout: "30s",
			SessionStore:      ".assistant/browser/sessions.json",
		},
		Panes: map[string]string{
			"editor":     "https://threejs.org/editor/",
			"playground": "https://threejs.org/examples/webgl_shader.html",
			"docs":       "https://threejs.org/docs/",
			"manual":     "https://threejs.org/manual/",
		},
		Bridge: BridgeConfig{
			PollInterval:   "100ms",
			ReadyTimeout:   "5s",
			ContentTimeout: "10s",
		},
		Chat: ChatConfig{
			WindowSize: 10,
			Persist:    true,
			AgentsFile: ".assistant/agents.yaml",
		},
		Storage: StorageConfig{
			Backend:      "memory",
			DatabasePath: ".assistant/assistant.db",
			SessionID:    "default",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:7420",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPath returns the default config location inside workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".assistant", "config.yaml")
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
			host = "http://" + host
		}
		c.Ollama.BaseURL = strings.TrimRight(host, "/")
	}
	if url := os.Getenv("ASSISTANT_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
	if path := os.Getenv("ASSISTANT_DB"); path != "" {
		c.Storage.DatabasePath = path
		c.Storage.Backend = "sqlite"
	}
	if path := os.Getenv("ASSISTANT_AGENTS"); path != "" {
		c.Chat.AgentsFile = path
	}
	if addr := os.Getenv("ASSISTANT_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if v := os.Getenv("ASSISTANT_PERSIST"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Chat.Persist = b
		}
	}
}

// ValidBackends lists the supported window store backends.
var ValidBackends = []string{"memory", "sqlite"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Ollama.BaseURL == "" {
		return fmt.Errorf("ollama.base_url cannot be empty")
	}
	if c.Chat.WindowSize <= 0 {
		return fmt.Errorf("chat.window_size must be > 0, got %d", c.Chat.WindowSize)
	}

	validBackend := false
	for _, b := range ValidBackends {
		if c.Storage.Backend == b {
			validBackend = true
			break
		}
	}
	if !validBackend {
		return fmt.Errorf("invalid storage backend: %s (valid: %v)", c.Storage.Backend, ValidBackends)
	}
	if c.Storage.Backend == "sqlite" && c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path required for sqlite backend")
	}

	if c.GetPollInterval() >= c.GetReadyTimeout() {
		return fmt.Errorf("bridge.poll_interval (%v) must be shorter than bridge.ready_timeout (%v)",
			c.GetPollInterval(), c.GetReadyTimeout())
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetOllamaTimeout returns the connectivity check timeout.
func (c *Config) GetOllamaTimeout() time.Duration {
	return parseDuration(c.Ollama.Timeout, 10*time.Second)
}

// GetPollInterval returns the readiness poll interval.
func (c *Config) GetPollInterval() time.Duration {
	return parseDuration(c.Bridge.PollInterval, 100*time.Millisecond)
}

// GetReadyTimeout returns the readiness handshake bound.
func (c *Config) GetReadyTimeout() time.Duration {
	return parseDuration(c.Bridge.ReadyTimeout, 5*time.Second)
}

// GetContentTimeout returns the content-ready wait bound.
func (c *Config) GetContentTimeout() time.Duration {
	return parseDuration(c.Bridge.ContentTimeout, 10*time.Second)
}

// GetNavigationTimeout returns the page navigation timeout.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Browser.NavigationTimeout, 30*time.Second)
}

// ResolvePath makes a workspace-relative path absolute.
func ResolvePath(workspace, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workspace, p)
}
