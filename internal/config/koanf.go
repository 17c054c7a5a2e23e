package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where a kismet config file is searched,
// in order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"kismet.yaml",
	"kismet.yml",
	"/etc/kismet/kismet.yaml",
	"/usr/local/etc/kismet/kismet.yaml",
}

// ConfigPathEnvVar is the environment variable that overrides the config
// file path, mirroring the original KISMET_CONF lookup.
const ConfigPathEnvVar = "KISMET_CONF"

// Config is the process-wide configuration consulted by the orchestrator.
// It is deliberately flat: the core has no nested business configuration,
// just the knobs §6 of the core design names.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Loop     LoopConfig     `koanf:"loop"`
	IPC      IPCConfig      `koanf:"ipc"`
	Console  ConsoleConfig  `koanf:"console"`
	Logging  LoggingConfig  `koanf:"logging"`
	Registry RegistryConfig `koanf:"registry"`
}

// ServerConfig covers the core's own identity and HTTP status surface.
type ServerConfig struct {
	Name        string        `koanf:"name"`
	HTTPAddr    string        `koanf:"http_addr"`
	PIDFile     string        `koanf:"pid_file"`
	Daemonize   bool          `koanf:"daemonize"`
	Debug       bool          `koanf:"debug"`
	Silent      bool          `koanf:"silent"`
	NoLineWrap  bool          `koanf:"no_line_wrap"`
	ShutdownDur time.Duration `koanf:"shutdown_timeout"`
}

// LoopConfig configures the select-style event loop (internal/loop).
type LoopConfig struct {
	SelectTimeout    time.Duration `koanf:"select_timeout"`
	BootstrapTimeout time.Duration `koanf:"bootstrap_timeout"`
	DrainTimeout     time.Duration `koanf:"drain_timeout"`
}

// IPCConfig configures the privilege-split capture-helper bootstrap.
type IPCConfig struct {
	HelperPath     string        `koanf:"helper_path"`
	MaxPayload     int           `koanf:"max_payload"`
	RestartBackoff time.Duration `koanf:"restart_backoff"`
}

// ConsoleConfig configures the ncurses-style wrapper launch.
type ConsoleConfig struct {
	Enabled    bool `koanf:"enabled"`
	ScrollBack int  `koanf:"scrollback_lines"`
}

// LoggingConfig mirrors internal/logging.Config for unmarshaling purposes.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// RegistryConfig bounds the fatal-message queue and similar fixed-size state.
type RegistryConfig struct {
	FatalQueueDepth int `koanf:"fatal_queue_depth"`
}

// defaultConfig returns a Config with every default named by §6.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:        "kismet",
			HTTPAddr:    "127.0.0.1:2501",
			PIDFile:     "/var/run/kismet.pid",
			Daemonize:   false,
			Debug:       false,
			Silent:      false,
			NoLineWrap:  false,
			ShutdownDur: 10 * time.Second,
		},
		Loop: LoopConfig{
			SelectTimeout:    100 * time.Millisecond,
			BootstrapTimeout: 2 * time.Second,
			DrainTimeout:     2 * time.Second,
		},
		IPC: IPCConfig{
			HelperPath:     "/usr/local/bin/kismet_capture",
			MaxPayload:     64 << 10,
			RestartBackoff: 5 * time.Second,
		},
		Console: ConsoleConfig{
			Enabled:    false,
			ScrollBack: 48,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Caller: false,
		},
		Registry: RegistryConfig{
			FatalQueueDepth: 50,
		},
	}
}

// sliceConfigPaths names config paths parsed as comma-separated slices when
// they arrive from the environment as a single string.
var sliceConfigPaths = []string{}

// LoadWithKoanf loads configuration from three layered sources:
//  1. Defaults: defaultConfig()
//  2. Config file: YAML, located via KISMET_CONF or DefaultConfigPaths
//  3. Environment variables: KISMET_* overrides, highest priority
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("KISMET_", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file, KISMET_CONF first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// processSliceFields converts comma-separated string values to slices for
// fields that arrive as a single string from the environment.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc maps KISMET_* environment variables onto koanf dotted
// config paths. env.Provider passes the full variable name, so the prefix
// is stripped here.
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(strings.ToLower(key), "kismet_")

	envMappings := map[string]string{
		"server_name":             "server.name",
		"server_http_addr":        "server.http_addr",
		"server_pid_file":         "server.pid_file",
		"server_daemonize":        "server.daemonize",
		"server_debug":            "server.debug",
		"server_silent":           "server.silent",
		"server_no_line_wrap":     "server.no_line_wrap",
		"server_shutdown_timeout": "server.shutdown_timeout",

		"loop_select_timeout":    "loop.select_timeout",
		"loop_bootstrap_timeout": "loop.bootstrap_timeout",
		"loop_drain_timeout":     "loop.drain_timeout",

		"ipc_helper_path":     "ipc.helper_path",
		"ipc_max_payload":     "ipc.max_payload",
		"ipc_restart_backoff": "ipc.restart_backoff",

		"console_enabled":          "console.enabled",
		"console_scrollback_lines": "console.scrollback_lines",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		"registry_fatal_queue_depth": "registry.fatal_queue_depth",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

// GetKoanfInstance returns a fresh Koanf instance for advanced/testing use.
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}
