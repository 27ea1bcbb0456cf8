package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v2"
)

// RuntimeConfig holds process-wide configuration for the dispatcher server.
// Values come from the environment with a YAML file override when
// DISPATCHER_CONFIG points at one.
type RuntimeConfig struct {
	StateDir string `yaml:"state_dir"`
	Port     int    `yaml:"port"`
	Shell    string `yaml:"shell"`
	PoolSize int    `yaml:"pool_size"`
	IsDev    bool   `yaml:"dev"`
}

var (
	// Runtime is the global runtime configuration instance
	Runtime *RuntimeConfig
)

func init() {
	Runtime = DetectRuntime()
}

// DetectRuntime builds the runtime configuration from the environment.
func DetectRuntime() *RuntimeConfig {
	cfg := &RuntimeConfig{
		StateDir: defaultStateDir(),
		Port:     6776,
		Shell:    defaultShell(),
		PoolSize: 3,
		IsDev:    os.Getenv("DISPATCHER_DEV") == "1",
	}

	if path := os.Getenv("DISPATCHER_CONFIG"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}

	if dir := os.Getenv("DISPATCHER_STATE_DIR"); dir != "" {
		cfg.StateDir = dir
	}
	if port := os.Getenv("DISPATCHER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			cfg.Port = p
		}
	}
	if shell := os.Getenv("DISPATCHER_SHELL"); shell != "" {
		cfg.Shell = shell
	}

	if err := os.MkdirAll(cfg.StateDir, 0755); err == nil {
		// best effort; persistence falls back to first-run flow when missing
	}

	return cfg
}

func defaultStateDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
		if homeDir == "" {
			homeDir = "."
		}
	}
	return filepath.Join(homeDir, ".dispatcher")
}

// defaultShell resolves the shell used for new PTYs: $SHELL, then a
// platform fallback.
func defaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	if runtime.GOOS == "windows" {
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}
	return "/bin/bash"
}
