package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Config represents the TOML configuration structure
type Config struct {
	Server struct {
		Origins []string `toml:"origins"`
	} `toml:"server"`

	Models struct {
		Path string `toml:"path"`
	} `toml:"models"`

	Logs struct {
		Paths       []string `toml:"paths"`
		JournalUnit string   `toml:"journal_unit"`
	} `toml:"logs"`

	Logging struct {
		Debug bool `toml:"debug"`
	} `toml:"logging"`
}

var (
	configOnce sync.Once
	config     *Config
	configPath string
)

// GetConfigPaths returns the list of possible config file paths for the current OS
func GetConfigPaths() []string {
	var paths []string

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			paths = append(paths, filepath.Join(appData, "ollama", "config.toml"))
		}
		if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
			paths = append(paths, filepath.Join(userProfile, ".ollama", "config.toml"))
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err == nil {
			paths = append(paths,
				filepath.Join(home, "Library", "Application Support", "ollama", "config.toml"),
				filepath.Join(home, ".config", "ollama", "config.toml"),
				filepath.Join(home, ".ollama", "config.toml"),
			)
		}
	default: // Linux and others
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			paths = append(paths, filepath.Join(xdgConfig, "ollama", "config.toml"))
		}
		home, err := os.UserHomeDir()
		if err == nil {
			paths = append(paths,
				filepath.Join(home, ".config", "ollama", "config.toml"),
				filepath.Join(home, ".ollama", "config.toml"),
			)
		}
		paths = append(paths, "/etc/ollama/config.toml")
	}

	return paths
}

// loadConfig loads the first available configuration file
func loadConfig() (*Config, string, error) {
	for _, path := range GetConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			var cfg Config
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, "", fmt.Errorf("error parsing config file %s: %w", path, err)
			}
			return &cfg, path, nil
		}
	}
	return nil, "", nil
}

// ReloadConfigFile discards the cached config file so the next lookup reads
// it again.
func ReloadConfigFile() {
	configOnce = sync.Once{}
	config, configPath = nil, ""
}

// GetConfigValue returns the value for a given environment variable key from the config file
func GetConfigValue(key string) string {
	configOnce.Do(func() {
		var err error
		config, configPath, err = loadConfig()
		if err != nil {
			slog.Warn("failed to load config file", "error", err)
		} else if config != nil {
			slog.Debug("loaded config file", "path", configPath)
		}
	})

	if config == nil {
		return ""
	}

	switch key {
	case "OLLAMA_ORIGINS":
		return strings.Join(config.Server.Origins, ",")
	case "OLLAMA_MODELS":
		return config.Models.Path
	case "OLLAMA_USAGE_LOGS":
		return strings.Join(config.Logs.Paths, ",")
	case "OLLAMA_USAGE_JOURNAL_UNIT":
		return config.Logs.JournalUnit
	case "OLLAMA_DEBUG":
		if config.Logging.Debug {
			return "true"
		}
	}

	return ""
}

// GenerateExampleConfig returns a commented example TOML configuration
func GenerateExampleConfig() string {
	return `# Ollama usage configuration file
# Uncomment and modify values as needed.

[models]
# Custom models directory path (default: ~/.ollama/models)
# path = "/path/to/models"

[logs]
# Server log files or globs (default: platform log location)
# paths = ["~/.ollama/logs/server*.log"]
# systemd unit read on Linux (default: "ollama")
# journal_unit = "ollama"

[server]
# Additional allowed CORS origins for "ollama-usage serve"
# origins = ["http://localhost:3000"]

[logging]
# Enable debug logging (default: false)
# debug = false
`
}
