package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// linuxServiceModels is where the Linux installer's ollama service user
// keeps its models.
var linuxServiceModels = filepath.Join("/usr", "share", "ollama", ".ollama", "models")

// Var returns an environment variable stripped of leading and trailing
// quotes or spaces, falling back to the config file when it is unset.
func Var(key string) string {
	if v := strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'"); v != "" {
		return v
	}
	return GetConfigValue(key)
}

// Models returns the path to the models directory. Models directory can be
// configured via the OLLAMA_MODELS environment variable.
// Default is $HOME/.ollama/models, or the service user's models directory
// on Linux when it exists.
func Models() string {
	if s := Var("OLLAMA_MODELS"); s != "" {
		return s
	}

	if runtime.GOOS == "linux" {
		if fi, err := os.Stat(linuxServiceModels); err == nil && fi.IsDir() {
			return linuxServiceModels
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	return filepath.Join(home, ".ollama", "models")
}

// Manifests returns the manifest root under the models directory.
func Manifests() string {
	return filepath.Join(Models(), "manifests")
}

// Debug enables additional debug information.
func Debug() bool {
	if s := Var("OLLAMA_DEBUG"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			// non-empty values that are not booleans still mean "on"
			return true
		}
		return b
	}
	return false
}

// LogPaths returns glob patterns for server logs configured via
// OLLAMA_USAGE_LOGS, separated by commas or the OS path list separator.
// An empty result means the platform default log locations.
func LogPaths() []string {
	return strings.FieldsFunc(Var("OLLAMA_USAGE_LOGS"), func(r rune) bool {
		return r == ',' || r == os.PathListSeparator
	})
}

// JournalUnit is the systemd unit whose journal holds server logs on Linux.
func JournalUnit() string {
	if s := Var("OLLAMA_USAGE_JOURNAL_UNIT"); s != "" {
		return s
	}
	return "ollama"
}

var defaultAllowOrigins = []string{
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
}

// AllowedOrigins returns the origins permitted to query the usage server,
// configured via OLLAMA_ORIGINS plus the loopback defaults.
func AllowedOrigins() (origins []string) {
	if s := Var("OLLAMA_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range defaultAllowOrigins {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s:*", origin),
			fmt.Sprintf("https://%s:*", origin),
		)
	}

	return origins
}

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"OLLAMA_DEBUG":              {"OLLAMA_DEBUG", Debug(), "Show additional debug information (e.g. OLLAMA_DEBUG=1)"},
		"OLLAMA_MODELS":             {"OLLAMA_MODELS", Models(), "The path to the models directory"},
		"OLLAMA_ORIGINS":            {"OLLAMA_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"OLLAMA_USAGE_LOGS":         {"OLLAMA_USAGE_LOGS", LogPaths(), "Server log files or globs to read instead of the platform default"},
		"OLLAMA_USAGE_JOURNAL_UNIT": {"OLLAMA_USAGE_JOURNAL_UNIT", JournalUnit(), "systemd unit to read server logs from on Linux (default \"ollama\")"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// LogValue reports the effective configuration.
func LogValue() slog.Value {
	var attrs []slog.Attr
	for k, v := range Values() {
		attrs = append(attrs, slog.String(k, v))
	}
	return slog.GroupValue(attrs...)
}
