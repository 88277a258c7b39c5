package sources

import (
	"os"
	"path/filepath"
)

// DefaultLogSources returns the server logs written by the Windows app
// under %LOCALAPPDATA%\Ollama.
func DefaultLogSources(string) []LogSource {
	return []LogSource{
		Files{filepath.Join(os.Getenv("LOCALAPPDATA"), "Ollama", "server*.log")},
	}
}
