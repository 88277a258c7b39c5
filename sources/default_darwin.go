package sources

import "path/filepath"

// DefaultLogSources returns the server logs written by the macOS app.
func DefaultLogSources(string) []LogSource {
	return []LogSource{
		Files{filepath.Join("~", ".ollama", "logs", "server*.log")},
	}
}
