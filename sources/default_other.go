//go:build !darwin && !windows && !linux

package sources

import "path/filepath"

func DefaultLogSources(string) []LogSource {
	return []LogSource{
		Files{filepath.Join("~", ".ollama", "logs", "server*.log")},
	}
}
