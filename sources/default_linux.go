package sources

import "path/filepath"

// DefaultLogSources returns the journal of the systemd service installed by
// the Linux installer, plus logs of a server started by hand with its
// output redirected to the macOS-style location.
func DefaultLogSources(unit string) []LogSource {
	return []LogSource{
		Journal{Unit: unit},
		Files{filepath.Join("~", ".ollama", "logs", "server*.log")},
	}
}
