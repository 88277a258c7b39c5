package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from the .env file in Ollama's home directory,
// ~/.ollama/.env, the same file the Ollama server reads. Variables already
// set in the environment win. A missing file is not an error.
func LoadDotEnv() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get user home directory: %w", err)
	}

	return loadDotEnv(filepath.Join(home, ".ollama", ".env"))
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("could not load %s: %w", path, err)
	}

	return nil
}
