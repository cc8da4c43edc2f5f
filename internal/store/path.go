package store

import (
	"os"
	"path/filepath"
)

// DefaultDataRoot returns the root directory for strata data.
// Defaults to ~/.strata, falls back to ./.strata if home dir unavailable.
func DefaultDataRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".strata")
	}
	return filepath.Join(home, ".strata")
}

// DefaultDBPath returns the full path to the record database file.
func DefaultDBPath() string {
	return filepath.Join(DefaultDataRoot(), "strata.db")
}

// DefaultVectorDir returns the directory for the persistent vector index.
func DefaultVectorDir() string {
	return filepath.Join(DefaultDataRoot(), "vectors")
}
