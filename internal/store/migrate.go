package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LegacyDBPath returns the pre-1.0 default database location:
// ./data/strata.db relative to the current directory.
func LegacyDBPath() string {
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, "data", "strata.db")
}

// MigrationResult contains the result of a migration operation.
type MigrationResult struct {
	// Migrated is true if migration occurred, false if no migration needed.
	Migrated bool
	// SourcePath is the path of the database that was migrated.
	SourcePath string
	// DestPath is the path of the new database.
	DestPath string
}

// MigrateLegacyDatabase checks for a database at the legacy location and
// copies it into the data root. The destination wins if it already exists.
//
// envPath is the value of STRATA_DB_PATH (empty if not set); when set it is
// used as the source instead of the legacy default.
func MigrateLegacyDatabase(envPath, dataRoot string) (MigrationResult, error) {
	destPath := filepath.Join(dataRoot, "strata.db")
	if _, err := os.Stat(destPath); err == nil {
		return MigrationResult{Migrated: false}, nil
	}

	sourcePath := envPath
	if sourcePath == "" {
		sourcePath = LegacyDBPath()
	}
	if _, err := os.Stat(sourcePath); os.IsNotExist(err) {
		return MigrationResult{Migrated: false}, nil
	}

	if err := os.MkdirAll(dataRoot, 0755); err != nil {
		return MigrationResult{Migrated: false}, fmt.Errorf("create data root: %w", err)
	}

	if err := copyFile(sourcePath, destPath); err != nil {
		return MigrationResult{Migrated: false}, fmt.Errorf("copy database: %w", err)
	}

	return MigrationResult{
		Migrated:   true,
		SourcePath: sourcePath,
		DestPath:   destPath,
	}, nil
}

// copyFile copies a file from src to dst, syncing the destination so SQLite
// never sees a torn copy. A partial destination is removed on failure.
func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	dest, err := os.Create(dst)
	if err != nil {
		return err
	}

	success := false
	defer func() {
		dest.Close()
		if !success {
			_ = os.Remove(dst)
		}
	}()

	if _, err = io.Copy(dest, source); err != nil {
		return err
	}
	if err := dest.Sync(); err != nil {
		return err
	}

	success = true
	return nil
}
