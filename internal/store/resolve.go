package store

import (
	"fmt"
	"os"
)

// ResolveProject determines the project ID to use based on priority chain.
// Priority: explicit > STRATA_PROJECT env > "default"
// Returns the resolved project ID and any validation error.
func ResolveProject(explicit string) (string, error) {
	if explicit != "" {
		if err := ValidateProjectID(explicit); err != nil {
			return "", fmt.Errorf("invalid project ID %q: %w", explicit, err)
		}
		return explicit, nil
	}

	if envProject := os.Getenv("STRATA_PROJECT"); envProject != "" {
		if err := ValidateProjectID(envProject); err != nil {
			return "", fmt.Errorf("invalid STRATA_PROJECT %q: %w", envProject, err)
		}
		return envProject, nil
	}

	return "default", nil
}
