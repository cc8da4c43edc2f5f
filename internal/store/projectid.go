// Package store provides data location and project identity helpers for
// strata. The engine core takes explicit paths and project IDs; this package
// is where the CLI resolves them from the environment.
package store

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidProjectID indicates the project ID format is invalid.
var ErrInvalidProjectID = errors.New("invalid project ID: must be lowercase alphanumeric with hyphens, 1-4 path segments")

// projectIDRegex validates project ID format.
// Format: <segment>[/<segment>]*
// - 1-4 path segments separated by /
// - Segments: lowercase alphanumeric and hyphens (a-z, 0-9, -)
// - Segment length: 1-64 characters
// - No leading/trailing hyphens
var projectIDRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?(\/[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?){0,3}$`)

// ValidateProjectID validates a project ID format.
// Returns ErrInvalidProjectID if the ID doesn't match the required pattern.
func ValidateProjectID(id string) error {
	if id == "" {
		return ErrInvalidProjectID
	}
	if len(id) > 256 {
		return ErrInvalidProjectID
	}
	// Consecutive hyphens are not caught by the regex
	if strings.Contains(id, "--") {
		return ErrInvalidProjectID
	}
	if !projectIDRegex.MatchString(id) {
		return ErrInvalidProjectID
	}
	return nil
}
