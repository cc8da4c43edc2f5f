package store

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateProjectID_Valid(t *testing.T) {
	valid := []string{
		"default",
		"a",
		"my-project",
		"proj123",
		"org/repo",
		"org/team/repo",
		"org/team/repo/branch",
		"a1-b2/c3-d4",
		strings.Repeat("a", 64),
	}
	for _, id := range valid {
		if err := ValidateProjectID(id); err != nil {
			t.Errorf("ValidateProjectID(%q) = %v, want nil", id, err)
		}
	}
}

func TestValidateProjectID_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"UPPER",
		"has space",
		"has_underscore",
		"-leading-hyphen",
		"trailing-hyphen-",
		"double--hyphen",
		"/leading-slash",
		"trailing-slash/",
		"a/b/c/d/e",
		"dots.not.allowed",
		strings.Repeat("a", 65),
		strings.Repeat("a/", 200),
	}
	for _, id := range invalid {
		err := ValidateProjectID(id)
		if !errors.Is(err, ErrInvalidProjectID) {
			t.Errorf("ValidateProjectID(%q) = %v, want ErrInvalidProjectID", id, err)
		}
	}
}
