package session

import (
	"fmt"
	"regexp"
)

// Session names become directory names under ~/.warelay/sessions, so the
// alphabet is restricted to filesystem-safe characters.
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateName checks that name is usable as a session identifier.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("session name is empty")
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid session name %q: lowercase letters, digits, - and _ only, up to 64 characters, starting with a letter or digit", name)
	}
	return nil
}
