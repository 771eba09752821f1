package models

import (
	"fmt"
	"regexp"
)

var viewNameRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,62}$`)

// ValidateViewName checks that name can be used as a view name. View names
// become part of backend table names, so only letters, digits and
// underscores are accepted.
func ValidateViewName(name string) error {
	if !viewNameRE.MatchString(name) {
		return fmt.Errorf("invalid view name %q", name)
	}
	return nil
}
