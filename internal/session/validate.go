package session

import (
	"fmt"
	"regexp"

	"github.com/matheus3301/detox/internal/domain"
)

const namePattern = `^[a-z0-9_-]{1,32}$`

var nameRegexp = regexp.MustCompile(namePattern)

// ValidateName checks that name is usable as a directory and socket path component.
// Names are capped at 32 characters to keep daemon.sock under the Unix socket path limit.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("%w: session name %q must match %s", domain.ErrValidation, name, namePattern)
	}
	return nil
}
