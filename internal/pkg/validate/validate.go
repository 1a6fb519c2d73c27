package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-email-verification/internal/domain"
	"github.com/go-playground/validator/v10"
)

// v is the package-level singleton validator. It is initialised once at
// package load time. Any custom type registrations must be made during init()
// before the first call to Struct.
var v = validator.New()

// Struct validates the given struct using its validate tags.
// A failed "required" rule wraps domain.ErrMissingInput; other failures
// are returned as a human-readable error.
func Struct(s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	var msgs []string
	missing := false
	for _, fe := range ve {
		if fe.Tag() == "required" {
			missing = true
		}
		msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
	}
	if missing {
		return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), domain.ErrMissingInput)
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// Email reports whether s is a syntactically valid address.
func Email(s string) bool {
	return v.Var(s, "required,email") == nil
}
