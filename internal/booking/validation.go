package booking

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError maps validator failures onto the booking error kinds.
// Missing fields win over format problems.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	for _, tag := range []string{"required", "email"} {
		for _, fe := range fieldErrs {
			if fe.Tag() != tag {
				continue
			}
			if tag == "required" {
				return fmt.Errorf("%w: %s", ErrMissingRequiredField, fe.Field())
			}
			return fmt.Errorf("%w: %q", ErrInvalidEmailFormat, fe.Value())
		}
	}
	fe := fieldErrs[0]
	if fe.Tag() == "datetime" {
		return fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrInvalidSelection, fe.Field())
	}
	return fmt.Errorf("%w: %s failed %s", ErrInvalidSelection, fe.Field(), fe.Tag())
}

func validEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}
