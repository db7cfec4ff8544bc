// Package validation holds the field rules shared by request binding and user edits.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "usersvc/internal/errors"
)

// UsernamePattern allows latin letters, digits and underscores, 3 to 32 characters.
var UsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

// Field rules, reused as struct tags on request types.
const (
	UsernameRule = "required,username"
	NameRule     = "required,max=255"
	EmailRule    = "required,email,max=255"
	// bcrypt ignores input past 72 bytes.
	PasswordRule = "required,min=8,max=72"
)

// New returns a validator with the custom username tag registered.
func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return UsernamePattern.MatchString(fl.Field().String())
	})
	return v
}

// Validator validates structs and single fields, reporting failures as errors.ErrValidationFailed.
type Validator struct {
	v *validator.Validate
}

// NewValidator wraps New.
func NewValidator() *Validator {
	return &Validator{v: New()}
}

// Validate implements echo.Validator.
func (cv *Validator) Validate(i interface{}) error {
	if err := cv.v.Struct(i); err != nil {
		return describe(err)
	}
	return nil
}

// Var validates one value against rule; name is used in the error message.
func (cv *Validator) Var(name string, value interface{}, rule string) error {
	if err := cv.v.Var(value, rule); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fmt.Errorf("%w: %s failed on %s", apperrors.ErrValidationFailed, name, fieldErrs[0].Tag())
		}
		return fmt.Errorf("%w: %s: %v", apperrors.ErrValidationFailed, name, err)
	}
	return nil
}

func describe(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", apperrors.ErrValidationFailed, err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", apperrors.ErrValidationFailed, strings.Join(parts, ", "))
}
