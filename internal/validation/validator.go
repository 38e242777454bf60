// Package validation validates API requests and owner identifiers using the
// validator/v10 library.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
)

// maxOwnerIDLen bounds owner identifiers, in bytes after normalization.
const maxOwnerIDLen = 64

// ownerIDPattern admits opaque identifiers. ':' is excluded because
// owner ids are embedded in composite index keys.
var ownerIDPattern = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N}._@-]*$`)

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator configured for our domain.
func New() *Validator {
	v := validator.New()

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("json")
		if name == "" {
			return fld.Name
		}
		name, _, _ = strings.Cut(name, ",")
		if name == "-" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("owner_id", func(fl validator.FieldLevel) bool {
		_, err := OwnerID(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("datauri", func(fl validator.FieldLevel) bool {
		return strings.HasPrefix(fl.Field().String(), "data:image/")
	})

	return &Validator{v: v}
}

// Validate validates a struct and returns a domain error.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// OwnerID normalizes raw to NFC and checks it is a usable owner
// identifier. Visually identical ids typed on different keyboards map to
// the same library.
func OwnerID(raw string) (string, error) {
	id := norm.NFC.String(strings.TrimSpace(raw))
	switch {
	case id == "":
		return "", domainerrors.Validation("owner id is required")
	case len(id) > maxOwnerIDLen:
		return "", domainerrors.Validationf("owner id must not exceed %d bytes", maxOwnerIDLen)
	case !ownerIDPattern.MatchString(id):
		return "", domainerrors.Validationf("owner id %q contains invalid characters", id)
	}
	return id, nil
}

// formatError converts validator errors to domain errors.
func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Collect all field errors
	fieldErrors := make(map[string]string)
	for _, e := range validationErrs {
		fieldErrors[e.Field()] = v.friendlyMessage(e)
	}

	return domainerrors.ValidationWithDetails("validation failed", fieldErrors)
}

func (v *Validator) friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", e.Param())
		}
		return "must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must not exceed %s characters", e.Param())
		}
		return "must not exceed " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "owner_id":
		return "must be a valid owner id"
	case "datauri":
		return "must be an image data URI"
	default:
		return "is invalid"
	}
}
