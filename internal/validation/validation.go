// Package validation wraps go-playground/validator with the production domain rules.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"example.com/premeepro/production/internal/models"
)

var (
	validate = validator.New()

	orderNumberPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]{0,63}$`)
)

func init() {
	validate.RegisterTagNameFunc(jsonName)
	registerCustomValidations(validate)
}

// jsonName reports fields by their JSON name so messages match request bodies
func jsonName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}

// Validator returns the shared validator
func Validator() *validator.Validate {
	return validate
}

// ValidateStruct validates a struct using validation tags
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return &Error{Fields: fieldErrors(verrs)}
		}
		return err
	}
	return nil
}

// Error lists the fields that failed validation
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, msg := range e.Fields {
		parts = append(parts, f+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = describe(fe)
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "order_number":
		return "must be 1-64 letters, digits or ._/- and start with a letter or digit"
	case "step_name":
		return "must not be blank"
	case "job_status":
		return "is not a known job status"
	case "attachment_type":
		return "must be image, barcode, qrcode or document"
	case "role":
		return "must be admin, operator or staff"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// IsValidOrderNumber checks an external order number
func IsValidOrderNumber(s string) bool {
	return orderNumberPattern.MatchString(s)
}

// IsValidStepName checks a step name is not blank and fits the column
func IsValidStepName(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && len(s) <= 100
}

// IsValidJobStatus checks a job status string
func IsValidJobStatus(s string) bool {
	switch models.JobStatus(s) {
	case models.JobStatusPending, models.JobStatusInProgress, models.JobStatusCompleted, models.JobStatusCancelled:
		return true
	}
	return false
}

// IsValidAttachmentType checks a step attachment type
func IsValidAttachmentType(s string) bool {
	switch models.AttachmentType(s) {
	case models.AttachmentImage, models.AttachmentBarcode, models.AttachmentQRCode, models.AttachmentDocument:
		return true
	}
	return false
}

func registerCustomValidations(v *validator.Validate) {
	must := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}

	must("order_number", func(fl validator.FieldLevel) bool {
		return IsValidOrderNumber(fl.Field().String())
	})
	must("step_name", func(fl validator.FieldLevel) bool {
		return IsValidStepName(fl.Field().String())
	})
	must("job_status", func(fl validator.FieldLevel) bool {
		return IsValidJobStatus(fl.Field().String())
	})
	must("attachment_type", func(fl validator.FieldLevel) bool {
		return IsValidAttachmentType(fl.Field().String())
	})
	must("role", func(fl validator.FieldLevel) bool {
		return models.Role(fl.Field().String()).Valid()
	})
}
