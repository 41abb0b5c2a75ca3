package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "wheelshare/pkg/errors"
	"wheelshare/pkg/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateBookingRequest checks the structural shape of a booking request:
// required fields, ID formats, date formats, message length. Semantic rules
// (past dates, overlaps, self-booking) belong to the reservation engine.
func ValidateBookingRequest(req *model.BookingRequest) error {
	if err := validate.Struct(req); err != nil {
		return translate(err)
	}
	return nil
}

func ValidateDecisionRequest(req *model.DecisionRequest) error {
	if err := validate.Struct(req); err != nil {
		return translate(err)
	}
	return nil
}

// translate converts go-playground violations into the validation error
// shape the API returns, one human message per field.
func translate(err error) error {
	var violations validator.ValidationErrors
	if !errors.As(err, &violations) {
		return apperrors.Validation("invalid request", nil)
	}

	details := make(map[string]any, len(violations))
	for _, v := range violations {
		details[fieldName(v)] = messageFor(v)
	}
	return apperrors.Validation("request validation failed", details)
}

func fieldName(v validator.FieldError) string {
	// StructNamespace is Type.Field; drop the type prefix and snake it to
	// match the JSON field names.
	parts := strings.Split(v.StructNamespace(), ".")
	return toSnake(parts[len(parts)-1])
}

func messageFor(v validator.FieldError) string {
	switch v.Tag() {
	case "required":
		return "this field is required"
	case "mongodb":
		return "must be a valid ID"
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "max":
		return fmt.Sprintf("must be at most %s characters", v.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(v.Param(), " ", ", "))
	case "gtfield":
		return fmt.Sprintf("must be after %s", toSnake(v.Param()))
	}
	return fmt.Sprintf("failed validation: %s", v.Tag())
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
