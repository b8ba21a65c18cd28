package login

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

type (
	// ErrorResponse represents a validation error response.
	ErrorResponse struct {
		Error       bool   `json:"error"`
		FailedField string `json:"failedField"`
		Tag         string `json:"tag"`
	}

	// XValidator validates request bodies.
	XValidator struct{}
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate performs validation on the provided data and returns a slice of
// ErrorResponse, empty when data is valid. Field values are never echoed,
// they may hold a password.
func (v XValidator) Validate(data any) []ErrorResponse {
	var validationErrors []ErrorResponse

	err := validate.Struct(data)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return []ErrorResponse{{Error: true, Tag: err.Error()}}
	}

	for _, fe := range errs {
		validationErrors = append(validationErrors, ErrorResponse{
			Error:       true,
			FailedField: fe.Field(),
			Tag:         fe.Tag(),
		})
	}

	return validationErrors
}
