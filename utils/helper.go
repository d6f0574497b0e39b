package utils

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func NewString(s string) *string {
	return &s
}

// RequireCompanyId pulls the tenant id out of the request context.
// Every engine entry point goes through this; a missing company id is a
// programmer error on the caller side, not a user-facing condition.
func RequireCompanyId(ctx context.Context) (string, error) {
	companyId, ok := GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return "", errors.New("company id is required")
	}
	return companyId, nil
}

// ProcessValidationErrors flattens binding failures into a field -> rule map
// for the error response body.
func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errorResponse
	}
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

func CorrelationIdOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
