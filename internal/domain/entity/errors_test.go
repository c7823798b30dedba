package entity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Field: "name", Message: "name is required"}
	assert.Equal(t, "validation error on field 'name': name is required", err.Error())
}

func TestValidationError_IsValidationFailed(t *testing.T) {
	wrapped := fmt.Errorf("create feed: %w", &ValidationError{Field: "url", Message: "bad"})

	assert.True(t, errors.Is(wrapped, ErrValidationFailed))
	assert.False(t, errors.Is(wrapped, ErrNotFound))

	var ve *ValidationError
	assert.True(t, errors.As(wrapped, &ve))
	assert.Equal(t, "url", ve.Field)
}

func TestSentinelErrors_Distinct(t *testing.T) {
	all := []error{ErrNotFound, ErrInvalidInput, ErrValidationFailed, ErrDuplicate}
	for i, a := range all {
		for j, b := range all {
			if i != j {
				assert.False(t, errors.Is(a, b), "%v should not match %v", a, b)
			}
		}
	}
}
