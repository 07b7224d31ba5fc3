package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Is(t *testing.T) {
	custom := NewDomainError("INVALID_INPUT", "Printing by order number is not available")

	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same sentinel", ErrNotFound, ErrNotFound, true},
		{"same code other message", custom, ErrInvalidInput, true},
		{"wrapped", fmt.Errorf("order A-1: %w", ErrNotFound), ErrNotFound, true},
		{"different code", ErrNotFound, ErrInvalidInput, false},
		{"plain error", errors.New("NOT_FOUND"), ErrNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_Error(t *testing.T) {
	assert.Equal(t, "Resource not found", ErrNotFound.Error())
}
