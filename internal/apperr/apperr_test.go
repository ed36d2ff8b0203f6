package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsMatchThroughWrapping(t *testing.T) {
	err := fmt.Errorf("claim: %w", InvalidState("cancelled", "accepted"))
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.NotErrorIs(t, err, ErrAlreadyClaimed)

	var se *StateError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, "cancelled", se.Current)

	assert.ErrorIs(t, Validation("phone", "Invalid mobile number prefix"), ErrValidation)
	assert.ErrorIs(t, NotEligible("Account is blocked: spam"), ErrNotEligible)
}

func TestUnavailableKeepsDomainKinds(t *testing.T) {
	assert.Nil(t, Unavailable("get order", nil))
	assert.Equal(t, ErrNotFound, Unavailable("get order", ErrNotFound))

	err := Unavailable("get order", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsDomain(err))
}

func TestMessagesAreDistinct(t *testing.T) {
	kinds := []error{
		Validation("name", "Name must be 2-50 characters"),
		InvalidState("pending", "delivered"),
		ErrAlreadyClaimed,
		ErrNotFound,
		NotEligible("Your rider account is awaiting review"),
		ErrExpired,
		ErrAttemptsExhausted,
		ErrCodeMismatch,
		ErrInvalidCredentials,
		ErrForbidden,
		Unavailable("store", errors.New("connection refused")),
	}
	seen := map[string]bool{}
	for _, err := range kinds {
		msg := Message(err)
		assert.NotEmpty(t, msg)
		assert.False(t, seen[msg], "duplicate message %q", msg)
		seen[msg] = true
	}
}
