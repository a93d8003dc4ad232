package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndCodeOf(t *testing.T) {
	err := New(ErrCodeNotFound, "missing")
	assert.Equal(t, ErrCodeNotFound, CodeOf(err))
	assert.True(t, IsCode(err, ErrCodeNotFound))
	assert.False(t, IsCode(err, ErrCodeDuplicate))
}

func TestCodeOf_UnknownErrorIsInternal(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, CodeOf(fmt.Errorf("plain")))
	assert.Equal(t, ErrCodeInternal, CodeOf(nil))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, ErrCodeInternal, "failed to query")

	require.ErrorContains(t, err, "failed to query")
	assert.ErrorIs(t, err, cause)
}

func TestCodeOf_WrappedCodedError(t *testing.T) {
	inner := NotFound("vendor", "ven-1")
	outer := fmt.Errorf("lookup: %w", inner)

	assert.Equal(t, ErrCodeNotFound, CodeOf(outer))
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, CodeOf(NotFound("invoice", "inv-1")))
	assert.Equal(t, ErrCodeDuplicate, CodeOf(Duplicate("invoice", "INV-1")))
	assert.Equal(t, ErrCodeInvalidInput, CodeOf(InvalidInput("amount", "negative")))

	err := InvalidState("invoice", "matched", "PAID")
	assert.Equal(t, ErrCodeInvalidState, CodeOf(err))
	assert.Contains(t, err.Error(), "invoice cannot be matched")
	assert.Contains(t, err.Error(), "PAID")
}
