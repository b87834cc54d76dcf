package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("listing snippets: %w", SnippetNotFound())

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidation))

	var appErr *AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Sorry, cannot find the requested snippet.", appErr.Message)
}

func TestMarkerNotFoundHasItsOwnMessage(t *testing.T) {
	item := SnippetNotFound()
	marker := MarkerNotFound()

	assert.True(t, errors.Is(marker, ErrNotFound))
	assert.NotEqual(t, item.Message, marker.Message)
	assert.Contains(t, marker.Message, "`marker`")
}

func TestValidationFailedCarriesField(t *testing.T) {
	err := ValidationFailed("limit", "`limit` - must be an integer between 1 and 20")

	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "limit", err.Field)
	assert.Equal(t, "`limit` - must be an integer between 1 and 20", err.Error())
}

func TestStorageFailedPreservesCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := StorageFailed("insert snippet", cause)

	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, cause))
	// The user-facing message never leaks the cause.
	assert.Equal(t, "Sorry, an internal error occurred.", err.Message)
}

func TestForbidden(t *testing.T) {
	assert.True(t, errors.Is(Forbidden(), ErrForbidden))
}
