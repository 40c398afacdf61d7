package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("close session: %w", Conflict("session %s already closed", "abc"))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsKind(err, KindConflict))
	assert.Equal(t, http.StatusConflict, GetAppError(err).Code)
}

func TestGetAppErrorFallsBackToInternal(t *testing.T) {
	appErr := GetAppError(errors.New("boom"))

	assert.Equal(t, KindInternal, appErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, appErr.Code)
	assert.Equal(t, "boom", appErr.Message)
}

func TestFromValidation(t *testing.T) {
	type input struct {
		Quantity int `validate:"gte=0"`
	}
	err := FromValidation(validator.New().Struct(input{Quantity: -1}))
	require.Error(t, err)

	appErr := GetAppError(err)
	assert.Equal(t, KindValidation, appErr.Kind)
	require.Len(t, appErr.Errors, 1)
	assert.Equal(t, "Quantity", appErr.Errors[0].Field)
	assert.Equal(t, "gte=0", appErr.Errors[0].Message)
}
