package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredefinedErrorsMatchByCode(t *testing.T) {
	err := fmt.Errorf("load foreshadow: %w", ErrForeshadowNotFound.WithDetail("id=f-1"))

	assert.True(t, stderrors.Is(err, ErrForeshadowNotFound))
	assert.False(t, stderrors.Is(err, ErrIssueNotFound))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflict(err))
	assert.Empty(t, ErrForeshadowNotFound.Detail, "WithDetail must not mutate the shared error")
}

func TestCodeToHTTPStatus(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{CodeInvalidParam, http.StatusBadRequest},
		{CodeIssueNotFound, http.StatusNotFound},
		{CodeIllegalTransition, http.StatusConflict},
		{CodeLLMCallFailed, http.StatusBadGateway},
		{CodeDatabaseError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, New(tc.code, "x").HTTPStatus, string(tc.code))
	}
}

func TestAsAppErrorWrapsPlainErrors(t *testing.T) {
	appErr := AsAppError(stderrors.New("plain"))
	assert.Equal(t, CodeUnknown, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus)
}
