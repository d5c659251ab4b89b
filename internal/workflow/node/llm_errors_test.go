package node

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyLLMError(t *testing.T) {
	cases := []struct {
		err  error
		want LLMErrorKind
	}{
		{nil, LLMErrorOther},
		{errors.New("invalid parameter: response_format is not supported"), LLMErrorUnsupportedFormat},
		{errors.New("Unknown parameter: 'response.schema'"), LLMErrorUnsupportedFormat},
		{errors.New("status 429: Too Many Requests"), LLMErrorRateLimited},
		{errors.New("502 Bad Gateway"), LLMErrorServer},
		{fmt.Errorf("call: %w", context.DeadlineExceeded), LLMErrorTimeout},
		{errors.New("invalid api key"), LLMErrorOther},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyLLMError(tc.err), "%v", tc.err)
	}
	assert.True(t, IsResponseFormatUnsupportedError(errors.New("json_schema not allowed")))
	assert.False(t, IsRetryableLLMError(context.DeadlineExceeded))
}

func TestRetryRecoversFromServerError(t *testing.T) {
	calls := 0
	out, err := Retry(context.Background(), RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("500 internal server error")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("invalid api key")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Retry(ctx, RetryPolicy{Attempts: 3, Backoff: time.Hour}, func(context.Context) (int, error) {
		return 0, errors.New("429 rate limit")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
