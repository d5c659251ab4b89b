package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-memory-api/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			DefaultProvider: "openai",
			Timeout:         2 * time.Minute,
			Providers: map[string]config.ProviderConfig{
				"openai":   {APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1", Model: "gpt-4o-mini", MaxTokens: 1024},
				"deepseek": {APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1", Model: "deepseek-chat"},
			},
		},
	}
}

func TestEinoFactory_GetCachesPerProvider(t *testing.T) {
	f := NewEinoFactory(testConfig())
	ctx := context.Background()

	first, err := f.Default(ctx)
	require.NoError(t, err)
	second, err := f.Get(ctx, "openai")
	require.NoError(t, err)
	assert.Same(t, first, second)

	other, err := f.Get(ctx, "deepseek")
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}

func TestEinoFactory_UnknownProvider(t *testing.T) {
	f := NewEinoFactory(testConfig())
	_, err := f.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestEinoFactory_Providers(t *testing.T) {
	f := NewEinoFactory(testConfig())
	assert.Equal(t, []string{"deepseek", "openai"}, f.Providers())
}
