package prompt

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AllTemplatesFormat(t *testing.T) {
	r := NewRegistry()
	vars := map[string]any{
		"chapter_order":        3,
		"chapter_title":        "夜袭",
		"chapter_content":      "凯尔拔出长剑{不是占位符}。",
		"character_roster":     "- 凯尔（主角）",
		"existing_foreshadows": "（无）",
		"rule_title":           "因果存疑",
		"rule_instruction":     "检查事件因果",
		"context_block":        "（无）",
	}

	for _, id := range knownPrompts {
		tpl, err := r.ChatTemplate(id)
		require.NoError(t, err, id)

		msgs, err := tpl.Format(context.Background(), vars)
		require.NoError(t, err, id)
		require.Len(t, msgs, 2)
		assert.Equal(t, schema.System, msgs[0].Role)
		assert.Equal(t, schema.User, msgs[1].Role)
		assert.NotContains(t, msgs[1].Content, "{chapter_content}")
	}
}

func TestRegistry_Cached(t *testing.T) {
	r := NewRegistry()
	a, err := r.ChatTemplate(PromptSummaryV1)
	require.NoError(t, err)
	b, err := r.ChatTemplate(PromptSummaryV1)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestRegistry_Unknown(t *testing.T) {
	_, err := NewRegistry().ChatTemplate("nope")
	assert.Error(t, err)
}
