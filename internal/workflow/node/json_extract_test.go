package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare object", in: `{"summary":"a"}`, want: `{"summary":"a"}`},
		{name: "surrounding prose", in: "好的，结果如下：\n{\"summary\":\"a\"}\n以上。", want: `{"summary":"a"}`},
		{name: "code fence", in: "```json\n[{\"title\":\"x\"}]\n```", want: `[{"title":"x"}]`},
		{name: "skip broken candidate", in: `注意 [重要] 结果 {"k":1} 还有 {"k":2}`, want: `{"k":1}`},
		{name: "nested braces in strings", in: `{"text":"他说{不}"}`, want: `{"text":"他说{不}"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.in)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(got))
		})
	}
}

func TestExtractJSON_None(t *testing.T) {
	_, err := ExtractJSON("抱歉，我无法完成")
	assert.ErrorIs(t, err, ErrNoJSON)
	assert.Equal(t, "抱歉，我无法完成", ExtractJSONObject("  抱歉，我无法完成 "))
}

func TestDecodeJSONList(t *testing.T) {
	type item struct {
		Title string `json:"title"`
	}

	items, err := DecodeJSONList[item](`[{"title":"a"},{"title":"b"}]`, "events")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = DecodeJSONList[item]("输出：{\"events\":[{\"title\":\"c\"}]}", "events")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "c", items[0].Title)

	items, err = DecodeJSONList[item](`{"events":[]}`, "events")
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = DecodeJSONList[item](`{"other":[{"title":"d"}]}`, "events")
	assert.ErrorIs(t, err, ErrMissingListKey)

	_, err = DecodeJSONList[item](`{"summary":"只有摘要"}`, "events")
	assert.ErrorIs(t, err, ErrMissingListKey)

	_, err = DecodeJSONList[item]("no json", "events")
	assert.Error(t, err)
}
