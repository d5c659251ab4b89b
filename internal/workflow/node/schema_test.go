package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schemaSample struct {
	Summary string   `json:"summary" jsonschema:"description=章节摘要"`
	Tags    []string `json:"tags"`
	Nested  struct {
		Name string `json:"name"`
	} `json:"nested"`
}

func TestGenerateSchema(t *testing.T) {
	m, err := GenerateSchema[schemaSample]()
	require.NoError(t, err)

	assert.Equal(t, "object", m["type"])
	assert.Equal(t, false, m["additionalProperties"])
	assert.ElementsMatch(t, []string{"summary", "tags", "nested"}, m["required"])

	props := m["properties"].(map[string]any)
	nested := props["nested"].(map[string]any)
	assert.Equal(t, false, nested["additionalProperties"])
	assert.NotContains(t, m, "$schema")
}
