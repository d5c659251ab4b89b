package node

import (
	"encoding/json"
	"fmt"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/invopop/jsonschema"
)

// GenerateSchema 由结构体反射出 JSON Schema，并按 OpenAI strict 模式补齐 required 与 additionalProperties
func GenerateSchema[T any]() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	b, err := reflector.Reflect(v).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode json schema: %w", err)
	}
	delete(m, "$schema")
	delete(m, "$id")
	closeObjects(m)
	return m, nil
}

func closeObjects(schema map[string]any) {
	props, hasProps := schema["properties"].(map[string]any)
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if hasProps {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			schema["required"] = required
		}
	}
	for _, prop := range props {
		if m, ok := prop.(map[string]any); ok {
			closeObjects(m)
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		closeObjects(items)
	}
}

// ResponseFormatOption 构造 response_format=json_schema 的模型调用选项
func ResponseFormatOption(name string, schema map[string]any) model.Option {
	return openaiopts.WithExtraFields(map[string]any{
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   name,
				"strict": false,
				"schema": schema,
			},
		},
	})
}
