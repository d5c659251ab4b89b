package node

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoJSON 模型输出中找不到完整的 JSON 值
	ErrNoJSON = errors.New("no well-formed json value in model output")
	// ErrMissingListKey 对象形态的列表输出缺少约定的键
	ErrMissingListKey = errors.New("list key missing in model output")
)

// ExtractJSON 从模型输出中定位第一个完整的 JSON 对象或数组。
// 模型常在 JSON 前后夹杂说明文字或 ``` 代码块，这里逐个候选起点尝试解码。
func ExtractJSON(s string) (json.RawMessage, error) {
	raw := strings.TrimSpace(s)
	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' && raw[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(raw[i:]))
		dec.UseNumber()
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			continue
		}
		return v, nil
	}
	return nil, ErrNoJSON
}

// ExtractJSONObject 返回第一个完整 JSON 值的文本，找不到时原样返回去空白后的输入
func ExtractJSONObject(s string) string {
	v, err := ExtractJSON(s)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return string(v)
}

// DecodeJSON 定位并解码模型输出
func DecodeJSON(s string, out any) error {
	v, err := ExtractJSON(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(v, out)
}

// DecodeJSONList 解码列表输出，同时接受裸数组与 {"<key>": [...]} 两种形态。
// 对象里没有 key 时返回 ErrMissingListKey，空列表必须显式给出
func DecodeJSONList[T any](s string, key string) ([]T, error) {
	v, err := ExtractJSON(s)
	if err != nil {
		return nil, err
	}
	v = bytes.TrimSpace(v)
	if len(v) > 0 && v[0] == '[' {
		var items []T
		if err := json.Unmarshal(v, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(v, &wrapper); err != nil {
		return nil, err
	}
	inner, ok := wrapper[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingListKey, key)
	}
	var items []T
	if err := json.Unmarshal(inner, &items); err != nil {
		return nil, err
	}
	return items, nil
}
