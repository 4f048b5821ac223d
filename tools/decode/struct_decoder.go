package decode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Document parses one JSON text into a generic object. Numbers stay
// json.Number so identities like 5 and 5.0 keep their literal form.
// ok is false when the text is valid JSON but not an object.
func Document(raw []byte) (doc map[string]any, ok bool, err error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false, fmt.Errorf("unmarshal document: %w", err)
	}
	// trailing garbage after the first value is still malformed
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, false, fmt.Errorf("unmarshal document: trailing data after offset %d", dec.InputOffset())
	}
	doc, ok = v.(map[string]any)
	return doc, ok, nil
}

// DecodeMap 将 Document 得到的通用文档解码到任意结构体 T。
// 结构体字段读取使用 `json` tag。
func DecodeMap[T any](m map[string]any) (*T, error) {
	if m == nil {
		return nil, fmt.Errorf("document is nil")
	}

	var out T

	decCfg := &mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     &out,
		DecodeHook: sliceAnyToSliceStringHook(),
	}

	dec, err := mapstructure.NewDecoder(decCfg)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}

	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &out, nil
}

// ReadScalar 读取一个标量字段并转成字符串：string 原样，数字保留字面量，
// bool / null 使用 JSON 写法。对象和数组返回错误。
// 字段存在但为 null 时返回 "null"。
func ReadScalar(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	switch v.(type) {
	case map[string]any, []any:
		return "", fmt.Errorf("field %q type %T not scalar", key, v)
	}
	return scalarString(v), nil
}

// IsArray 判断字段是否为 JSON 数组。
func IsArray(m map[string]any, key string) bool {
	_, ok := m[key].([]any)
	return ok
}

var stringSliceType = reflect.TypeOf([]string(nil))

// sliceAnyToSliceStringHook：[]any -> []string，元素按 scalarString 规则转换。
// 只作用于目标类型为 []string 的字段。
func sliceAnyToSliceStringHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != stringSliceType {
			return data, nil
		}
		src, ok := data.([]any)
		if !ok {
			return data, nil
		}
		out := make([]string, 0, len(src))
		for _, it := range src {
			out = append(out, scalarString(it))
		}
		return out, nil
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		// 兜底：JSON 化
		b, _ := json.Marshal(t)
		return string(b)
	}
}
