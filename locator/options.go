package locator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// RegexPrefix 以此前缀开头的字符串选项表示正则表达式
const RegexPrefix = "regex:"

// 关系过滤器使用的保留键
const (
	OptionHas    = "has"
	OptionHasNot = "hasNot"
)

// Value 选项值。封闭集合：String、Number、Bool、Null、List、Options、
// Pattern、Nodes（未编译的子链）和 SubLocator（已解析的子定位器）。
type Value interface {
	isOptionValue()
}

type (
	String     string
	Number     float64
	Bool       bool
	Null       struct{}
	List       []Value
	Nodes      Chain
	Pattern    struct{ *regexp.Regexp }
	SubLocator struct{ Locator }
)

// Options 选项映射，可以递归嵌套
type Options map[string]Value

func (String) isOptionValue()     {}
func (Number) isOptionValue()     {}
func (Bool) isOptionValue()       {}
func (Null) isOptionValue()       {}
func (List) isOptionValue()       {}
func (Nodes) isOptionValue()      {}
func (Pattern) isOptionValue()    {}
func (SubLocator) isOptionValue() {}
func (Options) isOptionValue()    {}

// MarshalJSON 还原为 regex: 编码
func (p Pattern) MarshalJSON() ([]byte, error) {
	return json.Marshal(RegexPrefix + p.String())
}

// MarshalJSON 已解析的子定位器无法序列化
func (SubLocator) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// UnmarshalJSON 将原始 JSON 对象解码为选项树
func (o *Options) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("options must be an object: %w", err)
	}
	if raw == nil {
		*o = nil
		return nil
	}

	out := make(Options, len(raw))
	for key, msg := range raw {
		v, err := decodeValue(key, msg)
		if err != nil {
			return fmt.Errorf("option %q: %w", key, err)
		}
		out[key] = v
	}
	*o = out
	return nil
}

func decodeValue(key string, msg json.RawMessage) (Value, error) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 {
		return Null{}, nil
	}

	switch trimmed[0] {
	case '{':
		var nested Options
		if err := json.Unmarshal(trimmed, &nested); err != nil {
			return nil, err
		}
		return nested, nil
	case '[':
		if key == OptionHas || key == OptionHasNot {
			var chain Chain
			if err := json.Unmarshal(trimmed, &chain); err != nil {
				return nil, err
			}
			return Nodes(chain), nil
		}
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		list := make(List, 0, len(items))
		for _, item := range items {
			v, err := decodeValue("", item)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	}

	var scalar any
	if err := json.Unmarshal(trimmed, &scalar); err != nil {
		return nil, err
	}
	switch s := scalar.(type) {
	case string:
		return String(s), nil
	case float64:
		return Number(s), nil
	case bool:
		return Bool(s), nil
	default:
		return Null{}, nil
	}
}

// Normalize 返回规范化后的新选项：
// regex: 字符串编译为 Pattern，嵌套映射递归处理，has/hasNot 子链从 root 构建为 SubLocator。
// 其他值原样保留。对已规范化的选项再次调用不会产生变化。
func Normalize(root Locator, opts Options) (Options, error) {
	if opts == nil {
		return nil, nil
	}

	out := make(Options, len(opts))
	for key, v := range opts {
		nv, err := normalizeValue(root, key, v)
		if err != nil {
			return nil, err
		}
		out[key] = nv
	}
	return out, nil
}

func normalizeValue(root Locator, key string, v Value) (Value, error) {
	switch val := v.(type) {
	case String:
		s := string(val)
		if !strings.HasPrefix(s, RegexPrefix) {
			return val, nil
		}
		re, err := regexp.Compile(strings.TrimPrefix(s, RegexPrefix))
		if err != nil {
			return nil, &GrammarError{
				Field:  "options." + key,
				Got:    s,
				Reason: fmt.Sprintf("invalid regular expression: %v", err),
			}
		}
		return Pattern{re}, nil
	case Options:
		return Normalize(root, val)
	case Nodes:
		if key != OptionHas && key != OptionHasNot {
			return val, nil
		}
		sub, err := Build(root, Chain(val))
		if err != nil {
			return nil, err
		}
		return SubLocator{sub}, nil
	default:
		return v, nil
	}
}

// Text 返回字符串或正则形式的文本选项，不存在时返回 nil
func (o Options) Text(key string) any {
	switch v := o[key].(type) {
	case String:
		return string(v)
	case Pattern:
		return v.Regexp
	case Number:
		return fmt.Sprint(float64(v))
	}
	return nil
}

// Bool 返回布尔选项指针，不存在或类型不符时返回 nil
func (o Options) Bool(key string) *bool {
	if v, ok := o[key].(Bool); ok {
		b := bool(v)
		return &b
	}
	return nil
}

// Int 返回整数选项指针
func (o Options) Int(key string) *int {
	if v, ok := o[key].(Number); ok {
		i := int(v)
		return &i
	}
	return nil
}

// Locator 返回已解析的子定位器
func (o Options) Locator(key string) Locator {
	if v, ok := o[key].(SubLocator); ok {
		return v.Locator
	}
	return nil
}
