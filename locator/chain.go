package locator

import (
	"fmt"
	"slices"
	"strconv"
)

// Build 从 root 开始依次折叠非终结节点，返回最终的定位器。
// 构建过程是惰性的，不会触发页面访问。
func Build(root Locator, chain Chain) (Locator, error) {
	if len(chain) == 0 {
		return nil, missing("chain", "locator chain cannot be empty")
	}

	current := root
	for _, node := range chain {
		if node.Kind.Terminal() || !slices.Contains(narrowingKinds, string(node.Kind)) {
			return nil, unknown("locator type", string(node.Kind), narrowingKinds)
		}
		next, err := narrow(root, current, node)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// narrow 对单个非终结节点求值；子链（or/and/has/hasNot）总是从 root 开始构建
func narrow(root, current Locator, node Node) (Locator, error) {
	switch node.Kind {
	case KindGetBy:
		if !slices.Contains(validAccessors, node.Operation) {
			return nil, unknown("'by' value", node.Operation, validAccessors)
		}
		param, err := stringValue(node, "getBy")
		if err != nil {
			return nil, err
		}
		opts, err := Normalize(root, node.Options)
		if err != nil {
			return nil, err
		}
		return getBy(current, Accessor(node.Operation), param, opts)

	case KindFrameLocator:
		selector, err := stringValue(node, "framelocator")
		if err != nil {
			return nil, err
		}
		return current.FrameLocator(selector), nil

	case KindOr, KindAnd:
		if len(node.Elements) == 0 {
			return nil, missing(string(node.Kind)+".elements", fmt.Sprintf("%s must have at least one element", node.Kind))
		}
		other, err := Build(root, node.Elements)
		if err != nil {
			return nil, err
		}
		if node.Kind == KindOr {
			return current.Or(other), nil
		}
		return current.And(other), nil

	case KindFilter:
		opts, err := Normalize(root, node.Options)
		if err != nil {
			return nil, err
		}
		return current.Filter(opts), nil

	case KindLocator:
		selector, err := stringValue(node, "locator")
		if err != nil {
			return nil, err
		}
		opts, err := Normalize(root, node.Options)
		if err != nil {
			return nil, err
		}
		return current.Locator(selector, opts), nil

	case KindNth:
		index, err := intValue(node.Value)
		if err != nil {
			return nil, &GrammarError{Field: "nth.value", Got: fmt.Sprint(node.Value), Reason: err.Error()}
		}
		return current.Nth(index), nil

	case KindFirst:
		return current.First(), nil

	case KindLast:
		return current.Last(), nil

	default:
		return nil, unknown("locator type", string(node.Kind), narrowingKinds)
	}
}

func getBy(current Locator, by Accessor, param string, opts Options) (Locator, error) {
	switch by {
	case ByAltText:
		return current.GetByAltText(param, opts), nil
	case ByLabel:
		return current.GetByLabel(param, opts), nil
	case ByPlaceholder:
		return current.GetByPlaceholder(param, opts), nil
	case ByRole:
		return current.GetByRole(param, opts), nil
	case ByTestID:
		return current.GetByTestID(param), nil
	case ByText:
		return current.GetByText(param, opts), nil
	case ByTitle:
		return current.GetByTitle(param, opts), nil
	default:
		return nil, unknown("'by' value", string(by), validAccessors)
	}
}

func stringValue(node Node, field string) (string, error) {
	s, ok := node.Value.(string)
	if !ok {
		return "", &GrammarError{Field: field + ".value", Got: fmt.Sprint(node.Value), Reason: "a string value is required"}
	}
	return s, nil
}

// intValue 接受数字或数字字符串
func intValue(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number")
		}
		return int(f), nil
	default:
		return 0, fmt.Errorf("a numeric value is required")
	}
}
