package locator

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind 指令节点类型
type Kind string

const (
	KindGetBy        Kind = "getBy"
	KindFrameLocator Kind = "framelocator"
	KindOr           Kind = "or"
	KindAnd          Kind = "and"
	KindFilter       Kind = "filter"
	KindLocator      Kind = "locator"
	KindNth          Kind = "nth"
	KindFirst        Kind = "first"
	KindLast         Kind = "last"
	KindAction       Kind = "action"
	KindGetter       Kind = "getter"
)

// narrowingKinds 可以缩小范围的节点类型（非终结）
var narrowingKinds = []string{
	string(KindGetBy), string(KindFrameLocator), string(KindOr), string(KindAnd),
	string(KindFilter), string(KindLocator), string(KindNth), string(KindFirst), string(KindLast),
}

var allKinds = append(append([]string{}, narrowingKinds...), string(KindAction), string(KindGetter))

// Terminal 是否为终结节点
func (k Kind) Terminal() bool {
	return k == KindAction || k == KindGetter
}

// Accessor getBy 的查询方式
type Accessor string

const (
	ByAltText     Accessor = "altText"
	ByLabel       Accessor = "label"
	ByPlaceholder Accessor = "placeholder"
	ByRole        Accessor = "role"
	ByTestID      Accessor = "testId"
	ByText        Accessor = "text"
	ByTitle       Accessor = "title"
)

var validAccessors = []string{
	string(ByAltText), string(ByLabel), string(ByPlaceholder), string(ByRole),
	string(ByTestID), string(ByText), string(ByTitle),
}

// Action 动作动词
type Action string

const (
	ActionClick             Action = "click"
	ActionDblclick          Action = "dblclick"
	ActionFill              Action = "fill"
	ActionSetChecked        Action = "setChecked"
	ActionSelectOption      Action = "selectOption"
	ActionPressSequentially Action = "pressSequentially"
	ActionPress             Action = "press"
	ActionSetInputFiles     Action = "setInputFiles"
	ActionFocus             Action = "focus"
	ActionBlur              Action = "blur"
	ActionCheck             Action = "check"
	ActionUncheck           Action = "uncheck"
	ActionClear             Action = "clear"
	ActionDragTo            Action = "dragTo"
	ActionHover             Action = "hover"
	ActionTap               Action = "tap"
	ActionWait              Action = "wait"
	ActionWaitFor           Action = "waitFor"
)

var validActions = []string{
	string(ActionClick), string(ActionDblclick), string(ActionFill), string(ActionSetChecked),
	string(ActionSelectOption), string(ActionPressSequentially), string(ActionPress),
	string(ActionSetInputFiles), string(ActionFocus), string(ActionBlur), string(ActionCheck),
	string(ActionUncheck), string(ActionClear), string(ActionDragTo), string(ActionHover),
	string(ActionTap), string(ActionWait), string(ActionWaitFor),
}

// Getter 读取器
type Getter string

const (
	GetIsVisible       Getter = "isVisible"
	GetCount           Getter = "count"
	GetTextContent     Getter = "textContent"
	GetIsHidden        Getter = "isHidden"
	GetIsEnabled       Getter = "isEnabled"
	GetIsEditable      Getter = "isEditable"
	GetIsDisabled      Getter = "isDisabled"
	GetIsChecked       Getter = "isChecked"
	GetInputValue      Getter = "inputValue"
	GetInnerHTML       Getter = "innerHTML"
	GetInnerText       Getter = "innerText"
	GetAttribute       Getter = "getAttribute"
	GetAllTextContents Getter = "allTextContents"
	GetAllInnerTexts   Getter = "allInnerTexts"
)

var validGetters = []string{
	string(GetIsVisible), string(GetCount), string(GetTextContent), string(GetIsHidden),
	string(GetIsEnabled), string(GetIsEditable), string(GetIsDisabled), string(GetIsChecked),
	string(GetInputValue), string(GetInnerHTML), string(GetInnerText), string(GetAttribute),
	string(GetAllTextContents), string(GetAllInnerTexts),
}

// WaitFor 可等待的状态
var validWaitStates = []string{"attached", "detached", "visible", "hidden"}

// Node 指令节点
//
// Value 保留 JSON 解码后的原始形态（string / float64 / bool / []any / map[string]any），
// 由调度引擎按动词检查具体类型。
type Node struct {
	Kind      Kind    `json:"type"`
	Operation string  `json:"operation,omitempty"`
	Elements  Chain   `json:"elements,omitempty"`
	Value     any     `json:"value,omitempty"`
	Options   Options `json:"options,omitempty"`
}

// Chain 一条有序的指令链
type Chain []Node

// Program 调度引擎的输入：一条链或多条独立的链
type Program struct {
	Chains []Chain
	// Batch 为 true 表示输入是链的列表
	Batch bool
}

// Single 用一条链构造 Program
func Single(chain Chain) Program {
	return Program{Chains: []Chain{chain}}
}

// Batch 用多条链构造 Program
func Batch(chains ...Chain) Program {
	return Program{Chains: chains, Batch: true}
}

// UnmarshalJSON 根据第一个元素是否为数组区分单链与多链
func (p *Program) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("instructions must be an array: %w", err)
	}
	if len(items) == 0 {
		*p = Program{}
		return nil
	}

	if bytes.HasPrefix(bytes.TrimSpace(items[0]), []byte("[")) {
		chains := make([]Chain, 0, len(items))
		for i, item := range items {
			var chain Chain
			if err := json.Unmarshal(item, &chain); err != nil {
				return fmt.Errorf("chain %d: %w", i, err)
			}
			chains = append(chains, chain)
		}
		*p = Program{Chains: chains, Batch: true}
		return nil
	}

	var chain Chain
	if err := json.Unmarshal(data, &chain); err != nil {
		return err
	}
	*p = Program{Chains: []Chain{chain}}
	return nil
}

// MarshalJSON 保持输入时的形态
func (p Program) MarshalJSON() ([]byte, error) {
	if p.Batch {
		return json.Marshal(p.Chains)
	}
	if len(p.Chains) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(p.Chains[0])
}
