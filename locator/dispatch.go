package locator

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/bromato/bromato/pkg/logger"
)

// DefaultWaitForTimeout waitFor 动作的固定超时
const DefaultWaitForTimeout = 5 * time.Second

// Result 调度结果。只有最后一条链以 getter 结束时 Returned 才为 true。
type Result struct {
	Value    any  `json:"result"`
	Returned bool `json:"-"`
}

// Engine 指令调度引擎
type Engine struct {
	checks         []Checker
	pipeline       Pipeline
	waitForTimeout time.Duration
}

// NewEngine 创建调度引擎，middlewares 按顺序在执行前改写输入
func NewEngine(middlewares ...Middleware) *Engine {
	return &Engine{
		pipeline:       Pipeline(middlewares),
		waitForTimeout: DefaultWaitForTimeout,
	}
}

// WithWaitForTimeout 覆盖 waitFor 的超时
func (e *Engine) WithWaitForTimeout(d time.Duration) *Engine {
	e.waitForTimeout = d
	return e
}

// WithChecks 追加检查，所有链都通过检查后中间件才开始改写
func (e *Engine) WithChecks(checks ...Checker) *Engine {
	e.checks = append(e.checks, checks...)
	return e
}

// Run 执行一条或多条指令链。
// 多条链依次执行，前面链的结果被丢弃；任一错误立即中止剩余的节点和链，已产生的副作用不回滚。
func (e *Engine) Run(ctx context.Context, root Locator, program Program) (Result, error) {
	if len(program.Chains) == 0 {
		return Result{}, missing("chain", "locator chain cannot be empty")
	}
	for i, chain := range program.Chains {
		if len(chain) == 0 {
			return Result{}, missing(fmt.Sprintf("chain[%d]", i), "locator chain cannot be empty")
		}
	}

	for _, check := range e.checks {
		for _, chain := range program.Chains {
			if err := check(ctx, chain); err != nil {
				return Result{}, err
			}
		}
	}

	program, err := e.pipeline.Apply(ctx, program)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for i, chain := range program.Chains {
		logger.Debug(ctx, "Running chain %d/%d (%d nodes)", i+1, len(program.Chains), len(chain))
		result, err = e.runChain(ctx, root, chain)
		if err != nil {
			return Result{}, err
		}
	}
	return result, nil
}

// step 折叠的中间状态：要么继续缩小范围，要么已经产生终结结果
type step struct {
	scope Locator
	done  *Result
}

func (e *Engine) runChain(ctx context.Context, root Locator, chain Chain) (Result, error) {
	st := step{scope: root}
	for _, node := range chain {
		next, err := e.eval(ctx, root, st.scope, node)
		if err != nil {
			return Result{}, err
		}
		if next.done != nil {
			return *next.done, nil
		}
		st = next
	}
	return Result{}, nil
}

func (e *Engine) eval(ctx context.Context, root, scope Locator, node Node) (step, error) {
	switch node.Kind {
	case KindGetBy, KindFrameLocator, KindOr, KindAnd, KindFilter, KindLocator, KindNth, KindFirst, KindLast:
		next, err := narrow(root, scope, node)
		if err != nil {
			return step{}, err
		}
		return step{scope: next}, nil

	case KindAction:
		if node.Operation == "" {
			return step{}, missing("action.operation", "action item must have an operation")
		}
		logger.Debug(ctx, "Running action %s", node.Operation)
		if err := e.act(ctx, root, scope, node); err != nil {
			return step{}, err
		}
		return step{scope: scope}, nil

	case KindGetter:
		if node.Operation == "" {
			return step{}, missing("getter.operation", "getter item must have an operation")
		}
		logger.Debug(ctx, "Running getter %s", node.Operation)
		value, err := read(scope, node)
		if err != nil {
			return step{}, err
		}
		return step{scope: scope, done: &Result{Value: value, Returned: true}}, nil

	default:
		return step{}, unknown("locator type", string(node.Kind), allKinds)
	}
}

func (e *Engine) act(ctx context.Context, root, scope Locator, node Node) error {
	switch Action(node.Operation) {
	case ActionClick:
		return scope.Click()
	case ActionDblclick:
		return scope.Dblclick()
	case ActionFocus:
		return scope.Focus()
	case ActionBlur:
		return scope.Blur()
	case ActionCheck:
		return scope.Check()
	case ActionUncheck:
		return scope.Uncheck()
	case ActionClear:
		return scope.Clear()
	case ActionHover:
		return scope.Hover()
	case ActionTap:
		return scope.Tap()

	case ActionFill:
		text, err := stringValue(node, node.Operation)
		if err != nil {
			return err
		}
		return scope.Fill(text)
	case ActionPress:
		key, err := stringValue(node, node.Operation)
		if err != nil {
			return err
		}
		return scope.Press(key)
	case ActionPressSequentially:
		text, err := stringValue(node, node.Operation)
		if err != nil {
			return err
		}
		return scope.PressSequentially(text)

	case ActionSetChecked:
		checked, ok := node.Value.(bool)
		if !ok {
			return &GrammarError{Field: "setChecked.value", Got: fmt.Sprint(node.Value), Reason: "a boolean value is required"}
		}
		return scope.SetChecked(checked)

	case ActionSelectOption:
		values, err := stringList(node.Value)
		if err != nil {
			return &GrammarError{Field: "selectOption.value", Got: fmt.Sprint(node.Value), Reason: err.Error()}
		}
		return scope.SelectOption(values)

	case ActionSetInputFiles:
		paths, err := stringList(node.Value)
		if err != nil {
			return &GrammarError{Field: "setInputFiles.value", Reason: "file paths are required, stage uploads before dispatch"}
		}
		return scope.SetInputFiles(paths)

	case ActionDragTo:
		target, err := dragTarget(root, node.Value)
		if err != nil {
			return err
		}
		return scope.DragTo(target)

	case ActionWait:
		ms, err := intValue(node.Value)
		if err != nil {
			return &GrammarError{Field: "wait.value", Got: fmt.Sprint(node.Value), Reason: err.Error()}
		}
		return sleep(ctx, time.Duration(ms)*time.Millisecond)

	case ActionWaitFor:
		state := "visible"
		if s, ok := node.Value.(string); ok && s != "" {
			state = s
		} else if node.Value != nil && !ok {
			return unknown("waitFor state", fmt.Sprint(node.Value), validWaitStates)
		}
		if !slices.Contains(validWaitStates, state) {
			return unknown("waitFor state", state, validWaitStates)
		}
		return scope.WaitFor(state, e.waitForTimeout)

	default:
		return unknown("action", node.Operation, validActions)
	}
}

func read(scope Locator, node Node) (any, error) {
	switch Getter(node.Operation) {
	case GetIsVisible:
		return scope.IsVisible()
	case GetIsHidden:
		return scope.IsHidden()
	case GetIsEnabled:
		return scope.IsEnabled()
	case GetIsDisabled:
		return scope.IsDisabled()
	case GetIsEditable:
		return scope.IsEditable()
	case GetIsChecked:
		return scope.IsChecked()
	case GetCount:
		return scope.Count()
	case GetTextContent:
		return scope.TextContent()
	case GetInnerHTML:
		return scope.InnerHTML()
	case GetInnerText:
		return scope.InnerText()
	case GetInputValue:
		return scope.InputValue()
	case GetAllTextContents:
		return scope.AllTextContents()
	case GetAllInnerTexts:
		return scope.AllInnerTexts()
	case GetAttribute:
		name, ok := node.Value.(string)
		if !ok || name == "" {
			return nil, missing("getAttribute.value", "getAttribute requires a value")
		}
		return scope.GetAttribute(name)
	default:
		return nil, unknown("getter", node.Operation, validGetters)
	}
}

// dragTarget 拖拽目标可以是一个 CSS 选择器，也可以是一条从根开始的指令链
func dragTarget(root Locator, v any) (Locator, error) {
	if selector, ok := v.(string); ok && selector != "" {
		return root.Locator(selector, nil), nil
	}
	chain, err := chainValue(v)
	if err != nil {
		return nil, &GrammarError{Field: "dragTo.value", Reason: "a selector or an instruction chain is required"}
	}
	return Build(root, chain)
}

func chainValue(v any) (Chain, error) {
	switch c := v.(type) {
	case Chain:
		return c, nil
	case []Node:
		return Chain(c), nil
	case []any:
		data, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		var chain Chain
		if err := json.Unmarshal(data, &chain); err != nil {
			return nil, err
		}
		return chain, nil
	default:
		return nil, fmt.Errorf("unsupported chain value %T", v)
	}
}

// stringList 将单个字符串或字符串数组统一为数组
func stringList(v any) ([]string, error) {
	switch s := v.(type) {
	case string:
		return []string{s}, nil
	case []string:
		return s, nil
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected a list of strings")
			}
			out = append(out, str)
		}
		return out, nil
	case float64:
		return []string{strconv.FormatFloat(s, 'f', -1, 64)}, nil
	default:
		return nil, fmt.Errorf("a string or a list of strings is required")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
