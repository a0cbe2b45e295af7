package locator

import (
	"fmt"
	"time"
)

// recorder 记录对能力接口的每一次调用
type recorder struct {
	calls []string
	// 读取器的返回值，按方法名索引
	returns map[string]any
	fail    map[string]error
}

func newRecorder() *recorder {
	return &recorder{returns: map[string]any{}, fail: map[string]error{}}
}

// fakeLocator 记录调用路径的假定位器
type fakeLocator struct {
	rec  *recorder
	path string
	opts Options
}

func (r *recorder) root() *fakeLocator {
	return &fakeLocator{rec: r, path: "root"}
}

func (f *fakeLocator) child(step string, opts Options) Locator {
	f.rec.calls = append(f.rec.calls, step)
	return &fakeLocator{rec: f.rec, path: f.path + "." + step, opts: opts}
}

func (f *fakeLocator) do(name string) error {
	f.rec.calls = append(f.rec.calls, name)
	return f.rec.fail[name]
}

func (f *fakeLocator) GetByAltText(text any, opts Options) Locator {
	return f.child(fmt.Sprintf("getByAltText(%v)", text), opts)
}
func (f *fakeLocator) GetByLabel(text any, opts Options) Locator {
	return f.child(fmt.Sprintf("getByLabel(%v)", text), opts)
}
func (f *fakeLocator) GetByPlaceholder(text any, opts Options) Locator {
	return f.child(fmt.Sprintf("getByPlaceholder(%v)", text), opts)
}
func (f *fakeLocator) GetByRole(role string, opts Options) Locator {
	return f.child(fmt.Sprintf("getByRole(%s)", role), opts)
}
func (f *fakeLocator) GetByTestID(id any) Locator {
	return f.child(fmt.Sprintf("getByTestId(%v)", id), nil)
}
func (f *fakeLocator) GetByText(text any, opts Options) Locator {
	return f.child(fmt.Sprintf("getByText(%v)", text), opts)
}
func (f *fakeLocator) GetByTitle(text any, opts Options) Locator {
	return f.child(fmt.Sprintf("getByTitle(%v)", text), opts)
}

func (f *fakeLocator) FrameLocator(selector string) Locator {
	return f.child("frameLocator("+selector+")", nil)
}
func (f *fakeLocator) Or(other Locator) Locator {
	return f.child("or("+other.(*fakeLocator).path+")", nil)
}
func (f *fakeLocator) And(other Locator) Locator {
	return f.child("and("+other.(*fakeLocator).path+")", nil)
}
func (f *fakeLocator) Filter(opts Options) Locator { return f.child("filter", opts) }
func (f *fakeLocator) Locator(selector string, opts Options) Locator {
	return f.child("locator("+selector+")", opts)
}
func (f *fakeLocator) Nth(index int) Locator { return f.child(fmt.Sprintf("nth(%d)", index), nil) }
func (f *fakeLocator) First() Locator        { return f.child("first", nil) }
func (f *fakeLocator) Last() Locator         { return f.child("last", nil) }

func (f *fakeLocator) Click() error    { return f.do("click") }
func (f *fakeLocator) Dblclick() error { return f.do("dblclick") }
func (f *fakeLocator) Fill(value string) error {
	return f.do("fill(" + value + ")")
}
func (f *fakeLocator) SetChecked(checked bool) error {
	return f.do(fmt.Sprintf("setChecked(%t)", checked))
}
func (f *fakeLocator) SelectOption(values []string) error {
	return f.do(fmt.Sprintf("selectOption(%v)", values))
}
func (f *fakeLocator) PressSequentially(text string) error {
	return f.do("pressSequentially(" + text + ")")
}
func (f *fakeLocator) Press(key string) error { return f.do("press(" + key + ")") }
func (f *fakeLocator) SetInputFiles(paths []string) error {
	return f.do(fmt.Sprintf("setInputFiles(%d)", len(paths)))
}
func (f *fakeLocator) Focus() error   { return f.do("focus") }
func (f *fakeLocator) Blur() error    { return f.do("blur") }
func (f *fakeLocator) Check() error   { return f.do("check") }
func (f *fakeLocator) Uncheck() error { return f.do("uncheck") }
func (f *fakeLocator) Clear() error   { return f.do("clear") }
func (f *fakeLocator) DragTo(target Locator) error {
	return f.do("dragTo(" + target.(*fakeLocator).path + ")")
}
func (f *fakeLocator) Hover() error { return f.do("hover") }
func (f *fakeLocator) Tap() error   { return f.do("tap") }
func (f *fakeLocator) WaitFor(state string, timeout time.Duration) error {
	return f.do(fmt.Sprintf("waitFor(%s,%s)", state, timeout))
}

func (f *fakeLocator) get(name string) (any, error) {
	f.rec.calls = append(f.rec.calls, name)
	return f.rec.returns[name], f.rec.fail[name]
}

func (f *fakeLocator) boolean(name string) (bool, error) {
	v, err := f.get(name)
	b, _ := v.(bool)
	return b, err
}

func (f *fakeLocator) str(name string) (string, error) {
	v, err := f.get(name)
	s, _ := v.(string)
	return s, err
}

func (f *fakeLocator) strs(name string) ([]string, error) {
	v, err := f.get(name)
	s, _ := v.([]string)
	return s, err
}

func (f *fakeLocator) IsVisible() (bool, error)  { return f.boolean("isVisible") }
func (f *fakeLocator) IsHidden() (bool, error)   { return f.boolean("isHidden") }
func (f *fakeLocator) IsEnabled() (bool, error)  { return f.boolean("isEnabled") }
func (f *fakeLocator) IsDisabled() (bool, error) { return f.boolean("isDisabled") }
func (f *fakeLocator) IsEditable() (bool, error) { return f.boolean("isEditable") }
func (f *fakeLocator) IsChecked() (bool, error)  { return f.boolean("isChecked") }

func (f *fakeLocator) Count() (int, error) {
	v, err := f.get("count")
	n, _ := v.(int)
	return n, err
}

func (f *fakeLocator) TextContent() (string, error) { return f.str("textContent") }
func (f *fakeLocator) InnerHTML() (string, error)   { return f.str("innerHTML") }
func (f *fakeLocator) InnerText() (string, error)   { return f.str("innerText") }
func (f *fakeLocator) InputValue() (string, error)  { return f.str("inputValue") }
func (f *fakeLocator) GetAttribute(name string) (string, error) {
	return f.str("getAttribute(" + name + ")")
}
func (f *fakeLocator) AllTextContents() ([]string, error) { return f.strs("allTextContents") }
func (f *fakeLocator) AllInnerTexts() ([]string, error)   { return f.strs("allInnerTexts") }
