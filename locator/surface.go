package locator

import "time"

// Locator 自动化引擎的元素定位器。
// 查询与组合方法是惰性的，只有动作和读取方法才会真正访问页面。
type Locator interface {
	GetByAltText(text any, opts Options) Locator
	GetByLabel(text any, opts Options) Locator
	GetByPlaceholder(text any, opts Options) Locator
	GetByRole(role string, opts Options) Locator
	GetByTestID(id any) Locator
	GetByText(text any, opts Options) Locator
	GetByTitle(text any, opts Options) Locator

	// FrameLocator 进入 selector 指向的 iframe，返回其文档根
	FrameLocator(selector string) Locator
	Or(other Locator) Locator
	And(other Locator) Locator
	Filter(opts Options) Locator
	Locator(selector string, opts Options) Locator
	Nth(index int) Locator
	First() Locator
	Last() Locator

	Click() error
	Dblclick() error
	Fill(value string) error
	SetChecked(checked bool) error
	SelectOption(values []string) error
	PressSequentially(text string) error
	Press(key string) error
	SetInputFiles(paths []string) error
	Focus() error
	Blur() error
	Check() error
	Uncheck() error
	Clear() error
	DragTo(target Locator) error
	Hover() error
	Tap() error
	WaitFor(state string, timeout time.Duration) error

	IsVisible() (bool, error)
	IsHidden() (bool, error)
	IsEnabled() (bool, error)
	IsDisabled() (bool, error)
	IsEditable() (bool, error)
	IsChecked() (bool, error)
	Count() (int, error)
	TextContent() (string, error)
	InnerHTML() (string, error)
	InnerText() (string, error)
	InputValue() (string, error)
	GetAttribute(name string) (string, error)
	AllTextContents() ([]string, error)
	AllInnerTexts() ([]string, error)
}
