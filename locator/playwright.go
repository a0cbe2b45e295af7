package locator

import (
	"time"

	"github.com/playwright-community/playwright-go"
)

// pwLocator 基于 playwright-go 的 Locator 实现
type pwLocator struct {
	l playwright.Locator
}

// FromPlaywright 包装一个 playwright 定位器
func FromPlaywright(l playwright.Locator) Locator {
	return &pwLocator{l: l}
}

// PageRoot 返回页面的文档根（body）
func PageRoot(page playwright.Page) Locator {
	return &pwLocator{l: page.Locator("body")}
}

// unwrap 取出底层的 playwright 定位器，其他实现返回 nil
func unwrap(l Locator) playwright.Locator {
	if p, ok := l.(*pwLocator); ok && p != nil {
		return p.l
	}
	return nil
}

func (p *pwLocator) wrap(l playwright.Locator) Locator {
	return &pwLocator{l: l}
}

func (p *pwLocator) GetByAltText(text any, opts Options) Locator {
	return p.wrap(p.l.GetByAltText(text, playwright.LocatorGetByAltTextOptions{Exact: opts.Bool("exact")}))
}

func (p *pwLocator) GetByLabel(text any, opts Options) Locator {
	return p.wrap(p.l.GetByLabel(text, playwright.LocatorGetByLabelOptions{Exact: opts.Bool("exact")}))
}

func (p *pwLocator) GetByPlaceholder(text any, opts Options) Locator {
	return p.wrap(p.l.GetByPlaceholder(text, playwright.LocatorGetByPlaceholderOptions{Exact: opts.Bool("exact")}))
}

func (p *pwLocator) GetByRole(role string, opts Options) Locator {
	return p.wrap(p.l.GetByRole(playwright.AriaRole(role), playwright.LocatorGetByRoleOptions{
		Checked:       opts.Bool("checked"),
		Disabled:      opts.Bool("disabled"),
		Exact:         opts.Bool("exact"),
		Expanded:      opts.Bool("expanded"),
		IncludeHidden: opts.Bool("includeHidden"),
		Level:         opts.Int("level"),
		Name:          opts.Text("name"),
		Pressed:       opts.Bool("pressed"),
		Selected:      opts.Bool("selected"),
	}))
}

func (p *pwLocator) GetByTestID(id any) Locator {
	return p.wrap(p.l.GetByTestId(id))
}

func (p *pwLocator) GetByText(text any, opts Options) Locator {
	return p.wrap(p.l.GetByText(text, playwright.LocatorGetByTextOptions{Exact: opts.Bool("exact")}))
}

func (p *pwLocator) GetByTitle(text any, opts Options) Locator {
	return p.wrap(p.l.GetByTitle(text, playwright.LocatorGetByTitleOptions{Exact: opts.Bool("exact")}))
}

func (p *pwLocator) FrameLocator(selector string) Locator {
	return p.wrap(p.l.FrameLocator(selector).Locator("body"))
}

func (p *pwLocator) Or(other Locator) Locator {
	return p.wrap(p.l.Or(unwrap(other)))
}

func (p *pwLocator) And(other Locator) Locator {
	return p.wrap(p.l.And(unwrap(other)))
}

func (p *pwLocator) Filter(opts Options) Locator {
	return p.wrap(p.l.Filter(playwright.LocatorFilterOptions{
		Has:        unwrap(opts.Locator(OptionHas)),
		HasNot:     unwrap(opts.Locator(OptionHasNot)),
		HasText:    opts.Text("hasText"),
		HasNotText: opts.Text("hasNotText"),
	}))
}

func (p *pwLocator) Locator(selector string, opts Options) Locator {
	if opts == nil {
		return p.wrap(p.l.Locator(selector))
	}
	return p.wrap(p.l.Locator(selector, playwright.LocatorLocatorOptions{
		Has:        unwrap(opts.Locator(OptionHas)),
		HasNot:     unwrap(opts.Locator(OptionHasNot)),
		HasText:    opts.Text("hasText"),
		HasNotText: opts.Text("hasNotText"),
	}))
}

func (p *pwLocator) Nth(index int) Locator { return p.wrap(p.l.Nth(index)) }
func (p *pwLocator) First() Locator        { return p.wrap(p.l.First()) }
func (p *pwLocator) Last() Locator         { return p.wrap(p.l.Last()) }

func (p *pwLocator) Click() error                  { return p.l.Click() }
func (p *pwLocator) Dblclick() error               { return p.l.Dblclick() }
func (p *pwLocator) Fill(value string) error       { return p.l.Fill(value) }
func (p *pwLocator) SetChecked(checked bool) error { return p.l.SetChecked(checked) }
func (p *pwLocator) Press(key string) error        { return p.l.Press(key) }

func (p *pwLocator) PressSequentially(text string) error {
	return p.l.PressSequentially(text)
}

func (p *pwLocator) SetInputFiles(paths []string) error {
	return p.l.SetInputFiles(paths)
}

func (p *pwLocator) Focus() error   { return p.l.Focus() }
func (p *pwLocator) Blur() error    { return p.l.Blur() }
func (p *pwLocator) Check() error   { return p.l.Check() }
func (p *pwLocator) Uncheck() error { return p.l.Uncheck() }
func (p *pwLocator) Clear() error   { return p.l.Clear() }
func (p *pwLocator) Hover() error   { return p.l.Hover() }
func (p *pwLocator) Tap() error     { return p.l.Tap() }

func (p *pwLocator) SelectOption(values []string) error {
	_, err := p.l.SelectOption(playwright.SelectOptionValues{ValuesOrLabels: &values})
	return err
}

func (p *pwLocator) DragTo(target Locator) error {
	return p.l.DragTo(unwrap(target))
}

func (p *pwLocator) WaitFor(state string, timeout time.Duration) error {
	st := playwright.WaitForSelectorState(state)
	return p.l.WaitFor(playwright.LocatorWaitForOptions{
		State:   &st,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (p *pwLocator) IsVisible() (bool, error)  { return p.l.IsVisible() }
func (p *pwLocator) IsHidden() (bool, error)   { return p.l.IsHidden() }
func (p *pwLocator) IsEnabled() (bool, error)  { return p.l.IsEnabled() }
func (p *pwLocator) IsDisabled() (bool, error) { return p.l.IsDisabled() }
func (p *pwLocator) IsEditable() (bool, error) { return p.l.IsEditable() }
func (p *pwLocator) IsChecked() (bool, error)  { return p.l.IsChecked() }
func (p *pwLocator) Count() (int, error)       { return p.l.Count() }

func (p *pwLocator) TextContent() (string, error) { return p.l.TextContent() }
func (p *pwLocator) InnerHTML() (string, error)   { return p.l.InnerHTML() }
func (p *pwLocator) InnerText() (string, error)   { return p.l.InnerText() }
func (p *pwLocator) InputValue() (string, error)  { return p.l.InputValue() }

func (p *pwLocator) GetAttribute(name string) (string, error) {
	return p.l.GetAttribute(name)
}

func (p *pwLocator) AllTextContents() ([]string, error) { return p.l.AllTextContents() }
func (p *pwLocator) AllInnerTexts() ([]string, error)   { return p.l.AllInnerTexts() }
