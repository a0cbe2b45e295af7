package htmlutil

import (
	"errors"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// Format 内容提取格式
type Format string

const (
	FormatHTML     Format = "html"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

var ErrInvalidFormat = errors.New("invalid format")

// SelectHTML 返回第一个匹配 selector 的元素的内部 HTML。
// selector 为空、没有匹配或匹配元素为空时返回原始 HTML。
func SelectHTML(html, selector string) string {
	if selector == "" {
		return html
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	inner, err := doc.Find(selector).First().Html()
	if err != nil || inner == "" {
		return html
	}
	return inner
}

// ToText 提取纯文本
func ToText(html, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(SelectHTML(html, selector)))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return doc.Text(), nil
}

// ToMarkdown 转换为 Markdown
func ToMarkdown(html, selector string) (string, error) {
	converter := md.NewConverter("", true, nil)
	out, err := converter.ConvertString(SelectHTML(html, selector))
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	return out, nil
}

// Extract 按格式提取内容
func Extract(html string, format Format, selector string) (string, error) {
	switch format {
	case "", FormatHTML:
		return SelectHTML(html, selector), nil
	case FormatText:
		return ToText(html, selector)
	case FormatMarkdown:
		return ToMarkdown(html, selector)
	default:
		return "", fmt.Errorf("%w %q, must be one of html, text, markdown", ErrInvalidFormat, format)
	}
}
