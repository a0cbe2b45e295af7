package locator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrGrammar 指令语法错误（空链、未知类型、缺少必需字段等）
	ErrGrammar = errors.New("invalid instruction")
	// ErrValidation 载荷校验失败（例如上传文件描述不合法）
	ErrValidation = errors.New("invalid payload")
)

// GrammarError 描述违反指令语法的具体位置
type GrammarError struct {
	Field    string
	Got      string
	Accepted []string
	Reason   string
}

func (e *GrammarError) Error() string {
	var b strings.Builder
	b.WriteString("invalid ")
	b.WriteString(e.Field)
	if e.Got != "" {
		fmt.Fprintf(&b, ": %s", e.Got)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	if len(e.Accepted) > 0 {
		fmt.Fprintf(&b, ", must be one of %s", strings.Join(e.Accepted, ", "))
	}
	return b.String()
}

func (e *GrammarError) Is(target error) bool {
	return target == ErrGrammar
}

// ValidationError 汇总所有校验问题
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Issues, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func missing(field, reason string) error {
	return &GrammarError{Field: field, Reason: reason}
}

func unknown(field, got string, accepted []string) error {
	return &GrammarError{Field: field, Got: got, Accepted: accepted}
}
