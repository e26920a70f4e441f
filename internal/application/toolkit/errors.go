package toolkit

import (
	"errors"
	"fmt"

	"ai-toolkit-api/internal/domain/service"
)

var (
	ErrInvalidInput = errors.New("toolkit: invalid input")
	ErrUnknownTool  = errors.New("toolkit: unknown tool")
	ErrUpstream     = errors.New("toolkit: upstream failure")
	ErrModelLoading = service.ErrModelLoading
)

// InputError 请求字段缺失或不合法
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s is required", e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is 使 errors.Is(err, ErrInvalidInput) 成立
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func missingField(field string) error {
	return &InputError{Field: field}
}

func invalidField(field, reason string) error {
	return &InputError{Field: field, Reason: reason}
}

// upstreamError 统一包装计算阶段的上游错误，保留原始错误链
func upstreamError(tool string, err error) error {
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrModelLoading) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstream, tool, err)
}
