package apperr

import (
	"errors"
	"fmt"
)

// Kind 账务核心对外暴露的错误类别（封闭集合）
type Kind uint8

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindNotFound
	KindDuplicateEmail
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindDuplicateEmail:
		return "duplicate_email"
	default:
		return "internal"
	}
}

const internalMessage = "an unexpected error occurred"

// Error 带类别的错误
// Message 可以直接返回给调用方；Err 保留底层原因，用于日志和 errors.Is 判断
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func InvalidArgument(message string) error {
	return &Error{Kind: KindInvalidArgument, Message: message}
}

// InvalidArgumentWrap 保留 cause，errors.Is 仍可匹配
func InvalidArgumentWrap(message string, cause error) error {
	return &Error{Kind: KindInvalidArgument, Message: message, Err: cause}
}

func NotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func DuplicateEmail(message string) error {
	return &Error{Kind: KindDuplicateEmail, Message: message}
}

// Internal 对外只暴露通用提示，不泄露存储层细节
func Internal(cause error) error {
	return &Error{Kind: KindInternal, Message: internalMessage, Err: cause}
}

// KindOf 返回错误链上最外层带类别错误的 Kind，未打标的错误一律视为 Internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message 返回可以展示给调用方的提示
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindInternal {
			return internalMessage
		}
		return e.Message
	}
	return internalMessage
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
