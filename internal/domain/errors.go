package domain

import (
	"errors"
	"fmt"
)

// 错误分类：
//   - ErrNotFound / IllegalStateError: caller bug, the UI should never have
//     allowed the action. Logged at Error level, never silently proceeds.
//   - PreconditionError: validation failure, no state change; the caller
//     re-prompts the user. Not retried automatically.
var (
	// ErrNotFound 引用的 NamePart/Device/revision 不存在
	ErrNotFound = errors.New("not found")

	// ErrPendingExists 同一实体已存在待审批修订
	ErrPendingExists = errors.New("a pending revision already exists")
)

// PreconditionError 前置条件校验失败（非法助记符、重名、祖先已删除等）
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return e.Reason }

// Preconditionf 构造前置条件错误
func Preconditionf(format string, args ...any) error {
	return &PreconditionError{Reason: fmt.Sprintf(format, args...)}
}

// IsPrecondition reports whether err is (or wraps) a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// IllegalStateError 非法状态（审批/取消时父节点状态不允许，或修订本身不是 PENDING）
type IllegalStateError struct {
	Reason string
}

func (e *IllegalStateError) Error() string { return e.Reason }

// IllegalStatef 构造非法状态错误
func IllegalStatef(format string, args ...any) error {
	return &IllegalStateError{Reason: fmt.Sprintf(format, args...)}
}

// IsIllegalState reports whether err is (or wraps) an IllegalStateError.
func IsIllegalState(err error) bool {
	var ie *IllegalStateError
	return errors.As(err, &ie)
}
