// Package service 实现公司、职位、投递、收藏与消息的业务规则。
//
// 所有对外错误都标记为下列哨兵错误之一，HTTP 层通过 errors.Is 映射状态码，
// 错误文本本身可直接返回给客户端。
package service

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound 资源不存在。
	ErrNotFound = errors.New("not found")
	// ErrForbidden 角色或归属不符。
	ErrForbidden = errors.New("forbidden")
	// ErrConflict 唯一性冲突。
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput 输入校验失败。
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidTransition 状态流转不合法。
	ErrInvalidTransition = errors.New("invalid status transition")
)

// serviceError 携带面向客户端的文本与所属哨兵，标准库与 cockroachdb 的 errors.Is 都能识别。
type serviceError struct {
	msg  string
	kind error
}

func (e *serviceError) Error() string        { return e.msg }
func (e *serviceError) Is(target error) bool { return target == e.kind }

func newServiceError(kind error, msg string) error {
	return errors.WithStack(&serviceError{msg: msg, kind: kind})
}

func notFound(msg string) error      { return newServiceError(ErrNotFound, msg) }
func forbidden(msg string) error     { return newServiceError(ErrForbidden, msg) }
func conflict(msg string) error      { return newServiceError(ErrConflict, msg) }
func invalid(msg string) error       { return newServiceError(ErrInvalidInput, msg) }
func badTransition(msg string) error { return newServiceError(ErrInvalidTransition, msg) }
