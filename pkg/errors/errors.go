// Package errors 提供统一的错误定义
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeNotFound           ErrorCode = "1002"
	CodeConflict           ErrorCode = "1003"
	CodeTooManyRequests    ErrorCode = "1004"
	CodeInternalError      ErrorCode = "1005"
	CodeServiceUnavailable ErrorCode = "1006"

	// 输入校验错误 (2xxx)
	CodeValidation   ErrorCode = "2001"
	CodeFileType     ErrorCode = "2002"
	CodeFileTooLarge ErrorCode = "2003"
	CodeContentEmpty ErrorCode = "2004"

	// 工作流错误 (3xxx)
	CodeGatingViolation  ErrorCode = "3001"
	CodeProjectNotFound  ErrorCode = "3002"
	CodeTemplateNotFound ErrorCode = "3003"
	CodeStepIncomplete   ErrorCode = "3004"

	// 提供商/生成错误 (4xxx)
	CodeConfigIncomplete ErrorCode = "4001"
	CodeProviderUnknown  ErrorCode = "4002"
	CodeProviderError    ErrorCode = "4003"
	CodeTimeout          ErrorCode = "4004"
	CodeGenerationFailed ErrorCode = "4005"
	CodeAssemblyFailed   ErrorCode = "4006"

	// 外部服务错误 (5xxx)
	CodeCacheError   ErrorCode = "5001"
	CodeRenderError  ErrorCode = "5002"
	CodeExtractError ErrorCode = "5003"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 添加详细信息；返回副本，预定义错误保持不可变
func (e *AppError) WithDetail(detail string) *AppError {
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithError 添加底层错误；返回副本
func (e *AppError) WithError(err error) *AppError {
	clone := *e
	clone.Err = err
	return &clone
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeValidation, CodeFileType, CodeContentEmpty:
		return http.StatusBadRequest
	case CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeNotFound, CodeProjectNotFound, CodeTemplateNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeGatingViolation, CodeStepIncomplete:
		return http.StatusConflict
	case CodeConfigIncomplete, CodeProviderUnknown:
		return http.StatusUnprocessableEntity
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeProviderError, CodeRenderError, CodeExtractError:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrValidation   = New(CodeValidation, "validation failed")
	ErrContentEmpty = New(CodeContentEmpty, "input content is empty")
	ErrFileType     = New(CodeFileType, "unsupported file type")
	ErrFileTooLarge = New(CodeFileTooLarge, "file exceeds size limit")

	ErrGatingViolation  = New(CodeGatingViolation, "step not accessible yet")
	ErrProjectNotFound  = New(CodeProjectNotFound, "project not found")
	ErrTemplateNotFound = New(CodeTemplateNotFound, "template not found")
	ErrStepIncomplete   = New(CodeStepIncomplete, "prerequisite step incomplete")

	ErrConfigIncomplete = New(CodeConfigIncomplete, "provider configuration incomplete")
	ErrProviderUnknown  = New(CodeProviderUnknown, "unknown provider")
	ErrProviderError    = New(CodeProviderError, "provider request failed")
	ErrTimeout          = New(CodeTimeout, "request timed out")
	ErrGenerationFailed = New(CodeGenerationFailed, "outline generation failed")
	ErrAssemblyFailed   = New(CodeAssemblyFailed, "artifact assembly failed")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// IsCode 检查错误是否携带指定错误码
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
