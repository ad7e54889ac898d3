package errors

import (
	"errors"
	"fmt"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 文档摄取错误
	ErrCodeExtractionFailed     ErrorCode = "EXTRACTION_FAILED"
	ErrCodeEmbeddingFailed      ErrorCode = "EMBEDDING_FAILED"
	ErrCodeDimensionMismatch    ErrorCode = "DIMENSION_MISMATCH"
	ErrCodeInvalidChunkSequence ErrorCode = "INVALID_CHUNK_SEQUENCE"

	// 索引错误
	ErrCodeIndexUnavailable ErrorCode = "INDEX_UNAVAILABLE"

	// 查询错误
	ErrCodeGenerationFailed ErrorCode = "GENERATION_FAILED"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"

	// 通用错误
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeIngest
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 应用错误结构体
type AppError struct {
	Code       ErrorCode
	Message    string
	Type       ErrorType
	DocumentID string
	Retryable  bool
	Cause      error
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDocument 添加关联的文档ID
func (e *AppError) WithDocument(documentID string) *AppError {
	e.DocumentID = documentID
	return e
}

// 错误构造函数

// NewExtractionError 创建文档解析错误
func NewExtractionError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeExtractionFailed,
		Message: message,
		Type:    ErrorTypeIngest,
	}
}

// NewEmbeddingError 创建向量化错误
func NewEmbeddingError(message string) *AppError {
	return &AppError{
		Code:      ErrCodeEmbeddingFailed,
		Message:   message,
		Type:      ErrorTypeExternal,
		Retryable: true,
	}
}

// NewDimensionMismatchError 创建向量维度不匹配错误
func NewDimensionMismatchError(expected, actual int) *AppError {
	return &AppError{
		Code:    ErrCodeDimensionMismatch,
		Message: fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", expected, actual),
		Type:    ErrorTypeSystem,
	}
}

// NewInvalidChunkSequenceError 创建分块序列非法错误
func NewInvalidChunkSequenceError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidChunkSequence,
		Message: message,
		Type:    ErrorTypeValidation,
	}
}

// NewIndexUnavailableError 创建索引不可用错误
func NewIndexUnavailableError(message string) *AppError {
	return &AppError{
		Code:      ErrCodeIndexUnavailable,
		Message:   message,
		Type:      ErrorTypeExternal,
		Retryable: true,
	}
}

// NewGenerationError 创建答案生成错误
func NewGenerationError(message string) *AppError {
	return &AppError{
		Code:      ErrCodeGenerationFailed,
		Message:   message,
		Type:      ErrorTypeExternal,
		Retryable: true,
	}
}

// NewInvalidInputError 创建输入无效错误
func NewInvalidInputError(field, reason string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidInput,
		Message: fmt.Sprintf("invalid input for field '%s': %s", field, reason),
		Type:    ErrorTypeValidation,
	}
}

// NewSystemError 创建系统错误
func NewSystemError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Type:    ErrorTypeSystem,
	}
}

// IsAppError 检查是否为AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewSystemError(ErrCodeInternal, "internal error").WithCause(err)
}

// IsCode 检查错误链中是否包含指定错误码
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// IsRetryable 检查错误是否可以安全重试
//
// 摄取流程按文档版本幂等，重试整个转换是安全的。
func IsRetryable(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Retryable
}
