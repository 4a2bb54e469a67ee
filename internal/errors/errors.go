// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"

	// 台本工作流相关错误类型
	ErrorTypeExtraction ErrorType = "extraction_error" // 章结构抽取失败
	ErrorTypeGeneration ErrorType = "generation_error" // 台本生成失败
	ErrorTypeAnalysis   ErrorType = "analysis_error"   // 台本品质分析失败
	ErrorTypeRevision   ErrorType = "revision_error"   // 台本改善失败
	ErrorTypeApply      ErrorType = "apply_error"      // 无可应用的改善版台本

	// 远程同步相关错误类型
	ErrorTypeSync              ErrorType = "sync_error"
	ErrorTypeCredentialExpired ErrorType = "credential_expired"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewExtractionError 创建章结构抽取错误
func NewExtractionError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeExtraction, message, originalError)
}

// NewGenerationError 创建台本生成错误
func NewGenerationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeGeneration, message, originalError)
}

// NewAnalysisError 创建台本分析错误
func NewAnalysisError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeAnalysis, message, originalError)
}

// NewRevisionError 创建台本改善错误
func NewRevisionError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeRevision, message, originalError)
}

// NewApplyError 创建改善应用错误
func NewApplyError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeApply, message, originalError)
}

// NewSyncError 创建远程同步错误
func NewSyncError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeSync, message, originalError)
}

// NewCredentialExpiredError 创建凭证过期错误
func NewCredentialExpiredError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeCredentialExpired, message, originalError)
}

// IsType 检查错误是否为指定类型
func IsType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsExtractionError 检查是否为章结构抽取错误
func IsExtractionError(err error) bool {
	return IsType(err, ErrorTypeExtraction)
}

// IsApplyError 检查是否为改善应用错误
func IsApplyError(err error) bool {
	return IsType(err, ErrorTypeApply)
}

// IsSyncError 检查是否为远程同步错误
func IsSyncError(err error) bool {
	return IsType(err, ErrorTypeSync)
}

// IsCredentialExpiredError 检查是否为凭证过期错误
func IsCredentialExpiredError(err error) bool {
	return IsType(err, ErrorTypeCredentialExpired)
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_FAILED"
	case ErrorTypeNotFound:
		return "RESOURCE_NOT_FOUND"
	case ErrorTypeExtraction:
		return "CHAPTER_EXTRACTION_FAILED"
	case ErrorTypeGeneration:
		return "SCRIPT_GENERATION_FAILED"
	case ErrorTypeAnalysis:
		return "SCRIPT_ANALYSIS_FAILED"
	case ErrorTypeRevision:
		return "SCRIPT_REVISION_FAILED"
	case ErrorTypeApply:
		return "NO_PENDING_IMPROVEMENT"
	case ErrorTypeSync:
		return "REMOTE_SYNC_FAILED"
	case ErrorTypeCredentialExpired:
		return "CREDENTIAL_EXPIRED"
	default:
		return "INTERNAL_ERROR"
	}
}
