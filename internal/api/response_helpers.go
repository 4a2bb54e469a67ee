// internal/api/response_helpers.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/tetuya-iyell/claude3-video-analyzer/internal/errors"
)

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Success 成功响应。fields合并进顶层，调用方用它带回script/chapters等字段
func (rh *ResponseHelper) Success(c *gin.Context, fields gin.H) {
	response := gin.H{"success": true}
	for key, value := range fields {
		response[key] = value
	}
	c.JSON(http.StatusOK, response)
}

// sanitizeErrorMessage 去除可能泄露敏感信息的错误内容
func sanitizeErrorMessage(message string) string {
	lowered := strings.ToLower(message)
	for _, pattern := range []string{"api_key", "apikey", "secret", "token", "password"} {
		if strings.Contains(lowered, pattern) {
			return "サーバー内部でエラーが発生しました"
		}
	}
	return message
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: sanitizeErrorMessage(message),
	}
	if len(details) > 0 {
		apiError.Details = sanitizeErrorMessage(details[0])
	}

	c.JSON(statusCode, gin.H{
		"success":   false,
		"error":     apiError,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, "BAD_REQUEST", message, details...)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusNotFound, "NOT_FOUND", message, details...)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, details...)
}

// ServiceUnavailable 503错误响应
func (rh *ResponseHelper) ServiceUnavailable(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, details...)
}

// AppError 根据业务错误类型映射HTTP状态码
func (rh *ResponseHelper) AppError(c *gin.Context, err error) {
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		rh.InternalError(c, "サーバー内部でエラーが発生しました", err.Error())
		return
	}

	statusCode := http.StatusInternalServerError
	switch appErr.Type {
	case apperrors.ErrorTypeValidation, apperrors.ErrorTypeApply, apperrors.ErrorTypeExtraction:
		statusCode = http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		statusCode = http.StatusNotFound
	case apperrors.ErrorTypeCredentialExpired:
		statusCode = http.StatusServiceUnavailable
	}

	rh.Error(c, statusCode, appErr.Code, appErr.Message)
}
