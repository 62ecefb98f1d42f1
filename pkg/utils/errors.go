package utils

import (
	"fmt"
)

// ResponseCode application response code
type ResponseCode int

const (
	CodeSuccess            ResponseCode = 0
	CodeInvalidParam       ResponseCode = 10001
	CodeUnauthorized       ResponseCode = 10002
	CodeRateLimit          ResponseCode = 10003
	CodeForbidden          ResponseCode = 10004
	CodeListingNotFound    ResponseCode = 20001
	CodeListingInvalid     ResponseCode = 20002
	CodePlatformUnknown    ResponseCode = 20003
	CodePlatformFailure    ResponseCode = 20004
	CodeSyncInProgress     ResponseCode = 20005
	CodeDivergenceNotFound ResponseCode = 20006
	CodeInternalError      ResponseCode = 50000
	CodeServiceError       ResponseCode = 50001
	CodeDatabaseError      ResponseCode = 50002
	CodeRedisError         ResponseCode = 50003
)

// AppError application error structure
type AppError struct {
	Code    ResponseCode `json:"code"`
	Message string       `json:"message"`
	Err     error        `json:"-"`
}

// Error implement error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code: %d, message: %s, error: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

// Unwrap implement errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError create new application error
func NewError(code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithErr create application error with original error
func NewErrorWithErr(code ResponseCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WrapError wrap error
func WrapError(err error, code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Predefined errors
var (
	ErrInvalidParam       = NewError(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized       = NewError(CodeUnauthorized, "unauthorized")
	ErrRateLimit          = NewError(CodeRateLimit, "rate limit exceeded")
	ErrListingNotFound    = NewError(CodeListingNotFound, "listing not found")
	ErrListingInvalid     = NewError(CodeListingInvalid, "invalid listing data")
	ErrPlatformUnknown    = NewError(CodePlatformUnknown, "unknown platform")
	ErrSyncInProgress     = NewError(CodeSyncInProgress, "sync pass already running")
	ErrDivergenceNotFound = NewError(CodeDivergenceNotFound, "divergence not found")
	ErrInternalError      = NewError(CodeInternalError, "internal server error")
	ErrServiceError       = NewError(CodeServiceError, "service error")
	ErrDatabaseError      = NewError(CodeDatabaseError, "database error")
	ErrRedisError         = NewError(CodeRedisError, "redis error")
)

// IsAppError check if it's an application error
func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

// GetErrorCode get error code
func GetErrorCode(err error) ResponseCode {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Code
	}
	return CodeInternalError
}

// GetErrorMessage get error message
func GetErrorMessage(err error) string {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}
