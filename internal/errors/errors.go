package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"sales-dashboard/internal/dataset"
	"sales-dashboard/internal/filter"
	"sales-dashboard/internal/insights"
)

type ErrorCode string

const (
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
	CodeValidation     ErrorCode = "VALIDATION_ERROR"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeBadRequest     ErrorCode = "BAD_REQUEST"
	CodeRateLimit      ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
	CodeGatewayTimeout ErrorCode = "GATEWAY_TIMEOUT"
	CodeBadGateway     ErrorCode = "BAD_GATEWAY"
)

type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"-"`
	Cause      error     `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: getStatusCode(code),
		Timestamp:  time.Now().UTC(),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: getStatusCode(code),
		Cause:      err,
		Timestamp:  time.Now().UTC(),
	}
}

func Internal(message string) *AppError {
	return New(CodeInternal, message)
}

func InternalWrap(err error, message string) *AppError {
	return Wrap(err, CodeInternal, message)
}

func NotFound(message string) *AppError {
	return New(CodeNotFound, message)
}

func BadRequestWrap(err error, message string) *AppError {
	return Wrap(err, CodeBadRequest, message)
}

func RateLimit(message string) *AppError {
	return New(CodeRateLimit, message)
}

func ServiceUnavailable(message string) *AppError {
	return New(CodeServiceUnavail, message)
}

// FromInsights maps an insights failure onto the API envelope.
func FromInsights(err error) *AppError {
	var aiErr *insights.AiError
	if !stderrors.As(err, &aiErr) {
		return Wrap(err, CodeServiceUnavail, "Insights are unavailable")
	}
	switch aiErr.Kind {
	case insights.KindTimeout:
		return Wrap(err, CodeGatewayTimeout, "Insight generation timed out")
	case insights.KindRateLimited:
		return Wrap(err, CodeRateLimit, "Insight quota exhausted, try again shortly")
	case insights.KindInvalidResponse:
		return Wrap(err, CodeBadGateway, "Insight service returned an unusable response")
	default:
		return Wrap(err, CodeServiceUnavail, "Insight service is unavailable")
	}
}

// FromLoad maps a dataset load failure to a 400 carrying the offending
// location in Details.
func FromLoad(err error) *AppError {
	appErr := Wrap(err, CodeBadRequest, "Dataset could not be loaded")
	var loadErr *dataset.LoadError
	if stderrors.As(err, &loadErr) {
		appErr.Details = loadErr.Error()
	}
	return appErr
}

func FromFilter(err error) *AppError {
	appErr := Wrap(err, CodeValidation, "Invalid filter")
	var fErr *filter.FilterError
	if stderrors.As(err, &fErr) {
		appErr.Details = fErr.Error()
	}
	return appErr
}

func getStatusCode(code ErrorCode) int {
	switch code {
	case CodeValidation, CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeServiceUnavail:
		return http.StatusServiceUnavailable
	case CodeGatewayTimeout:
		return http.StatusGatewayTimeout
	case CodeBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type ErrorResponse struct {
	Error   *AppError `json:"error"`
	Success bool      `json:"success"`
}

func WriteError(w http.ResponseWriter, logger *slog.Logger, err error, requestID string) {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		appErr = Internal("An unexpected error occurred")
		appErr.Cause = err
	}

	appErr.RequestID = requestID

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)

	response := ErrorResponse{
		Error:   appErr,
		Success: false,
	}

	if encodeErr := json.NewEncoder(w).Encode(response); encodeErr != nil {
		logger.Error("failed to encode error response",
			"encode_error", encodeErr,
			"original_error", err,
			"request_id", requestID,
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	logLevel := slog.LevelError
	if appErr.StatusCode < 500 {
		logLevel = slog.LevelWarn
	}

	logger.Log(context.TODO(), logLevel, "request failed",
		"error_code", appErr.Code,
		"error_message", appErr.Message,
		"status_code", appErr.StatusCode,
		"request_id", requestID,
		"cause", appErr.Cause,
	)
}

type SuccessResponse struct {
	Data    any  `json:"data"`
	Success bool `json:"success"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := SuccessResponse{
		Data:    data,
		Success: true,
	}

	json.NewEncoder(w).Encode(response)
}

func WriteSuccessWithHeaders(w http.ResponseWriter, data any, headers map[string]string) {
	for key, value := range headers {
		w.Header().Set(key, value)
	}
	WriteSuccess(w, data)
}
