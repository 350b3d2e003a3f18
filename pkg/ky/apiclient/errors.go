package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorType is the failure taxonomy surfaced to the state machine.
type ErrorType string

const (
	ErrorNetwork   ErrorType = "network"
	ErrorRateLimit ErrorType = "rate_limit"
	ErrorServer    ErrorType = "server"
	ErrorClient    ErrorType = "client"
)

// Error codes shared with the model API server.
const (
	CodeSchemaInvalid = "AI_RESPONSE_INVALID_SCHEMA"
	CodeRateLimited   = "RATE_LIMITED"
	CodeUpstream      = "AI_UPSTREAM_ERROR"
	CodeTimeout       = "AI_TIMEOUT"
	CodeBadRequest    = "BAD_REQUEST"
)

// ApiError is a classified failure of one call. RetryAfterSec is zero when
// the server gave no hint.
type ApiError struct {
	ErrorType     ErrorType
	Status        int
	Code          string
	Retriable     bool
	RetryAfterSec int
	Message       string
	Original      error
}

func (e *ApiError) Error() string {
	if e.Original != nil {
		return fmt.Sprintf("%s error (status %d, code %q): %v", e.ErrorType, e.Status, e.Code, e.Original)
	}
	return fmt.Sprintf("%s error (status %d, code %q)", e.ErrorType, e.Status, e.Code)
}

// Unwrap returns the transport error, if any, for errors.Is/As.
func (e *ApiError) Unwrap() error {
	return e.Original
}

// IsSchemaInvalid reports whether the model answered with something that
// failed the format check.
func (e *ApiError) IsSchemaInvalid() bool {
	return e.Code == CodeSchemaInvalid
}

// AsApiError extracts a classified error from err.
func AsApiError(err error) (*ApiError, bool) {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retriable *bool  `json:"retriable"`
}

const (
	msgNetwork       = "通信できませんでした。電波の状況を確認して、もう一度入力してください。"
	msgRateLimit     = "AIへのリクエストが集中しています。少し待ってから再送してください。"
	msgRateLimitSecs = "AIへのリクエストが集中しています。%d秒ほど待ってから再送してください。"
	msgServer        = "AIサーバーが混み合っています。少し待ってから再送してください。"
	msgSchemaInvalid = "AIの応答が形式チェックに失敗しました。再送してください。"
	msgClient        = "この内容は送信できませんでした。言い方を変えてもう一度入力してください。"
)

// Classify turns a non-2xx response into an ApiError. A retriable flag in
// the error body overrides the default for the status class, and a 4xx
// flagged retriable is reported as a server error.
func Classify(status int, header http.Header, body []byte) *ApiError {
	apiErr := &ApiError{Status: status}

	var parsed errorBody
	if len(body) > 0 {
		_ = json.Unmarshal(body, &parsed)
	}
	apiErr.Code = parsed.Code

	switch {
	case status == http.StatusTooManyRequests:
		apiErr.ErrorType = ErrorRateLimit
		apiErr.Retriable = true
		apiErr.RetryAfterSec = parseRetryAfter(header.Get("Retry-After"), time.Now())
	case status >= 500:
		apiErr.ErrorType = ErrorServer
		apiErr.Retriable = true
	default:
		apiErr.ErrorType = ErrorClient
		apiErr.Retriable = false
	}

	if parsed.Retriable != nil {
		apiErr.Retriable = *parsed.Retriable
	}
	// A 4xx the server flags as retriable is a transient server condition.
	if apiErr.ErrorType == ErrorClient && apiErr.Retriable {
		apiErr.ErrorType = ErrorServer
	}
	if parsed.Error != "" {
		apiErr.Original = errors.New(parsed.Error)
	}
	apiErr.Message = userMessage(apiErr)
	return apiErr
}

// ClassifyTransport classifies an error returned before any response was
// read. Cancellation and the caller's own deadline are returned as-is.
func ClassifyTransport(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || (ctx != nil && ctx.Err() != nil) {
		return err
	}
	apiErr := &ApiError{
		ErrorType: ErrorNetwork,
		Retriable: false,
		Original:  err,
	}
	apiErr.Message = userMessage(apiErr)
	return apiErr
}

// schemaError is raised locally when a 200 body does not decode.
func schemaError(status int, err error) *ApiError {
	apiErr := &ApiError{
		ErrorType: ErrorServer,
		Status:    status,
		Code:      CodeSchemaInvalid,
		Retriable: true,
		Original:  err,
	}
	apiErr.Message = userMessage(apiErr)
	return apiErr
}

func userMessage(e *ApiError) string {
	if e.IsSchemaInvalid() {
		return msgSchemaInvalid
	}
	switch e.ErrorType {
	case ErrorNetwork:
		return msgNetwork
	case ErrorRateLimit:
		if e.RetryAfterSec > 0 {
			return fmt.Sprintf(msgRateLimitSecs, e.RetryAfterSec)
		}
		return msgRateLimit
	case ErrorServer:
		return msgServer
	default:
		return msgClient
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return secs
	}
	if at, err := http.ParseTime(value); err == nil {
		wait := at.Sub(now).Seconds()
		if wait <= 0 {
			return 0
		}
		return int(math.Ceil(wait))
	}
	return 0
}
