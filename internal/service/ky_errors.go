package service

import "net/http"

// KyError is a worker-facing failure with a fixed HTTP status.
type KyError struct {
	Status  int
	Code    string
	Message string
}

func (e *KyError) Error() string {
	return e.Message
}

func (e *KyError) HTTPStatus() int {
	return e.Status
}

var (
	ErrSessionNotFound       = &KyError{Status: http.StatusNotFound, Code: "SESSION_NOT_FOUND", Message: "session not found"}
	ErrTurnInFlight          = &KyError{Status: http.StatusConflict, Code: "TURN_IN_FLIGHT", Message: "a turn is already being processed for this session"}
	ErrSessionCompleted      = &KyError{Status: http.StatusConflict, Code: "SESSION_COMPLETED", Message: "session is already completed"}
	ErrNoPendingRetry        = &KyError{Status: http.StatusConflict, Code: "NO_PENDING_RETRY", Message: "nothing to retry"}
	ErrSessionIncomplete     = &KyError{Status: http.StatusConflict, Code: "SESSION_NOT_COMPLETED", Message: "session is not completed yet"}
	ErrCompletionNotRecorded = &KyError{Status: http.StatusServiceUnavailable, Code: "COMPLETION_NOT_RECORDED", Message: "completed session could not be recorded, please confirm again"}
	ErrEmptyUtterance        = &KyError{Status: http.StatusBadRequest, Code: "EMPTY_TEXT", Message: "text is empty"}
)
