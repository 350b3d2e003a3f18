package dto

import (
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"
)

type StartSessionRequest struct {
	WorkerName      string     `json:"worker_name" validate:"required,max=100"`
	SiteName        string     `json:"site_name" validate:"required,max=200"`
	Weather         string     `json:"weather" validate:"max=50"`
	Temperature     *float64   `json:"temperature" validate:"omitempty,min=-50,max=60"`
	ProcessPhase    string     `json:"process_phase" validate:"max=100"`
	HealthCondition string     `json:"health_condition" validate:"max=100"`
	WorkStartTime   *time.Time `json:"work_start_time"`
}

type SubmitTurnRequest struct {
	Text string `json:"text" validate:"required,max=1000"`
}

type NearMissRequest struct {
	Reported bool   `json:"reported"`
	Note     string `json:"note" validate:"max=500"`
}

type SpeakerRequest struct {
	MessageID string `json:"message_id" validate:"required"`
	Action    string `json:"action" validate:"required,oneof=claim release"`
}

type SpeakerResponse struct {
	Owner    string `json:"owner"`
	Previous string `json:"previous,omitempty"`
	Released bool   `json:"released,omitempty"`
}

type FailureDTO struct {
	ErrorType     string `json:"error_type"`
	Code          string `json:"code,omitempty"`
	Message       string `json:"message"`
	Retriable     bool   `json:"retriable"`
	RetryAfterSec int    `json:"retry_after_sec,omitempty"`
}

type TurnResponse struct {
	SessionID       string           `json:"session_id"`
	Reply           string           `json:"reply"`
	NextAction      store.NextAction `json:"next_action,omitempty"`
	Status          store.Status     `json:"status"`
	Shortcut        bool             `json:"shortcut"`
	ShortcutKind    string           `json:"shortcut_kind,omitempty"`
	Committed       bool             `json:"committed"`
	ModelAhead      bool             `json:"model_ahead,omitempty"`
	HasPendingRetry bool             `json:"has_pending_retry"`
	Failure         *FailureDTO      `json:"failure,omitempty"`
}

type SessionStateResponse struct {
	Session         store.Session       `json:"session"`
	Draft           store.WorkItem      `json:"draft"`
	Messages        []store.ChatMessage `json:"messages"`
	Status          store.Status        `json:"status"`
	HasPendingRetry bool                `json:"has_pending_retry"`
	MissingFields   []store.NextAction  `json:"missing_fields"`
}

type HistoryQuery struct {
	Site  string `query:"site" validate:"required,max=200"`
	Limit int    `query:"limit" validate:"omitempty,min=1,max=100"`
}

type HistoryItemResponse struct {
	ID               string           `json:"id"`
	SiteName         string           `json:"site_name"`
	WorkerName       string           `json:"worker_name"`
	WorkItems        []store.WorkItem `json:"work_items"`
	ActionGoal       string           `json:"action_goal"`
	NearMissReported bool             `json:"near_miss_reported"`
	NearMissNote     string           `json:"near_miss_note,omitempty"`
	CompletedAt      time.Time        `json:"completed_at"`
}

// PublishKyCompletedMessage is the watermill payload for a finished session.
type PublishKyCompletedMessage struct {
	Snapshot store.Conversation `json:"snapshot"`
}
