package dto

import (
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/apiclient"
)

// ChatMessageDTO is one transcript entry sent by the KY client.
type ChatMessageDTO struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=2000"`
}

// ChatAPIRequest is the body of POST /api/chat. The history window is 12
// entries plus the new user turn.
type ChatAPIRequest struct {
	Messages       []ChatMessageDTO         `json:"messages" validate:"required,min=1,max=13,dive"`
	SessionContext apiclient.SessionContext `json:"sessionContext"`
}

type ChatAPIResponse struct {
	Reply     string      `json:"reply"`
	Extracted interface{} `json:"extracted,omitempty"`
}

type FeedbackAPIRequest struct {
	SessionID string                      `json:"sessionId" validate:"required"`
	ClientID  string                      `json:"clientId" validate:"required"`
	Context   string                      `json:"context" validate:"max=500"`
	Extracted apiclient.FeedbackExtracted `json:"extracted"`
}

// ChatAPIErrorResponse is the error body the KY client classifies.
type ChatAPIErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retriable bool   `json:"retriable"`
}
