// Package apiclient talks to the model API and classifies its failures.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/extraction"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"
)

const (
	chatPath     = "/api/chat"
	feedbackPath = "/api/feedback"
)

// SessionContext is the per-request description of the session the model
// is interviewing for.
type SessionContext struct {
	SessionID        string          `json:"sessionId"`
	ClientID         string          `json:"clientId"`
	WorkerName       string          `json:"workerName,omitempty"`
	SiteName         string          `json:"siteName,omitempty"`
	Weather          string          `json:"weather,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	ProcessPhase     string          `json:"processPhase,omitempty"`
	HealthCondition  string          `json:"healthCondition,omitempty"`
	Status           store.Status    `json:"status"`
	CommittedCount   int             `json:"committedCount"`
	CurrentItem      *store.WorkItem `json:"currentItem,omitempty"`
	ActionGoal       string          `json:"actionGoal,omitempty"`
	ContextInjection string          `json:"contextInjection,omitempty"`
}

type ChatRequest struct {
	Messages       []store.OutgoingMessage `json:"messages"`
	SessionContext SessionContext          `json:"sessionContext"`
}

type Usage struct {
	TotalTokens int `json:"totalTokens"`
}

// ChatResponse is a successful chat call. Extracted is already validated.
type ChatResponse struct {
	Reply     string
	Extracted *extraction.ExtractedData
	Usage     *Usage
}

type chatWire struct {
	Reply     string          `json:"reply"`
	Extracted json.RawMessage `json:"extracted,omitempty"`
	Usage     *Usage          `json:"usage,omitempty"`
}

type FeedbackExtracted struct {
	Risks      []string `json:"risks"`
	Measures   []string `json:"measures"`
	ActionGoal string   `json:"actionGoal"`
}

type FeedbackRequest struct {
	SessionID string            `json:"sessionId"`
	ClientID  string            `json:"clientId"`
	Context   string            `json:"context,omitempty"`
	Extracted FeedbackExtracted `json:"extracted"`
}

type FeedbackResponse struct {
	Praise string `json:"praise"`
	Tip    string `json:"tip"`
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP: &http.Client{
			Timeout: timeout,
		},
	}
}

// Chat sends one turn. A 204 yields (nil, nil). Failures are *ApiError,
// except caller cancellation which is returned unchanged.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	status, body, err := c.post(ctx, chatPath, req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}

	var wire chatWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, schemaError(status, fmt.Errorf("decode chat response: %w", err))
	}
	extracted, err := extraction.Parse(wire.Extracted)
	if err != nil {
		return nil, schemaError(status, err)
	}
	return &ChatResponse{
		Reply:     wire.Reply,
		Extracted: extracted,
		Usage:     wire.Usage,
	}, nil
}

// Feedback asks for praise and a tip on a finished session. A 204 yields
// (nil, nil).
func (c *Client) Feedback(ctx context.Context, req *FeedbackRequest) (*FeedbackResponse, error) {
	status, body, err := c.post(ctx, feedbackPath, req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var resp FeedbackResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, schemaError(status, fmt.Errorf("decode feedback response: %w", err))
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (int, []byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payloadBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, ClassifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, ClassifyTransport(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, nil, Classify(resp.StatusCode, resp.Header, body)
	}
	return resp.StatusCode, body, nil
}
