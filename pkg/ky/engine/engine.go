// Package engine drives one KY turn: shortcut detection, history context,
// the model call, and folding the outcome back into the conversation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/pkg/logger"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/apiclient"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/conversation"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/extraction"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/state"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"
)

const moduleName = "KyEngine"

var (
	ErrEmptyText             = errors.New("empty utterance")
	ErrConversationCompleted = errors.New("conversation already completed")
	ErrNotCompleted          = errors.New("conversation not completed yet")
)

// ChatAPI is the model API as the engine uses it.
type ChatAPI interface {
	Chat(ctx context.Context, req *apiclient.ChatRequest) (*apiclient.ChatResponse, error)
	Feedback(ctx context.Context, req *apiclient.FeedbackRequest) (*apiclient.FeedbackResponse, error)
}

// ContextBuilder renders the history block for a turn.
type ContextBuilder interface {
	Build(ctx context.Context, session store.Session, userText string) (string, error)
}

// TurnResult is what the caller shows for one turn.
type TurnResult struct {
	Reply        string
	NextAction   store.NextAction
	Shortcut     bool
	ShortcutKind state.ShortcutKind
	Committed    bool
	ModelAhead   bool
	Failure      *apiclient.ApiError
}

type Engine struct {
	api      ChatAPI
	contexts ContextBuilder
	logger   logger.ILogger
	now      func() time.Time
}

func New(api ChatAPI, contexts ContextBuilder, log logger.ILogger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		api:      api,
		contexts: contexts,
		logger:   log,
		now:      time.Now,
	}
}

// Submit processes one user utterance. On cancellation the original
// conversation is returned with the error; classified API failures are
// folded into the conversation and reported in TurnResult.Failure.
func (e *Engine) Submit(ctx context.Context, conv store.Conversation, text string) (store.Conversation, TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return conv, TurnResult{}, ErrEmptyText
	}
	if conv.Status == store.StatusCompleted {
		return conv, TurnResult{}, ErrConversationCompleted
	}

	now := e.now()
	if next, sc, ok := state.ApplyShortcut(conv, text, now); ok {
		e.logger.Debug(moduleName, "Turn resolved locally", map[string]interface{}{
			"session_id": conv.Session.ID,
			"shortcut":   string(sc.Kind),
		})
		return next, TurnResult{
			Reply:        sc.Reply,
			NextAction:   sc.NextAction,
			Shortcut:     true,
			ShortcutKind: sc.Kind,
			Committed:    sc.Committed,
		}, nil
	}

	request := conversation.BuildMessages(conv.Messages, text)
	base := state.AppendUser(conv, text, now)
	base.Pending = nil

	next, result, err := e.send(ctx, base, text, request)
	if err != nil {
		return conv, TurnResult{}, err
	}
	return next, result, nil
}

// Retry consumes the pending retry exactly once. A cancelled retry leaves
// the pending retry in place.
func (e *Engine) Retry(ctx context.Context, conv store.Conversation) (store.Conversation, TurnResult, error) {
	prepared, pending, request, err := state.PrepareRetry(conv)
	if err != nil {
		return conv, TurnResult{}, err
	}
	e.logger.Info(moduleName, "Retrying turn", map[string]interface{}{
		"session_id": conv.Session.ID,
		"reason":     pending.Reason,
		"messages":   len(request),
	})

	next, result, err := e.send(ctx, prepared, pending.UserText, request)
	if err != nil {
		return conv, TurnResult{}, err
	}
	return next, result, nil
}

func (e *Engine) send(ctx context.Context, base store.Conversation, text string, request []store.OutgoingMessage) (store.Conversation, TurnResult, error) {
	injection := ""
	if e.contexts != nil {
		built, err := e.contexts.Build(ctx, base.Session, text)
		if err != nil {
			return base, TurnResult{}, err
		}
		injection = built
	}

	resp, err := e.api.Chat(ctx, &apiclient.ChatRequest{
		Messages:       request,
		SessionContext: SessionContextFor(base, injection),
	})
	now := e.now()
	if err != nil {
		apiErr, ok := apiclient.AsApiError(err)
		if !ok {
			return base, TurnResult{}, err
		}
		e.logger.Warn(moduleName, "Chat call failed", map[string]interface{}{
			"session_id": base.Session.ID,
			"error_type": string(apiErr.ErrorType),
			"status":     apiErr.Status,
			"code":       apiErr.Code,
			"retriable":  apiErr.Retriable,
		})
		next := state.ApplyFailure(base, text, request, state.Failure{
			Message:   apiErr.Message,
			Retriable: apiErr.Retriable,
			Reason:    string(apiErr.ErrorType),
		}, now)
		last, _ := next.LastMessage()
		return next, TurnResult{Reply: last.Content, Failure: apiErr}, nil
	}

	reply := ""
	var extracted *extraction.ExtractedData
	if resp != nil {
		reply = resp.Reply
		extracted = resp.Extracted
	}
	next, outcome := state.ApplyModelResult(base, reply, extracted, now)
	if outcome.ModelAhead {
		e.logger.Warn(moduleName, "Model moved on before the work item was complete", map[string]interface{}{
			"session_id":  base.Session.ID,
			"next_action": string(outcome.NextAction),
		})
	}
	last, _ := next.LastMessage()
	return next, TurnResult{
		Reply:      last.Content,
		NextAction: outcome.NextAction,
		Committed:  outcome.Committed,
		ModelAhead: outcome.ModelAhead,
	}, nil
}

// Feedback asks the model for a short review of a completed session. A nil
// response means the server had nothing to say.
func (e *Engine) Feedback(ctx context.Context, conv store.Conversation) (*apiclient.FeedbackResponse, error) {
	if conv.Status != store.StatusCompleted {
		return nil, fmt.Errorf("feedback for session %s: %w", conv.Session.ID, ErrNotCompleted)
	}
	req := &apiclient.FeedbackRequest{
		SessionID: conv.Session.ID,
		ClientID:  conv.Session.ClientID,
		Context:   strings.TrimSpace(conv.Session.SiteName + " " + conv.Session.Weather),
		Extracted: apiclient.FeedbackExtracted{ActionGoal: conv.Session.ActionGoal},
	}
	for _, item := range conv.Session.WorkItems {
		req.Extracted.Risks = append(req.Extracted.Risks, item.HazardDescription)
		for _, cm := range item.Countermeasures {
			req.Extracted.Measures = append(req.Extracted.Measures, cm.Text)
		}
	}
	return e.api.Feedback(ctx, req)
}

// SessionContextFor describes conv to the model API.
func SessionContextFor(conv store.Conversation, injection string) apiclient.SessionContext {
	sc := apiclient.SessionContext{
		SessionID:        conv.Session.ID,
		ClientID:         conv.Session.ClientID,
		WorkerName:       conv.Session.WorkerName,
		SiteName:         conv.Session.SiteName,
		Weather:          conv.Session.Weather,
		Temperature:      conv.Session.Temperature,
		ProcessPhase:     conv.Session.ProcessPhase,
		HealthCondition:  conv.Session.HealthCondition,
		Status:           conv.Status,
		CommittedCount:   len(conv.Session.WorkItems),
		ActionGoal:       conv.Session.ActionGoal,
		ContextInjection: injection,
	}
	if !conv.Draft.IsEmpty() {
		draft := conv.Draft.Clone()
		sc.CurrentItem = &draft
	}
	return sc
}
