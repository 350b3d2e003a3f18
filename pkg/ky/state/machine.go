// Package state holds the session reducers. Every function takes a
// conversation value and returns a new one; the argument is never mutated.
package state

import (
	"errors"
	"strings"
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/conversation"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/extraction"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/rules"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/shortcut"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"

	"github.com/google/uuid"
)

var ErrNoPendingRetry = errors.New("no pending retry")

// NewConversation opens a session with the greeting turn.
func NewConversation(session store.Session, now time.Time) store.Conversation {
	session = session.Clone()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.WorkStartTime.IsZero() {
		session.WorkStartTime = now
	}
	session.CompletedAt = nil

	conv := store.Conversation{
		Session: session,
		Status:  store.StatusWorkItems,
	}
	appendMessage(&conv, store.RoleAssistant, GreetingReply, store.NextAskWork, now)
	return conv
}

// AppendUser records a worker utterance.
func AppendUser(conv store.Conversation, text string, now time.Time) store.Conversation {
	next := conv.Clone()
	appendMessage(&next, store.RoleUser, text, "", now)
	return next
}

// AppendAssistant records an assistant turn tagged with next.
func AppendAssistant(conv store.Conversation, content string, next store.NextAction, now time.Time) store.Conversation {
	out := conv.Clone()
	appendMessage(&out, store.RoleAssistant, content, next, now)
	return out
}

func appendMessage(conv *store.Conversation, role store.Role, content string, next store.NextAction, now time.Time) {
	conv.Messages = append(conv.Messages, store.ChatMessage{
		ID:         uuid.NewString(),
		Role:       role,
		Content:    content,
		NextAction: next,
		CreatedAt:  now,
	})
}

// CommitDraft appends the draft to the committed items and starts a fresh
// one. Committed items are never touched again.
func CommitDraft(conv store.Conversation) store.Conversation {
	next := conv.Clone()
	commitDraft(&next)
	return next
}

func commitDraft(conv *store.Conversation) {
	item := conv.Draft.Clone()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	conv.Session.WorkItems = append(conv.Session.WorkItems, item)
	conv.Draft = store.WorkItem{}
}

// Advance moves status forward to target. Backward moves are ignored.
func Advance(conv store.Conversation, target store.Status, now time.Time) store.Conversation {
	next := conv.Clone()
	advance(&next, target, now)
	return next
}

func advance(conv *store.Conversation, target store.Status, now time.Time) {
	if target.Rank() <= conv.Status.Rank() {
		return
	}
	conv.Status = target
	if target == store.StatusCompleted && conv.Session.CompletedAt == nil {
		t := now
		conv.Session.CompletedAt = &t
	}
}

// goalStage is where a session goes once work items are done.
func goalStage(conv *store.Conversation) (store.Status, store.NextAction) {
	if strings.TrimSpace(conv.Session.ActionGoal) != "" {
		return store.StatusConfirmation, store.NextConfirm
	}
	return store.StatusActionGoal, store.NextAskGoal
}

func stageReply(conv *store.Conversation, next store.NextAction) string {
	switch next {
	case store.NextConfirm:
		return ConfirmReply(conv.Session.ActionGoal, len(conv.Session.WorkItems))
	case store.NextCompleted:
		return CompletedReply
	}
	return QuestionFor(next)
}

// ShortcutKind names the deterministic rule that resolved a turn.
type ShortcutKind string

const (
	ShortcutKYComplete ShortcutKind = "ky_complete"
	ShortcutMoveNext   ShortcutKind = "move_next"
	ShortcutNoMore     ShortcutKind = "no_more_items"
	ShortcutCompletion ShortcutKind = "completion"
	ShortcutActionGoal ShortcutKind = "action_goal"
	ShortcutRiskLevel  ShortcutKind = "risk_level"
)

type Shortcut struct {
	Kind       ShortcutKind
	Reply      string
	NextAction store.NextAction
	Committed  bool
}

// ApplyShortcut resolves text locally when a deterministic rule applies. It
// appends both the user message and a synthetic assistant turn. ok is false
// when the turn needs the model; conv is then returned unchanged.
func ApplyShortcut(conv store.Conversation, text string, now time.Time) (store.Conversation, Shortcut, bool) {
	next := conv.Clone()
	next.Pending = nil

	var sc Shortcut
	var ok bool
	switch next.Status {
	case store.StatusWorkItems:
		sc, ok = workItemsShortcut(&next, text, now)
	case store.StatusActionGoal:
		sc, ok = actionGoalShortcut(&next, text, now)
	case store.StatusConfirmation:
		sc, ok = confirmationShortcut(&next, text, now)
	}
	if !ok {
		return conv, Shortcut{}, false
	}

	appendMessage(&next, store.RoleUser, text, "", now)
	appendMessage(&next, store.RoleAssistant, sc.Reply, sc.NextAction, now)
	return next, sc, true
}

func workItemsShortcut(conv *store.Conversation, text string, now time.Time) (Shortcut, bool) {
	draftEmpty := conv.Draft.IsEmpty()
	draftComplete := rules.IsWorkItemComplete(&conv.Draft)
	hasItems := len(conv.Session.WorkItems) > 0

	finishItems := func(kind ShortcutKind) (Shortcut, bool) {
		sc := Shortcut{Kind: kind}
		if draftComplete {
			commitDraft(conv)
			sc.Committed = true
		}
		status, next := goalStage(conv)
		advance(conv, status, now)
		sc.NextAction = next
		sc.Reply = stageReply(conv, next)
		return sc, true
	}

	switch {
	case shortcut.IsKYComplete(text):
		if draftEmpty || draftComplete {
			return finishItems(ShortcutKYComplete)
		}
	case shortcut.IsNextItemIntent(text):
		if draftComplete {
			commitDraft(conv)
			return Shortcut{Kind: ShortcutMoveNext, Reply: NextWorkReply, NextAction: store.NextAskWork, Committed: true}, true
		}
		if draftEmpty {
			return Shortcut{Kind: ShortcutMoveNext, Reply: AskNextReply, NextAction: store.NextAskWork}, true
		}
	case shortcut.IsNoMoreItemsIntent(text):
		if (draftEmpty && hasItems) || draftComplete {
			return finishItems(ShortcutNoMore)
		}
	case shortcut.IsCompletionIntent(text):
		if (draftEmpty && hasItems) || draftComplete {
			return finishItems(ShortcutCompletion)
		}
	default:
		return riskLevelShortcut(conv, text)
	}
	return Shortcut{}, false
}

// riskLevelShortcut answers "危険度は？" locally when the worker just says a
// number and something else is still missing.
func riskLevelShortcut(conv *store.Conversation, text string) (Shortcut, bool) {
	last, ok := conv.LastMessage()
	if !ok || last.Role != store.RoleAssistant || last.NextAction != store.NextAskRiskLevel {
		return Shortcut{}, false
	}
	level, ok := shortcut.ParseRiskLevel(text)
	if !ok {
		return Shortcut{}, false
	}
	draft := conv.Draft.Clone()
	draft.RiskLevel = level
	missing := rules.MissingFields(&draft)
	if len(missing) == 0 {
		return Shortcut{}, false
	}
	conv.Draft = draft
	return Shortcut{Kind: ShortcutRiskLevel, Reply: QuestionFor(missing[0]), NextAction: missing[0]}, true
}

func actionGoalShortcut(conv *store.Conversation, text string, now time.Time) (Shortcut, bool) {
	if goal, ok := shortcut.ExtractActionGoal(text); ok {
		conv.Session.ActionGoal = goal
		advance(conv, store.StatusConfirmation, now)
		return Shortcut{Kind: ShortcutActionGoal, Reply: stageReply(conv, store.NextConfirm), NextAction: store.NextConfirm}, true
	}
	if shortcut.IsKYComplete(text) && strings.TrimSpace(conv.Session.ActionGoal) != "" {
		advance(conv, store.StatusConfirmation, now)
		return Shortcut{Kind: ShortcutKYComplete, Reply: stageReply(conv, store.NextConfirm), NextAction: store.NextConfirm}, true
	}
	return Shortcut{}, false
}

func confirmationShortcut(conv *store.Conversation, text string, now time.Time) (Shortcut, bool) {
	var kind ShortcutKind
	switch {
	case shortcut.IsKYComplete(text):
		kind = ShortcutKYComplete
	case shortcut.IsCompletionIntent(text), shortcut.IsAcknowledgement(text):
		kind = ShortcutCompletion
	default:
		return Shortcut{}, false
	}
	advance(conv, store.StatusCompleted, now)
	return Shortcut{Kind: kind, Reply: CompletedReply, NextAction: store.NextCompleted}, true
}

// ModelOutcome describes what a model turn changed.
type ModelOutcome struct {
	NextAction store.NextAction
	Committed  bool
	// ModelAhead is set when the model signalled the item was done but the
	// local completeness check blocked the commit.
	ModelAhead bool
}

// ApplyModelResult folds a model turn into the conversation and appends the
// reply. The user message must already be in the transcript.
func ApplyModelResult(conv store.Conversation, reply string, extracted *extraction.ExtractedData, now time.Time) (store.Conversation, ModelOutcome) {
	next := conv.Clone()
	next.Pending = nil
	var outcome ModelOutcome

	nextAction := store.NextAction("")
	if extracted != nil {
		nextAction = extracted.NextAction
	}

	if next.Status == store.StatusWorkItems {
		res := extraction.Merge(next.Draft, extracted)
		next.Draft = res.WorkItemPatch.Apply(next.Draft)
		if res.ShouldCommitWorkItem {
			commitDraft(&next)
			outcome.Committed = true
		} else if extraction.CommitIntent(nextAction) && !next.Draft.IsEmpty() {
			outcome.ModelAhead = true
		}
		if res.ActionGoal != nil {
			next.Session.ActionGoal = *res.ActionGoal
		}
	} else if extracted != nil {
		if res := extraction.Merge(store.WorkItem{}, extracted); res.ActionGoal != nil {
			next.Session.ActionGoal = *res.ActionGoal
		}
	}

	evaluateStatus(&next, nextAction, now)

	if strings.TrimSpace(reply) == "" {
		reply = EmptyReply
	}
	appendMessage(&next, store.RoleAssistant, reply, nextAction, now)
	outcome.NextAction = nextAction
	return next, outcome
}

// evaluateStatus derives the status the model's hint allows. Leaving
// work_items needs at least one committed item and nothing half-collected.
func evaluateStatus(conv *store.Conversation, next store.NextAction, now time.Time) {
	itemsDone := len(conv.Session.WorkItems) > 0 && conv.Draft.IsEmpty()
	hasGoal := strings.TrimSpace(conv.Session.ActionGoal) != ""

	switch next {
	case store.NextAskGoal:
		if itemsDone {
			advance(conv, store.StatusActionGoal, now)
		}
	case store.NextConfirm:
		if itemsDone {
			status, _ := goalStage(conv)
			advance(conv, status, now)
		}
	case store.NextCompleted:
		if conv.Status == store.StatusConfirmation {
			advance(conv, store.StatusCompleted, now)
		} else if itemsDone {
			status, _ := goalStage(conv)
			advance(conv, status, now)
		}
	}

	if conv.Status == store.StatusActionGoal && hasGoal && next != store.NextAskGoal {
		advance(conv, store.StatusConfirmation, now)
	}
}

// Failure is a classified turn failure as the reducer needs it.
type Failure struct {
	Message   string
	Retriable bool
	Reason    string
}

// ApplyFailure records a failed turn. A retriable failure shows the retry
// placeholder and keeps the request for one explicit retry; otherwise the
// classified message is shown and nothing is kept. The user message must
// already be in the transcript.
func ApplyFailure(conv store.Conversation, userText string, request []store.OutgoingMessage, f Failure, now time.Time) store.Conversation {
	next := conv.Clone()
	if f.Retriable {
		appendMessage(&next, store.RoleAssistant, conversation.RetryPlaceholder, "", now)
		next.Pending = &store.PendingRetry{
			UserText: userText,
			Request:  append([]store.OutgoingMessage(nil), request...),
			Reason:   f.Reason,
		}
		return next
	}
	appendMessage(&next, store.RoleAssistant, f.Message, "", now)
	next.Pending = nil
	return next
}

// PrepareRetry consumes the pending retry. The returned conversation has the
// placeholder removed and no pending retry; the request is rebuilt from the
// transcript so the user text appears exactly once.
func PrepareRetry(conv store.Conversation) (store.Conversation, store.PendingRetry, []store.OutgoingMessage, error) {
	if conv.Pending == nil {
		return conv, store.PendingRetry{}, nil, ErrNoPendingRetry
	}
	next := conv.Clone()
	pending := *next.Pending
	next.Pending = nil
	next.Messages = conversation.DropRetryPlaceholder(next.Messages)
	request := conversation.BuildRetryMessages(next.Messages, pending.UserText)
	return next, pending, request, nil
}
