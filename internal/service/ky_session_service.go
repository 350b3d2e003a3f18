package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/dto"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/entity"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/pkg/logger"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/repository/memory"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/websocket"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/apiclient"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/engine"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/rules"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/speech"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/state"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"

	"github.com/google/uuid"
)

const kyModule = "KySessionService"

// TurnEngine runs one KY turn against the model API.
type TurnEngine interface {
	Submit(ctx context.Context, conv store.Conversation, text string) (store.Conversation, engine.TurnResult, error)
	Retry(ctx context.Context, conv store.Conversation) (store.Conversation, engine.TurnResult, error)
	Feedback(ctx context.Context, conv store.Conversation) (*apiclient.FeedbackResponse, error)
}

// SessionEmitter pushes events to clients following a session.
type SessionEmitter interface {
	Emit(ctx context.Context, sessionID, eventType string, data interface{})
}

type CompletedLister interface {
	ListCompleted(ctx context.Context, siteName string, limit int) ([]*entity.KySession, error)
}

type IKySessionService interface {
	Start(ctx context.Context, workerID string, req *dto.StartSessionRequest) (*dto.SessionStateResponse, error)
	Get(ctx context.Context, workerID, sessionID string) (*dto.SessionStateResponse, error)
	Submit(ctx context.Context, workerID, sessionID, text string) (*dto.TurnResponse, error)
	Retry(ctx context.Context, workerID, sessionID string) (*dto.TurnResponse, error)
	SetNearMiss(ctx context.Context, workerID, sessionID string, req *dto.NearMissRequest) (*dto.SessionStateResponse, error)
	Feedback(ctx context.Context, workerID, sessionID string) (*apiclient.FeedbackResponse, error)
	Speaker(ctx context.Context, workerID, sessionID string, req *dto.SpeakerRequest) (*dto.SpeakerResponse, error)
	Delete(ctx context.Context, workerID, sessionID string) error
	History(ctx context.Context, workerID string, query *dto.HistoryQuery) ([]dto.HistoryItemResponse, error)
	// Authorize checks that workerID owns a live session.
	Authorize(workerID, sessionID string) error
}

type kySessionService struct {
	sessions  *memory.SessionRepository
	engine    TurnEngine
	history   CompletedLister
	publisher IPublisherService
	emitter   SessionEmitter
	speakers  *speech.Registry
	location  *time.Location
	logger    logger.ILogger
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewKySessionService(
	sessions *memory.SessionRepository,
	turnEngine TurnEngine,
	history CompletedLister,
	publisher IPublisherService,
	emitter SessionEmitter,
	location *time.Location,
	log logger.ILogger,
) IKySessionService {
	if log == nil {
		log = logger.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	return &kySessionService{
		sessions:  sessions,
		engine:    turnEngine,
		history:   history,
		publisher: publisher,
		emitter:   emitter,
		speakers:  speech.NewRegistry(),
		location:  location,
		logger:    log,
		now:       time.Now,
		inFlight:  make(map[string]struct{}),
	}
}

func (s *kySessionService) Start(ctx context.Context, workerID string, req *dto.StartSessionRequest) (*dto.SessionStateResponse, error) {
	now := s.now()
	session := store.Session{
		ID:              uuid.NewString(),
		ClientID:        workerID,
		WorkerName:      strings.TrimSpace(req.WorkerName),
		SiteName:        strings.TrimSpace(req.SiteName),
		Weather:         strings.TrimSpace(req.Weather),
		Temperature:     req.Temperature,
		ProcessPhase:    strings.TrimSpace(req.ProcessPhase),
		HealthCondition: strings.TrimSpace(req.HealthCondition),
		WorkStartTime:   now.In(s.location),
		CreatedAt:       now,
	}
	if req.WorkStartTime != nil {
		session.WorkStartTime = *req.WorkStartTime
	}

	conv := state.NewConversation(session, now)
	s.sessions.Save(conv)

	s.logger.Info(kyModule, "Session started", map[string]interface{}{
		"session_id": session.ID,
		"worker_id":  workerID,
		"site_name":  session.SiteName,
	})
	return stateResponse(conv), nil
}

func (s *kySessionService) Get(ctx context.Context, workerID, sessionID string) (*dto.SessionStateResponse, error) {
	conv, err := s.load(workerID, sessionID)
	if err != nil {
		return nil, err
	}
	return stateResponse(conv), nil
}

func (s *kySessionService) Submit(ctx context.Context, workerID, sessionID, text string) (*dto.TurnResponse, error) {
	return s.runTurn(ctx, workerID, sessionID, func(conv store.Conversation) (store.Conversation, engine.TurnResult, error) {
		return s.engine.Submit(ctx, conv, text)
	})
}

func (s *kySessionService) Retry(ctx context.Context, workerID, sessionID string) (*dto.TurnResponse, error) {
	return s.runTurn(ctx, workerID, sessionID, func(conv store.Conversation) (store.Conversation, engine.TurnResult, error) {
		return s.engine.Retry(ctx, conv)
	})
}

type turnFunc func(conv store.Conversation) (store.Conversation, engine.TurnResult, error)

func (s *kySessionService) runTurn(ctx context.Context, workerID, sessionID string, run turnFunc) (*dto.TurnResponse, error) {
	release, err := s.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	conv, err := s.load(workerID, sessionID)
	if err != nil {
		return nil, err
	}

	next, result, err := run(conv)
	if err != nil {
		return nil, s.mapEngineError(sessionID, err)
	}

	completed := next.Status == store.StatusCompleted && conv.Status != store.StatusCompleted
	if completed {
		if err := s.publishCompleted(ctx, next); err != nil {
			return nil, ErrCompletionNotRecorded
		}
	}
	s.sessions.Save(next)

	resp := turnResponse(next, result)
	s.emit(ctx, sessionID, websocket.EventTurn, resp)
	if next.Status != conv.Status {
		s.emit(ctx, sessionID, websocket.EventStatus, map[string]interface{}{"from": conv.Status, "to": next.Status})
	}
	if completed {
		s.onCompleted(ctx, next)
	}
	return resp, nil
}

func (s *kySessionService) mapEngineError(sessionID string, err error) error {
	switch {
	case errors.Is(err, engine.ErrEmptyText):
		return ErrEmptyUtterance
	case errors.Is(err, engine.ErrConversationCompleted):
		return ErrSessionCompleted
	case errors.Is(err, state.ErrNoPendingRetry):
		return ErrNoPendingRetry
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Info(kyModule, "Turn cancelled, state unchanged", map[string]interface{}{"session_id": sessionID})
		return err
	default:
		s.logger.Error(kyModule, "Turn failed", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
		return err
	}
}

// publishCompleted hands the snapshot to the completion pipeline. It runs
// before the completed state is saved; on error the live session keeps its
// previous state so the worker can confirm again.
func (s *kySessionService) publishCompleted(ctx context.Context, conv store.Conversation) error {
	if s.publisher == nil {
		return nil
	}
	fields := map[string]interface{}{"session_id": conv.Session.ID, "work_items": len(conv.Session.WorkItems)}

	payload, err := json.Marshal(dto.PublishKyCompletedMessage{Snapshot: conv.Clone()})
	if err != nil {
		s.logger.Error(kyModule, "Failed to encode completed session", withError(fields, err))
		return err
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), payload); err != nil {
		s.logger.Error(kyModule, "Failed to publish completed session", withError(fields, err))
		return err
	}
	return nil
}

// onCompleted runs once the completed state is saved. The live entry stays
// readable until it expires or is deleted.
func (s *kySessionService) onCompleted(ctx context.Context, conv store.Conversation) {
	s.speakers.Forget(conv.Session.ID)
	s.logger.Info(kyModule, "Session completed", map[string]interface{}{
		"session_id": conv.Session.ID,
		"work_items": len(conv.Session.WorkItems),
	})
	s.emit(ctx, conv.Session.ID, websocket.EventCompleted, map[string]interface{}{"completed_at": conv.Session.CompletedAt})
}

func (s *kySessionService) SetNearMiss(ctx context.Context, workerID, sessionID string, req *dto.NearMissRequest) (*dto.SessionStateResponse, error) {
	release, err := s.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	conv, err := s.load(workerID, sessionID)
	if err != nil {
		return nil, err
	}
	if conv.Status == store.StatusCompleted {
		return nil, ErrSessionCompleted
	}

	next := conv.Clone()
	next.Session.NearMissReported = req.Reported
	next.Session.NearMissNote = ""
	if req.Reported {
		next.Session.NearMissNote = strings.TrimSpace(req.Note)
	}
	s.sessions.Save(next)
	return stateResponse(next), nil
}

func (s *kySessionService) Feedback(ctx context.Context, workerID, sessionID string) (*apiclient.FeedbackResponse, error) {
	conv, err := s.load(workerID, sessionID)
	if err != nil {
		return nil, err
	}
	resp, err := s.engine.Feedback(ctx, conv)
	if errors.Is(err, engine.ErrNotCompleted) {
		return nil, ErrSessionIncomplete
	}
	if err != nil {
		s.logger.Warn(kyModule, "Feedback unavailable", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
		return nil, err
	}
	return resp, nil
}

func (s *kySessionService) Speaker(ctx context.Context, workerID, sessionID string, req *dto.SpeakerRequest) (*dto.SpeakerResponse, error) {
	if _, err := s.load(workerID, sessionID); err != nil {
		return nil, err
	}
	playback := s.speakers.For(sessionID)

	resp := &dto.SpeakerResponse{}
	switch req.Action {
	case "claim":
		resp.Previous = playback.Claim(req.MessageID)
	case "release":
		resp.Released = playback.Release(req.MessageID)
	}
	resp.Owner = playback.Owner()

	s.emit(ctx, sessionID, websocket.EventSpeaker, resp)
	return resp, nil
}

func (s *kySessionService) Delete(ctx context.Context, workerID, sessionID string) error {
	release, err := s.acquire(sessionID)
	if err != nil {
		return err
	}
	defer release()

	if _, err := s.load(workerID, sessionID); err != nil {
		return err
	}
	s.sessions.Delete(sessionID)
	s.speakers.Forget(sessionID)
	s.logger.Info(kyModule, "Session deleted", map[string]interface{}{"session_id": sessionID})
	return nil
}

func (s *kySessionService) History(ctx context.Context, workerID string, query *dto.HistoryQuery) ([]dto.HistoryItemResponse, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}
	sessions, err := s.history.ListCompleted(ctx, query.Site, limit)
	if err != nil {
		return nil, err
	}
	out := make([]dto.HistoryItemResponse, 0, len(sessions))
	for _, e := range sessions {
		out = append(out, dto.HistoryItemResponse{
			ID:               e.Id,
			SiteName:         e.SiteName,
			WorkerName:       e.WorkerName,
			WorkItems:        e.WorkItems,
			ActionGoal:       e.ActionGoal,
			NearMissReported: e.NearMissReported,
			NearMissNote:     e.NearMissNote,
			CompletedAt:      e.CompletedAt,
		})
	}
	return out, nil
}

func (s *kySessionService) Authorize(workerID, sessionID string) error {
	_, err := s.load(workerID, sessionID)
	return err
}

// load returns the live conversation; another worker's session is reported
// as missing.
func (s *kySessionService) load(workerID, sessionID string) (store.Conversation, error) {
	conv, ok := s.sessions.Get(sessionID)
	if !ok || conv.Session.ClientID != workerID {
		return store.Conversation{}, ErrSessionNotFound
	}
	return conv, nil
}

// acquire allows one mutation per session at a time.
func (s *kySessionService) acquire(sessionID string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[sessionID]; busy {
		return nil, ErrTurnInFlight
	}
	s.inFlight[sessionID] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inFlight, sessionID)
		s.mu.Unlock()
	}, nil
}

func (s *kySessionService) emit(ctx context.Context, sessionID, eventType string, data interface{}) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(context.WithoutCancel(ctx), sessionID, eventType, data)
}

func stateResponse(conv store.Conversation) *dto.SessionStateResponse {
	draft := conv.Draft.Clone()
	missing := rules.MissingFields(&draft)
	if draft.IsEmpty() {
		missing = nil
	}
	return &dto.SessionStateResponse{
		Session:         conv.Session,
		Draft:           draft,
		Messages:        conv.Messages,
		Status:          conv.Status,
		HasPendingRetry: conv.Pending != nil,
		MissingFields:   missing,
	}
}

func turnResponse(conv store.Conversation, result engine.TurnResult) *dto.TurnResponse {
	resp := &dto.TurnResponse{
		SessionID:       conv.Session.ID,
		Reply:           result.Reply,
		NextAction:      result.NextAction,
		Status:          conv.Status,
		Shortcut:        result.Shortcut,
		ShortcutKind:    string(result.ShortcutKind),
		Committed:       result.Committed,
		ModelAhead:      result.ModelAhead,
		HasPendingRetry: conv.Pending != nil,
	}
	if f := result.Failure; f != nil {
		resp.Failure = &dto.FailureDTO{
			ErrorType:     string(f.ErrorType),
			Code:          f.Code,
			Message:       f.Message,
			Retriable:     f.Retriable,
			RetryAfterSec: f.RetryAfterSec,
		}
	}
	return resp
}
