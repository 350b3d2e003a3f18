package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/dto"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/entity"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/repository/memory"
	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/websocket"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/apiclient"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/engine"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/state"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	submit   func(conv store.Conversation, text string) (store.Conversation, engine.TurnResult, error)
	retry    func(conv store.Conversation) (store.Conversation, engine.TurnResult, error)
	feedback *apiclient.FeedbackResponse
	block    chan struct{}
	entered  chan struct{}
}

func (f *fakeEngine) Submit(ctx context.Context, conv store.Conversation, text string) (store.Conversation, engine.TurnResult, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return f.submit(conv, text)
}

func (f *fakeEngine) Retry(ctx context.Context, conv store.Conversation) (store.Conversation, engine.TurnResult, error) {
	return f.retry(conv)
}

func (f *fakeEngine) Feedback(ctx context.Context, conv store.Conversation) (*apiclient.FeedbackResponse, error) {
	if conv.Status != store.StatusCompleted {
		return nil, engine.ErrNotCompleted
	}
	return f.feedback, nil
}

type emitted struct {
	sessionID string
	eventType string
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (e *fakeEmitter) Emit(ctx context.Context, sessionID, eventType string, data interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{sessionID, eventType})
}

func (e *fakeEmitter) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.eventType)
	}
	return out
}

type fakePublisher struct {
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.payloads = append(p.payloads, payload)
	return nil
}

type kyFixture struct {
	svc      *kySessionService
	engine   *fakeEngine
	emitter  *fakeEmitter
	pub      *fakePublisher
	sessions *memory.SessionRepository
	repo     *fakeRepo
}

func newKyFixture() *kyFixture {
	f := &kyFixture{
		engine:   &fakeEngine{},
		emitter:  &fakeEmitter{},
		pub:      &fakePublisher{},
		sessions: memory.NewSessionRepository(time.Hour),
		repo:     newFakeRepo(),
	}
	history := NewHistoryStore(&fakeFactory{repo: f.repo}, 3)
	f.svc = NewKySessionService(f.sessions, f.engine, history, f.pub, f.emitter, time.FixedZone("JST", 9*60*60), nil).(*kySessionService)
	f.svc.now = func() time.Time { return time.Date(2026, 10, 14, 7, 50, 0, 0, time.UTC) }
	return f
}

func (f *kyFixture) start(t *testing.T, worker string) string {
	t.Helper()
	resp, err := f.svc.Start(context.Background(), worker, &dto.StartSessionRequest{WorkerName: " 山田 ", SiteName: "A現場"})
	require.NoError(t, err)
	return resp.Session.ID
}

func TestStartCreatesLiveSession(t *testing.T) {
	f := newKyFixture()

	resp, err := f.svc.Start(context.Background(), "worker-1", &dto.StartSessionRequest{WorkerName: " 山田 ", SiteName: "A現場", Weather: "晴れ"})

	require.NoError(t, err)
	assert.NotEmpty(t, resp.Session.ID)
	assert.Equal(t, "山田", resp.Session.WorkerName)
	assert.Equal(t, "worker-1", resp.Session.ClientID)
	assert.Equal(t, store.StatusWorkItems, resp.Status)
	assert.NotEmpty(t, resp.Messages, "greeting is part of the transcript")
	assert.Nil(t, resp.MissingFields)
	assert.Equal(t, 1, f.sessions.Count())
}

func TestStartDefaultsWorkStartToSiteZone(t *testing.T) {
	f := newKyFixture()
	f.svc.now = func() time.Time { return time.Date(2026, 10, 11, 22, 30, 0, 0, time.UTC) }

	resp, err := f.svc.Start(context.Background(), "worker-1", &dto.StartSessionRequest{SiteName: "A現場"})

	require.NoError(t, err)
	assert.Equal(t, time.Monday, resp.Session.WorkStartTime.Weekday())
	assert.Equal(t, 7, resp.Session.WorkStartTime.Hour())
}

func TestOtherWorkersSessionIsNotFound(t *testing.T) {
	f := newKyFixture()
	id := f.start(t, "worker-1")

	_, err := f.svc.Get(context.Background(), "worker-2", id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.svc.Get(context.Background(), "worker-1", "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.NoError(t, f.svc.Authorize("worker-1", id))
}

func TestSubmitSavesStateAndEmitsTurn(t *testing.T) {
	f := newKyFixture()
	id := f.start(t, "worker-1")
	f.engine.submit = func(conv store.Conversation, text string) (store.Conversation, engine.TurnResult, error) {
		next := state.AppendUser(conv, text, time.Now())
		next.Draft.WorkDescription = "足場の組立"
		return next, engine.TurnResult{Reply: "どんな危険がありますか？", NextAction: store.NextAskHazard}, nil
	}

	resp, err := f.svc.Submit(context.Background(), "worker-1", id, "足場の組立です")

	require.NoError(t, err)
	assert.Equal(t, "どんな危険がありますか？", resp.Reply)
	assert.Equal(t, store.NextAskHazard, resp.NextAction)

	got, err := f.svc.Get(context.Background(), "worker-1", id)
	require.NoError(t, err)
	assert.Equal(t, "足場の組立", got.Draft.WorkDescription)
	assert.Contains(t, got.MissingFields, store.NextAskHazard)
	assert.Equal(t, []string{websocket.EventTurn}, f.emitter.types())
}

func TestEngineErrorsMapToKyErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"empty", engine.ErrEmptyText, ErrEmptyUtterance},
		{"completed", engine.ErrConversationCompleted, ErrSessionCompleted},
		{"no retry", state.ErrNoPendingRetry, ErrNoPendingRetry},
		{"cancelled", context.Canceled, context.Canceled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newKyFixture()
			id := f.start(t, "worker-1")
			f.engine.retry = func(conv store.Conversation) (store.Conversation, engine.TurnResult, error) {
				return conv, engine.TurnResult{}, tc.err
			}

			_, err := f.svc.Retry(context.Background(), "worker-1", id)

			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.emitter.types())
		})
	}
}

func TestFailureIsReported(t *testing.T) {
	f := newKyFixture()
	id := f.start(t, "worker-1")
	f.engine.submit = func(conv store.Conversation, text string) (store.Conversation, engine.TurnResult, error) {
		next := conv.Clone()
		next.Pending = &store.PendingRetry{UserText: text}
		return next, engine.TurnResult{Reply: "再送してください", Failure: &apiclient.ApiError{
			ErrorType: apiclient.ErrorRateLimit, Status: 429, Retriable: true, RetryAfterSec: 10, Message: "混雑",
		}}, nil
	}

	resp, err := f.svc.Submit(context.Background(), "worker-1", id, "溶接")

	require.NoError(t, err)
	require.NotNil(t, resp.Failure)
	assert.True(t, resp.Failure.Retriable)
	assert.Equal(t, 10, resp.Failure.RetryAfterSec)
	assert.True(t, resp.HasPendingRetry)
}

func TestConcurrentTurnIsRejected(t *testing.T) {
	f := newKyFixture()
	id := f.start(t, "worker-1")
	f.engine.block = make(chan struct{})
	f.engine.entered = make(chan struct{}, 1)
	f.engine.submit = func(conv store.Conversation, text string) (store.Conversation, engine.TurnResult, error) {
		return conv, engine.TurnResult{Reply: "ok"}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Submit(context.Background(), "worker-1", id, "一回目")
		done <- err
	}()
	<-f.engine.entered

	_, err := f.svc.Submit(context.Background(), "worker-1", id, "二回目")
	assert.ErrorIs(t, err, ErrTurnInFlight)
	_, err = f.svc.SetNearMiss(context.Background(), "worker-1", id, &dto.NearMissRequest{Reported: true})
	assert.ErrorIs(t, err, ErrTurnInFlight)

	close(f.engine.block)
	require.NoError(t, <-done)

	f.engine.block = nil
	f.engine.entered = nil
	_, err = f.svc.Submit(context.Background(), "worker-1", id, "三回目")
	assert.NoError(t, err)
}

func TestCompletionPublishesSnapshot(t *testing.T) {
	f := newKyFixture()
	id := f.start(t, "worker-1")
	completedAt := time.Date(2026, 10, 14, 8, 5, 0, 0, time.UTC)
	f.engine.submit = func(conv store.Conversation, text string) (store.Conversation, engine.TurnResult, error) {
		next := conv.Clone()
		next.Status = store.StatusCompleted
		next.Session.ActionGoal = "足元確認ヨシ"
		next.Session.CompletedAt = &completedAt
		return next, engine.TurnResult{Reply: "お疲れさまでした", Shortcut: true}, nil
	}
	f.engine.feedback = &apiclient.FeedbackResponse{Praise: "よくできました"}
	f.svc.speakers.For(id).Claim("m1")

	_, err := f.svc.Submit(context.Background(), "worker-1", id, "はい")
	require.NoError(t, err)

	require.Len(t, f.pub.payloads, 1)
	var msg dto.PublishKyCompletedMessage
	require.NoError(t, json.Unmarshal(f.pub.payloads[0], &msg))
	assert.Equal(t, id, msg.Snapshot.Session.ID)
	assert.Equal(t, "足元確認ヨシ", msg.Snapshot.Session.ActionGoal)
	assert.Equal(t, []string{websocket.EventTurn, websocket.EventStatus, websocket.EventCompleted}, f.emitter.types())
	assert.Equal(t, "", f.svc.speakers.For(id).Owner())

	got, err := f.svc.Get(context.Background(), "worker-1", id)
	require.NoError(t, err, "completed session stays readable")
	assert.Equal(t, store.StatusCompleted, got.Status)

	fb, err := f.svc.Feedback(context.Background(), "worker-1", id)
	require.NoError(t, err)
	assert.Equal(t, "よくできました", fb.Praise)

	_, err = f.svc.SetNearMiss(context.Background(), "worker-1", id, &dto.NearMissRequest{Reported: true})
	assert.ErrorIs(t, err, ErrSessionCompleted)
}

func TestCompletionPublishFailureKeepsSessionOpen(t *testing.T) {
	f := newKyFixture()
	id := f.start(t, "worker-1")
	f.engine.submit = func(conv store.Conversation, text string) (store.Conversation, engine.TurnResult, error) {
		next := state.AppendUser(conv, text, conv.Session.CreatedAt)
		next.Status = store.StatusCompleted
		return next, engine.TurnResult{Reply: "お疲れさまでした", Shortcut: true}, nil
	}
	f.pub.err = errors.New("broker unavailable")
	f.svc.speakers.For(id).Claim("m1")

	_, err := f.svc.Submit(context.Background(), "worker-1", id, "完了")

	assert.ErrorIs(t, err, ErrCompletionNotRecorded)
	assert.Empty(t, f.emitter.types())
	assert.Equal(t, "m1", f.svc.speakers.For(id).Owner())
	got, err := f.svc.Get(context.Background(), "worker-1", id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusWorkItems, got.Status)
	assert.Len(t, got.Messages, 1)

	f.pub.err = nil
	resp, err := f.svc.Submit(context.Background(), "worker-1", id, "完了")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, resp.Status)
	assert.Len(t, f.pub.payloads, 1)
}

func TestFeedbackBeforeCompletion(t *testing.T) {
	f := newKyFixture()
	id := f.start(t, "worker-1")

	_, err := f.svc.Feedback(context.Background(), "worker-1", id)

	assert.ErrorIs(t, err, ErrSessionIncomplete)
}

func TestSetNearMiss(t *testing.T) {
	f := newKyFixture()
	id := f.start(t, "worker-1")

	resp, err := f.svc.SetNearMiss(context.Background(), "worker-1", id, &dto.NearMissRequest{Reported: true, Note: " 脚立で滑った "})
	require.NoError(t, err)
	assert.True(t, resp.Session.NearMissReported)
	assert.Equal(t, "脚立で滑った", resp.Session.NearMissNote)

	resp, err = f.svc.SetNearMiss(context.Background(), "worker-1", id, &dto.NearMissRequest{Reported: false, Note: "無視される"})
	require.NoError(t, err)
	assert.False(t, resp.Session.NearMissReported)
	assert.Empty(t, resp.Session.NearMissNote)
}

func TestSpeakerClaimAndRelease(t *testing.T) {
	f := newKyFixture()
	id := f.start(t, "worker-1")
	ctx := context.Background()

	resp, err := f.svc.Speaker(ctx, "worker-1", id, &dto.SpeakerRequest{MessageID: "m1", Action: "claim"})
	require.NoError(t, err)
	assert.Equal(t, "m1", resp.Owner)

	resp, err = f.svc.Speaker(ctx, "worker-1", id, &dto.SpeakerRequest{MessageID: "m2", Action: "claim"})
	require.NoError(t, err)
	assert.Equal(t, "m1", resp.Previous)
	assert.Equal(t, "m2", resp.Owner)

	resp, err = f.svc.Speaker(ctx, "worker-1", id, &dto.SpeakerRequest{MessageID: "m1", Action: "release"})
	require.NoError(t, err)
	assert.False(t, resp.Released)
	assert.Equal(t, "m2", resp.Owner)

	resp, err = f.svc.Speaker(ctx, "worker-1", id, &dto.SpeakerRequest{MessageID: "m2", Action: "release"})
	require.NoError(t, err)
	assert.True(t, resp.Released)
	assert.Equal(t, "", resp.Owner)

	assert.Len(t, f.emitter.types(), 4)
}

func TestDelete(t *testing.T) {
	f := newKyFixture()
	id := f.start(t, "worker-1")

	assert.ErrorIs(t, f.svc.Delete(context.Background(), "worker-2", id), ErrSessionNotFound)
	require.NoError(t, f.svc.Delete(context.Background(), "worker-1", id))

	_, err := f.svc.Get(context.Background(), "worker-1", id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Zero(t, f.sessions.Count())
}

func TestHistoryDefaultsLimit(t *testing.T) {
	f := newKyFixture()
	f.repo.findAll = []*entity.KySession{{
		Id:         "done-1",
		SiteName:   "A現場",
		WorkerName: "山田",
		WorkItems:  []store.WorkItem{{WorkDescription: "足場", HazardDescription: "墜落"}},
		ActionGoal: "足元確認ヨシ",
	}}

	items, err := f.svc.History(context.Background(), "worker-1", &dto.HistoryQuery{Site: "A現場"})

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "done-1", items[0].ID)
	assert.Equal(t, "足元確認ヨシ", items[0].ActionGoal)
	assert.Len(t, items[0].WorkItems, 1)
}
