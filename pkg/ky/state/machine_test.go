package state

import (
	"testing"
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/conversation"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/ky/extraction"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

func completeItem() store.WorkItem {
	return store.WorkItem{
		WorkDescription:   "足場の組立",
		HazardDescription: "墜落",
		RiskLevel:         4,
		WhyDangerous:      []string{"手すりが未設置"},
		Countermeasures: []store.Countermeasure{
			{Category: store.CategoryEquipment, Text: "手すり設置"},
			{Category: store.CategoryPPE, Text: "安全帯使用"},
		},
	}
}

func newConv() store.Conversation {
	return NewConversation(store.Session{SiteName: "A現場"}, now)
}

func strPtr(s string) *string { return &s }

func TestNewConversation(t *testing.T) {
	conv := newConv()

	assert.NotEmpty(t, conv.Session.ID)
	assert.Equal(t, store.StatusWorkItems, conv.Status)
	assert.Equal(t, now, conv.Session.CreatedAt)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, store.NextAskWork, conv.Messages[0].NextAction)
	assert.Equal(t, GreetingReply, conv.Messages[0].Content)
}

func TestReducersDoNotMutateInput(t *testing.T) {
	conv := newConv()
	conv.Draft = completeItem()
	before := conv.Clone()

	_ = CommitDraft(conv)
	_ = AppendUser(conv, "x", now)
	_, _, _ = ApplyShortcut(conv, "次へ", now)
	_, _ = ApplyModelResult(conv, "ok", &extraction.ExtractedData{NextAction: store.NextAskMoreWork}, now)

	assert.Equal(t, before, conv)
}

func TestKYCompleteShortcut(t *testing.T) {
	inputs := []string{"ky 完了", "KY完了。", "ＫＹ完了", "ｋｙ完了", "  ｋｙ　完了！  "}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			conv := newConv()
			conv.Session.WorkItems = []store.WorkItem{completeItem()}

			out, sc, ok := ApplyShortcut(conv, input, now)

			require.True(t, ok)
			assert.Equal(t, ShortcutKYComplete, sc.Kind)
			assert.Equal(t, store.StatusActionGoal, out.Status)
			assert.Equal(t, store.NextAskGoal, sc.NextAction)
			last, _ := out.LastMessage()
			assert.Equal(t, store.RoleAssistant, last.Role)
			assert.Equal(t, store.NextAskGoal, last.NextAction)
			assert.Len(t, out.Messages, 3)
		})
	}
}

func TestKYCompleteCommitsFinishedDraft(t *testing.T) {
	conv := newConv()
	conv.Draft = completeItem()
	conv.Session.ActionGoal = "足元確認ヨシ"

	out, sc, ok := ApplyShortcut(conv, "KY完了", now)

	require.True(t, ok)
	assert.True(t, sc.Committed)
	assert.Len(t, out.Session.WorkItems, 1)
	assert.True(t, out.Draft.IsEmpty())
	assert.Equal(t, store.StatusConfirmation, out.Status)
	assert.Equal(t, store.NextConfirm, sc.NextAction)
}

func TestKYCompleteWithPartialDraftNeedsModel(t *testing.T) {
	conv := newConv()
	conv.Draft = store.WorkItem{WorkDescription: "溶接"}

	out, _, ok := ApplyShortcut(conv, "KY完了", now)

	assert.False(t, ok)
	assert.Equal(t, conv, out)
}

func TestMoveNextShortcut(t *testing.T) {
	conv := newConv()
	conv.Draft = completeItem()

	out, sc, ok := ApplyShortcut(conv, "次へ", now)
	require.True(t, ok)
	assert.True(t, sc.Committed)
	assert.Equal(t, store.NextAskWork, sc.NextAction)
	assert.Equal(t, store.StatusWorkItems, out.Status)

	out, sc, ok = ApplyShortcut(out, "他にありません", now)
	require.True(t, ok)
	assert.Equal(t, ShortcutNoMore, sc.Kind)
	assert.False(t, sc.Committed)
	assert.Equal(t, store.StatusActionGoal, out.Status)
	assert.Len(t, out.Session.WorkItems, 1)
}

func TestNextItemAfterCommitStaysInWorkItems(t *testing.T) {
	conv := newConv()
	conv.Session.WorkItems = []store.WorkItem{completeItem()}

	for _, input := range []string{"2件目に移ります", "次へ"} {
		t.Run(input, func(t *testing.T) {
			out, sc, ok := ApplyShortcut(conv, input, now)

			require.True(t, ok)
			assert.Equal(t, ShortcutMoveNext, sc.Kind)
			assert.False(t, sc.Committed)
			assert.Equal(t, store.NextAskWork, sc.NextAction)
			assert.Equal(t, store.StatusWorkItems, out.Status)
			assert.Len(t, out.Session.WorkItems, 1)
		})
	}
}

func TestWorkDescriptionAfterNextGoesToModel(t *testing.T) {
	tests := []struct {
		name  string
		draft store.WorkItem
	}{
		{name: "empty draft", draft: store.WorkItem{}},
		{name: "complete draft", draft: completeItem()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := newConv()
			conv.Session.WorkItems = []store.WorkItem{completeItem()}
			conv.Draft = tt.draft

			out, _, ok := ApplyShortcut(conv, "次の作業は配管の溶接です", now)

			assert.False(t, ok)
			assert.Equal(t, conv, out)
		})
	}
}

func TestCompletionIntentWithoutItemsNeedsModel(t *testing.T) {
	_, _, ok := ApplyShortcut(newConv(), "終了", now)
	assert.False(t, ok)
}

func TestActionGoalAndConfirmation(t *testing.T) {
	conv := newConv()
	conv.Session.WorkItems = []store.WorkItem{completeItem()}
	conv.Status = store.StatusActionGoal

	_, _, ok := ApplyShortcut(conv, "はい", now)
	assert.False(t, ok, "a bare acknowledgement is not a goal")

	out, sc, ok := ApplyShortcut(conv, "目標は「足元確認ヨシ」です", now)
	require.True(t, ok)
	assert.Equal(t, ShortcutActionGoal, sc.Kind)
	assert.Equal(t, "足元確認ヨシ", out.Session.ActionGoal)
	assert.Equal(t, store.StatusConfirmation, out.Status)
	assert.Contains(t, sc.Reply, "足元確認ヨシ")

	out, sc, ok = ApplyShortcut(out, "はい", now)
	require.True(t, ok)
	assert.Equal(t, store.StatusCompleted, out.Status)
	assert.Equal(t, store.NextCompleted, sc.NextAction)
	require.NotNil(t, out.Session.CompletedAt)
	assert.Equal(t, now, *out.Session.CompletedAt)
}

func TestRiskLevelShortcut(t *testing.T) {
	conv := newConv()
	conv.Draft = store.WorkItem{WorkDescription: "溶接", HazardDescription: "火傷", WhyDangerous: []string{"火花"}}
	conv = AppendAssistant(conv, QuestionFor(store.NextAskRiskLevel), store.NextAskRiskLevel, now)

	out, sc, ok := ApplyShortcut(conv, "危険度3です", now)

	require.True(t, ok)
	assert.Equal(t, ShortcutRiskLevel, sc.Kind)
	assert.Equal(t, 3, out.Draft.RiskLevel)
	assert.Equal(t, store.NextAskCountermeasure, sc.NextAction)

	_, _, ok = ApplyShortcut(newConv(), "3", now)
	assert.False(t, ok, "only right after the risk question")
}

func TestApplyModelResultCommitGate(t *testing.T) {
	conv := newConv()
	conv.Draft = completeItem()
	conv.Draft.Countermeasures = conv.Draft.Countermeasures[:1]

	out, outcome := ApplyModelResult(conv, "ほかに作業は？", &extraction.ExtractedData{NextAction: store.NextConfirm}, now)
	assert.False(t, outcome.Committed)
	assert.True(t, outcome.ModelAhead)
	assert.Equal(t, store.StatusWorkItems, out.Status)
	assert.Empty(t, out.Session.WorkItems)

	out, outcome = ApplyModelResult(out, "ほかに作業は？", &extraction.ExtractedData{
		Countermeasures: []extraction.Countermeasure{{Category: "behavior", Text: "声かけ"}},
		NextAction:      store.NextAskMoreWork,
	}, now)
	assert.True(t, outcome.Committed)
	assert.False(t, outcome.ModelAhead)
	assert.Len(t, out.Session.WorkItems, 1)
	assert.True(t, out.Draft.IsEmpty())
	assert.Equal(t, store.StatusWorkItems, out.Status)
}

func TestApplyModelResultStatusIsMonotonic(t *testing.T) {
	conv := newConv()
	conv.Session.WorkItems = []store.WorkItem{completeItem()}

	out, _ := ApplyModelResult(conv, "目標は？", &extraction.ExtractedData{NextAction: store.NextAskGoal}, now)
	assert.Equal(t, store.StatusActionGoal, out.Status)

	out, _ = ApplyModelResult(out, "作業は？", &extraction.ExtractedData{NextAction: store.NextAskWork}, now)
	assert.Equal(t, store.StatusActionGoal, out.Status)

	out, _ = ApplyModelResult(out, "確認します", &extraction.ExtractedData{ActionGoal: strPtr("声かけ確認"), NextAction: store.NextConfirm}, now)
	assert.Equal(t, store.StatusConfirmation, out.Status)
	assert.Equal(t, "声かけ確認", out.Session.ActionGoal)

	out, _ = ApplyModelResult(out, "お疲れさま", &extraction.ExtractedData{NextAction: store.NextCompleted}, now)
	assert.Equal(t, store.StatusCompleted, out.Status)
	assert.NotNil(t, out.Session.CompletedAt)
}

func TestPrematureCompletedDoesNotSkipStages(t *testing.T) {
	conv := newConv()
	conv.Session.WorkItems = []store.WorkItem{completeItem()}

	out, _ := ApplyModelResult(conv, "完了です", &extraction.ExtractedData{NextAction: store.NextCompleted}, now)
	assert.Equal(t, store.StatusActionGoal, out.Status)
	assert.Nil(t, out.Session.CompletedAt)
}

func TestApplyModelResultEmptyReply(t *testing.T) {
	out, outcome := ApplyModelResult(newConv(), " ", nil, now)
	last, _ := out.LastMessage()
	assert.Equal(t, EmptyReply, last.Content)
	assert.Equal(t, store.NextAction(""), outcome.NextAction)
}

func TestFailureAndRetry(t *testing.T) {
	conv := AppendUser(newConv(), "A", now)
	request := conversation.BuildMessages(newConv().Messages, "A")

	failed := ApplyFailure(conv, "A", request, Failure{Message: "busy", Retriable: true, Reason: "server"}, now)
	require.NotNil(t, failed.Pending)
	last, _ := failed.LastMessage()
	assert.Equal(t, conversation.RetryPlaceholder, last.Content)

	retrying, pending, req, err := PrepareRetry(failed)
	require.NoError(t, err)
	assert.Nil(t, retrying.Pending)
	assert.Equal(t, "A", pending.UserText)
	assert.Equal(t, "server", pending.Reason)
	assert.Equal(t, conv.Messages, retrying.Messages)

	count := 0
	for _, m := range req {
		if m.Role == store.RoleUser && m.Content == "A" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, "A", req[len(req)-1].Content)

	_, _, _, err = PrepareRetry(retrying)
	assert.ErrorIs(t, err, ErrNoPendingRetry)
}

func TestNonRetriableFailure(t *testing.T) {
	conv := AppendUser(newConv(), "A", now)
	out := ApplyFailure(conv, "A", nil, Failure{Message: "送信できませんでした"}, now)

	assert.Nil(t, out.Pending)
	last, _ := out.LastMessage()
	assert.Equal(t, "送信できませんでした", last.Content)
	assert.Equal(t, conv.Session, out.Session)
	assert.Equal(t, conv.Draft, out.Draft)
}
