package state

import (
	"fmt"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"
)

// Fixed assistant texts used when a turn is resolved without the model.
const (
	GreetingReply  = "おはようございます。これからKY活動を始めます。今日行う作業を教えてください。"
	NextWorkReply  = "記録しました。次の作業を教えてください。"
	AskNextReply   = "では、次の作業を教えてください。"
	AskGoalReply   = "作業ごとの危険と対策がそろいました。最後に、今日の行動目標を一言で決めましょう。"
	CompletedReply = "KYお疲れさまでした。今日も一日ご安全に！"
	EmptyReply     = "すみません、うまく聞き取れませんでした。もう一度お願いします。"

	confirmReplyFormat = "行動目標は「%s」ですね。作業%d件の内容で記録します。よろしければ「完了」と言ってください。"
)

var fieldQuestions = map[store.NextAction]string{
	store.NextAskWork:           "今日行う作業を教えてください。",
	store.NextAskHazard:         "その作業で、どんな危険が考えられますか？",
	store.NextAskWhy:            "なぜその危険が起きそうですか？原因を教えてください。",
	store.NextAskRiskLevel:      "危険度を1から5の数字で教えてください。",
	store.NextAskCountermeasure: "その危険への対策を教えてください。設備・行動・保護具の面から2つ以上あると安心です。",
	store.NextAskMoreWork:       "ほかに作業はありますか？",
	store.NextAskGoal:           AskGoalReply,
}

// QuestionFor returns the fixed question for next.
func QuestionFor(next store.NextAction) string {
	if q, ok := fieldQuestions[next]; ok {
		return q
	}
	return EmptyReply
}

// ConfirmReply summarizes the session before completion.
func ConfirmReply(goal string, items int) string {
	return fmt.Sprintf(confirmReplyFormat, goal, items)
}
