// Package conversation builds the bounded message list sent to the model.
package conversation

import (
	"strings"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"
)

// MaxHistory is the number of transcript entries sent with each request.
const MaxHistory = 12

// RetryPlaceholder is the assistant text shown after a retriable failure.
// It never reaches the model.
const RetryPlaceholder = "通信に失敗しました。「再送」を押すともう一度送信します。"

// BuildMessages returns prior user/assistant messages plus text, trimmed to
// the newest MaxHistory entries. Retry placeholders are never sent.
func BuildMessages(history []store.ChatMessage, text string) []store.OutgoingMessage {
	out := filterRoles(history)
	out = append(out, store.OutgoingMessage{Role: store.RoleUser, Content: text})
	return tail(out)
}

// BuildRetryMessages rebuilds the request for a retry of text. A trailing
// retry placeholder is dropped, and text is appended only when it is not
// already the last entry.
func BuildRetryMessages(history []store.ChatMessage, text string) []store.OutgoingMessage {
	out := filterRoles(DropRetryPlaceholder(history))
	if n := len(out); n == 0 || out[n-1].Role != store.RoleUser || out[n-1].Content != text {
		out = append(out, store.OutgoingMessage{Role: store.RoleUser, Content: text})
	}
	return tail(out)
}

// DropRetryPlaceholder removes the last message when it is the retry
// placeholder.
func DropRetryPlaceholder(history []store.ChatMessage) []store.ChatMessage {
	n := len(history)
	if n == 0 {
		return history
	}
	last := history[n-1]
	if last.Role == store.RoleAssistant && IsRetryPlaceholder(last.Content) {
		return history[:n-1]
	}
	return history
}

func IsRetryPlaceholder(content string) bool {
	return strings.TrimSpace(content) == RetryPlaceholder
}

func filterRoles(history []store.ChatMessage) []store.OutgoingMessage {
	out := make([]store.OutgoingMessage, 0, len(history)+1)
	for _, msg := range history {
		if msg.Role != store.RoleUser && msg.Role != store.RoleAssistant {
			continue
		}
		if msg.Role == store.RoleAssistant && IsRetryPlaceholder(msg.Content) {
			continue
		}
		out = append(out, store.OutgoingMessage{Role: msg.Role, Content: msg.Content})
	}
	return out
}

func tail(messages []store.OutgoingMessage) []store.OutgoingMessage {
	if len(messages) <= MaxHistory {
		return messages
	}
	return append([]store.OutgoingMessage(nil), messages[len(messages)-MaxHistory:]...)
}
