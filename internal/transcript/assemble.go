package transcript

import (
	"github.com/yamakaho2509/taiwa2/internal/gemini"
	"github.com/yamakaho2509/taiwa2/internal/store"
)

const (
	// documentPreamble heads the synthetic turn carrying the session's
	// reference document on every model call.
	documentPreamble = "参考：ユーザーの学習日記（ドキュメント）:\n"
	// noDocumentPlaceholder stands in when no document was uploaded this
	// session. The synthetic pair is injected either way so turn parity
	// stays constant.
	noDocumentPlaceholder = "ドキュメントなし"
	// documentAck is the fixed model-role acknowledgment that completes the
	// synthetic pair.
	documentAck = "（承知しました。学習日記を再度参照します。）"
)

// Assemble builds the exact ordered turn sequence for one model call: the
// synthetic document/ack pair, then every persisted message in sequence
// order with stored roles mapped to model-input roles. The synthetic pair is
// re-derived identically on every call and never persisted, which keeps the
// document out of the durable log while staying authoritative each turn.
//
// The caller's new message must already be in messages; it is appended to
// the store before assembly so a model failure cannot lose the user's input.
func Assemble(documentText string, messages []store.Message) []gemini.Turn {
	doc := documentText
	if doc == "" {
		doc = noDocumentPlaceholder
	}

	turns := make([]gemini.Turn, 0, len(messages)+2)
	turns = append(turns,
		gemini.Turn{Role: "user", Text: documentPreamble + doc},
		gemini.Turn{Role: "model", Text: documentAck},
	)
	for _, message := range messages {
		role := "user"
		if message.Role == store.RoleAssistant {
			role = "model"
		}
		turns = append(turns, gemini.Turn{Role: role, Text: message.Content})
	}
	return turns
}
