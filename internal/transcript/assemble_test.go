package transcript

import (
	"reflect"
	"strings"
	"testing"

	"github.com/yamakaho2509/taiwa2/internal/gemini"
	"github.com/yamakaho2509/taiwa2/internal/store"
)

func TestAssembleInjectsPlaceholderWithoutDocument(t *testing.T) {
	turns := Assemble("", nil)

	if len(turns) != 2 {
		t.Fatalf("expected 2 synthetic turns, got %d", len(turns))
	}
	if turns[0].Role != "user" {
		t.Fatalf("expected first turn role user, got %q", turns[0].Role)
	}
	if !strings.HasPrefix(turns[0].Text, documentPreamble) {
		t.Fatalf("expected document preamble, got %q", turns[0].Text)
	}
	if !strings.HasSuffix(turns[0].Text, noDocumentPlaceholder) {
		t.Fatalf("expected placeholder when no document, got %q", turns[0].Text)
	}
	if turns[1].Role != "model" || turns[1].Text != documentAck {
		t.Fatalf("expected fixed ack turn, got %+v", turns[1])
	}
}

func TestAssembleCarriesDocumentText(t *testing.T) {
	turns := Assemble("今日は英語を勉強した。", nil)

	if turns[0].Text != documentPreamble+"今日は英語を勉強した。" {
		t.Fatalf("expected document text after preamble, got %q", turns[0].Text)
	}
}

func TestAssembleMapsRolesAndPreservesOrder(t *testing.T) {
	messages := []store.Message{
		{Role: store.RoleUser, Content: "こんにちは", Sequence: 1},
		{Role: store.RoleAssistant, Content: "こんにちは！", Sequence: 2},
		{Role: store.RoleUser, Content: "今日の振り返りをしたい", Sequence: 3},
		{Role: store.RoleAssistant, Content: "いいですね。", Sequence: 4},
		{Role: store.RoleUser, Content: "単語テストが難しかった", Sequence: 5},
	}

	turns := Assemble("", messages)

	if len(turns) != 7 {
		t.Fatalf("expected synthetic pair plus 5 messages, got %d turns", len(turns))
	}
	want := []gemini.Turn{
		{Role: "user", Text: "こんにちは"},
		{Role: "model", Text: "こんにちは！"},
		{Role: "user", Text: "今日の振り返りをしたい"},
		{Role: "model", Text: "いいですね。"},
		{Role: "user", Text: "単語テストが難しかった"},
	}
	if !reflect.DeepEqual(turns[2:], want) {
		t.Fatalf("unexpected turn mapping: %+v", turns[2:])
	}
}

func TestAssembleIsDeterministic(t *testing.T) {
	messages := []store.Message{
		{Role: store.RoleUser, Content: "a", Sequence: 1},
		{Role: store.RoleAssistant, Content: "b", Sequence: 2},
	}

	first := Assemble("doc", messages)
	second := Assemble("doc", messages)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical assembly for identical inputs")
	}
}
