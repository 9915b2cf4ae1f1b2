// Package coach drives one model call per user turn and reconciles the
// streamed output with the durable transcript.
package coach

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/yamakaho2509/taiwa2/internal/gemini"
	"github.com/yamakaho2509/taiwa2/internal/store"
)

// Model is the language model invocation surface the coordinator consumes.
type Model interface {
	GenerateContent(ctx context.Context, systemInstruction string, turns []gemini.Turn) (string, error)
	StreamGenerateContent(ctx context.Context, systemInstruction string, turns []gemini.Turn, onFragment func(string) error) error
}

// TranscriptAppender is the single store operation the coordinator performs.
type TranscriptAppender interface {
	Append(ctx context.Context, accountID string, role store.Role, content string) (store.Message, error)
}

type Coordinator struct {
	model      Model
	transcript TranscriptAppender
}

func NewCoordinator(model Model, transcript TranscriptAppender) *Coordinator {
	return &Coordinator{model: model, transcript: transcript}
}

// Respond drives one streaming model call for an assembled context and
// commits exactly one assistant message once the stream settles. Fragments
// are forwarded to onFragment (may be nil) for live display; nothing is
// persisted until the stream is exhausted. A mid-stream model failure
// persists the fixed fallback text, never the partial buffer, so the
// transcript always ends in an assistant turn. Model invocation is the only
// error class absorbed this way; anything else, store failures included, is
// surfaced verbatim and not retried.
func (c *Coordinator) Respond(ctx context.Context, accountID string, turns []gemini.Turn, onFragment func(string)) (store.Message, error) {
	var buffer strings.Builder
	streamErr := c.model.StreamGenerateContent(ctx, systemInstruction, turns, func(fragment string) error {
		buffer.WriteString(fragment)
		if onFragment != nil {
			onFragment(fragment)
		}
		return nil
	})

	final := buffer.String()
	if streamErr != nil {
		var apiErr *gemini.APIError
		if !errors.As(streamErr, &apiErr) {
			return store.Message{}, streamErr
		}
		log.Printf("coach: model stream failed, persisting fallback: %v", streamErr)
		final = fallbackMessage
	}

	message, err := c.transcript.Append(ctx, accountID, store.RoleAssistant, final)
	if err != nil {
		return store.Message{}, err
	}
	return message, nil
}

// Open generates the opening coaching turn for a freshly uploaded document
// with a one-shot call and persists it the same way. Model failure is
// absorbed into the fallback turn here too; it is the only error class this
// package swallows.
func (c *Coordinator) Open(ctx context.Context, accountID, documentText string) (store.Message, error) {
	text, err := c.model.GenerateContent(ctx, systemInstruction, []gemini.Turn{
		{Role: "user", Text: openingPrompt(documentText)},
	})
	if err != nil {
		var apiErr *gemini.APIError
		if !errors.As(err, &apiErr) {
			return store.Message{}, err
		}
		log.Printf("coach: opening call failed, persisting fallback: %v", err)
		text = fallbackMessage
	}

	message, err := c.transcript.Append(ctx, accountID, store.RoleAssistant, text)
	if err != nil {
		return store.Message{}, err
	}
	return message, nil
}
