package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateContentReturnsCandidateText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Fatalf("expected key query param, got %q", r.URL.Query().Get("key"))
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.SystemInstruction == nil || len(req.SystemInstruction.Parts) == 0 {
			t.Fatalf("expected system instruction in request")
		}
		if len(req.Contents) != 2 {
			t.Fatalf("expected 2 contents, got %d", len(req.Contents))
		}
		if req.Contents[1].Role != "model" {
			t.Fatalf("expected second content role model, got %q", req.Contents[1].Role)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"はい、"},{"text":"わかりました。"}]}}]}`)
	}))
	defer server.Close()

	client := NewClient("test-key", "gemini-2.0-flash", server.URL)
	text, err := client.GenerateContent(context.Background(), "instruction", []Turn{
		{Role: "user", Text: "hello"},
		{Role: "model", Text: "ack"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "はい、わかりました。" {
		t.Fatalf("expected joined part text, got %q", text)
	}
}

func TestGenerateContentMapsServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer server.Close()

	client := NewClient("test-key", "gemini-2.0-flash", server.URL)
	_, err := client.GenerateContent(context.Background(), "", []Turn{{Role: "user", Text: "hi"}})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "Resource has been exhausted" {
		t.Fatalf("expected service message, got %q", apiErr.Message)
	}
}

func TestGenerateContentEmptyCandidateIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer server.Close()

	client := NewClient("test-key", "gemini-2.0-flash", server.URL)
	_, err := client.GenerateContent(context.Background(), "", []Turn{{Role: "user", Text: "hi"}})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError for empty candidates, got %v", err)
	}
}

func TestGenerateContentRequiresAPIKey(t *testing.T) {
	client := NewClient("", "gemini-2.0-flash", "http://unused")
	_, err := client.GenerateContent(context.Background(), "", nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError for missing key, got %v", err)
	}
}

func TestStreamGenerateContentForwardsFragmentsInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":streamGenerateContent") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("alt") != "sse" {
			t.Fatalf("expected alt=sse, got %q", r.URL.Query().Get("alt"))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"おつ\"}]}}]}\n\n")
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"かれさま\"}]}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient("test-key", "gemini-2.0-flash", server.URL)
	var fragments []string
	err := client.StreamGenerateContent(context.Background(), "instruction", []Turn{{Role: "user", Text: "hi"}}, func(fragment string) error {
		fragments = append(fragments, fragment)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if strings.Join(fragments, "") != "おつかれさま" {
		t.Fatalf("expected ordered fragments, got %v", fragments)
	}
}

func TestStreamGenerateContentStopsOnCallbackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		for i := 0; i < 5; i++ {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"f%d\"}]}}]}\n\n", i)
		}
	}))
	defer server.Close()

	stop := errors.New("stop")
	client := NewClient("test-key", "gemini-2.0-flash", server.URL)
	count := 0
	err := client.StreamGenerateContent(context.Background(), "", nil, func(string) error {
		count++
		if count == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected callback error surfaced, got %v", err)
	}
	if count != 2 {
		t.Fatalf("expected stream abandoned after callback error, got %d calls", count)
	}
}

func TestStreamGenerateContentMapsServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"code":503,"message":"The model is overloaded","status":"UNAVAILABLE"}}`)
	}))
	defer server.Close()

	client := NewClient("test-key", "gemini-2.0-flash", server.URL)
	err := client.StreamGenerateContent(context.Background(), "", nil, func(string) error { return nil })

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", apiErr.StatusCode)
	}
}
