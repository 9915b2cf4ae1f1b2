// Package gemini is a minimal client for the Generative Language API,
// covering one-shot and streamed content generation.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Turn is one entry of the assembled model input. Role is "user" or "model".
type Turn struct {
	Role string
	Text string
}

// APIError is any failure of a model invocation, transport or service side.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("gemini: %s", e.Message)
	}
	return fmt.Sprintf("gemini: status %d: %s", e.StatusCode, e.Message)
}

// Client calls the Generative Language API over plain HTTP.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewClient(apiKey, model, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *content  `json:"system_instruction,omitempty"`
	Contents          []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func buildRequest(systemInstruction string, turns []Turn) generateRequest {
	req := generateRequest{Contents: make([]content, 0, len(turns))}
	if systemInstruction != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: systemInstruction}}}
	}
	for _, turn := range turns {
		req.Contents = append(req.Contents, content{
			Role:  turn.Role,
			Parts: []part{{Text: turn.Text}},
		})
	}
	return req
}

// GenerateContent performs a one-shot call and returns the completed text.
func (c *Client) GenerateContent(ctx context.Context, systemInstruction string, turns []Turn) (string, error) {
	if c.apiKey == "" {
		return "", &APIError{Message: "GOOGLE_API_KEY not set"}
	}

	body, err := json.Marshal(buildRequest(systemInstruction, turns))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiErrorFromBody(resp)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &APIError{Message: fmt.Sprintf("decode response: %v", err)}
	}
	text := candidateText(parsed)
	if text == "" {
		return "", &APIError{Message: "empty candidate response"}
	}
	return text, nil
}

// StreamGenerateContent performs a streaming call, invoking onFragment for
// each text fragment in order. The fragment sequence is finite and not
// restartable; any error means the stream is abandoned, not resumed.
func (c *Client) StreamGenerateContent(ctx context.Context, systemInstruction string, turns []Turn, onFragment func(string) error) error {
	if c.apiKey == "" {
		return &APIError{Message: "GOOGLE_API_KEY not set"}
	}

	body, err := json.Marshal(buildRequest(systemInstruction, turns))
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiErrorFromBody(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk generateResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return &APIError{Message: fmt.Sprintf("decode stream chunk: %v", err)}
		}
		fragment := candidateText(chunk)
		if fragment == "" {
			continue
		}
		if err := onFragment(fragment); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return &APIError{Message: fmt.Sprintf("read stream: %v", err)}
	}
	return nil
}

func candidateText(parsed generateResponse) string {
	if len(parsed.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func apiErrorFromBody(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var parsed errorResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: parsed.Error.Message}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
}
