package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yamakaho2509/taiwa2/internal/export"
	"github.com/yamakaho2509/taiwa2/internal/identity"
	"github.com/yamakaho2509/taiwa2/internal/search"
	"github.com/yamakaho2509/taiwa2/internal/store"
)

const maxUploadBytes = 10 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{"ok": status == "ready", "status": status, "checks": checks})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/register" {
		s.handleRegister(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleSignIn(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		session, err := s.service.Session(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session, true))
		return
	}

	// Everything below requires a live session.
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/signout":
		if err := s.service.SignOut(r.Context(), token); err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case r.Method == http.MethodPost && r.URL.Path == "/api/chat":
		s.handleChat(w, r, token)

	case r.Method == http.MethodGet && r.URL.Path == "/api/chat/history":
		session, messages, err := s.service.History(r.Context(), token)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"accountId":   session.EffectiveAccountID(),
			"displayName": session.DisplayName,
			"messages":    messagePayloads(messages),
		})

	case r.Method == http.MethodPost && r.URL.Path == "/api/document":
		s.handleDocumentUpload(w, r, token)

	case r.Method == http.MethodDelete && r.URL.Path == "/api/document":
		session, err := s.service.ClearDocument(r.Context(), token)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session, true))

	case r.Method == http.MethodGet && r.URL.Path == "/api/admin/users":
		accounts, err := s.service.ListUsers(r.Context(), token)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		items := make([]map[string]any, 0, len(accounts))
		for _, account := range accounts {
			items = append(items, map[string]any{
				"id":          account.ID,
				"displayName": account.DisplayName,
				"createdAt":   account.CreatedAt.Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": items})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/admin/users/") && strings.HasSuffix(r.URL.Path, "/history"):
		parts := splitPath(r.URL.Path)
		// /api/admin/users/{id}/history
		if len(parts) != 5 {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		target, messages, err := s.service.BrowseHistory(r.Context(), token, parts[3])
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"accountId":   target.ID,
			"displayName": target.DisplayName,
			"messages":    messagePayloads(messages),
		})

	case r.Method == http.MethodPost && r.URL.Path == "/api/admin/impersonate":
		var body struct {
			AccountID string `json:"accountId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Impersonate(r.Context(), token, body.AccountID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session, true))

	case r.Method == http.MethodPost && r.URL.Path == "/api/admin/stop-impersonation":
		session, err := s.service.StopImpersonating(r.Context(), token)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session, true))

	case r.Method == http.MethodGet && r.URL.Path == "/api/admin/search":
		query := search.Query{
			Text:      r.URL.Query().Get("q"),
			AccountID: r.URL.Query().Get("accountId"),
		}
		if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
			query.Limit = limit
		}
		if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
			query.Offset = offset
		}
		response, err := s.service.SearchTranscripts(r.Context(), token, query)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, response)

	case r.Method == http.MethodGet && r.URL.Path == "/api/export/docx":
		result, err := s.service.ExportDOCX(r.Context(), token)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeDownload(w, result)

	case r.Method == http.MethodGet && r.URL.Path == "/api/export/csv":
		result, err := s.service.ExportCSV(r.Context(), token)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeDownload(w, result)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DisplayName string `json:"displayName"`
		Password    string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	account, err := s.service.Register(r.Context(), body.DisplayName, body.Password)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          account.ID,
		"displayName": account.DisplayName,
	})
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DisplayName string `json:"displayName"`
		Password    string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	token, session, err := s.service.SignIn(r.Context(), body.DisplayName, body.Password)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	payload := sessionPayload(session, true)
	payload["token"] = token
	writeJSON(w, http.StatusOK, payload)
}

// handleChat streams the assistant reply as server-sent events: one
// "fragment" event per text fragment, then a single "done" event carrying
// the committed assistant message. Errors before the first fragment are
// plain JSON; after streaming has started they become an "error" event.
func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request, token string) {
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	stream := &sseStream{w: w}
	_, reply, err := s.service.Chat(r.Context(), token, body.Message, func(fragment string) {
		stream.event("fragment", map[string]any{"text": fragment})
	})
	if err != nil {
		if stream.started {
			stream.event("error", map[string]any{"error": err.Error()})
			return
		}
		s.writeMappedError(w, err)
		return
	}
	stream.event("done", map[string]any{"message": messagePayload(reply)})
}

func (s *HTTPServer) handleDocumentUpload(w http.ResponseWriter, r *http.Request, token string) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart form", nil)
		return
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "document file is required", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "failed to read upload", nil)
		return
	}

	session, opening, err := s.service.UploadDocument(r.Context(), token, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documentName": session.DocumentName,
		"opening":      messagePayload(opening),
	})
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush lets the SSE chat stream pass through the recorder.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func randomRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func setCORSHeaders(header http.Header, origin string) {
	header.Set("Access-Control-Allow-Origin", origin)
	header.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
}

// sseStream writes server-sent events, setting headers lazily on the first
// event so pre-stream failures can still use a plain JSON error response.
type sseStream struct {
	w       http.ResponseWriter
	started bool
}

func (s *sseStream) event(name string, payload any) {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data)
	if flusher, ok := s.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func sessionPayload(session identity.Context, authenticated bool) map[string]any {
	payload := map[string]any{
		"authenticated": authenticated,
		"accountId":     session.EffectiveAccountID(),
		"displayName":   session.DisplayName,
		"isAdmin":       session.IsAdmin,
		"impersonating": session.Impersonating,
		"hasDocument":   session.HasDocument(),
	}
	if session.Impersonating {
		payload["adminDisplayName"] = session.AdminDisplayName
	}
	if session.DocumentName != "" {
		payload["documentName"] = session.DocumentName
	}
	return payload
}

func messagePayload(message store.Message) map[string]any {
	return map[string]any{
		"id":        message.ID,
		"role":      string(message.Role),
		"content":   message.Content,
		"sequence":  message.Sequence,
		"createdAt": message.CreatedAt.Format(time.RFC3339),
	}
}

func messagePayloads(messages []store.Message) []map[string]any {
	items := make([]map[string]any, 0, len(messages))
	for _, message := range messages {
		items = append(items, messagePayload(message))
	}
	return items
}

func writeDownload(w http.ResponseWriter, result *export.Result) {
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", urlEscape(result.Filename)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func urlEscape(value string) string {
	var sb strings.Builder
	for _, b := range []byte(value) {
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9',
			b == '-', b == '_', b == '.', b == '~':
			sb.WriteByte(b)
		default:
			sb.WriteString(fmt.Sprintf("%%%02X", b))
		}
	}
	return sb.String()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
