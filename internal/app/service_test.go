package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/yamakaho2509/taiwa2/internal/coach"
	"github.com/yamakaho2509/taiwa2/internal/config"
	"github.com/yamakaho2509/taiwa2/internal/gemini"
	"github.com/yamakaho2509/taiwa2/internal/identity"
	"github.com/yamakaho2509/taiwa2/internal/search"
	"github.com/yamakaho2509/taiwa2/internal/store"
)

// fakeStore is an in-memory store with per-method override hooks.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]store.Account
	messages map[string][]store.Message
	nextID   int

	appendFn func(ctx context.Context, accountID string, role store.Role, content string) (store.Message, error)
	listFn   func(ctx context.Context, accountID string) ([]store.Message, error)
	pingFn   func(ctx context.Context) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: map[string]store.Account{},
		messages: map[string][]store.Message{},
	}
}

func (f *fakeStore) CreateAccount(_ context.Context, account store.Account) (store.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.accounts {
		if existing.DisplayName == account.DisplayName {
			return store.Account{}, store.ErrDuplicateName
		}
	}
	f.nextID++
	account.ID = fmt.Sprintf("acc-%d", f.nextID)
	account.CreatedAt = time.Now()
	f.accounts[account.ID] = account
	return account, nil
}

func (f *fakeStore) GetAccountByName(_ context.Context, displayName string) (store.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range f.accounts {
		if account.DisplayName == displayName {
			return account, nil
		}
	}
	return store.Account{}, sql.ErrNoRows
}

func (f *fakeStore) GetAccountByID(_ context.Context, accountID string) (store.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[accountID]
	if !ok {
		return store.Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (f *fakeStore) ListAccounts(_ context.Context) ([]store.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var accounts []store.Account
	for _, account := range f.accounts {
		if !account.IsAdmin {
			accounts = append(accounts, account)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].DisplayName < accounts[j].DisplayName })
	return accounts, nil
}

func (f *fakeStore) Append(ctx context.Context, accountID string, role store.Role, content string) (store.Message, error) {
	if f.appendFn != nil {
		return f.appendFn(ctx, accountID, role, content)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	message := store.Message{
		ID:        fmt.Sprintf("msg-%d", f.nextID),
		AccountID: accountID,
		Role:      role,
		Content:   content,
		Sequence:  int64(len(f.messages[accountID]) + 1),
		CreatedAt: time.Now(),
	}
	f.messages[accountID] = append(f.messages[accountID], message)
	return message, nil
}

func (f *fakeStore) List(ctx context.Context, accountID string) ([]store.Message, error) {
	if f.listFn != nil {
		return f.listFn(ctx, accountID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Message(nil), f.messages[accountID]...), nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeModel struct {
	generateFn func(ctx context.Context, systemInstruction string, turns []gemini.Turn) (string, error)
	streamFn   func(ctx context.Context, systemInstruction string, turns []gemini.Turn, onFragment func(string) error) error
}

func (m *fakeModel) GenerateContent(ctx context.Context, systemInstruction string, turns []gemini.Turn) (string, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx, systemInstruction, turns)
	}
	return "はじめましょう。", nil
}

func (m *fakeModel) StreamGenerateContent(ctx context.Context, systemInstruction string, turns []gemini.Turn, onFragment func(string) error) error {
	if m.streamFn != nil {
		return m.streamFn(ctx, systemInstruction, turns, onFragment)
	}
	return onFragment("了解です。")
}

type fakeSearch struct {
	mu      sync.Mutex
	indexed []search.MessageRecord
	results search.Response
}

func (f *fakeSearch) Search(search.Query) search.Response {
	return f.results
}

func (f *fakeSearch) IndexMessage(record search.MessageRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, record)
}

func (f *fakeSearch) indexedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.indexed)
}

type testEnv struct {
	store   *fakeStore
	model   *fakeModel
	search  *fakeSearch
	service *Service
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Config{
		AdminName:     "adminkaho1020",
		AdminPassword: "adminkaho1020pw",
		SessionTTL:    time.Hour,
	}

	redis := miniredis.RunT(t)
	sessions, err := identity.NewRedisStore("redis://" + redis.Addr())
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })

	fs := newFakeStore()
	model := &fakeModel{}
	identityService := identity.NewService(fs, sessions, cfg.AdminName, cfg.SessionTTL)
	coordinator := coach.NewCoordinator(model, fs)
	searchService := &fakeSearch{}

	service := New(cfg, fs, identityService, coordinator, searchService)
	if err := service.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	return &testEnv{
		store:   fs,
		model:   model,
		search:  searchService,
		service: service,
		handler: NewHTTPServer(service, "*").Handler(),
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) register(t *testing.T, name, password string) store.Account {
	t.Helper()
	account, err := e.service.Register(context.Background(), name, password)
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return account
}

func (e *testEnv) signIn(t *testing.T, name, password string) string {
	t.Helper()
	token, _, err := e.service.SignIn(context.Background(), name, password)
	if err != nil {
		t.Fatalf("signin %s: %v", name, err)
	}
	return token
}

func (e *testEnv) signInAdmin(t *testing.T) string {
	t.Helper()
	return e.signIn(t, "adminkaho1020", "adminkaho1020pw")
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}
