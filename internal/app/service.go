package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/yamakaho2509/taiwa2/internal/coach"
	"github.com/yamakaho2509/taiwa2/internal/config"
	"github.com/yamakaho2509/taiwa2/internal/export"
	"github.com/yamakaho2509/taiwa2/internal/extract"
	"github.com/yamakaho2509/taiwa2/internal/identity"
	"github.com/yamakaho2509/taiwa2/internal/search"
	"github.com/yamakaho2509/taiwa2/internal/store"
	"github.com/yamakaho2509/taiwa2/internal/transcript"
)

// dataStore is the slice of the durable store the app layer reads directly.
// Writes to the transcript go through the coach coordinator only.
type dataStore interface {
	List(ctx context.Context, accountID string) ([]store.Message, error)
	ListAccounts(ctx context.Context) ([]store.Account, error)
	GetAccountByID(ctx context.Context, accountID string) (store.Account, error)
	Append(ctx context.Context, accountID string, role store.Role, content string) (store.Message, error)
	Ping(ctx context.Context) error
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexMessage(record search.MessageRecord)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	identity *identity.Service
	coach    *coach.Coordinator
	search   searchService
}

func New(cfg config.Config, dataStore dataStore, identityService *identity.Service, coordinator *coach.Coordinator, searchService searchService) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		identity: identityService,
		coach:    coordinator,
		search:   searchService,
	}
}

// Bootstrap seeds the reserved admin account.
func (s *Service) Bootstrap(ctx context.Context) error {
	return s.identity.Bootstrap(ctx, s.cfg.AdminName, s.cfg.AdminPassword)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Register(ctx context.Context, displayName, password string) (store.Account, error) {
	return s.identity.Register(ctx, displayName, password)
}

func (s *Service) SignIn(ctx context.Context, displayName, password string) (string, identity.Context, error) {
	return s.identity.SignIn(ctx, displayName, password)
}

func (s *Service) SignOut(ctx context.Context, token string) error {
	return s.identity.SignOut(ctx, token)
}

func (s *Service) Session(ctx context.Context, token string) (identity.Context, error) {
	return s.identity.Resolve(ctx, token)
}

// Chat runs one full turn for the effective account: the user's message is
// appended to the transcript first, the model context is assembled from the
// persisted transcript plus the session document, and the coordinator
// commits exactly one assistant reply. Fragments stream to onFragment as
// they arrive.
func (s *Service) Chat(ctx context.Context, token, text string, onFragment func(string)) (store.Message, store.Message, error) {
	session, err := s.identity.Resolve(ctx, token)
	if err != nil {
		return store.Message{}, store.Message{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Message{}, store.Message{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "message text is required", nil)
	}
	accountID := session.EffectiveAccountID()

	// The user's turn is durable before any model call; a model failure
	// cannot lose their input.
	userMessage, err := s.store.Append(ctx, accountID, store.RoleUser, text)
	if err != nil {
		return store.Message{}, store.Message{}, err
	}
	s.indexMessage(userMessage)

	messages, err := s.store.List(ctx, accountID)
	if err != nil {
		return store.Message{}, store.Message{}, err
	}
	turns := transcript.Assemble(session.DocumentText, messages)

	reply, err := s.coach.Respond(ctx, accountID, turns, onFragment)
	if err != nil {
		return store.Message{}, store.Message{}, err
	}
	s.indexMessage(reply)
	return userMessage, reply, nil
}

// History returns the effective account's transcript.
func (s *Service) History(ctx context.Context, token string) (identity.Context, []store.Message, error) {
	session, err := s.identity.Resolve(ctx, token)
	if err != nil {
		return identity.Context{}, nil, err
	}
	messages, err := s.store.List(ctx, session.EffectiveAccountID())
	if err != nil {
		return identity.Context{}, nil, err
	}
	return session, messages, nil
}

// UploadDocument extracts text from an uploaded diary, attaches it to the
// live session, and generates the opening coaching turn with a one-shot
// model call. Extraction failure rejects the upload whole; the previous
// session document, if any, stays attached.
func (s *Service) UploadDocument(ctx context.Context, token, filename, mimeType string, data []byte) (identity.Context, store.Message, error) {
	session, err := s.identity.Resolve(ctx, token)
	if err != nil {
		return identity.Context{}, store.Message{}, err
	}

	text, err := extract.Text(data, mimeType)
	if err != nil {
		return identity.Context{}, store.Message{}, err
	}

	session, err = s.identity.AttachDocument(ctx, token, filename, text)
	if err != nil {
		return identity.Context{}, store.Message{}, err
	}

	opening, err := s.coach.Open(ctx, session.EffectiveAccountID(), text)
	if err != nil {
		return identity.Context{}, store.Message{}, err
	}
	s.indexMessage(opening)
	return session, opening, nil
}

func (s *Service) ClearDocument(ctx context.Context, token string) (identity.Context, error) {
	return s.identity.ClearDocument(ctx, token)
}

// ListUsers returns all non-admin accounts for the admin panel.
func (s *Service) ListUsers(ctx context.Context, token string) ([]store.Account, error) {
	if _, err := s.requireAdmin(ctx, token); err != nil {
		return nil, err
	}
	return s.store.ListAccounts(ctx)
}

// BrowseHistory returns another account's transcript as a read-only view
// without changing the effective identity.
func (s *Service) BrowseHistory(ctx context.Context, token, targetAccountID string) (store.Account, []store.Message, error) {
	if _, err := s.identity.ViewTranscript(ctx, token, targetAccountID); err != nil {
		return store.Account{}, nil, err
	}
	target, err := s.store.GetAccountByID(ctx, targetAccountID)
	if err != nil {
		return store.Account{}, nil, err
	}
	messages, err := s.store.List(ctx, targetAccountID)
	if err != nil {
		return store.Account{}, nil, err
	}
	return target, messages, nil
}

func (s *Service) Impersonate(ctx context.Context, token, targetAccountID string) (identity.Context, error) {
	return s.identity.Impersonate(ctx, token, targetAccountID)
}

func (s *Service) StopImpersonating(ctx context.Context, token string) (identity.Context, error) {
	return s.identity.StopImpersonating(ctx, token)
}

// SearchTranscripts searches persisted messages, admin only.
func (s *Service) SearchTranscripts(ctx context.Context, token string, q search.Query) (search.Response, error) {
	if _, err := s.requireAdmin(ctx, token); err != nil {
		return search.Response{}, err
	}
	return s.search.Search(q), nil
}

// ExportDOCX renders the effective account's transcript as a Word document.
func (s *Service) ExportDOCX(ctx context.Context, token string) (*export.Result, error) {
	session, messages, err := s.History(ctx, token)
	if err != nil {
		return nil, err
	}
	return export.DOCX(session.DisplayName, messages)
}

// ExportCSV renders the effective account's transcript as CSV.
func (s *Service) ExportCSV(ctx context.Context, token string) (*export.Result, error) {
	session, messages, err := s.History(ctx, token)
	if err != nil {
		return nil, err
	}
	return export.CSV(session.DisplayName, messages)
}

func (s *Service) requireAdmin(ctx context.Context, token string) (identity.Context, error) {
	session, err := s.identity.Resolve(ctx, token)
	if err != nil {
		return identity.Context{}, err
	}
	if !session.IsAdmin || session.Impersonating {
		return identity.Context{}, identity.ErrNotAdmin
	}
	return session, nil
}

func (s *Service) indexMessage(message store.Message) {
	if s.search == nil {
		return
	}
	s.search.IndexMessage(search.MessageRecord{
		ID:        message.ID,
		AccountID: message.AccountID,
		Role:      string(message.Role),
		Content:   message.Content,
		Sequence:  message.Sequence,
	})
}
