package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yamakaho2509/taiwa2/internal/store"
	"github.com/yamakaho2509/taiwa2/internal/util"
)

// AccountStore is the slice of the durable store the identity machine needs.
type AccountStore interface {
	CreateAccount(ctx context.Context, account store.Account) (store.Account, error)
	GetAccountByName(ctx context.Context, displayName string) (store.Account, error)
	GetAccountByID(ctx context.Context, accountID string) (store.Account, error)
}

// SessionStore holds live session contexts keyed by hashed token.
type SessionStore interface {
	Save(ctx context.Context, tokenHash string, session Context, ttl time.Duration) error
	Load(ctx context.Context, tokenHash string) (Context, error)
	Delete(ctx context.Context, tokenHash string) error
}

type Service struct {
	accounts     AccountStore
	sessions     SessionStore
	reservedName string
	sessionTTL   time.Duration
}

func NewService(accounts AccountStore, sessions SessionStore, reservedName string, sessionTTL time.Duration) *Service {
	return &Service{
		accounts:     accounts,
		sessions:     sessions,
		reservedName: strings.ToLower(strings.TrimSpace(reservedName)),
		sessionTTL:   sessionTTL,
	}
}

// Register creates a regular account. The reserved admin display name is
// refused before the store is consulted, regardless of password.
func (s *Service) Register(ctx context.Context, displayName, password string) (store.Account, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || password == "" {
		return store.Account{}, errors.New("display name and password are required")
	}
	if strings.ToLower(displayName) == s.reservedName {
		return store.Account{}, ErrReservedName
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.Account{}, fmt.Errorf("hash password: %w", err)
	}

	account, err := s.accounts.CreateAccount(ctx, store.Account{
		DisplayName:  displayName,
		PasswordHash: string(hash),
		IsAdmin:      false,
	})
	if err != nil {
		return store.Account{}, err
	}
	return account, nil
}

// SignIn checks credentials and opens a session. Unknown name and wrong
// password produce the same error.
func (s *Service) SignIn(ctx context.Context, displayName, password string) (string, Context, error) {
	displayName = strings.TrimSpace(displayName)
	account, err := s.accounts.GetAccountByName(ctx, displayName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", Context{}, ErrInvalidCredentials
		}
		return "", Context{}, fmt.Errorf("lookup account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return "", Context{}, ErrInvalidCredentials
	}

	token := util.NewID("ses") + util.NewID("")
	session := Context{
		AccountID:   account.ID,
		DisplayName: account.DisplayName,
		IsAdmin:     account.IsAdmin,
	}
	if err := s.sessions.Save(ctx, HashToken(token), session, s.sessionTTL); err != nil {
		return "", Context{}, err
	}
	return token, session, nil
}

// SignOut discards the whole session context; no capability survives it.
func (s *Service) SignOut(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, HashToken(token))
}

// Resolve loads the session context for a token.
func (s *Service) Resolve(ctx context.Context, token string) (Context, error) {
	if token == "" {
		return Context{}, ErrNoSession
	}
	return s.sessions.Load(ctx, HashToken(token))
}

// Impersonate switches an admin session to act as the target account. The
// admin's own identity is saved for the return transition; the browse view
// and any session document are dropped rather than carried across.
func (s *Service) Impersonate(ctx context.Context, token, targetAccountID string) (Context, error) {
	session, err := s.Resolve(ctx, token)
	if err != nil {
		return Context{}, err
	}
	if !session.IsAdmin {
		return Context{}, ErrNotAdmin
	}
	if session.Impersonating {
		return Context{}, ErrAlreadyImpersonating
	}

	target, err := s.accounts.GetAccountByID(ctx, targetAccountID)
	if err != nil {
		return Context{}, err
	}
	if target.IsAdmin {
		return Context{}, ErrAdminTarget
	}

	next := Context{
		AccountID:        target.ID,
		DisplayName:      target.DisplayName,
		IsAdmin:          false,
		Impersonating:    true,
		AdminAccountID:   session.AccountID,
		AdminDisplayName: session.DisplayName,
	}
	if err := s.sessions.Save(ctx, HashToken(token), next, s.sessionTTL); err != nil {
		return Context{}, err
	}
	return next, nil
}

// StopImpersonating restores the saved admin identity verbatim and clears
// every impersonation field. The target's session document does not follow
// the admin back.
func (s *Service) StopImpersonating(ctx context.Context, token string) (Context, error) {
	session, err := s.Resolve(ctx, token)
	if err != nil {
		return Context{}, err
	}
	if !session.Impersonating {
		return Context{}, ErrNotImpersonating
	}

	next := Context{
		AccountID:   session.AdminAccountID,
		DisplayName: session.AdminDisplayName,
		IsAdmin:     true,
	}
	if err := s.sessions.Save(ctx, HashToken(token), next, s.sessionTTL); err != nil {
		return Context{}, err
	}
	return next, nil
}

// ViewTranscript marks a read-only browse view of another account's history.
// The effective identity is untouched.
func (s *Service) ViewTranscript(ctx context.Context, token, targetAccountID string) (Context, error) {
	session, err := s.Resolve(ctx, token)
	if err != nil {
		return Context{}, err
	}
	if !session.IsAdmin || session.Impersonating {
		return Context{}, ErrNotAdmin
	}

	session.ViewingAccountID = targetAccountID
	if err := s.sessions.Save(ctx, HashToken(token), session, s.sessionTTL); err != nil {
		return Context{}, err
	}
	return session, nil
}

// AttachDocument replaces the session's reference document.
func (s *Service) AttachDocument(ctx context.Context, token, name, text string) (Context, error) {
	session, err := s.Resolve(ctx, token)
	if err != nil {
		return Context{}, err
	}
	session.DocumentName = name
	session.DocumentText = text
	if err := s.sessions.Save(ctx, HashToken(token), session, s.sessionTTL); err != nil {
		return Context{}, err
	}
	return session, nil
}

// ClearDocument drops the session's reference document.
func (s *Service) ClearDocument(ctx context.Context, token string) (Context, error) {
	session, err := s.Resolve(ctx, token)
	if err != nil {
		return Context{}, err
	}
	session.DocumentName = ""
	session.DocumentText = ""
	if err := s.sessions.Save(ctx, HashToken(token), session, s.sessionTTL); err != nil {
		return Context{}, err
	}
	return session, nil
}

// Bootstrap seeds the reserved admin account so the reserved-name policy
// always protects a live account.
func (s *Service) Bootstrap(ctx context.Context, displayName, password string) error {
	_, err := s.accounts.GetAccountByName(ctx, displayName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lookup admin account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	_, err = s.accounts.CreateAccount(ctx, store.Account{
		DisplayName:  displayName,
		PasswordHash: string(hash),
		IsAdmin:      true,
	})
	if errors.Is(err, store.ErrDuplicateName) {
		return nil
	}
	return err
}
