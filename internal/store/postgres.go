package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yamakaho2509/taiwa2/internal/util"
)

// ErrDuplicateName is returned when an account display name is already taken.
var ErrDuplicateName = errors.New("display name already registered")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) (Account, error) {
	if account.ID == "" {
		account.ID = util.NewID("usr")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (id, display_name, password_hash, is_admin)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, account.ID, account.DisplayName, account.PasswordHash, account.IsAdmin).Scan(&account.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrDuplicateName
		}
		return Account{}, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) GetAccountByName(ctx context.Context, displayName string) (Account, error) {
	var account Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, password_hash, is_admin, created_at
		FROM accounts
		WHERE display_name = $1
	`, displayName).Scan(&account.ID, &account.DisplayName, &account.PasswordHash, &account.IsAdmin, &account.CreatedAt)
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

func (s *PostgresStore) GetAccountByID(ctx context.Context, accountID string) (Account, error) {
	var account Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, password_hash, is_admin, created_at
		FROM accounts
		WHERE id = $1
	`, accountID).Scan(&account.ID, &account.DisplayName, &account.PasswordHash, &account.IsAdmin, &account.CreatedAt)
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// ListAccounts returns all non-admin accounts ordered by display name.
func (s *PostgresStore) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, is_admin, created_at
		FROM accounts
		WHERE is_admin = FALSE
		ORDER BY display_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	items := make([]Account, 0)
	for rows.Next() {
		var item Account
		if err := rows.Scan(&item.ID, &item.DisplayName, &item.IsAdmin, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return items, nil
}

// Append adds one immutable message with the next sequence for the account.
// The sequence assignment and the insert are a single statement, so a failed
// append leaves no partial row behind.
func (s *PostgresStore) Append(ctx context.Context, accountID string, role Role, content string) (Message, error) {
	if !role.Valid() {
		return Message{}, fmt.Errorf("append message: invalid role %q", role)
	}
	message := Message{
		ID:        util.NewID("msg"),
		AccountID: accountID,
		Role:      role,
		Content:   content,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, account_id, role, content, sequence)
		SELECT $1, $2, $3, $4, COALESCE(MAX(sequence), 0) + 1
		FROM messages
		WHERE account_id = $2
		RETURNING sequence, created_at
	`, message.ID, accountID, string(role), content).Scan(&message.Sequence, &message.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	return message, nil
}

// List returns the full transcript for an account in ascending sequence order.
func (s *PostgresStore) List(ctx context.Context, accountID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, role, content, sequence, created_at
		FROM messages
		WHERE account_id = $1
		ORDER BY sequence ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var item Message
		var role string
		if err := rows.Scan(&item.ID, &item.AccountID, &role, &item.Content, &item.Sequence, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		item.Role = Role(role)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}
