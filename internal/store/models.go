package store

import "time"

// Role is the author of one transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type Account struct {
	ID           string
	DisplayName  string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

// Message is one immutable turn owned by exactly one account. Sequence is
// strictly increasing per account and defines the canonical transcript order.
type Message struct {
	ID        string
	AccountID string
	Role      Role
	Content   string
	Sequence  int64
	CreatedAt time.Time
}
