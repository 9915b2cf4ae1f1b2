// Package identity tracks who is acting as whom across the stateless
// request cycle: owner, admin, or admin-impersonating-user.
package identity

import "errors"

var (
	// ErrInvalidCredentials covers both unknown display name and wrong
	// password, so sign-in failures do not leak which accounts exist.
	ErrInvalidCredentials = errors.New("invalid display name or password")
	// ErrReservedName is returned when registration targets the admin name.
	ErrReservedName = errors.New("display name is reserved")
	// ErrNoSession is returned when a token resolves to no live session.
	ErrNoSession = errors.New("no active session")
	// ErrNotAdmin guards admin-only transitions.
	ErrNotAdmin = errors.New("not an admin session")
	// ErrAlreadyImpersonating rejects nested impersonation.
	ErrAlreadyImpersonating = errors.New("impersonation already active")
	// ErrAdminTarget rejects impersonation of another admin account.
	ErrAdminTarget = errors.New("cannot impersonate an admin account")
	// ErrNotImpersonating is returned by a return-to-admin request when no
	// impersonation is active.
	ErrNotImpersonating = errors.New("no impersonation active")
)

// Context is the full session identity state for one login. It is loaded from
// the session store at the top of a request and written back after any
// transition; nothing about it is ambient.
type Context struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	IsAdmin     bool   `json:"is_admin"`

	// Set only while an admin is impersonating another account.
	Impersonating    bool   `json:"impersonating,omitempty"`
	AdminAccountID   string `json:"admin_account_id,omitempty"`
	AdminDisplayName string `json:"admin_display_name,omitempty"`

	// Read-only transcript browse view; a capability separate from
	// impersonation, never altering the effective identity.
	ViewingAccountID string `json:"viewing_account_id,omitempty"`

	// Reference document for the live session. Never persisted to the
	// transcript store and never carried across identity switches.
	DocumentName string `json:"document_name,omitempty"`
	DocumentText string `json:"document_text,omitempty"`
}

// EffectiveAccountID is the account whose transcript is visible and mutable.
func (c Context) EffectiveAccountID() string {
	return c.AccountID
}

// HasDocument reports whether a reference document is attached this session.
func (c Context) HasDocument() bool {
	return c.DocumentText != ""
}
