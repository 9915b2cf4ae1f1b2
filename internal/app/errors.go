package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/yamakaho2509/taiwa2/internal/extract"
	"github.com/yamakaho2509/taiwa2/internal/identity"
	"github.com/yamakaho2509/taiwa2/internal/store"
)

// DomainError is a failure with a fixed HTTP mapping, raised by the service
// layer for conditions the lower packages have no sentinel for.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// mapError translates sentinel errors from the lower packages into the HTTP
// error contract. Anything unrecognized is a plain 500.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "ユーザー名またはパスワードが間違っています。", nil
	case errors.Is(err, identity.ErrNoSession):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, identity.ErrNotAdmin):
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	case errors.Is(err, identity.ErrAlreadyImpersonating):
		return http.StatusConflict, "IMPERSONATION_ACTIVE", "Impersonation already active", nil
	case errors.Is(err, identity.ErrNotImpersonating):
		return http.StatusConflict, "NOT_IMPERSONATING", "No impersonation active", nil
	case errors.Is(err, identity.ErrAdminTarget):
		return http.StatusUnprocessableEntity, "ADMIN_TARGET", "Cannot impersonate an admin account", nil
	case errors.Is(err, identity.ErrReservedName):
		return http.StatusUnprocessableEntity, "RESERVED_NAME", "このユーザー名は使用できません。", nil
	case errors.Is(err, store.ErrDuplicateName):
		return http.StatusConflict, "DUPLICATE_NAME", "このユーザー名は既に使用されています。", nil
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_FORMAT", "Unsupported document format", nil
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
