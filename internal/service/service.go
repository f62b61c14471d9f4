// Package service implements the Library Ledger's operations on top of the
// store repositories. Handlers and the CLI call into these services; they
// never touch the store directly.
package service

import (
	"errors"
	"time"

	"github.com/libraryledger/ledger-server/internal/domain"
	domainerrors "github.com/libraryledger/ledger-server/internal/errors"
	"github.com/libraryledger/ledger-server/internal/store"
	"github.com/libraryledger/ledger-server/internal/validation"
)

// validate is the shared request validator.
var validate = validation.New()

// SystemActor is the principal used by the CLI and seeding.
var SystemActor = &domain.Principal{ID: "system", Role: domain.RoleAdmin, DisplayName: "system"}

func requireStaff(actor *domain.Principal) error {
	if !actor.IsStaff() {
		return domainerrors.Forbidden("staff access required")
	}
	return nil
}

func requireStudent(actor *domain.Principal) error {
	if actor == nil || actor.Role != domain.RoleStudent {
		return domainerrors.Forbidden("only students can do this")
	}
	return nil
}

// mapNotFound turns a store miss into a NOT_FOUND error with msg.
func mapNotFound(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return domainerrors.NotFound(format, args...).WithCause(err)
	}
	return err
}

// mapStoreError translates the remaining store sentinels.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrAlreadyExists):
		return domainerrors.Conflict("already exists").WithCause(err)
	case errors.Is(err, store.ErrNoCopiesAvailable):
		return domainerrors.Conflict("no copies available").WithCause(err)
	case errors.Is(err, store.ErrInvalidInput):
		return domainerrors.Validation("invalid input").WithCause(err)
	case errors.Is(err, store.ErrNotFound):
		return domainerrors.NotFound("not found").WithCause(err)
	}
	return err
}

// decided maps a domain transition failure to CONFLICT.
func decided(err error) error {
	if errors.Is(err, domain.ErrRequestDecided) {
		return domainerrors.Conflict("request already decided").WithCause(err)
	}
	return err
}

func systemNow() time.Time { return time.Now().UTC() }
