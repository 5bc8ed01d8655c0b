package service

import (
	"errors"

	"dispatchhub/internal/access"
	"dispatchhub/internal/apperr"
	"dispatchhub/internal/models"
	"dispatchhub/internal/repository"
)

// Identity is the verified caller behind a request or a live connection.
type Identity struct {
	ID        string
	Name      string
	Role      models.Role
	IsActive  bool
	SessionID string
	DeviceID  string
}

func (i Identity) Actor() access.Actor {
	return access.Actor{ID: i.ID, Role: i.Role, Name: i.Name}
}

// storeError converts a persistence error into the API taxonomy.
func storeError(err error, message string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrTaskNotFound),
		errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, repository.ErrNotificationNotFound):
		return apperr.Wrap(apperr.KindNotFound, err, message)
	case errors.Is(err, repository.ErrEmailTaken):
		return apperr.Wrap(apperr.KindValidation, err, "email already registered")
	default:
		return apperr.Internal(err, message)
	}
}
