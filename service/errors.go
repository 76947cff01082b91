package service

import (
	"errors"
	"fmt"

	"bombily/pkg/lifecycle"
	"bombily/storage"
)

var (
	ErrCollaboratorUnavailable = errors.New("storage is unavailable")
	ErrNotFound                = errors.New("not found")
	ErrInvalidOrder            = errors.New("invalid order")
	ErrForbidden               = errors.New("forbidden")
	ErrInvalidInput            = errors.New("invalid input")
	ErrInvalidPhone            = errors.New("invalid phone number")

	ErrInvalidTransition = lifecycle.ErrInvalidTransition
	ErrNotAssigned       = lifecycle.ErrNotAssigned
	ErrStaleTransition   = lifecycle.ErrStaleTransition
)

// storageErr maps a repository failure onto the service's error kinds.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err)
}

func invalidOrder(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidOrder, reason)
}
