package services

import (
	"errors"
	"fmt"

	"chorus/services/presence-service/db"
)

var (
	// ErrTransientStore marks a presence or message store failure that is
	// retried on the next natural trigger.
	ErrTransientStore = errors.New("store unavailable")

	ErrInvalidMessage  = errors.New("invalid message")
	ErrMessageNotFound = db.ErrMessageNotFound
	ErrNotMessageOwner = errors.New("only the sender may delete a message")
)

func transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransientStore, op, err)
}
