// Package credential keeps the whatsmeow device stores that back each bot session.
package credential

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mau.fi/whatsmeow/store"
)

var (
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrUnknownSession   = errors.New("unknown session")
)

// Ids double as directory names and bots.bot_id values, which hold 64 characters.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Store hands out the device a session authenticates with.
type Store interface {
	// Device returns the stored device for id, or a fresh unpaired one.
	Device(ctx context.Context, id string) (*store.Device, error)
	// Sessions lists every session id that has stored credentials.
	Sessions(ctx context.Context) ([]string, error)
	// Remove forgets a session's credentials.
	Remove(ctx context.Context, id string) error
	Close() error
}

func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return nil
}
