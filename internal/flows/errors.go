package flows

import (
	"errors"
	"fmt"

	"nightbot/internal/records"
)

var (
	// ErrStoreUnavailable wraps any failure of the record store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound covers both absent ids and ids owned by someone else.
	ErrNotFound        = errors.New("not found")
	ErrNothingToCancel = errors.New("nothing to cancel")
	// ErrStaleTimer means the armed state did not match the persisted
	// settings; the user was moved back to idle.
	ErrStaleTimer = errors.New("delete timer is not active in this chat")
	// ErrUnsupportedMedia is also a *ValidationError.
	ErrUnsupportedMedia = &ValidationError{Field: "media", Reason: "unsupported media kind"}
)

// ValidationError is bad user input. The state is left unchanged.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// storeErr maps record adapter errors onto the flow taxonomy.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, records.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	default:
		// records.ErrUnavailable and anything unexpected.
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
}
