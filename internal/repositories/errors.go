package repositories

import (
	"errors"
	"fmt"

	"github.com/groupify/backend/internal/docstore"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the record is no longer in a state that allows the write,
	// for example a request that has already been answered.
	ErrConflict = errors.New("record conflict")
	// ErrForbidden indicates the caller is not the party the record is addressed to.
	ErrForbidden = errors.New("record belongs to another user")
)

// translate maps document store sentinels onto repository sentinels.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
