// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrForbidden indicates that the current user is not
// authorized to act on a resource owned by someone else, while
// ErrConflict signals that an update cannot proceed because of the
// current state of the row (e.g. shrinking a room below its occupancy).
package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/student-hostel-booking/internal/model"
)

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers translate this into an
// HTTP 403 response.
var ErrForbidden = model.ErrForbidden

// ErrConflict is returned when an update cannot be performed because
// of conflicting state. It wraps model.ErrInvalidRequest so handlers
// report it with the invalid_request code.
var ErrConflict = fmt.Errorf("%w: conflicting state", model.ErrInvalidRequest)

// ErrNotFound is returned instead of sql.ErrNoRows by lookups whose
// callers need to report a missing row.
var ErrNotFound = model.ErrNotFound

// notFound maps sql.ErrNoRows onto ErrNotFound and passes anything else
// through.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// isDuplicateKey reports a MySQL 1062 duplicate entry error.
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}
