package client

import (
	"errors"

	"github.com/iliyamo/student-hostel-booking/internal/model"
)

// Notice severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Notice is a message to show the user.  Refetch asks the caller to
// reload room data because what it shows is known to be stale.
type Notice struct {
	Severity string
	Message  string
	Refetch  bool
}

// NoticeFor maps a controller error to what the user should see.  A nil
// error yields the zero Notice.
func NoticeFor(err error) Notice {
	switch {
	case err == nil:
		return Notice{}
	case errors.Is(err, model.ErrAuthenticationRequired):
		return Notice{Severity: SeverityWarning, Message: "Please sign in to book a room."}
	case errors.Is(err, model.ErrDuplicateBooking):
		return Notice{Severity: SeverityWarning, Message: "You already have a booking in this hostel."}
	case errors.Is(err, model.ErrRoomUnavailable):
		return Notice{Severity: SeverityError, Message: "This room is no longer available.", Refetch: true}
	case errors.Is(err, model.ErrHoldExpired):
		return Notice{Severity: SeverityError, Message: "Your hold has expired.", Refetch: true}
	case errors.Is(err, model.ErrPaymentSession):
		return Notice{Severity: SeverityError, Message: "We could not start the payment. Please try again."}
	case errors.Is(err, model.ErrInvalidTransition):
		return Notice{Severity: SeverityWarning, Message: "This booking can no longer be changed."}
	case errors.Is(err, model.ErrForbidden), errors.Is(err, model.ErrNotFound):
		return Notice{Severity: SeverityWarning, Message: "That booking could not be found."}
	case errors.Is(err, model.ErrInvalidRequest):
		return Notice{Severity: SeverityWarning, Message: err.Error()}
	}
	return Notice{Severity: SeverityError, Message: "Something went wrong. Please try again."}
}
