package model

import "errors"

// Booking failures shared by the server and the client.  The server maps
// them to HTTP status codes and a stable "code" string; the client maps
// the code back to the same sentinel so callers can use errors.Is on
// either side of the wire.
var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrDuplicateBooking       = errors.New("student already holds a room in this hostel")
	ErrRoomUnavailable        = errors.New("room no longer available")
	ErrPaymentSession         = errors.New("payment session could not be created")
	ErrBackend                = errors.New("backend error")

	ErrHoldExpired       = errors.New("hold expired")
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidRequest    = errors.New("invalid request")
)

// Error codes carried in API error bodies.
const (
	CodeAuthenticationRequired = "authentication_required"
	CodeDuplicateBooking       = "duplicate_booking"
	CodeRoomUnavailable        = "room_unavailable"
	CodePaymentSession         = "payment_session_failed"
	CodeBackend                = "backend_error"
	CodeHoldExpired            = "hold_expired"
	CodeInvalidTransition      = "invalid_transition"
	CodeNotFound               = "not_found"
	CodeForbidden              = "forbidden"
	CodeInvalidRequest         = "invalid_request"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrAuthenticationRequired, CodeAuthenticationRequired},
	{ErrDuplicateBooking, CodeDuplicateBooking},
	{ErrRoomUnavailable, CodeRoomUnavailable},
	{ErrPaymentSession, CodePaymentSession},
	{ErrHoldExpired, CodeHoldExpired},
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrNotFound, CodeNotFound},
	{ErrForbidden, CodeForbidden},
	{ErrInvalidRequest, CodeInvalidRequest},
}

// CodeOf returns the API code for err, falling back to backend_error.
func CodeOf(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeBackend
}

// ErrorFromCode is the inverse of CodeOf.  Unknown codes map to ErrBackend.
func ErrorFromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return ErrBackend
}
