// Package client is the student-side half of the booking flow: a
// controller that asks the server to hold, book and pay for rooms, and a
// sync loop that keeps a hostel's room list current from the change feed.
// Neither holds authoritative state; every decision is the server's.
package client

// Session is the signed-in user a request is made for.  It is passed
// explicitly to every call rather than kept in package state.
type Session struct {
	UserID       uint64
	Role         string
	AccessToken  string
	RefreshToken string
}

// Authenticated reports whether s can make authenticated calls.
func (s *Session) Authenticated() bool {
	return s != nil && s.AccessToken != ""
}

func (s *Session) token() string {
	if s == nil {
		return ""
	}
	return s.AccessToken
}
