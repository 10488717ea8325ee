// Package models defines the core data structures shared by the client:
// cart lines, bookmarks, the authenticated identity, delivery addresses
// and orders.
package models

// AuthIdentity is the signed-in user as issued by the remote service.
type AuthIdentity struct {
	// ID is the user identifier on the remote service.
	ID string `json:"_id"`
	// Token is the bearer token attached to remote requests.
	Token string `json:"token"`
	// Username is the login name chosen by the user.
	Username string `json:"username"`
}

// Authenticated reports whether remote sync calls may be attempted.
// Without both an ID and a token the state machines run local-only.
func (a AuthIdentity) Authenticated() bool {
	return a.ID != "" && a.Token != ""
}

// Registration is the sign-up payload of a new account. The account stays
// unverified until the emailed code is confirmed.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserProfile is the public record returned by a username lookup.
type UserProfile struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Status is the reconciliation record of a state machine. It is the only
// thing a remote response is allowed to change.
type Status struct {
	// Loading is true while at least one remote call is in flight.
	Loading bool `json:"loading"`
	// Error holds the last remote failure message, empty when none.
	Error string `json:"error,omitempty"`
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	// Lat is the latitude in degrees.
	Lat float64 `json:"latitude"`
	// Lng is the longitude in degrees.
	Lng float64 `json:"longitude"`
}
