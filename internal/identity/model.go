package identity

import "time"

// User represents a registered wallet owner. Authentication and session
// state live outside the core; operations receive an already-authenticated
// identity and only existence is checked here.
type User struct {
	ID        string
	Phone     string
	FirstName string
	LastName  string
	PINHash   []byte
	CreatedAt time.Time
}

// Registration is the data needed to create a user.
type Registration struct {
	Phone     string
	FirstName string
	LastName  string
	PIN       string
}
