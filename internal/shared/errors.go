package shared

import "errors"

var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a unique name/reference is already taken.
	ErrConflict = errors.New("already exists")
	// ErrCircularInheritance indicates a role reparent would make the role its own ancestor.
	ErrCircularInheritance = errors.New("circular role inheritance detected")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage collapses internal failures into a message suitable for
// end users so storage details never leak into responses.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrConflict):
		return "A record with that name already exists."
	case errors.Is(err, ErrCircularInheritance):
		return "Circular role inheritance detected."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password."
	default:
		return "Something went wrong. Please try again."
	}
}
