package auth

// User is the authentication view of an account.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	PasswordHash string `json:"-"`
	Active       bool   `json:"active"`
}

// LoginResult bundles the authenticated account with its materialized
// grant set. Grants are recomputed on every login so role changes take
// effect on the next session.
type LoginResult struct {
	User        User     `json:"user"`
	Authorities []string `json:"authorities"`
}
