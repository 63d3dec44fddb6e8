package users

import "time"

// User is an administrative account. Authorization flows through the
// assigned roles and profiles; the account record itself only carries
// identity and preferences.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	PageSize     int       `json:"page_size"`
	RoleIDs      []int64   `json:"role_ids"`
	ProfileIDs   []int64   `json:"profile_ids"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DefaultPageSize is applied to accounts that never picked a preference.
const DefaultPageSize = 20

// PageSizeChoices lists the listing sizes the UI offers.
func PageSizeChoices() []int {
	return []int{10, 20, 50, 100}
}
