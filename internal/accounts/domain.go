package accounts

import (
	"strings"
	"time"
)

// AccountStatus enumerates the lifecycle states of an account.
type AccountStatus string

const (
	StatusActive    AccountStatus = "ACTIVE"
	StatusInactive  AccountStatus = "INACTIVE"
	StatusClosed    AccountStatus = "CLOSED"
	StatusSuspended AccountStatus = "SUSPENDED"
)

// ValidStatus reports whether s is a known status value.
func ValidStatus(s AccountStatus) bool {
	switch s {
	case StatusActive, StatusInactive, StatusClosed, StatusSuspended:
		return true
	}
	return false
}

// Account is a customer account record.
type Account struct {
	ID          int64         `json:"id"`
	AccountRef  string        `json:"account_ref"`
	AccountName string        `json:"account_name"`
	Currency    string        `json:"currency"`
	Status      AccountStatus `json:"status"`
	CustomerID  int64         `json:"customer_id"`
	CreatedBy   string        `json:"created_by,omitempty"`
	UpdatedBy   string        `json:"updated_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// SearchCriteria is a bag of optional filters for the account search.
// Blank or whitespace-only strings count as absent, so a form submitted
// with untouched fields degenerates to an unfiltered listing.
type SearchCriteria struct {
	AccountRef   string
	AccountName  string
	Currency     string
	CustomerName string
	CreatedBy    string
	UpdatedBy    string

	Status *AccountStatus

	AccountIDFrom  *int64
	AccountIDTo    *int64
	CustomerIDFrom *int64
	CustomerIDTo   *int64

	CreatedAtFrom *time.Time
	CreatedAtTo   *time.Time
	UpdatedAtFrom *time.Time
	UpdatedAtTo   *time.Time
}

// IsEmpty reports whether no filter is supplied at all.
func (c SearchCriteria) IsEmpty() bool {
	return !present(c.AccountRef) && !present(c.AccountName) && !present(c.Currency) &&
		!present(c.CustomerName) && !present(c.CreatedBy) && !present(c.UpdatedBy) &&
		c.Status == nil &&
		c.AccountIDFrom == nil && c.AccountIDTo == nil &&
		c.CustomerIDFrom == nil && c.CustomerIDTo == nil &&
		c.CreatedAtFrom == nil && c.CreatedAtTo == nil &&
		c.UpdatedAtFrom == nil && c.UpdatedAtTo == nil
}

func present(s string) bool {
	return strings.TrimSpace(s) != ""
}
