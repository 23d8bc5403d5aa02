package models

import "time"

// Account is an advisor or farm-manager login.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	FarmName     string    `json:"farm_name,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Sanitize returns a copy of the account without sensitive fields populated.
func (a Account) Sanitize() Account {
	a.PasswordHash = ""
	return a
}
