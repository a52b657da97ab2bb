package customer

import "time"

// Customer is a registered shopper. PasswordHash is a bcrypt hash and never
// leaves the storage boundary in API responses.
type Customer struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	Verified     bool      `json:"verified"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
