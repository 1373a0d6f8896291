package models

import "time"

// User is a registered provider account. Identity issuance (login) is the
// host platform's job; this service only reads users and mutates the
// billing-related fields.
type User struct {
	ID               int64      `json:"id"`
	Email            string     `json:"email"`
	BusinessName     *string    `json:"business_name,omitempty"`
	ABN              *string    `json:"abn,omitempty"`
	StripeCustomerID *string    `json:"stripe_customer_id,omitempty"`
	TermsAcceptedAt  *time.Time `json:"terms_accepted_at,omitempty"`
	Roles            []string   `json:"roles"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// HasRole reports whether the user holds the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
