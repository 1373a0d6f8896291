package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotConfigured indicates that one or more required billing settings are
// missing. The detail names the fields for the admin log; callers surface a
// generic message to end users.
var ErrNotConfigured = errors.New("billing settings incomplete")

// BillingSettings holds the admin-settable billing configuration. A single
// row in the database backs it; the Stripe keys are entered through the
// admin settings endpoint, never through code or environment.
type BillingSettings struct {
	StripeSecretKey      string    `json:"stripe_secret_key,omitempty"`
	StripePublishableKey string    `json:"stripe_publishable_key"`
	StripePriceID        string    `json:"stripe_price_id"`
	PaymentFormRole      string    `json:"payment_form_role"`
	PaidRole             string    `json:"paid_role"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Validate returns ErrNotConfigured (with the missing field names attached)
// when any required setting is absent.
func (s BillingSettings) Validate() error {
	var missing []string
	if s.StripeSecretKey == "" {
		missing = append(missing, "stripe_secret_key")
	}
	if s.StripePublishableKey == "" {
		missing = append(missing, "stripe_publishable_key")
	}
	if s.StripePriceID == "" {
		missing = append(missing, "stripe_price_id")
	}
	if s.PaymentFormRole == "" {
		missing = append(missing, "payment_form_role")
	}
	if s.PaidRole == "" {
		missing = append(missing, "paid_role")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}
	return nil
}
