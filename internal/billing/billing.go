package billing

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Subscription status values this service reacts to. Transitions between
// them are driven entirely by the billing provider.
const (
	StatusActive     = "active"
	StatusTrialing   = "trialing"
	StatusIncomplete = "incomplete"
	StatusPastDue    = "past_due"
	StatusCanceled   = "canceled"
)

// Coupon is a discount attached to a promotion code or subscription.
// Exactly one of AmountOff (minor units) or PercentOff is set.
type Coupon struct {
	ID         string
	AmountOff  int64
	PercentOff float64
}

// Apply returns the amount after the discount, floored at zero. Percentage
// discounts round to the nearest minor unit.
func (c Coupon) Apply(amount int64) int64 {
	if c.AmountOff > 0 {
		if amount < c.AmountOff {
			return 0
		}
		return amount - c.AmountOff
	}
	if c.PercentOff > 0 {
		return int64(math.Round(float64(amount) * (1 - c.PercentOff/100)))
	}
	return amount
}

// Description renders the discount for display, e.g. "$20 off" or "10% off".
func (c Coupon) Description() string {
	if c.AmountOff > 0 {
		return fmt.Sprintf("$%d off", c.AmountOff/100)
	}
	if c.PercentOff > 0 {
		return fmt.Sprintf("%d%% off", int64(c.PercentOff))
	}
	return ""
}

// Promotion is an active, redeemable promotion code.
type Promotion struct {
	ID     string
	Code   string
	Coupon Coupon
}

// Price is the configured recurring price being sold. Read-only; an
// administrator sets it up in the provider dashboard.
type Price struct {
	ID         string
	UnitAmount int64
	Currency   string
	Nickname   string
	Interval   string
}

// Subscription is the provider's view of a recurring subscription. When the
// provider defers payment, ClientSecret carries the ephemeral token the
// client needs to finish authentication; it is never persisted.
type Subscription struct {
	ID               string
	Status           string
	ClientSecret     string
	CurrentPeriodEnd time.Time
	Price            Price
	Coupon           *Coupon
}

// Invoice is a provider invoice used for receipt rendering. Amounts are
// minor units.
type Invoice struct {
	ID          string
	Number      string
	Created     time.Time
	Subtotal    int64
	Total       int64
	Currency    string
	Description string
	Coupon      *Coupon
}

// CreateCustomerParams registers a billing customer with the supplied
// payment method token as its default.
type CreateCustomerParams struct {
	Email           string
	PaymentMethodID string
}

// CreateSubscriptionParams starts a subscription for an existing customer.
type CreateSubscriptionParams struct {
	CustomerID      string
	PriceID         string
	PromotionCodeID string
}

// Provider abstracts the third-party billing service. Lookup methods return
// (nil, nil) when the requested object simply does not exist; errors are
// reserved for communication failures.
type Provider interface {
	FindPromotionCode(ctx context.Context, code string) (*Promotion, error)
	GetPrice(ctx context.Context, id string) (*Price, error)
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (customerID string, err error)
	CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*Subscription, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	ActiveSubscription(ctx context.Context, customerID string) (*Subscription, error)
	ListPaidInvoices(ctx context.Context, customerID string, limit int) ([]Invoice, error)
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
}

// ProviderFactory builds a Provider from the admin-configured secret key.
// The key is runtime-settable, so providers are constructed per use rather
// than at startup.
type ProviderFactory func(secretKey string) Provider

// FormatAmount renders minor currency units as a two-decimal major-unit
// string, e.g. 9900 -> "99.00".
func FormatAmount(minor int64) string {
	return strconv.FormatFloat(float64(minor)/100, 'f', 2, 64)
}

// MajorUnits converts minor currency units to major units, e.g. 9900 -> 99.
func MajorUnits(minor int64) float64 {
	return float64(minor) / 100
}
