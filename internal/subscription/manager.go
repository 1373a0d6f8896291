// Package subscription orchestrates the payment workflow: coupon
// validation, customer and subscription creation against the billing
// provider, paid-role granting, and subscription details assembly.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/accessi-au/subscription-backend/internal/billing"
	"github.com/accessi-au/subscription-backend/internal/models"
)

// Session-scoped keys for the short-lived payment state.
const (
	sessionKeyPaymentSuccess = "payment_success_message"
	sessionKeyPendingSub     = "pending_subscription_id"
)

var (
	// ErrUserNotFound indicates the acting user record is missing.
	ErrUserNotFound = errors.New("subscription: user not found")
	// ErrCreationFailed indicates the provider returned a subscription in a
	// state this service cannot act on.
	ErrCreationFailed = errors.New("subscription: subscription creation failed")
	// ErrNothingPending indicates a completion request without a pending
	// subscription in the session.
	ErrNothingPending = errors.New("subscription: no pending subscription")
	// ErrPaymentIncomplete indicates the pending subscription is still not
	// paid after client-side confirmation.
	ErrPaymentIncomplete = errors.New("subscription: payment not completed")
)

// UserStore is the slice of storage behaviour the manager needs.
type UserStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, userID int64, customerID string) error
	GrantRole(ctx context.Context, userID int64, role string) error
}

// SettingsStore loads the admin-configured billing settings.
type SettingsStore interface {
	GetBillingSettings(ctx context.Context) (*models.BillingSettings, error)
}

// SessionStore is the session-scoped key-value storage used for the
// payment-success flag and the pending subscription id.
type SessionStore interface {
	SetSessionValue(ctx context.Context, token, key, value string) error
	GetSessionValue(ctx context.Context, token, key string) (string, bool, error)
	DeleteSessionValue(ctx context.Context, token, key string) error
}

// Manager drives subscription creation and lookup. It builds a billing
// provider per call from the current settings so admin key changes take
// effect without a restart.
type Manager struct {
	users        UserStore
	settings     SettingsStore
	sessions     SessionStore
	provider     billing.ProviderFactory
	dashboardURL string
}

// NewManager constructs a Manager.
func NewManager(users UserStore, settings SettingsStore, sessions SessionStore, provider billing.ProviderFactory, dashboardURL string) *Manager {
	return &Manager{
		users:        users,
		settings:     settings,
		sessions:     sessions,
		provider:     provider,
		dashboardURL: dashboardURL,
	}
}

// loadSettings fetches and validates the billing settings. A validation
// failure means no provider call may be made.
func (m *Manager) loadSettings(ctx context.Context) (*models.BillingSettings, error) {
	cfg, err := m.settings.GetBillingSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscription: load settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CreateSubscription processes a tokenized payment method for the user:
// ensures a billing customer exists, creates the subscription (with the
// promotion code, when supplied), and interprets the resulting status.
func (m *Manager) CreateSubscription(ctx context.Context, sessionToken string, userID int64, paymentMethodID, promotionCodeID string) (*models.ProcessPaymentResponse, error) {
	cfg, err := m.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	user, err := m.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserNotFound, err)
	}

	provider := m.provider(cfg.StripeSecretKey)

	customerID, err := m.ensureCustomer(ctx, provider, user, paymentMethodID)
	if err != nil {
		return nil, err
	}

	sub, err := provider.CreateSubscription(ctx, billing.CreateSubscriptionParams{
		CustomerID:      customerID,
		PriceID:         cfg.StripePriceID,
		PromotionCodeID: promotionCodeID,
	})
	if err != nil {
		return nil, err
	}

	switch {
	case sub.Status == billing.StatusActive || sub.Status == billing.StatusTrialing:
		if err := m.grantPaidRole(ctx, user, cfg.PaidRole); err != nil {
			return nil, err
		}
		if err := m.sessions.SetSessionValue(ctx, sessionToken, sessionKeyPaymentSuccess, "1"); err != nil {
			log.Printf("Manager: failed to set payment success flag: %v", err)
		}
		return &models.ProcessPaymentResponse{
			Status:         models.PaymentStatusSuccess,
			SubscriptionID: sub.ID,
			RedirectURL:    m.dashboardURL,
		}, nil

	case sub.ClientSecret != "":
		if err := m.sessions.SetSessionValue(ctx, sessionToken, sessionKeyPendingSub, sub.ID); err != nil {
			log.Printf("Manager: failed to stash pending subscription id: %v", err)
		}
		return &models.ProcessPaymentResponse{
			Status:         models.PaymentStatusRequiresAction,
			ClientSecret:   sub.ClientSecret,
			SubscriptionID: sub.ID,
		}, nil

	default:
		return nil, ErrCreationFailed
	}
}

// ensureCustomer returns the user's billing-customer id, creating and
// persisting one when absent. A persist failure after remote creation is a
// known inconsistency window: the error is surfaced and the customer is
// simply recreated on the next attempt.
func (m *Manager) ensureCustomer(ctx context.Context, provider billing.Provider, user *models.User, paymentMethodID string) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	customerID, err := provider.CreateCustomer(ctx, billing.CreateCustomerParams{
		Email:           user.Email,
		PaymentMethodID: paymentMethodID,
	})
	if err != nil {
		return "", err
	}

	if err := m.users.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
		return "", fmt.Errorf("subscription: persist customer id for user %d: %w", user.ID, err)
	}

	log.Printf("Manager: created billing customer %s for user %d", customerID, user.ID)
	return customerID, nil
}

func (m *Manager) grantPaidRole(ctx context.Context, user *models.User, role string) error {
	if user.HasRole(role) {
		return nil
	}
	if err := m.users.GrantRole(ctx, user.ID, role); err != nil {
		return fmt.Errorf("subscription: grant paid role: %w", err)
	}
	log.Printf("Manager: added paid role %s to user %d", role, user.ID)
	return nil
}

// ConsumePaymentSuccess reports whether the session carries the one-shot
// payment-success flag, clearing it so the message shows once.
func (m *Manager) ConsumePaymentSuccess(ctx context.Context, sessionToken string) bool {
	_, ok, err := m.sessions.GetSessionValue(ctx, sessionToken, sessionKeyPaymentSuccess)
	if err != nil || !ok {
		return false
	}
	if err := m.sessions.DeleteSessionValue(ctx, sessionToken, sessionKeyPaymentSuccess); err != nil {
		log.Printf("Manager: failed to clear payment success flag: %v", err)
	}
	return true
}

// CompletePendingSubscription finishes a payment that previously required
// extra client-side authentication. The subscription status is re-read from
// the provider; the paid role is granted only when the provider reports the
// subscription active or trialing.
func (m *Manager) CompletePendingSubscription(ctx context.Context, sessionToken string, userID int64) (*models.ProcessPaymentResponse, error) {
	subID, ok, err := m.sessions.GetSessionValue(ctx, sessionToken, sessionKeyPendingSub)
	if err != nil {
		return nil, fmt.Errorf("subscription: read pending subscription: %w", err)
	}
	if !ok || subID == "" {
		return nil, ErrNothingPending
	}

	cfg, err := m.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	user, err := m.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserNotFound, err)
	}

	sub, err := m.provider(cfg.StripeSecretKey).GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	if sub.Status != billing.StatusActive && sub.Status != billing.StatusTrialing {
		return nil, fmt.Errorf("%w: subscription %s is %s", ErrPaymentIncomplete, sub.ID, sub.Status)
	}

	if err := m.grantPaidRole(ctx, user, cfg.PaidRole); err != nil {
		return nil, err
	}
	if err := m.sessions.DeleteSessionValue(ctx, sessionToken, sessionKeyPendingSub); err != nil {
		log.Printf("Manager: failed to clear pending subscription id: %v", err)
	}
	if err := m.sessions.SetSessionValue(ctx, sessionToken, sessionKeyPaymentSuccess, "1"); err != nil {
		log.Printf("Manager: failed to set payment success flag: %v", err)
	}

	return &models.ProcessPaymentResponse{
		Status:         models.PaymentStatusSuccess,
		SubscriptionID: sub.ID,
		RedirectURL:    m.dashboardURL,
	}, nil
}
