package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/accessi-au/subscription-backend/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store provides database-backed accessors for application data.
type Store struct {
	db *sql.DB
}

// New creates a Store using the provided sql.DB connection.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("store: db cannot be nil")
	}
	return &Store{db: db}, nil
}

const userColumns = `
  u.id,
  u.email,
  u.business_name,
  u.abn,
  u.stripe_customer_id,
  u.terms_accepted_at,
  u.created_at,
  u.updated_at,
  COALESCE(array_agg(r.role) FILTER (WHERE r.role IS NOT NULL), '{}') AS roles
`

// GetUserByID returns the user with the given id, including role grants.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM users u
LEFT JOIN user_roles r ON r.user_id = u.id
WHERE u.id = $1
GROUP BY u.id
`, userColumns)

	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByEmail returns the user with the given email (case-insensitive).
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM users u
LEFT JOIN user_roles r ON r.user_id = u.id
WHERE LOWER(u.email) = LOWER($1)
GROUP BY u.id
`, userColumns)

	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *Store) scanUser(row *sql.Row) (*models.User, error) {
	var (
		u         models.User
		business  sql.NullString
		abn       sql.NullString
		customer  sql.NullString
		termsAt   sql.NullTime
		roleSlugs pq.StringArray
	)

	err := row.Scan(&u.ID, &u.Email, &business, &abn, &customer, &termsAt, &u.CreatedAt, &u.UpdatedAt, &roleSlugs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan user: %w", err)
	}

	u.BusinessName = nullStringPtr(business)
	u.ABN = nullStringPtr(abn)
	u.StripeCustomerID = nullStringPtr(customer)
	if termsAt.Valid {
		t := termsAt.Time
		u.TermsAcceptedAt = &t
	}
	u.Roles = roleSlugs
	return &u, nil
}

// CreateUser inserts a new user record created by the provider
// registration flow.
func (s *Store) CreateUser(ctx context.Context, email, businessName, abn string, acceptedTerms bool) (*models.User, error) {
	var termsAt any
	if acceptedTerms {
		termsAt = time.Now().UTC()
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
INSERT INTO users (email, business_name, abn, terms_accepted_at)
VALUES ($1, $2, $3, $4)
RETURNING id
`, strings.TrimSpace(email), strings.TrimSpace(businessName), abn, termsAt).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// SetStripeCustomerID persists the billing-customer id onto the user. The
// id is created at most once per user and reused thereafter.
func (s *Store) SetStripeCustomerID(ctx context.Context, userID int64, customerID string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE users SET stripe_customer_id = $2, updated_at = now() WHERE id = $1
`, userID, customerID)
	if err != nil {
		return fmt.Errorf("store: set stripe customer id: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GrantRole adds a role to the user. Granting an already-held role is a
// no-op, which keeps the paid-role assignment idempotent on retries.
func (s *Store) GrantRole(ctx context.Context, userID int64, role string) error {
	if role == "" {
		return errors.New("store: role cannot be empty")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
ON CONFLICT (user_id, role) DO NOTHING
`, userID, role)
	if err != nil {
		return fmt.Errorf("store: grant role %s: %w", role, err)
	}
	return nil
}

// GetBillingSettings loads the singleton billing settings row. A missing
// row yields zero-valued settings; Validate on the result reports what is
// unconfigured.
func (s *Store) GetBillingSettings(ctx context.Context) (*models.BillingSettings, error) {
	var cfg models.BillingSettings
	err := s.db.QueryRowContext(ctx, `
SELECT stripe_secret_key, stripe_publishable_key, stripe_price_id, payment_form_role, paid_role, updated_at
FROM billing_settings
WHERE id = 1
`).Scan(&cfg.StripeSecretKey, &cfg.StripePublishableKey, &cfg.StripePriceID, &cfg.PaymentFormRole, &cfg.PaidRole, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.BillingSettings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get billing settings: %w", err)
	}
	return &cfg, nil
}

// SaveBillingSettings upserts the singleton billing settings row.
func (s *Store) SaveBillingSettings(ctx context.Context, cfg *models.BillingSettings) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO billing_settings (id, stripe_secret_key, stripe_publishable_key, stripe_price_id, payment_form_role, paid_role, updated_at)
VALUES (1, $1, $2, $3, $4, $5, now())
ON CONFLICT (id) DO UPDATE SET
  stripe_secret_key = EXCLUDED.stripe_secret_key,
  stripe_publishable_key = EXCLUDED.stripe_publishable_key,
  stripe_price_id = EXCLUDED.stripe_price_id,
  payment_form_role = EXCLUDED.payment_form_role,
  paid_role = EXCLUDED.paid_role,
  updated_at = now()
`, cfg.StripeSecretKey, cfg.StripePublishableKey, cfg.StripePriceID, cfg.PaymentFormRole, cfg.PaidRole)
	if err != nil {
		return fmt.Errorf("store: save billing settings: %w", err)
	}
	return nil
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid || v.String == "" {
		return nil
	}
	s := v.String
	return &s
}
