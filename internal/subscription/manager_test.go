package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/accessi-au/subscription-backend/internal/billing"
	"github.com/accessi-au/subscription-backend/internal/models"
)

type fakeUsers struct {
	users          map[int64]*models.User
	savedCustomers map[int64]string
	grantedRoles   map[int64][]string
	setCustomerErr error
	grantErr       error
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{
		users:          make(map[int64]*models.User),
		savedCustomers: make(map[int64]string),
		grantedRoles:   make(map[int64][]string),
	}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("no such user")
	}
	return u, nil
}

func (f *fakeUsers) SetStripeCustomerID(_ context.Context, userID int64, customerID string) error {
	if f.setCustomerErr != nil {
		return f.setCustomerErr
	}
	f.savedCustomers[userID] = customerID
	return nil
}

func (f *fakeUsers) GrantRole(_ context.Context, userID int64, role string) error {
	if f.grantErr != nil {
		return f.grantErr
	}
	f.grantedRoles[userID] = append(f.grantedRoles[userID], role)
	return nil
}

type fakeSettings struct {
	cfg *models.BillingSettings
	err error
}

func (f *fakeSettings) GetBillingSettings(context.Context) (*models.BillingSettings, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cfg, nil
}

type fakeSessions struct {
	values map[string]string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{values: make(map[string]string)}
}

func (f *fakeSessions) SetSessionValue(_ context.Context, token, key, value string) error {
	f.values[token+"/"+key] = value
	return nil
}

func (f *fakeSessions) GetSessionValue(_ context.Context, token, key string) (string, bool, error) {
	v, ok := f.values[token+"/"+key]
	return v, ok, nil
}

func (f *fakeSessions) DeleteSessionValue(_ context.Context, token, key string) error {
	delete(f.values, token+"/"+key)
	return nil
}

func validSettings() *models.BillingSettings {
	return &models.BillingSettings{
		StripeSecretKey:      "sk_test_123",
		StripePublishableKey: "pk_test_123",
		StripePriceID:        "price_1",
		PaymentFormRole:      "provider",
		PaidRole:             "paid_provider",
	}
}

func testUser() *models.User {
	return &models.User{ID: 7, Email: "owner@example.com", Roles: []string{"provider"}}
}

func newTestManager(users *fakeUsers, cfg *models.BillingSettings, sessions *fakeSessions, mock *billing.MockProvider) *Manager {
	return NewManager(users, &fakeSettings{cfg: cfg}, sessions, mock.Factory(), "/mydashboard")
}

func TestCreateSubscriptionMissingConfig(t *testing.T) {
	mock := billing.NewMockProvider()
	users := newFakeUsers(testUser())
	m := newTestManager(users, &models.BillingSettings{}, newFakeSessions(), mock)

	_, err := m.CreateSubscription(context.Background(), "tok", 7, "pm_1", "")
	if !errors.Is(err, models.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if len(mock.CreatedCustomers) != 0 || len(mock.CreatedSubscriptions) != 0 {
		t.Fatal("no provider call may be made when configuration is missing")
	}
}

func TestCreateSubscriptionActiveGrantsRole(t *testing.T) {
	mock := billing.NewMockProvider()
	mock.NextSubscription = &billing.Subscription{ID: "sub_1", Status: billing.StatusActive}
	users := newFakeUsers(testUser())
	sessions := newFakeSessions()
	m := newTestManager(users, validSettings(), sessions, mock)

	resp, err := m.CreateSubscription(context.Background(), "tok", 7, "pm_1", "")
	if err != nil {
		t.Fatalf("CreateSubscription returned error: %v", err)
	}

	if resp.Status != models.PaymentStatusSuccess {
		t.Fatalf("expected success, got %s", resp.Status)
	}
	if resp.RedirectURL != "/mydashboard" {
		t.Fatalf("unexpected redirect %q", resp.RedirectURL)
	}
	if got := users.grantedRoles[7]; len(got) != 1 || got[0] != "paid_provider" {
		t.Fatalf("paid role not granted: %v", got)
	}
	if users.savedCustomers[7] != "cus_mock_1" {
		t.Fatalf("customer id not persisted: %v", users.savedCustomers)
	}
	if _, ok := sessions.values["tok/payment_success_message"]; !ok {
		t.Fatal("payment success flag not set in session")
	}
}

func TestCreateSubscriptionReusesExistingCustomer(t *testing.T) {
	mock := billing.NewMockProvider()
	mock.NextSubscription = &billing.Subscription{ID: "sub_1", Status: billing.StatusActive}

	existing := "cus_existing"
	user := testUser()
	user.StripeCustomerID = &existing
	users := newFakeUsers(user)
	m := newTestManager(users, validSettings(), newFakeSessions(), mock)

	if _, err := m.CreateSubscription(context.Background(), "tok", 7, "pm_1", ""); err != nil {
		t.Fatalf("CreateSubscription returned error: %v", err)
	}

	if len(mock.CreatedCustomers) != 0 {
		t.Fatal("customer must not be recreated when an id is stored")
	}
	if mock.CreatedSubscriptions[0].CustomerID != existing {
		t.Fatalf("expected existing customer id, got %s", mock.CreatedSubscriptions[0].CustomerID)
	}
}

func TestCreateSubscriptionRequiresAction(t *testing.T) {
	mock := billing.NewMockProvider()
	mock.NextSubscription = &billing.Subscription{
		ID:           "sub_2",
		Status:       billing.StatusIncomplete,
		ClientSecret: "pi_secret_123",
	}
	users := newFakeUsers(testUser())
	sessions := newFakeSessions()
	m := newTestManager(users, validSettings(), sessions, mock)

	resp, err := m.CreateSubscription(context.Background(), "tok", 7, "pm_1", "")
	if err != nil {
		t.Fatalf("CreateSubscription returned error: %v", err)
	}

	if resp.Status != models.PaymentStatusRequiresAction {
		t.Fatalf("expected requires_action, got %s", resp.Status)
	}
	if resp.ClientSecret != "pi_secret_123" || resp.SubscriptionID != "sub_2" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(users.grantedRoles[7]) != 0 {
		t.Fatal("paid role must not be granted before confirmation")
	}
	if sessions.values["tok/pending_subscription_id"] != "sub_2" {
		t.Fatal("pending subscription id not stashed in session")
	}
}

func TestCreateSubscriptionUnusableStatus(t *testing.T) {
	mock := billing.NewMockProvider()
	mock.NextSubscription = &billing.Subscription{ID: "sub_3", Status: billing.StatusIncomplete}
	m := newTestManager(newFakeUsers(testUser()), validSettings(), newFakeSessions(), mock)

	_, err := m.CreateSubscription(context.Background(), "tok", 7, "pm_1", "")
	if !errors.Is(err, ErrCreationFailed) {
		t.Fatalf("expected ErrCreationFailed, got %v", err)
	}
}

func TestCreateSubscriptionForwardsPromotionCode(t *testing.T) {
	mock := billing.NewMockProvider()
	mock.NextSubscription = &billing.Subscription{ID: "sub_1", Status: billing.StatusActive}
	m := newTestManager(newFakeUsers(testUser()), validSettings(), newFakeSessions(), mock)

	if _, err := m.CreateSubscription(context.Background(), "tok", 7, "pm_1", "promo_10"); err != nil {
		t.Fatalf("CreateSubscription returned error: %v", err)
	}
	if mock.CreatedSubscriptions[0].PromotionCodeID != "promo_10" {
		t.Fatalf("promotion code not forwarded: %+v", mock.CreatedSubscriptions[0])
	}
}

func TestCreateSubscriptionUserMissing(t *testing.T) {
	mock := billing.NewMockProvider()
	m := newTestManager(newFakeUsers(), validSettings(), newFakeSessions(), mock)

	_, err := m.CreateSubscription(context.Background(), "tok", 99, "pm_1", "")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCompletePendingSubscription(t *testing.T) {
	mock := billing.NewMockProvider()
	mock.Subscriptions["sub_2"] = &billing.Subscription{ID: "sub_2", Status: billing.StatusActive}
	users := newFakeUsers(testUser())
	sessions := newFakeSessions()
	sessions.values["tok/pending_subscription_id"] = "sub_2"
	m := newTestManager(users, validSettings(), sessions, mock)

	resp, err := m.CompletePendingSubscription(context.Background(), "tok", 7)
	if err != nil {
		t.Fatalf("CompletePendingSubscription returned error: %v", err)
	}

	if resp.Status != models.PaymentStatusSuccess {
		t.Fatalf("expected success, got %s", resp.Status)
	}
	if got := users.grantedRoles[7]; len(got) != 1 || got[0] != "paid_provider" {
		t.Fatalf("paid role not granted: %v", got)
	}
	if _, ok := sessions.values["tok/pending_subscription_id"]; ok {
		t.Fatal("pending subscription id should be cleared")
	}
}

func TestCompletePendingNothingPending(t *testing.T) {
	m := newTestManager(newFakeUsers(testUser()), validSettings(), newFakeSessions(), billing.NewMockProvider())

	_, err := m.CompletePendingSubscription(context.Background(), "tok", 7)
	if !errors.Is(err, ErrNothingPending) {
		t.Fatalf("expected ErrNothingPending, got %v", err)
	}
}

func TestCompletePendingStillIncomplete(t *testing.T) {
	mock := billing.NewMockProvider()
	mock.Subscriptions["sub_2"] = &billing.Subscription{ID: "sub_2", Status: billing.StatusIncomplete}
	users := newFakeUsers(testUser())
	sessions := newFakeSessions()
	sessions.values["tok/pending_subscription_id"] = "sub_2"
	m := newTestManager(users, validSettings(), sessions, mock)

	_, err := m.CompletePendingSubscription(context.Background(), "tok", 7)
	if !errors.Is(err, ErrPaymentIncomplete) {
		t.Fatalf("expected ErrPaymentIncomplete, got %v", err)
	}
	if len(users.grantedRoles[7]) != 0 {
		t.Fatal("paid role must not be granted while payment is incomplete")
	}
}

func TestValidateCouponPercent(t *testing.T) {
	mock := billing.NewMockProvider()
	mock.Promotions["SAVE10"] = &billing.Promotion{
		ID:     "promo_10",
		Code:   "SAVE10",
		Coupon: billing.Coupon{PercentOff: 10},
	}
	mock.Prices["price_1"] = &billing.Price{ID: "price_1", UnitAmount: 11000, Currency: "aud"}
	m := newTestManager(newFakeUsers(testUser()), validSettings(), newFakeSessions(), mock)

	res, err := m.ValidateCoupon(context.Background(), "  SAVE10 ")
	if err != nil {
		t.Fatalf("ValidateCoupon returned error: %v", err)
	}

	if !res.Valid || res.PromotionCodeID != "promo_10" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Description != "10% off" {
		t.Fatalf("unexpected description %q", res.Description)
	}
	if *res.FinalAmount != 99 || *res.OriginalAmount != 110 {
		t.Fatalf("unexpected amounts: final=%v original=%v", *res.FinalAmount, *res.OriginalAmount)
	}
}

func TestValidateCouponFixedFloorsAtZero(t *testing.T) {
	mock := billing.NewMockProvider()
	mock.Promotions["BIG"] = &billing.Promotion{
		ID:     "promo_big",
		Code:   "BIG",
		Coupon: billing.Coupon{AmountOff: 20000},
	}
	mock.Prices["price_1"] = &billing.Price{ID: "price_1", UnitAmount: 11000, Currency: "aud"}
	m := newTestManager(newFakeUsers(testUser()), validSettings(), newFakeSessions(), mock)

	res, err := m.ValidateCoupon(context.Background(), "BIG")
	if err != nil {
		t.Fatalf("ValidateCoupon returned error: %v", err)
	}
	if *res.FinalAmount != 0 {
		t.Fatalf("expected final amount floored at zero, got %v", *res.FinalAmount)
	}
}

func TestValidateCouponUnknownCode(t *testing.T) {
	mock := billing.NewMockProvider()
	mock.Prices["price_1"] = &billing.Price{ID: "price_1", UnitAmount: 11000}
	m := newTestManager(newFakeUsers(testUser()), validSettings(), newFakeSessions(), mock)

	res, err := m.ValidateCoupon(context.Background(), "NOPE")
	if err != nil {
		t.Fatalf("ValidateCoupon returned error: %v", err)
	}
	if res.Valid {
		t.Fatal("expected invalid result")
	}
	if res.Message != "Invalid or expired promotion code" {
		t.Fatalf("unexpected message %q", res.Message)
	}
	if res.FinalAmount != nil || res.OriginalAmount != nil {
		t.Fatal("amount fields must be absent for invalid codes")
	}
}

func TestValidateCouponProviderError(t *testing.T) {
	mock := billing.NewMockProvider()
	mock.FindPromotionErr = errors.New("stripe down")
	m := newTestManager(newFakeUsers(testUser()), validSettings(), newFakeSessions(), mock)

	if _, err := m.ValidateCoupon(context.Background(), "SAVE10"); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}

func TestSubscriptionDetailsNoCustomer(t *testing.T) {
	m := newTestManager(newFakeUsers(testUser()), validSettings(), newFakeSessions(), billing.NewMockProvider())

	details, err := m.SubscriptionDetails(context.Background(), 7)
	if err != nil {
		t.Fatalf("SubscriptionDetails returned error: %v", err)
	}
	if details != nil {
		t.Fatal("expected nil details for a user without a billing customer")
	}
}

func TestSubscriptionDetailsWithDiscount(t *testing.T) {
	mock := billing.NewMockProvider()
	coupon := billing.Coupon{PercentOff: 10}
	mock.ActiveSub = &billing.Subscription{
		ID:               "sub_1",
		Status:           billing.StatusActive,
		CurrentPeriodEnd: time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
		Price: billing.Price{
			ID:         "price_1",
			UnitAmount: 11000,
			Currency:   "aud",
			Nickname:   "Gold",
			Interval:   "month",
		},
		Coupon: &coupon,
	}
	mock.PaidInvoices = []billing.Invoice{
		{ID: "in_1", Total: 9900, Created: time.Date(2026, time.February, 2, 0, 0, 0, 0, time.UTC), Coupon: &coupon},
	}

	customerID := "cus_1"
	user := testUser()
	user.StripeCustomerID = &customerID
	m := newTestManager(newFakeUsers(user), validSettings(), newFakeSessions(), mock)

	details, err := m.SubscriptionDetails(context.Background(), 7)
	if err != nil {
		t.Fatalf("SubscriptionDetails returned error: %v", err)
	}
	if details == nil {
		t.Fatal("expected details")
	}

	if details.PlanName != "Gold" || details.Currency != "AUD" || details.Interval != "month" {
		t.Fatalf("unexpected plan fields: %+v", details)
	}
	if details.Amount != "99.00" || details.OriginalAmount != "110.00" || details.Discount != "10% off" {
		t.Fatalf("unexpected amounts: %+v", details)
	}
	if details.RenewalDate != "2 March 2026" {
		t.Fatalf("unexpected renewal date %q", details.RenewalDate)
	}
	if len(details.Invoices) != 1 {
		t.Fatalf("expected 1 invoice, got %d", len(details.Invoices))
	}
	inv := details.Invoices[0]
	if inv.Amount != "99.00" || inv.Date != "2 February 2026" || inv.Discount != "10% off" {
		t.Fatalf("unexpected invoice row: %+v", inv)
	}
}

func TestSubscriptionDetailsNoActiveSubscription(t *testing.T) {
	customerID := "cus_1"
	user := testUser()
	user.StripeCustomerID = &customerID
	m := newTestManager(newFakeUsers(user), validSettings(), newFakeSessions(), billing.NewMockProvider())

	details, err := m.SubscriptionDetails(context.Background(), 7)
	if err != nil {
		t.Fatalf("SubscriptionDetails returned error: %v", err)
	}
	if details != nil {
		t.Fatal("expected nil details when no active subscription exists")
	}
}

func TestPaymentPageData(t *testing.T) {
	mock := billing.NewMockProvider()
	mock.Prices["price_1"] = &billing.Price{
		ID:         "price_1",
		UnitAmount: 11000,
		Currency:   "aud",
		Interval:   "month",
	}
	m := newTestManager(newFakeUsers(testUser()), validSettings(), newFakeSessions(), mock)

	page, err := m.PaymentPageData(context.Background())
	if err != nil {
		t.Fatalf("PaymentPageData returned error: %v", err)
	}

	if page.Total != "110.00" || page.GST != "10.00" || page.Subtotal != "100.00" {
		t.Fatalf("unexpected GST breakdown: %+v", page)
	}
	if page.PublishableKey != "pk_test_123" || page.AmountMinor != 11000 || page.CurrencyCode != "aud" {
		t.Fatalf("unexpected widget payload: %+v", page)
	}
	if page.PlanName != "Provider Subscription" {
		t.Fatalf("expected nickname fallback, got %q", page.PlanName)
	}
}
