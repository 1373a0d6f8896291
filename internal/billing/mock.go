package billing

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a test double that records calls and returns configurable
// results.
type MockProvider struct {
	mu sync.Mutex

	// Promotions maps code -> promotion.
	Promotions map[string]*Promotion
	// Prices maps price ID -> price.
	Prices map[string]*Price
	// Subscriptions maps subscription ID -> subscription.
	Subscriptions map[string]*Subscription
	// Invoices maps invoice ID -> invoice.
	Invoices map[string]*Invoice
	// PaidInvoices is returned by ListPaidInvoices.
	PaidInvoices []Invoice

	// CreatedCustomers collects CreateCustomer calls.
	CreatedCustomers []CreateCustomerParams
	// CreatedSubscriptions collects CreateSubscription calls.
	CreatedSubscriptions []CreateSubscriptionParams

	// NextSubscription is returned by the next CreateSubscription call.
	NextSubscription *Subscription
	// ActiveSub is returned by ActiveSubscription.
	ActiveSub *Subscription

	// Error fields allow tests to inject failures.
	FindPromotionErr      error
	GetPriceErr           error
	CreateCustomerErr     error
	CreateSubscriptionErr error
	GetSubscriptionErr    error
	ListInvoicesErr       error
	GetInvoiceErr         error

	nextCustomerSeq int
}

// NewMockProvider creates a MockProvider ready for use.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Promotions:    make(map[string]*Promotion),
		Prices:        make(map[string]*Price),
		Subscriptions: make(map[string]*Subscription),
		Invoices:      make(map[string]*Invoice),
	}
}

// FindPromotionCode returns the configured promotion for the code, if any.
func (m *MockProvider) FindPromotionCode(_ context.Context, code string) (*Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FindPromotionErr != nil {
		return nil, m.FindPromotionErr
	}
	return m.Promotions[code], nil
}

// GetPrice returns the configured price.
func (m *MockProvider) GetPrice(_ context.Context, id string) (*Price, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetPriceErr != nil {
		return nil, m.GetPriceErr
	}
	p, ok := m.Prices[id]
	if !ok {
		return nil, fmt.Errorf("billing: unknown price %s", id)
	}
	return p, nil
}

// CreateCustomer records the call and returns a sequential mock customer id.
func (m *MockProvider) CreateCustomer(_ context.Context, params CreateCustomerParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateCustomerErr != nil {
		return "", m.CreateCustomerErr
	}
	m.CreatedCustomers = append(m.CreatedCustomers, params)
	m.nextCustomerSeq++
	return fmt.Sprintf("cus_mock_%d", m.nextCustomerSeq), nil
}

// CreateSubscription records the call and returns NextSubscription.
func (m *MockProvider) CreateSubscription(_ context.Context, params CreateSubscriptionParams) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateSubscriptionErr != nil {
		return nil, m.CreateSubscriptionErr
	}
	m.CreatedSubscriptions = append(m.CreatedSubscriptions, params)
	sub := m.NextSubscription
	if sub == nil {
		sub = &Subscription{ID: "sub_mock_1", Status: StatusActive}
	}
	m.Subscriptions[sub.ID] = sub
	return sub, nil
}

// GetSubscription returns a previously created or preloaded subscription.
func (m *MockProvider) GetSubscription(_ context.Context, id string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetSubscriptionErr != nil {
		return nil, m.GetSubscriptionErr
	}
	sub, ok := m.Subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("billing: unknown subscription %s", id)
	}
	return sub, nil
}

// ActiveSubscription returns the configured active subscription, if any.
func (m *MockProvider) ActiveSubscription(_ context.Context, _ string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetSubscriptionErr != nil {
		return nil, m.GetSubscriptionErr
	}
	return m.ActiveSub, nil
}

// ListPaidInvoices returns up to limit of the configured paid invoices.
func (m *MockProvider) ListPaidInvoices(_ context.Context, _ string, limit int) ([]Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListInvoicesErr != nil {
		return nil, m.ListInvoicesErr
	}
	if limit > len(m.PaidInvoices) {
		limit = len(m.PaidInvoices)
	}
	return m.PaidInvoices[:limit], nil
}

// GetInvoice returns a preloaded invoice.
func (m *MockProvider) GetInvoice(_ context.Context, id string) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetInvoiceErr != nil {
		return nil, m.GetInvoiceErr
	}
	inv, ok := m.Invoices[id]
	if !ok {
		return nil, fmt.Errorf("billing: unknown invoice %s", id)
	}
	return inv, nil
}

// Factory returns a ProviderFactory that always yields this mock and
// records the secret keys it was asked for.
func (m *MockProvider) Factory() ProviderFactory {
	return func(string) Provider { return m }
}
