package billing

import (
	"context"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeProvider implements Provider against the Stripe API.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider creates a StripeProvider using the given secret key.
// Keys are per-instance; nothing global is mutated, so providers built from
// updated admin settings take effect immediately.
func NewStripeProvider(secretKey string) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{api: api}
}

// NewStripeFactory returns a ProviderFactory producing StripeProviders.
func NewStripeFactory() ProviderFactory {
	return func(secretKey string) Provider {
		return NewStripeProvider(secretKey)
	}
}

// FindPromotionCode looks up an active promotion code by its exact code.
// Returns (nil, nil) when no matching active code exists.
func (p *StripeProvider) FindPromotionCode(ctx context.Context, code string) (*Promotion, error) {
	params := &stripe.PromotionCodeListParams{
		Code:   stripe.String(code),
		Active: stripe.Bool(true),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := p.api.PromotionCodes.List(params)
	if !iter.Next() {
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("billing: list promotion codes: %w", err)
		}
		return nil, nil
	}

	pc := iter.PromotionCode()
	promo := &Promotion{ID: pc.ID, Code: pc.Code}
	if pc.Coupon != nil {
		promo.Coupon = couponFromStripe(pc.Coupon)
	}
	return promo, nil
}

// GetPrice retrieves the configured recurring price.
func (p *StripeProvider) GetPrice(ctx context.Context, id string) (*Price, error) {
	params := &stripe.PriceParams{}
	params.Context = ctx

	pr, err := p.api.Prices.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("billing: get price %s: %w", id, err)
	}
	return priceFromStripe(pr), nil
}

// CreateCustomer registers a Stripe customer with the tokenized payment
// method as its invoice default.
func (p *StripeProvider) CreateCustomer(ctx context.Context, params CreateCustomerParams) (string, error) {
	cp := &stripe.CustomerParams{
		Email:         stripe.String(params.Email),
		PaymentMethod: stripe.String(params.PaymentMethodID),
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(params.PaymentMethodID),
		},
	}
	cp.Context = ctx

	c, err := p.api.Customers.New(cp)
	if err != nil {
		return "", fmt.Errorf("billing: create customer: %w", err)
	}
	return c.ID, nil
}

// CreateSubscription starts a card-only subscription with deferred payment
// and the payment intent expanded, so an incomplete subscription carries a
// client secret for client-side confirmation.
func (p *StripeProvider) CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*Subscription, error) {
	sp := &stripe.SubscriptionParams{
		Customer: stripe.String(params.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(params.PriceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	if params.PromotionCodeID != "" {
		sp.PromotionCode = stripe.String(params.PromotionCodeID)
	}
	sp.Context = ctx
	sp.AddExpand("latest_invoice.payment_intent")

	sub, err := p.api.Subscriptions.New(sp)
	if err != nil {
		return nil, fmt.Errorf("billing: create subscription: %w", err)
	}
	return subscriptionFromStripe(sub), nil
}

// GetSubscription re-reads a subscription, used to verify a pending payment
// after the client completed authentication.
func (p *StripeProvider) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("latest_invoice.payment_intent")

	sub, err := p.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("billing: get subscription %s: %w", id, err)
	}
	return subscriptionFromStripe(sub), nil
}

// ActiveSubscription returns the customer's most recent active subscription
// with its discount expanded, or (nil, nil) when none exists.
func (p *StripeProvider) ActiveSubscription(ctx context.Context, customerID string) (*Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.AddExpand("data.discount")

	iter := p.api.Subscriptions.List(params)
	if !iter.Next() {
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("billing: list subscriptions: %w", err)
		}
		return nil, nil
	}
	return subscriptionFromStripe(iter.Subscription()), nil
}

// ListPaidInvoices returns up to limit paid invoices for the customer,
// newest first, with discounts expanded.
func (p *StripeProvider) ListPaidInvoices(ctx context.Context, customerID string, limit int) ([]Invoice, error) {
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.InvoiceStatusPaid)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))
	params.AddExpand("data.discount")

	var invoices []Invoice
	iter := p.api.Invoices.List(params)
	for iter.Next() {
		invoices = append(invoices, *invoiceFromStripe(iter.Invoice()))
		if len(invoices) >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("billing: list invoices: %w", err)
	}
	return invoices, nil
}

// GetInvoice fetches a single invoice with its discount expanded.
func (p *StripeProvider) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	params.AddExpand("discount")

	inv, err := p.api.Invoices.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("billing: get invoice %s: %w", id, err)
	}
	return invoiceFromStripe(inv), nil
}

func couponFromStripe(c *stripe.Coupon) Coupon {
	return Coupon{
		ID:         c.ID,
		AmountOff:  c.AmountOff,
		PercentOff: c.PercentOff,
	}
}

func priceFromStripe(p *stripe.Price) *Price {
	price := &Price{
		ID:         p.ID,
		UnitAmount: p.UnitAmount,
		Currency:   string(p.Currency),
		Nickname:   p.Nickname,
	}
	if p.Recurring != nil {
		price.Interval = string(p.Recurring.Interval)
	}
	return price
}

func subscriptionFromStripe(s *stripe.Subscription) *Subscription {
	sub := &Subscription{
		ID:               s.ID,
		Status:           string(s.Status),
		CurrentPeriodEnd: time.Unix(s.CurrentPeriodEnd, 0).UTC(),
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		sub.Price = *priceFromStripe(s.Items.Data[0].Price)
	}
	if s.Discount != nil && s.Discount.Coupon != nil {
		c := couponFromStripe(s.Discount.Coupon)
		sub.Coupon = &c
	}
	if s.LatestInvoice != nil && s.LatestInvoice.PaymentIntent != nil {
		sub.ClientSecret = s.LatestInvoice.PaymentIntent.ClientSecret
	}
	return sub
}

func invoiceFromStripe(inv *stripe.Invoice) *Invoice {
	out := &Invoice{
		ID:       inv.ID,
		Number:   inv.Number,
		Created:  time.Unix(inv.Created, 0).UTC(),
		Subtotal: inv.Subtotal,
		Total:    inv.Total,
		Currency: string(inv.Currency),
	}
	if inv.Lines != nil && len(inv.Lines.Data) > 0 {
		out.Description = inv.Lines.Data[0].Description
	}
	if inv.Discount != nil && inv.Discount.Coupon != nil {
		c := couponFromStripe(inv.Discount.Coupon)
		out.Coupon = &c
	}
	return out
}
