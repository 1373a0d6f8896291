package subscription

import (
	"context"
	"strconv"
	"strings"

	"github.com/accessi-au/subscription-backend/internal/billing"
)

// defaultPlanName is used when the configured price has no nickname.
const defaultPlanName = "Provider Subscription"

// invoiceHistoryLimit caps how many paid invoices the details page lists
// for receipt download.
const invoiceHistoryLimit = 12

// displayDateFormat renders dates as e.g. "2 January 2006".
const displayDateFormat = "2 January 2006"

// Details is the subscription details view model. All amounts are
// major-unit two-decimal strings.
type Details struct {
	Status         string
	PlanName       string
	Amount         string
	Currency       string
	Interval       string
	RenewalDate    string
	Discount       string
	OriginalAmount string
	Invoices       []InvoiceSummary
}

// InvoiceSummary is one row of the receipt listing.
type InvoiceSummary struct {
	ID       string
	Date     string
	Amount   string
	Discount string
}

// SubscriptionDetails returns the user's current subscription view, or nil
// when the user has no billing customer or no active subscription.
func (m *Manager) SubscriptionDetails(ctx context.Context, userID int64) (*Details, error) {
	cfg, err := m.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	user, err := m.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return nil, nil
	}

	provider := m.provider(cfg.StripeSecretKey)

	sub, err := provider.ActiveSubscription(ctx, *user.StripeCustomerID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}

	planName := sub.Price.Nickname
	if planName == "" {
		planName = defaultPlanName
	}

	amount := sub.Price.UnitAmount
	details := &Details{
		Status:      sub.Status,
		PlanName:    planName,
		Currency:    strings.ToUpper(sub.Price.Currency),
		Interval:    sub.Price.Interval,
		RenewalDate: sub.CurrentPeriodEnd.Format(displayDateFormat),
	}

	if sub.Coupon != nil {
		details.Discount = sub.Coupon.Description()
		details.OriginalAmount = billing.FormatAmount(amount)
		amount = sub.Coupon.Apply(amount)
	}
	details.Amount = billing.FormatAmount(amount)

	invoices, err := provider.ListPaidInvoices(ctx, *user.StripeCustomerID, invoiceHistoryLimit)
	if err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		row := InvoiceSummary{
			ID:     inv.ID,
			Date:   inv.Created.Format(displayDateFormat),
			Amount: billing.FormatAmount(inv.Total),
		}
		if inv.Coupon != nil {
			row.Discount = inv.Coupon.Description()
		}
		details.Invoices = append(details.Invoices, row)
	}

	return details, nil
}

// PaymentPage carries everything the payment form needs: the rendered
// GST-inclusive summary and the settings payload injected for the client
// widget.
type PaymentPage struct {
	PlanName       string
	Interval       string
	Currency       string
	Subtotal       string
	GST            string
	Total          string
	PublishableKey string
	AmountMinor    int64
	CurrencyCode   string
	ProcessURL     string
}

// PaymentPageData assembles the payment page view from the configured
// price. The displayed total is GST-inclusive: GST is one eleventh of the
// total under the 10% inclusive rule.
func (m *Manager) PaymentPageData(ctx context.Context) (*PaymentPage, error) {
	cfg, err := m.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	price, err := m.provider(cfg.StripeSecretKey).GetPrice(ctx, cfg.StripePriceID)
	if err != nil {
		return nil, err
	}

	planName := price.Nickname
	if planName == "" {
		planName = defaultPlanName
	}

	total := float64(price.UnitAmount) / 100
	gst := total / 11
	subtotal := total - gst

	return &PaymentPage{
		PlanName:       planName,
		Interval:       price.Interval,
		Currency:       strings.ToUpper(price.Currency),
		Subtotal:       formatMajor(subtotal),
		GST:            formatMajor(gst),
		Total:          formatMajor(total),
		PublishableKey: cfg.StripePublishableKey,
		AmountMinor:    price.UnitAmount,
		CurrencyCode:   price.Currency,
		ProcessURL:     "/subscription/payment/process",
	}, nil
}

func formatMajor(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
