package receipt

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/accessi-au/subscription-backend/internal/billing"
	"github.com/accessi-au/subscription-backend/internal/models"
)

type fakeEngine struct {
	html []byte
	opts Options
	err  error
}

func (f *fakeEngine) Render(html []byte, opts Options) ([]byte, error) {
	f.html = html
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.4 fake"), nil
}

type fakeSettings struct {
	cfg *models.BillingSettings
}

func (f *fakeSettings) GetBillingSettings(context.Context) (*models.BillingSettings, error) {
	return f.cfg, nil
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

func receiptUser() *models.User {
	business := "Acme Access Pty Ltd"
	abn := "51824753556"
	customer := "cus_1"
	return &models.User{
		ID:               7,
		Email:            "owner@example.com",
		BusinessName:     &business,
		ABN:              &abn,
		StripeCustomerID: &customer,
	}
}

func paidInvoice() billing.Invoice {
	return billing.Invoice{
		ID:          "in_1",
		Number:      "ACC-0042",
		Created:     time.Date(2026, time.February, 2, 0, 0, 0, 0, time.UTC),
		Subtotal:    11000,
		Total:       9900,
		Currency:    "aud",
		Description: "Provider Subscription",
		Coupon:      &billing.Coupon{PercentOff: 10},
	}
}

func TestTaxReceiptRendersGSTBreakdown(t *testing.T) {
	mock := billing.NewMockProvider()
	mock.PaidInvoices = []billing.Invoice{paidInvoice()}
	engine := &fakeEngine{}
	r := NewRenderer(&fakeSettings{cfg: validSettings()}, mock.Factory(), engine)

	pdf, name, err := r.TaxReceipt(context.Background(), receiptUser(), "in_1", Options{})
	if err != nil {
		t.Fatalf("TaxReceipt returned error: %v", err)
	}

	if len(pdf) == 0 {
		t.Fatal("expected pdf bytes")
	}
	if name != "tax-receipt-ACC-0042.pdf" {
		t.Fatalf("unexpected filename %q", name)
	}
	if engine.opts.PageSize != PageSizeA4 || engine.opts.Orientation != OrientationPortrait {
		t.Fatalf("defaults not applied: %+v", engine.opts)
	}

	html := string(engine.html)
	// GST is one eleventh of the discounted 99.00 subtotal, and the
	// pre-discount 110.00 appears alongside it.
	for _, want := range []string{"9.00", "90.00", "99.00", "110.00", "Acme Access Pty Ltd", "ABN 51824753556", "2 February 2026", "10% off"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered receipt missing %q", want)
		}
	}
}

func TestTaxReceiptFixedDiscountUsesDiscountedSubtotal(t *testing.T) {
	inv := paidInvoice()
	inv.Coupon = &billing.Coupon{AmountOff: 2000}
	// The provider's total does not matter for the breakdown; the GST
	// base is the discounted subtotal.
	inv.Total = 9900
	mock := billing.NewMockProvider()
	mock.PaidInvoices = []billing.Invoice{inv}
	engine := &fakeEngine{}
	r := NewRenderer(&fakeSettings{cfg: validSettings()}, mock.Factory(), engine)

	if _, _, err := r.TaxReceipt(context.Background(), receiptUser(), "in_1", Options{}); err != nil {
		t.Fatalf("TaxReceipt returned error: %v", err)
	}

	html := string(engine.html)
	// 110.00 subtotal less $20 off is 90.00; GST is 8.18 of that.
	for _, want := range []string{"8.18", "81.82", "90.00", "110.00", "$20 off"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered receipt missing %q", want)
		}
	}
}

func TestTaxReceiptNoDiscountOmitsOriginalAmount(t *testing.T) {
	inv := paidInvoice()
	inv.Coupon = nil
	inv.Subtotal = 11000
	inv.Total = 11000
	mock := billing.NewMockProvider()
	mock.PaidInvoices = []billing.Invoice{inv}
	engine := &fakeEngine{}
	r := NewRenderer(&fakeSettings{cfg: validSettings()}, mock.Factory(), engine)

	if _, _, err := r.TaxReceipt(context.Background(), receiptUser(), "in_1", Options{}); err != nil {
		t.Fatalf("TaxReceipt returned error: %v", err)
	}

	html := string(engine.html)
	if strings.Contains(html, "Original amount") {
		t.Error("undiscounted receipt should not show an original amount row")
	}
	for _, want := range []string{"10.00", "100.00", "110.00"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered receipt missing %q", want)
		}
	}
}

func TestTaxReceiptPageOptions(t *testing.T) {
	mock := billing.NewMockProvider()
	mock.PaidInvoices = []billing.Invoice{paidInvoice()}
	engine := &fakeEngine{}
	r := NewRenderer(&fakeSettings{cfg: validSettings()}, mock.Factory(), engine)

	opts := Options{PageSize: PageSizeLetter, Orientation: OrientationLandscape}
	if _, _, err := r.TaxReceipt(context.Background(), receiptUser(), "in_1", opts); err != nil {
		t.Fatalf("TaxReceipt returned error: %v", err)
	}
	if engine.opts != opts {
		t.Fatalf("options not forwarded: %+v", engine.opts)
	}
}

func TestTaxReceiptFilenameFallsBackToID(t *testing.T) {
	inv := paidInvoice()
	inv.Number = ""
	mock := billing.NewMockProvider()
	mock.PaidInvoices = []billing.Invoice{inv}
	r := NewRenderer(&fakeSettings{cfg: validSettings()}, mock.Factory(), &fakeEngine{})

	_, name, err := r.TaxReceipt(context.Background(), receiptUser(), "in_1", Options{})
	if err != nil {
		t.Fatalf("TaxReceipt returned error: %v", err)
	}
	if name != "tax-receipt-in_1.pdf" {
		t.Fatalf("unexpected filename %q", name)
	}
}

func TestTaxReceiptUnknownInvoice(t *testing.T) {
	mock := billing.NewMockProvider()
	mock.PaidInvoices = []billing.Invoice{paidInvoice()}
	r := NewRenderer(&fakeSettings{cfg: validSettings()}, mock.Factory(), &fakeEngine{})

	_, _, err := r.TaxReceipt(context.Background(), receiptUser(), "in_other", Options{})
	if !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
	}
}

func TestTaxReceiptNoCustomer(t *testing.T) {
	user := receiptUser()
	user.StripeCustomerID = nil
	r := NewRenderer(&fakeSettings{cfg: validSettings()}, billing.NewMockProvider().Factory(), &fakeEngine{})

	_, _, err := r.TaxReceipt(context.Background(), user, "in_1", Options{})
	if !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
	}
}

func TestTaxReceiptMissingSettings(t *testing.T) {
	r := NewRenderer(&fakeSettings{cfg: &models.BillingSettings{}}, billing.NewMockProvider().Factory(), &fakeEngine{})

	_, _, err := r.TaxReceipt(context.Background(), receiptUser(), "in_1", Options{})
	if !errors.Is(err, models.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestTaxReceiptEngineFailure(t *testing.T) {
	mock := billing.NewMockProvider()
	mock.PaidInvoices = []billing.Invoice{paidInvoice()}
	r := NewRenderer(&fakeSettings{cfg: validSettings()}, mock.Factory(), &fakeEngine{err: errors.New("binary missing")})

	if _, _, err := r.TaxReceipt(context.Background(), receiptUser(), "in_1", Options{}); err == nil {
		t.Fatal("expected engine error to propagate")
	}
}
