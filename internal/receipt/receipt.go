// Package receipt renders downloadable PDF tax receipts for paid
// subscription invoices, with Australian GST broken out of the
// GST-inclusive total.
package receipt

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log"
	"strings"

	"github.com/accessi-au/subscription-backend/internal/billing"
	"github.com/accessi-au/subscription-backend/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// receiptDateFormat renders dates as e.g. "2 January 2006".
const receiptDateFormat = "2 January 2006"

// invoiceLookupLimit bounds the paid-invoice scan used for the ownership
// check. It matches the length of the receipt listing receipts are
// downloaded from.
const invoiceLookupLimit = 12

// ErrInvoiceNotFound indicates the invoice does not exist among the user's
// paid invoices. Requests for other customers' invoices get the same
// answer.
var ErrInvoiceNotFound = errors.New("receipt: invoice not found")

// Page geometry options for the generated PDF.
const (
	PageSizeA4           = "A4"
	PageSizeLetter       = "Letter"
	OrientationPortrait  = "Portrait"
	OrientationLandscape = "Landscape"
)

// Options selects the PDF page geometry. Zero values mean A4 portrait.
type Options struct {
	PageSize    string
	Orientation string
}

func (o Options) withDefaults() Options {
	if o.PageSize == "" {
		o.PageSize = PageSizeA4
	}
	if o.Orientation == "" {
		o.Orientation = OrientationPortrait
	}
	return o
}

// PDFEngine turns rendered HTML into a PDF document.
type PDFEngine interface {
	Render(html []byte, opts Options) ([]byte, error)
}

// SettingsStore loads the admin-configured billing settings.
type SettingsStore interface {
	GetBillingSettings(ctx context.Context) (*models.BillingSettings, error)
}

// Receipt is the view model passed to the receipt template. All amounts
// are major-unit two-decimal strings.
type Receipt struct {
	InvoiceNumber  string
	IssuedOn       string
	BusinessName   string
	ABN            string
	Email          string
	Description    string
	Discount       string
	OriginalAmount string
	Subtotal       string
	GST            string
	Total          string
	Currency       string
}

// Renderer produces tax receipt PDFs from provider invoices.
type Renderer struct {
	settings SettingsStore
	provider billing.ProviderFactory
	engine   PDFEngine
	tmpl     *template.Template
}

// NewRenderer constructs a Renderer. It panics if the embedded template is
// malformed, which only happens on a broken build.
func NewRenderer(settings SettingsStore, provider billing.ProviderFactory, engine PDFEngine) *Renderer {
	return &Renderer{
		settings: settings,
		provider: provider,
		engine:   engine,
		tmpl:     template.Must(template.ParseFS(templateFS, "templates/tax_receipt.html")),
	}
}

// TaxReceipt renders the PDF receipt for one of the user's paid invoices
// and returns the document bytes plus a download filename. The invoice is
// looked up through the user's own paid-invoice history, so an invoice id
// belonging to a different customer yields ErrInvoiceNotFound.
func (r *Renderer) TaxReceipt(ctx context.Context, user *models.User, invoiceID string, opts Options) ([]byte, string, error) {
	cfg, err := r.settings.GetBillingSettings(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("receipt: load settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return nil, "", ErrInvoiceNotFound
	}

	invoices, err := r.provider(cfg.StripeSecretKey).ListPaidInvoices(ctx, *user.StripeCustomerID, invoiceLookupLimit)
	if err != nil {
		return nil, "", err
	}

	var inv *billing.Invoice
	for i := range invoices {
		if invoices[i].ID == invoiceID {
			inv = &invoices[i]
			break
		}
	}
	if inv == nil {
		return nil, "", ErrInvoiceNotFound
	}

	view := buildReceipt(user, inv)

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return nil, "", fmt.Errorf("receipt: render template: %w", err)
	}

	pdf, err := r.engine.Render(buf.Bytes(), opts.withDefaults())
	if err != nil {
		return nil, "", fmt.Errorf("receipt: generate pdf: %w", err)
	}

	log.Printf("Renderer: generated tax receipt for invoice %s, user %d", inv.ID, user.ID)
	return pdf, filename(inv), nil
}

// buildReceipt assembles the template view. The GST base is the invoice
// subtotal with the discount applied; GST is one eleventh of that base
// under the 10% inclusive rule, and the pre-tax subtotal is the
// remainder.
func buildReceipt(user *models.User, inv *billing.Invoice) Receipt {
	base := inv.Subtotal
	if inv.Coupon != nil {
		base = inv.Coupon.Apply(inv.Subtotal)
	}
	gst := base / 11
	pretax := base - gst

	view := Receipt{
		InvoiceNumber: invoiceNumber(inv),
		IssuedOn:      inv.Created.Format(receiptDateFormat),
		Email:         user.Email,
		Description:   inv.Description,
		Subtotal:      billing.FormatAmount(pretax),
		GST:           billing.FormatAmount(gst),
		Total:         billing.FormatAmount(base),
		Currency:      strings.ToUpper(inv.Currency),
	}
	if user.BusinessName != nil {
		view.BusinessName = *user.BusinessName
	}
	if user.ABN != nil {
		view.ABN = *user.ABN
	}
	if inv.Coupon != nil {
		view.Discount = inv.Coupon.Description()
		view.OriginalAmount = billing.FormatAmount(inv.Subtotal)
	}
	return view
}

func invoiceNumber(inv *billing.Invoice) string {
	if inv.Number != "" {
		return inv.Number
	}
	return inv.ID
}

func filename(inv *billing.Invoice) string {
	return "tax-receipt-" + invoiceNumber(inv) + ".pdf"
}
